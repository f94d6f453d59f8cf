package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// openAITransport talks to any OpenAI-compatible chat-completions endpoint
// (OpenAI itself, or a DashScope/compatible gateway — selected via BaseURL).
type openAITransport struct {
	client    *openai.Client
	model     string
	transport string // "proxy" or "direct", for logs/metrics only
}

func newOpenAITransport(apiKey, baseURL, model, transportName string, httpClient *http.Client) *openAITransport {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &openAITransport{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		transport: transportName,
	}
}

func (t *openAITransport) name() string { return "openai/" + t.transport }

func (t *openAITransport) Chat(ctx context.Context, messages []models.ChatMessage, system string) (*Response, error) {
	return t.complete(ctx, messages, system, nil)
}

func (t *openAITransport) ChatWithTools(ctx context.Context, messages []models.ChatMessage, system string, tools []models.ToolDescriptor) (*Response, error) {
	return t.complete(ctx, messages, system, tools)
}

func (t *openAITransport) complete(ctx context.Context, messages []models.ChatMessage, system string, tools []models.ToolDescriptor) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:    t.model,
		Messages: toOpenAIMessages(messages, system),
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}

	resp, err := t.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: empty choices")
	}

	choice := resp.Choices[0].Message
	out := &Response{Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("openai tool call %s: invalid arguments json: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func toOpenAIMessages(messages []models.ChatMessage, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []models.ToolDescriptor) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Schema,
			},
		})
	}
	return out
}
