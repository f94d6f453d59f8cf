// Package llm wraps the LLM backends the router talks to behind a single
// two-operation interface, with a narrow proxy/direct transport failover
// that only engages on connection-class failures.
package llm

import (
	"context"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// Response is what a chat call returns: either final text, or one or more
// tool calls the router must execute before the turn can finish.
type Response struct {
	Content   string
	ToolCalls []models.ToolCall
}

// Client is the two-operation surface the router depends on (C3). Chat is
// a plain completion; ChatWithTools additionally offers the model a set of
// callable tools and may come back with ToolCalls instead of Content.
type Client interface {
	Chat(ctx context.Context, messages []models.ChatMessage, system string) (*Response, error)
	ChatWithTools(ctx context.Context, messages []models.ChatMessage, system string, tools []models.ToolDescriptor) (*Response, error)
}

// transport is the narrower shape a single backend (proxy or direct route
// to the same provider) must implement so FailoverClient can fail over
// between them without knowing which concrete provider SDK is underneath.
type transport interface {
	Client
	// name identifies the transport in logs and metrics, e.g. "openai/proxy".
	name() string
}
