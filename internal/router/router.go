// Package router drives one turn of the conversation: it assembles
// context, calls the LLM in tool-use mode, executes whatever tools the
// model asks for, retries with error context on partial failure, and
// synthesizes the final answer (C9). It is the only place in the system
// that decides what to do next; everything underneath it is pure lookup
// or dispatch.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	rcontext "github.com/Kirito123l/emission-agent/internal/context"
	"github.com/Kirito123l/emission-agent/internal/executor"
	"github.com/Kirito123l/emission-agent/internal/llm"
	"github.com/Kirito123l/emission-agent/internal/memory"
	"github.com/Kirito123l/emission-agent/internal/observability"
	"github.com/Kirito123l/emission-agent/pkg/models"
)

// maxToolCallsPerTurn bounds the retry loop so a confused model can't spin
// forever re-issuing tool calls.
const maxToolCallsPerTurn = 3

// vehicleKeywords is the fixed vocabulary the pre-dispatch guard looks
// for in the user's own message before letting calculate_micro_emission run.
var vehicleKeywords = []string{
	"小汽车", "轿车", "乘用车", "私家车", "sedan", "passenger car",
	"公交", "客车", "bus", "transit",
	"货车", "卡车", "truck", "cargo",
	"suv", "越野",
	"摩托", "motorcycle",
	"柴油车", "汽油车", "diesel", "gasoline",
}

// backReferencePhrases let the user say "same as before" instead of
// repeating the vehicle type, provided fact memory actually remembers one.
var backReferencePhrases = []string{"同上", "沿用", "和之前", "还是", "一样"}

// hallucinationKeywords are phrases synthesis sometimes invents when it
// extrapolates beyond the tool data; their presence is only logged, never
// blocked, since the LLM output is still returned to the user.
var hallucinationKeywords = []string{"相当于", "棵树", "峰值出现在", "空调导致", "不完全燃烧"}

const clarificationPrompt = "请先告诉我车辆类型，例如：\n" +
	"- 小汽车（乘用车）\n" +
	"- 公交车\n" +
	"- 货车\n" +
	"- SUV\n" +
	"或者其他具体车型。"

const retryExhaustedMessage = "我尝试了几种方式但遇到了一些问题，能否提供更多细节说明您的需求？"

// Router ties one session's memory, the shared context assembler, the
// shared tool executor, and an LLM client together into a single chat
// operation.
type Router struct {
	assembler       *rcontext.Assembler
	executor        *executor.Executor
	memory          *memory.Manager
	llmClient       llm.Client
	synthesisPrompt string
	logger          *slog.Logger
	observer        *observability.Observer
}

// SetObserver attaches metrics/tracing for every subsequent Chat call. A
// nil observer (the default) disables observability.
func (r *Router) SetObserver(obs *observability.Observer) {
	r.observer = obs
}

// New builds a Router for one session. The assembler, executor, and LLM
// client are process-wide and shared across sessions; memory is per-session.
func New(assembler *rcontext.Assembler, exec *executor.Executor, mem *memory.Manager, llmClient llm.Client, synthesisPrompt string, logger *slog.Logger) *Router {
	return &Router{
		assembler:       assembler,
		executor:        exec,
		memory:          mem,
		llmClient:       llmClient,
		synthesisPrompt: synthesisPrompt,
		logger:          logger,
	}
}

// toolResult pairs one executed tool call with its name, for the
// synthesis and extraction helpers that need both.
type toolResult struct {
	id     string
	name   string
	result executor.Result
}

// Chat processes one user turn: analyze any uploaded file (cached by
// path+mtime), assemble context, call the LLM with tools, execute and
// retry as needed, synthesize a reply, extract chart/table/download
// data, update memory, and return.
func (r *Router) Chat(ctx context.Context, userMessage string, filePath string) models.RouterResponse {
	ctx, done := r.observer.Turn(ctx, r.memory.SessionID())
	defer done()

	var fileContext map[string]any
	if filePath != "" {
		fileContext = r.analyzeFileCached(ctx, filePath)
	}

	assembled := r.assembler.Assemble(userMessage, r.memory.GetWorkingMemory(), r.memory.GetFactMemory(), toAssemblerFileContext(fileContext))

	resp, err := r.llmClient.ChatWithTools(ctx, assembled.Messages, assembled.SystemPrompt, assembled.Tools)
	if err != nil {
		result := models.RouterResponse{Text: "抱歉，调用语言模型时出现问题，请稍后重试。"}
		r.updateMemory(userMessage, result.Text, nil, filePath, fileContext)
		return result
	}

	result := r.processResponse(ctx, resp, assembled, userMessage, filePath, 0)

	var completed []models.CompletedCall
	for _, tc := range resp.ToolCalls {
		completed = append(completed, models.CompletedCall{Name: tc.Name, Arguments: tc.Arguments})
	}
	r.updateMemory(userMessage, result.Text, completed, filePath, fileContext)

	return result
}

func (r *Router) updateMemory(userMessage, assistantText string, calls []models.CompletedCall, filePath string, fileContext map[string]any) {
	r.memory.Update(userMessage, assistantText, calls, filePath, fileContext)
}

// analyzeFileCached reuses a previous analysis when the path and
// modification time both still match, avoiding re-reading a file the
// session has already seen this turn.
func (r *Router) analyzeFileCached(ctx context.Context, filePath string) map[string]any {
	cached := r.memory.GetFactMemory().FileAnalysis
	var currentMtime int64
	if info, err := os.Stat(filePath); err == nil {
		currentMtime = info.ModTime().UnixNano()
	}

	if cached != nil {
		if cachedPath, _ := cached["file_path"].(string); cachedPath == filePath {
			if cachedMtime, ok := cached["file_mtime"].(int64); ok && cachedMtime == currentMtime {
				return cached
			}
			if cachedMtimeF, ok := cached["file_mtime"].(float64); ok && int64(cachedMtimeF) == currentMtime {
				return cached
			}
		}
	}

	result := r.executor.Execute(ctx, "analyze_file", map[string]any{"file_path": filePath}, filePath)
	data := result.Data
	if data == nil {
		data = map[string]any{}
	}
	data["file_path"] = filePath
	data["file_mtime"] = currentMtime
	return data
}

func toAssemblerFileContext(data map[string]any) *rcontext.FileContext {
	if data == nil {
		return nil
	}
	fc := &rcontext.FileContext{}
	if v, ok := data["filename"].(string); ok {
		fc.Filename = v
	}
	if v, ok := data["file_path"].(string); ok {
		fc.FilePath = v
	}
	if v, ok := data["task_type"].(string); ok {
		fc.TaskType = v
	} else if v, ok := data["detected_type"].(string); ok {
		fc.TaskType = v
	}
	if v, ok := data["row_count"].(int); ok {
		fc.RowCount = v
	} else if v, ok := data["row_count"].(float64); ok {
		fc.RowCount = int(v)
	}
	if v, ok := data["columns"].([]string); ok {
		fc.Columns = v
	} else if v, ok := data["columns"].([]any); ok {
		for _, c := range v {
			if s, ok := c.(string); ok {
				fc.Columns = append(fc.Columns, s)
			}
		}
	}
	if v, ok := data["sample_rows"].([]map[string]any); ok {
		fc.SampleRows = v
	}
	return fc
}

// processResponse handles one round of the LLM's answer: a direct text
// response, a retry-budget exhaustion, or a batch of tool calls to
// execute, possibly followed by another round on partial failure.
func (r *Router) processResponse(ctx context.Context, resp *llm.Response, assembled models.AssembledContext, userMessage, filePath string, toolCallCount int) models.RouterResponse {
	if len(resp.ToolCalls) == 0 {
		return models.RouterResponse{Text: resp.Content}
	}

	if toolCallCount >= maxToolCallsPerTurn {
		return models.RouterResponse{Text: retryExhaustedMessage}
	}

	var results []toolResult
	for _, tc := range resp.ToolCalls {
		if tc.Name == "calculate_micro_emission" {
			if guard := r.vehicleMentionGuard(tc, userMessage); guard != "" {
				return models.RouterResponse{Text: guard}
			}
		}

		execResult := r.executor.Execute(ctx, tc.Name, tc.Arguments, filePath)
		results = append(results, toolResult{id: tc.ID, name: tc.Name, result: execResult})
	}

	hasError := false
	for _, tr := range results {
		if !tr.result.Success {
			hasError = true
			break
		}
	}

	if hasError && toolCallCount < maxToolCallsPerTurn-1 {
		assembled.Messages = append(assembled.Messages, assistantToolCallMessage(resp))
		assembled.Messages = append(assembled.Messages, models.ChatMessage{
			Role:       models.RoleTool,
			Content:    formatToolErrors(results),
			ToolCallID: results[0].id,
		})

		retryResp, err := r.llmClient.ChatWithTools(ctx, assembled.Messages, assembled.SystemPrompt, assembled.Tools)
		if err != nil {
			return models.RouterResponse{Text: "抱歉，调用语言模型时出现问题，请稍后重试。"}
		}
		return r.processResponse(ctx, retryResp, assembled, userMessage, filePath, toolCallCount+1)
	}

	text := r.synthesize(ctx, assembled, results)
	return models.RouterResponse{
		Text:         text,
		ChartData:    extractChartData(results),
		TableData:    extractTableData(results),
		DownloadFile: extractDownloadFile(results),
	}
}

// vehicleMentionGuard returns a fixed clarification prompt when the
// user's own message names no vehicle and doesn't back-reference a
// recent one; it returns "" when the call should proceed.
func (r *Router) vehicleMentionGuard(tc models.ToolCall, userMessage string) string {
	vehicleType, _ := tc.Arguments["vehicle_type"].(string)
	if vehicleType == "" {
		return ""
	}

	lowered := strings.ToLower(userMessage)
	hasMention := containsAny(lowered, vehicleKeywords)
	if hasMention {
		return ""
	}

	recentVehicle := r.memory.GetFactMemory().RecentVehicle
	refersToPrevious := containsAny(userMessage, backReferencePhrases)
	if recentVehicle != "" && refersToPrevious {
		return ""
	}

	if r.logger != nil {
		r.logger.Info("vehicle mention guard fired", "tool", tc.Name)
	}
	return clarificationPrompt
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func assistantToolCallMessage(resp *llm.Response) models.ChatMessage {
	return models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	}
}

func formatToolErrors(results []toolResult) string {
	var lines []string
	for _, tr := range results {
		if tr.result.Success {
			continue
		}
		line := fmt.Sprintf("[%s] Error: %s", tr.name, tr.result.Error)
		if len(tr.result.Suggestions) > 0 {
			line += "\nSuggestions: " + strings.Join(tr.result.Suggestions, ", ")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// synthesize turns a batch of tool results into final text: the
// knowledge tool's answer is returned verbatim, any failure short-circuits
// to a deterministic fallback, a lone successful calculator/factor/file
// call renders through the stable Markdown formatter, and anything else
// goes through one synthesis-only LLM call over a filtered view of the
// results (no tools offered, so it can't call more).
func (r *Router) synthesize(ctx context.Context, assembled models.AssembledContext, results []toolResult) string {
	if len(results) == 1 && results[0].name == "query_knowledge" {
		if results[0].result.Success && results[0].result.Summary != "" {
			return results[0].result.Summary
		}
	}

	for _, tr := range results {
		if !tr.result.Success {
			return formatResultsAsFallback(results)
		}
	}

	if len(results) == 1 {
		only := results[0]
		if only.result.Summary != "" && isDeterministicallyRenderable(only.name) {
			return renderSingleToolSuccess(only.name, only.result)
		}
	}

	filtered := filterResultsForSynthesis(results)
	synthesisPrompt := strings.Replace(r.synthesisPrompt, "{results}", filtered, 1)

	lastUserMessage := "请总结计算结果"
	if len(assembled.Messages) > 0 {
		lastUserMessage = assembled.Messages[len(assembled.Messages)-1].Content
	}

	synthesisResp, err := r.llmClient.Chat(ctx, []models.ChatMessage{{Role: models.RoleUser, Content: lastUserMessage}}, synthesisPrompt)
	if err != nil {
		return formatResultsAsFallback(results)
	}

	for _, kw := range hallucinationKeywords {
		if strings.Contains(synthesisResp.Content, kw) && r.logger != nil {
			r.logger.Warn("possible hallucination detected in synthesis", "keyword", kw)
		}
	}

	return synthesisResp.Content
}

func isDeterministicallyRenderable(toolName string) bool {
	switch toolName {
	case "calculate_micro_emission", "calculate_macro_emission", "query_emission_factors", "analyze_file":
		return true
	default:
		return false
	}
}
