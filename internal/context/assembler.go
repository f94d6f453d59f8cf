// Package context assembles the message list handed to the LLM (C8). It
// makes no decisions about what to do with a turn — only how to lay out
// the system prompt, tool definitions, remembered facts, recent turns,
// and file context within a token budget, in a fixed priority order.
package context

import (
	"fmt"
	"strings"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// maxContextTokens is a conservative overall budget; token counts here are
// a char-count/2 heuristic, not an exact tokenizer.
const maxContextTokens = 6000

// toolDefinitionsTokens is a fixed estimate for the tool schema block,
// which is static per process and not worth re-measuring every turn.
const toolDefinitionsTokens = 400

// maxAssistantResponseChars truncates long assistant replies kept in
// working memory, so one verbose past answer doesn't bias every future one.
const maxAssistantResponseChars = 300

// maxWorkingMemoryTurnsInContext is how many recent turns are offered to
// the LLM; the memory layer itself may hold more.
const maxWorkingMemoryTurnsInContext = 3

// FileContext is the file-analysis snapshot to foreground ahead of the
// current user message, when a file is associated with the turn.
type FileContext struct {
	Filename   string
	FilePath   string
	TaskType   string
	RowCount   int
	Columns    []string
	SampleRows []map[string]any
}

// Assembler builds an AssembledContext from a system prompt, a static
// tool list, and a turn's memory/file state.
type Assembler struct {
	systemPrompt string
	tools        []models.ToolDescriptor
}

// New builds an Assembler with the process-wide system prompt and tool
// definitions, both loaded once at startup (C1).
func New(systemPrompt string, tools []models.ToolDescriptor) *Assembler {
	return &Assembler{systemPrompt: systemPrompt, tools: tools}
}

// Assemble lays out context in strict priority order: system prompt, tool
// definitions, fact memory, working memory (last few turns, budget
// permitting), file context prepended to the current message, then the
// current message itself.
func (a *Assembler) Assemble(userMessage string, workingMemory []models.Turn, factMemory models.FactMemory, fileContext *FileContext) models.AssembledContext {
	usedTokens := estimateTokens(a.systemPrompt)
	usedTokens += toolDefinitionsTokens

	var messages []models.ChatMessage

	if factSummary := formatFactMemory(factMemory); factSummary != "" {
		content := "[Context from previous conversations]\n" + factSummary
		messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: content})
		usedTokens += estimateTokens(factSummary)
	}

	remainingBudget := maxContextTokens - usedTokens - 500
	workingMessages := formatWorkingMemory(workingMemory, remainingBudget, maxWorkingMemoryTurnsInContext)
	messages = append(messages, workingMessages...)
	usedTokens += estimateTokens(formatForEstimate(workingMessages))

	if fileContext != nil {
		fileSummary := formatFileContext(fileContext, 500)
		userMessage = fileSummary + "\n\n" + userMessage
	}

	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: userMessage})
	usedTokens += estimateTokens(userMessage)

	return models.AssembledContext{
		SystemPrompt:    a.systemPrompt,
		Tools:           a.tools,
		Messages:        messages,
		EstimatedTokens: usedTokens,
	}
}

// formatFactMemory renders the non-empty fields of fact memory as a
// plain-text block, or "" if there is nothing worth mentioning.
func formatFactMemory(f models.FactMemory) string {
	var lines []string
	if f.RecentVehicle != "" {
		lines = append(lines, fmt.Sprintf("Recent vehicle type: %s", f.RecentVehicle))
	}
	if len(f.RecentPollutants) > 0 {
		lines = append(lines, fmt.Sprintf("Recent pollutants: %s", strings.Join(f.RecentPollutants, ", ")))
	}
	if f.RecentYear != 0 {
		lines = append(lines, fmt.Sprintf("Recent model year: %d", f.RecentYear))
	}
	if f.ActiveFile != "" {
		lines = append(lines, fmt.Sprintf("Active file: %s", f.ActiveFile))
	}
	return strings.Join(lines, "\n")
}

// formatWorkingMemory keeps the last maxTurns turns, truncating long
// assistant replies, then drops to the single most recent turn if the
// result is still over budget.
func formatWorkingMemory(turns []models.Turn, maxTokens int, maxTurns int) []models.ChatMessage {
	if len(turns) == 0 {
		return nil
	}

	recent := turns
	if len(recent) > maxTurns {
		recent = recent[len(recent)-maxTurns:]
	}

	result := renderTurns(recent)
	if estimateTokens(formatForEstimate(result)) > maxTokens && len(recent) > 1 {
		recent = recent[len(recent)-1:]
		result = renderTurns(recent)
	}
	return result
}

func renderTurns(turns []models.Turn) []models.ChatMessage {
	result := make([]models.ChatMessage, 0, len(turns)*2)
	for _, turn := range turns {
		result = append(result, models.ChatMessage{Role: models.RoleUser, Content: turn.User})
		assistant := turn.Assistant
		if len(assistant) > maxAssistantResponseChars {
			assistant = assistant[:maxAssistantResponseChars] + "...(truncated)"
		}
		result = append(result, models.ChatMessage{Role: models.RoleAssistant, Content: assistant})
	}
	return result
}

// formatFileContext renders the file-analysis block prepended to the
// current message. The first non-trivial line is exactly
// "task_type: <value>" so the LLM can reliably condition on it.
func formatFileContext(f *FileContext, maxTokens int) string {
	taskType := f.TaskType
	if taskType == "" {
		taskType = "unknown"
	}
	lines := []string{
		fmt.Sprintf("task_type: %s", taskType),
		fmt.Sprintf("Filename: %s", orUnknown(f.Filename)),
		fmt.Sprintf("File path: %s", orUnknown(f.FilePath)),
		fmt.Sprintf("Rows: %d", f.RowCount),
		fmt.Sprintf("Columns: %s", strings.Join(f.Columns, ", ")),
	}

	if maxTokens > 300 && len(f.SampleRows) > 0 {
		sample := f.SampleRows
		if len(sample) > 2 {
			sample = sample[:2]
		}
		lines = append(lines, fmt.Sprintf("Sample (first %d rows): %v", len(sample), sample))
	}

	return strings.Join(lines, "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// formatForEstimate stringifies a message slice for the char-count budget
// check, mirroring how the original estimated the rendered-list size.
func formatForEstimate(messages []models.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(string(m.Role))
		b.WriteString(m.Content)
	}
	return b.String()
}

// estimateTokens is the same crude heuristic the original uses: one
// token per two characters, which holds up reasonably for a mix of
// Chinese text (roughly 1 token/char) and English text (roughly 1
// token/word, averaging out to 1 token per few chars).
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len([]rune(text)) / 2
}
