package router

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Kirito123l/emission-agent/internal/executor"
)

// renderSingleToolSuccess returns the stable, pre-formatted text for the
// single-successful-tool fast path. Each tool already builds its own
// summary text in Execute, so the router has
// nothing left to assemble here — it only has to trust that text instead
// of routing it through a synthesis LLM call that could paraphrase or
// invent numbers.
func renderSingleToolSuccess(toolName string, result executor.Result) string {
	if result.Summary != "" {
		return result.Summary
	}
	return fmt.Sprintf("%s 执行完成。", toolName)
}

// formatResultsAsFallback produces a structured, deterministic report
// when at least one tool failed — no LLM call, so a failure can never be
// paraphrased into something that looks like success.
func formatResultsAsFallback(results []toolResult) string {
	var b strings.Builder
	b.WriteString("## 工具执行结果\n\n")

	successCount := 0
	for _, tr := range results {
		if tr.result.Success {
			successCount++
		}
	}
	errorCount := len(results) - successCount
	if errorCount > 0 {
		fmt.Fprintf(&b, "⚠️ %d 个工具执行失败，%d 个成功\n\n", errorCount, successCount)
	} else {
		b.WriteString("✅ 所有工具执行成功\n\n")
	}

	for i, tr := range results {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, tr.name)
		if tr.result.Success {
			b.WriteString("**状态**: ✅ 成功\n\n")
			if tr.result.Summary != "" {
				fmt.Fprintf(&b, "**结果**: %s\n\n", tr.result.Summary)
			}
		} else {
			b.WriteString("**状态**: ❌ 失败\n\n")
			if tr.result.Error != "" {
				fmt.Fprintf(&b, "**错误**: %s\n\n", tr.result.Error)
			}
			if len(tr.result.Suggestions) > 0 {
				b.WriteString("**建议**:\n")
				for _, s := range tr.result.Suggestions {
					fmt.Fprintf(&b, "- %s\n", s)
				}
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

// synthesisView is the trimmed, per-tool shape handed to the synthesis
// LLM call — aggregates only, never the detailed row-by-row data, so the
// synthesis prompt stays small and the model has nothing to invent
// numbers from beyond what's already summarized.
type synthesisView struct {
	Success bool   `json:"success"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// filterResultsForSynthesis renders a compact JSON object the synthesis
// prompt can reference by tool name.
func filterResultsForSynthesis(results []toolResult) string {
	filtered := make(map[string]synthesisView, len(results))
	for _, tr := range results {
		if tr.result.Success {
			filtered[tr.name] = synthesisView{Success: true, Summary: tr.result.Summary}
		} else {
			filtered[tr.name] = synthesisView{Success: false, Error: tr.result.Error}
		}
	}
	raw, err := json.MarshalIndent(filtered, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}
