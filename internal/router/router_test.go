package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	rcontext "github.com/Kirito123l/emission-agent/internal/context"
	"github.com/Kirito123l/emission-agent/internal/executor"
	"github.com/Kirito123l/emission-agent/internal/llm"
	"github.com/Kirito123l/emission-agent/internal/memory"
	"github.com/Kirito123l/emission-agent/internal/standardize"
	"github.com/Kirito123l/emission-agent/internal/tools"
	"github.com/Kirito123l/emission-agent/internal/tools/factors"
	"github.com/Kirito123l/emission-agent/internal/tools/micro"
	"github.com/Kirito123l/emission-agent/pkg/models"

	"github.com/Kirito123l/emission-agent/internal/config"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStandardizer() *standardize.Standardizer {
	return standardize.New(&config.Mappings{
		VehicleTypes: []config.VehicleType{{StandardName: "Passenger Car", Aliases: []string{"小汽车", "轿车"}}},
		Pollutants: []config.Pollutant{
			{StandardName: "CO2", Aliases: []string{"二氧化碳"}},
			{StandardName: "NOx", Aliases: []string{"氮氧化物"}},
		},
	})
}

// stubTool returns a fixed *models.ToolResult regardless of arguments, so
// each scenario can script exactly what a tool call would have produced.
type stubTool struct {
	name   string
	schema string
	result *models.ToolResult
	err    error
	calls  *[]map[string]any
}

func (t *stubTool) Name() string            { return t.name }
func (t *stubTool) Description() string     { return "stub tool for testing" }
func (t *stubTool) Schema() json.RawMessage { return json.RawMessage(t.schema) }
func (t *stubTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	if t.calls != nil {
		*t.calls = append(*t.calls, args)
	}
	return t.result, t.err
}

func newTestExecutor(toolList ...tools.Tool) *executor.Executor {
	registry := tools.NewRegistry()
	for _, tool := range toolList {
		registry.Register(silentLogger(), tool)
	}
	return executor.New(registry, testStandardizer(), 0, silentLogger())
}

func newTestRouter(exec *executor.Executor, client llm.Client, dataDir string) *Router {
	assembler := rcontext.New("system prompt", nil)
	mem := memory.NewManager("test-session", dataDir, silentLogger())
	return New(assembler, exec, mem, client, "Summarize: {results}", silentLogger())
}

// scriptedLLM returns one prepared *llm.Response per ChatWithTools/Chat
// call, in order, mimicking a multi-round conversation.
type scriptedLLM struct {
	responses []*llm.Response
	next      int
	chatCalls int
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []models.ChatMessage, system string) (*llm.Response, error) {
	s.chatCalls++
	return &llm.Response{Content: "synthesized reply"}, nil
}

func (s *scriptedLLM) ChatWithTools(ctx context.Context, messages []models.ChatMessage, system string, toolDefs []models.ToolDescriptor) (*llm.Response, error) {
	if s.next >= len(s.responses) {
		return &llm.Response{Content: "no more script"}, nil
	}
	resp := s.responses[s.next]
	s.next++
	return resp, nil
}

// Scenario 1: alias query, single pollutant, defaults -> chart + table.
func TestChatFactorsQueryReturnsChartAndTable(t *testing.T) {
	factorsResult := &models.ToolResult{
		Success: true,
		Summary: "CO2 排放因子查询结果：...",
		Data: map[string]any{
			"speed_curve": []map[string]any{
				{"speed_kph": 10.0, "emission_rate": 100.0},
				{"speed_kph": 20.0, "emission_rate": 90.0},
				{"speed_kph": 30.0, "emission_rate": 80.0},
				{"speed_kph": 40.0, "emission_rate": 70.0},
			},
			"query_summary": map[string]any{"pollutant": "CO2", "vehicle_type": "Passenger Car", "model_year": 2020.0},
		},
	}
	exec := newTestExecutor(&stubTool{name: "query_emission_factors", schema: `{"type":"object"}`, result: factorsResult})
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []models.ToolCall{{ID: "1", Name: "query_emission_factors", Arguments: map[string]any{"vehicle_type": "小汽车", "pollutant": "二氧化碳"}}}},
	}}
	r := newTestRouter(exec, client, t.TempDir())

	resp := r.Chat(context.Background(), "小汽车的二氧化碳排放因子是多少", "")

	if resp.Text != factorsResult.Summary {
		t.Fatalf("Text = %q, want tool summary returned verbatim", resp.Text)
	}
	if resp.ChartData == nil {
		t.Fatalf("expected chart data for a single successful factors call")
	}
	if resp.TableData == nil {
		t.Fatalf("expected table data for a single successful factors call")
	}
	cols, _ := resp.TableData["columns"].([]string)
	foundSpeed, foundPollutant := false, false
	for _, c := range cols {
		if strings.Contains(c, "速度") {
			foundSpeed = true
		}
		if strings.Contains(c, "CO2") {
			foundPollutant = true
		}
	}
	if !foundSpeed || !foundPollutant {
		t.Fatalf("table columns = %v, want 速度 (km/h) and CO2 (g/km)", cols)
	}
}

// Regression test for chart/table extraction against the real tool, not a
// hand-built stub: query_emission_factors returns typed Go structs, and the
// extractor must work against whatever shape those actually round-trip to.
func TestChatFactorsQueryRealToolProducesChartAndTable(t *testing.T) {
	exec := newTestExecutor(factors.New())
	client := &scriptedLLM{responses: []*llm.Response{
		// Arguments mirror what actually reaches a ToolCall in production:
		// JSON-unmarshaled into map[string]any (see internal/llm/anthropic.go,
		// internal/llm/openai.go), so numbers are float64, not Go int/string
		// literal slices.
		{ToolCalls: []models.ToolCall{{ID: "1", Name: "query_emission_factors", Arguments: map[string]any{
			"vehicle_type": "小汽车", "pollutant": "二氧化碳", "model_year": 2020.0,
		}}}},
	}}
	r := newTestRouter(exec, client, t.TempDir())

	resp := r.Chat(context.Background(), "查询2020年小汽车的二氧化碳排放因子", "")

	if resp.ChartData == nil {
		t.Fatalf("expected chart data from the real factors tool, got nil")
	}
	if resp.ChartData["type"] != "emission_factors" {
		t.Fatalf("chart_data.type = %v, want emission_factors", resp.ChartData["type"])
	}
	if resp.TableData == nil {
		t.Fatalf("expected table data from the real factors tool, got nil")
	}
	cols, _ := resp.TableData["columns"].([]string)
	foundSpeed, foundPollutant := false, false
	for _, c := range cols {
		if strings.Contains(c, "速度") {
			foundSpeed = true
		}
		if strings.Contains(c, "CO2") {
			foundPollutant = true
		}
	}
	if !foundSpeed || !foundPollutant {
		t.Fatalf("table columns = %v, want 速度 (km/h) and CO2 (g/km)", cols)
	}
}

// Same regression, for calculate_micro_emission's typed []PointEmissions
// and *Summary output.
func TestChatMicroEmissionRealToolProducesTable(t *testing.T) {
	exec := newTestExecutor(micro.New(""))
	client := &scriptedLLM{responses: []*llm.Response{
		// Arguments mirror the JSON-generic shape a real tool call carries
		// (see the factors test above): []any, not []string/[]map[string]any.
		{ToolCalls: []models.ToolCall{{ID: "1", Name: "calculate_micro_emission", Arguments: map[string]any{
			"vehicle_type": "Passenger Car",
			"pollutants":   []any{"CO2"},
			"model_year":   2020.0,
			"trajectory_data": []any{
				map[string]any{"t": 0.0, "speed_kph": 0.0},
				map[string]any{"t": 1.0, "speed_kph": 20.0},
				map[string]any{"t": 2.0, "speed_kph": 40.0},
			},
		}}},
	}}
	r := newTestRouter(exec, client, t.TempDir())

	resp := r.Chat(context.Background(), "帮我算一下小汽车这段轨迹的排放", "")

	if resp.TableData == nil {
		t.Fatalf("expected table data from the real micro tool, got nil")
	}
	if resp.TableData["type"] != "calculate_micro_emission" {
		t.Fatalf("table_data.type = %v, want calculate_micro_emission", resp.TableData["type"])
	}
	rows, _ := resp.TableData["preview_rows"].([]map[string]any)
	if len(rows) == 0 {
		t.Fatalf("expected preview rows, got %v", resp.TableData["preview_rows"])
	}
}

// Scenario 2: unknown pollutant -> standardization error -> retry -> final
// reply mentions the valid pollutant set.
func TestChatUnknownPollutantRetriesThenExplains(t *testing.T) {
	exec := newTestExecutor(&stubTool{name: "query_emission_factors", schema: `{"type":"object"}`, result: &models.ToolResult{Success: true, Summary: "ok"}})
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []models.ToolCall{{ID: "1", Name: "query_emission_factors", Arguments: map[string]any{"vehicle_type": "小汽车", "pollutant": "未知污染物"}}}},
		{Content: "请选择有效的污染物，例如 CO2 或 NOx。"},
	}}
	r := newTestRouter(exec, client, t.TempDir())

	resp := r.Chat(context.Background(), "小汽车的未知污染物排放因子", "")

	if !strings.Contains(resp.Text, "CO2") && !strings.Contains(resp.Text, "NOx") {
		t.Fatalf("expected final reply to mention a valid pollutant, got %q", resp.Text)
	}
	if client.next != 2 {
		t.Fatalf("expected exactly one retry round, got %d ChatWithTools calls", client.next)
	}
}

// Scenario 3: trajectory file without any vehicle mention -> guard fires,
// fixed clarification returned, no tool executed.
func TestChatMicroEmissionWithoutVehicleMentionTriggersGuard(t *testing.T) {
	var calls []map[string]any
	exec := newTestExecutor(&stubTool{name: "calculate_micro_emission", schema: `{"type":"object"}`, result: &models.ToolResult{Success: true}, calls: &calls})
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []models.ToolCall{{ID: "1", Name: "calculate_micro_emission", Arguments: map[string]any{"vehicle_type": "Passenger Car"}}}},
	}}
	r := newTestRouter(exec, client, t.TempDir())

	resp := r.Chat(context.Background(), "帮我算一下这个轨迹文件的排放", "/tmp/trip.csv does not exist")

	if resp.Text != clarificationPrompt {
		t.Fatalf("Text = %q, want the fixed clarification prompt", resp.Text)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no tool execution once the guard fires, got %d calls", len(calls))
	}
}

// Scenario 6: knowledge question -> single query_knowledge call, summary
// returned verbatim, no chart/table.
func TestChatKnowledgeQueryReturnsSummaryVerbatim(t *testing.T) {
	knowledgeResult := &models.ToolResult{
		Success: true,
		Summary: "VSP 是比功率，用于衡量车辆瞬时功耗。\n\n参考文档：\n- MOVES 方法学手册",
	}
	exec := newTestExecutor(&stubTool{name: "query_knowledge", schema: `{"type":"object"}`, result: knowledgeResult})
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []models.ToolCall{{ID: "1", Name: "query_knowledge", Arguments: map[string]any{"question": "什么是VSP"}}}},
	}}
	r := newTestRouter(exec, client, t.TempDir())

	resp := r.Chat(context.Background(), "什么是VSP", "")

	if resp.Text != knowledgeResult.Summary {
		t.Fatalf("Text = %q, want the knowledge tool summary verbatim", resp.Text)
	}
	if resp.ChartData != nil || resp.TableData != nil {
		t.Fatalf("expected no chart/table for a knowledge answer, got chart=%v table=%v", resp.ChartData, resp.TableData)
	}
	if !strings.Contains(resp.Text, "参考文档") {
		t.Fatalf("expected the reference-documents block to be preserved, got %q", resp.Text)
	}
}

// A tool failure short-circuits straight to the deterministic fallback
// report once the retry budget is exhausted, never paraphrasing the
// failure through an LLM call.
func TestChatToolFailureExhaustsRetriesIntoFallback(t *testing.T) {
	failing := &models.ToolResult{Success: false, Error: "vehicle_type not recognized", Data: nil}
	exec := newTestExecutor(&stubTool{name: "query_emission_factors", schema: `{"type":"object"}`, result: failing})
	toolCall := models.ToolCall{ID: "1", Name: "query_emission_factors", Arguments: map[string]any{}}
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []models.ToolCall{toolCall}},
		{ToolCalls: []models.ToolCall{toolCall}},
		{ToolCalls: []models.ToolCall{toolCall}},
	}}
	r := newTestRouter(exec, client, t.TempDir())

	resp := r.Chat(context.Background(), "查一下排放因子", "")

	if !strings.Contains(resp.Text, "工具执行结果") {
		t.Fatalf("expected deterministic fallback report, got %q", resp.Text)
	}
}

// Direct text responses (no tool calls) pass through untouched.
func TestChatNoToolCallsReturnsContentDirectly(t *testing.T) {
	exec := newTestExecutor()
	client := &scriptedLLM{responses: []*llm.Response{{Content: "你好，我可以帮你计算车辆排放。"}}}
	r := newTestRouter(exec, client, t.TempDir())

	resp := r.Chat(context.Background(), "你好", "")

	if resp.Text != "你好，我可以帮你计算车辆排放。" {
		t.Fatalf("Text = %q", resp.Text)
	}
}
