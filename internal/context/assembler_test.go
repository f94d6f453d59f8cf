package context

import (
	"strings"
	"testing"
	"time"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

func sampleTools() []models.ToolDescriptor {
	return []models.ToolDescriptor{
		{Name: "query_emission_factors", Description: "queries emission factors", Schema: []byte(`{"type":"object"}`)},
	}
}

func TestAssembleOrdersSystemPromptToolsFactsWorkingMemoryAndMessage(t *testing.T) {
	a := New("system prompt text", sampleTools())
	fact := models.FactMemory{RecentVehicle: "Passenger Car", RecentPollutants: []string{"CO2"}}
	working := []models.Turn{
		{User: "上一轮问题", Assistant: "上一轮回答", Timestamp: time.Now()},
	}

	result := a.Assemble("这一轮问题", working, fact, nil)

	if result.SystemPrompt != "system prompt text" {
		t.Fatalf("SystemPrompt = %q", result.SystemPrompt)
	}
	if len(result.Tools) != 1 {
		t.Fatalf("expected tools carried through, got %d", len(result.Tools))
	}
	if len(result.Messages) < 3 {
		t.Fatalf("expected fact-memory system message + working turn + current message, got %d", len(result.Messages))
	}
	if result.Messages[0].Role != models.RoleSystem || !strings.Contains(result.Messages[0].Content, "Recent vehicle type: Passenger Car") {
		t.Fatalf("expected fact-memory system message first, got %+v", result.Messages[0])
	}
	last := result.Messages[len(result.Messages)-1]
	if last.Role != models.RoleUser || last.Content != "这一轮问题" {
		t.Fatalf("expected current message last, got %+v", last)
	}
}

func TestAssembleOmitsFactMemoryMessageWhenEmpty(t *testing.T) {
	a := New("system prompt", sampleTools())
	result := a.Assemble("问题", nil, models.FactMemory{}, nil)

	for _, m := range result.Messages {
		if m.Role == models.RoleSystem {
			t.Fatalf("expected no fact-memory message for empty fact memory, got %+v", m)
		}
	}
}

func TestAssembleKeepsOnlyLastThreeWorkingMemoryTurns(t *testing.T) {
	a := New("system prompt", sampleTools())
	var working []models.Turn
	for i := 0; i < 5; i++ {
		working = append(working, models.Turn{User: "u", Assistant: "a", Timestamp: time.Now()})
	}

	result := a.Assemble("当前问题", working, models.FactMemory{}, nil)

	// 3 turns * 2 messages each + 1 current user message = 7
	if len(result.Messages) != 7 {
		t.Fatalf("len(Messages) = %d, want 7", len(result.Messages))
	}
}

func TestAssembleTruncatesLongAssistantResponses(t *testing.T) {
	a := New("system prompt", sampleTools())
	long := strings.Repeat("x", maxAssistantResponseChars+50)
	working := []models.Turn{{User: "u", Assistant: long, Timestamp: time.Now()}}

	result := a.Assemble("当前问题", working, models.FactMemory{}, nil)

	var found bool
	for _, m := range result.Messages {
		if m.Role == models.RoleAssistant {
			found = true
			if !strings.HasSuffix(m.Content, "...(truncated)") {
				t.Fatalf("expected truncated assistant content, got length %d", len(m.Content))
			}
			if len(m.Content) > maxAssistantResponseChars+len("...(truncated)") {
				t.Fatalf("truncated content too long: %d", len(m.Content))
			}
		}
	}
	if !found {
		t.Fatalf("expected an assistant message in working memory")
	}
}

func TestAssemblePrependsFileContextWithTaskTypeFirstLine(t *testing.T) {
	a := New("system prompt", sampleTools())
	fc := &FileContext{
		Filename: "trips.xlsx",
		FilePath: "/tmp/trips.xlsx",
		TaskType: "micro",
		RowCount: 120,
		Columns:  []string{"t", "speed_kph"},
	}

	result := a.Assemble("帮我分析这个文件", nil, models.FactMemory{}, fc)

	last := result.Messages[len(result.Messages)-1]
	firstLine := strings.SplitN(last.Content, "\n", 2)[0]
	if firstLine != "task_type: micro" {
		t.Fatalf("first line = %q, want %q", firstLine, "task_type: micro")
	}
	if !strings.Contains(last.Content, "帮我分析这个文件") {
		t.Fatalf("expected original user message preserved, got %q", last.Content)
	}
}

func TestAssembleFileContextDefaultsUnknownTaskType(t *testing.T) {
	a := New("system prompt", sampleTools())
	fc := &FileContext{Filename: "x.csv", FilePath: "/tmp/x.csv"}

	result := a.Assemble("问题", nil, models.FactMemory{}, fc)

	last := result.Messages[len(result.Messages)-1]
	if !strings.HasPrefix(last.Content, "task_type: unknown") {
		t.Fatalf("expected unknown task_type default, got %q", last.Content)
	}
}
