package memory

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetWorkingMemoryBoundedToRecentTurns(t *testing.T) {
	m := NewManager("s1", t.TempDir(), silentLogger())
	for i := 0; i < maxWorkingMemoryTurns+3; i++ {
		m.Update("user message", "assistant reply", nil, "", nil)
	}
	turns := m.GetWorkingMemory()
	if len(turns) != maxWorkingMemoryTurns {
		t.Fatalf("len(turns) = %d, want %d", len(turns), maxWorkingMemoryTurns)
	}
}

func TestUpdateExtractsFactsFromSuccessfulToolCallsOnly(t *testing.T) {
	m := NewManager("s1", t.TempDir(), silentLogger())
	m.Update("帮我算一下", "好的", []models.CompletedCall{
		{Name: "calculate_micro_emission", Arguments: map[string]any{"vehicle_type": "Passenger Car"}, Success: true},
		{Name: "calculate_macro_emission", Arguments: map[string]any{"vehicle_type": "Heavy Truck"}, Success: false},
	}, "", nil)

	fact := m.GetFactMemory()
	if fact.RecentVehicle != "Passenger Car" {
		t.Fatalf("RecentVehicle = %q, want Passenger Car (failed call must not overwrite it)", fact.RecentVehicle)
	}
}

func TestUpdateRecentPollutantsDedupedAndCapped(t *testing.T) {
	m := NewManager("s1", t.TempDir(), silentLogger())
	for _, p := range []string{"CO2", "NOx", "PM2.5", "SO2", "CO", "HC", "CO2"} {
		m.Update("q", "a", []models.CompletedCall{
			{Name: "query_emission_factors", Arguments: map[string]any{"pollutant": p}, Success: true},
		}, "", nil)
	}

	fact := m.GetFactMemory()
	if len(fact.RecentPollutants) != 5 {
		t.Fatalf("len(RecentPollutants) = %d, want 5", len(fact.RecentPollutants))
	}
	if fact.RecentPollutants[0] != "CO2" {
		t.Fatalf("RecentPollutants[0] = %q, want CO2 (most recent first)", fact.RecentPollutants[0])
	}
}

func TestUpdateRememberActiveFileAndAnalysis(t *testing.T) {
	m := NewManager("s1", t.TempDir(), silentLogger())
	analysis := map[string]any{"task_type": "macro"}
	m.Update("分析这个文件", "已分析", nil, "/tmp/upload.xlsx", analysis)

	fact := m.GetFactMemory()
	if fact.ActiveFile != "/tmp/upload.xlsx" {
		t.Fatalf("ActiveFile = %q, want /tmp/upload.xlsx", fact.ActiveFile)
	}
	if fact.FileAnalysis["task_type"] != "macro" {
		t.Fatalf("FileAnalysis[task_type] = %v, want macro", fact.FileAnalysis["task_type"])
	}
}

func TestDetectCorrectionOverwritesRecentVehicle(t *testing.T) {
	m := NewManager("s1", t.TempDir(), silentLogger())
	m.Update("算一下小汽车的排放", "好的", []models.CompletedCall{
		{Name: "calculate_micro_emission", Arguments: map[string]any{"vehicle_type": "Passenger Car"}, Success: true},
	}, "", nil)
	m.Update("不对，我说的是公交车", "好的，已更正为公交车", nil, "", nil)

	fact := m.GetFactMemory()
	if fact.RecentVehicle != "公交车" {
		t.Fatalf("RecentVehicle = %q, want 公交车 after correction", fact.RecentVehicle)
	}
}

func TestDetectCorrectionIgnoresUnrelatedMessages(t *testing.T) {
	m := NewManager("s1", t.TempDir(), silentLogger())
	m.Update("算一下小汽车的排放", "好的", []models.CompletedCall{
		{Name: "calculate_micro_emission", Arguments: map[string]any{"vehicle_type": "Passenger Car"}, Success: true},
	}, "", nil)
	m.Update("谢谢，再帮我查一下NOx的排放因子", "好的", nil, "", nil)

	fact := m.GetFactMemory()
	if fact.RecentVehicle != "Passenger Car" {
		t.Fatalf("RecentVehicle = %q, want unchanged Passenger Car", fact.RecentVehicle)
	}
}

func TestCompressOldMemoryTriggersPastDoubleThreshold(t *testing.T) {
	m := NewManager("s1", t.TempDir(), silentLogger())
	for i := 0; i < maxWorkingMemoryTurns*2+1; i++ {
		m.Update("q", "a", []models.CompletedCall{
			{Name: "query_emission_factors", Arguments: map[string]any{"vehicle_type": "x"}, Success: true},
		}, "", nil)
	}

	if len(m.GetWorkingMemory()) > maxWorkingMemoryTurns {
		t.Fatalf("working memory not compressed: len = %d", len(m.GetWorkingMemory()))
	}
	if m.GetCompressedMemory() == "" {
		t.Fatalf("expected non-empty compressed memory after exceeding threshold")
	}
}

func TestClearTopicMemoryDropsActiveFileOnly(t *testing.T) {
	m := NewManager("s1", t.TempDir(), silentLogger())
	m.Update("分析文件", "好的", []models.CompletedCall{
		{Name: "calculate_micro_emission", Arguments: map[string]any{"vehicle_type": "Passenger Car"}, Success: true},
	}, "/tmp/upload.xlsx", map[string]any{"task_type": "micro"})

	m.ClearTopicMemory()

	fact := m.GetFactMemory()
	if fact.ActiveFile != "" || fact.FileAnalysis != nil {
		t.Fatalf("expected active file cleared, got ActiveFile=%q FileAnalysis=%v", fact.ActiveFile, fact.FileAnalysis)
	}
	if fact.RecentVehicle != "Passenger Car" {
		t.Fatalf("expected RecentVehicle preserved, got %q", fact.RecentVehicle)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m1 := NewManager("s1", dir, silentLogger())
	m1.Update("算一下小汽车的CO2排放", "已完成", []models.CompletedCall{
		{Name: "calculate_micro_emission", Arguments: map[string]any{"vehicle_type": "Passenger Car", "pollutant": "CO2"}, Success: true},
	}, "", nil)

	path := filepath.Join(dir, "history", "s1.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected history file at %s: %v", path, err)
	}

	m2 := NewManager("s1", dir, silentLogger())
	fact := m2.GetFactMemory()
	if fact.RecentVehicle != "Passenger Car" {
		t.Fatalf("RecentVehicle after reload = %q, want Passenger Car", fact.RecentVehicle)
	}
	turns := m2.GetWorkingMemory()
	if len(turns) != 1 || turns[0].User != "算一下小汽车的CO2排放" {
		t.Fatalf("unexpected working memory after reload: %+v", turns)
	}
}

func TestLoadMissingHistoryFileStartsEmpty(t *testing.T) {
	m := NewManager("never-seen", t.TempDir(), silentLogger())
	if len(m.GetWorkingMemory()) != 0 {
		t.Fatalf("expected empty working memory for a session with no history file")
	}
}

func TestLoadCorruptHistoryFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history", "corrupt.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	m := NewManager("corrupt", dir, silentLogger())
	if len(m.GetWorkingMemory()) != 0 {
		t.Fatalf("expected empty working memory after a corrupt history file")
	}
}

func TestGetFactMemoryReturnsDefensiveCopy(t *testing.T) {
	m := NewManager("s1", t.TempDir(), silentLogger())
	m.Update("q", "a", []models.CompletedCall{
		{Name: "query_emission_factors", Arguments: map[string]any{"pollutant": "CO2"}, Success: true},
	}, "", nil)

	fact := m.GetFactMemory()
	fact.RecentPollutants[0] = "mutated"

	again := m.GetFactMemory()
	if again.RecentPollutants[0] == "mutated" {
		t.Fatalf("GetFactMemory must return a defensive copy")
	}
}
