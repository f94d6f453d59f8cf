package fileanalyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Kirito123l/emission-agent/internal/config"
	"github.com/Kirito123l/emission-agent/internal/standardize"
)

func testStandardizer() *standardize.Standardizer {
	return standardize.New(&config.Mappings{
		VehicleTypes: []config.VehicleType{{StandardName: "Passenger Car", Aliases: []string{"小汽车"}}},
		Pollutants:   []config.Pollutant{{StandardName: "CO2", Aliases: []string{"二氧化碳"}}},
		ColumnPatterns: map[string]map[string]config.ColumnField{
			"micro_emission": {
				"speed":     {Standard: "speed_kph", Patterns: []string{"speed", "velocity"}, Required: true},
				"timestamp": {Standard: "time_s", Patterns: []string{"time"}, Required: true},
			},
			"macro_emission": {
				"length": {Standard: "link_length_km", Patterns: []string{"length"}, Required: true},
				"flow":   {Standard: "traffic_flow_vph", Patterns: []string{"flow", "volume"}, Required: true},
			},
		},
	})
}

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestExecuteMissingFile(t *testing.T) {
	tool := New(testStandardizer())
	result, err := tool.Execute(context.Background(), map[string]any{"file_path": "/no/such/file.csv"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure for missing file")
	}
}

func TestExecuteDetectsMicroEmission(t *testing.T) {
	path := writeCSV(t, "time,speed\n0,10\n1,12\n")
	tool := New(testStandardizer())
	result, err := tool.Execute(context.Background(), map[string]any{"file_path": path})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Data["task_type"] != "micro_emission" {
		t.Fatalf("task_type = %v, want micro_emission", result.Data["task_type"])
	}
	if result.Data["micro_has_required"] != true {
		t.Fatalf("expected micro_has_required true, got %v", result.Data["micro_has_required"])
	}
}

func TestExecuteDetectsMacroEmission(t *testing.T) {
	path := writeCSV(t, "link_length,traffic_flow\n2.0,1000\n3.0,1200\n")
	tool := New(testStandardizer())
	result, err := tool.Execute(context.Background(), map[string]any{"file_path": path})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Data["task_type"] != "macro_emission" {
		t.Fatalf("task_type = %v, want macro_emission", result.Data["task_type"])
	}
}

func TestExecuteRejectsUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	tool := New(testStandardizer())
	result, err := tool.Execute(context.Background(), map[string]any{"file_path": path})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure for unsupported format")
	}
}
