package micro

import (
	"context"
	"testing"
)

func sampleTrajectory() []map[string]any {
	return []map[string]any{
		{"t": 0, "speed_kph": 0},
		{"t": 1, "speed_kph": 20},
		{"t": 2, "speed_kph": 40},
		{"t": 3, "speed_kph": 40},
	}
}

func TestExecuteInlineTrajectory(t *testing.T) {
	tool := New("")
	result, err := tool.Execute(context.Background(), map[string]any{
		"vehicle_type":    "Passenger Car",
		"pollutants":      []string{"CO2"},
		"model_year":      2020,
		"trajectory_data": sampleTrajectory(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	rows, ok := result.Data["results"].([]any)
	if !ok || len(rows) != 4 {
		t.Fatalf("expected 4 result rows, got %v", result.Data["results"])
	}
	summary, ok := result.Data["summary"].(map[string]any)
	if !ok {
		t.Fatalf("expected summary map in data")
	}
	totalEmissionsG, ok := summary["total_emissions_g"].(map[string]any)
	if !ok || totalEmissionsG["CO2"].(float64) <= 0 {
		t.Fatalf("expected positive CO2 emissions, got %v", summary["total_emissions_g"])
	}
}

func TestExecuteMissingVehicleType(t *testing.T) {
	tool := New("")
	result, err := tool.Execute(context.Background(), map[string]any{
		"trajectory_data": sampleTrajectory(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure for missing vehicle_type")
	}
}

func TestExecuteMissingTrajectory(t *testing.T) {
	tool := New("")
	result, err := tool.Execute(context.Background(), map[string]any{
		"vehicle_type": "Passenger Car",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure for missing trajectory_data and input_file")
	}
}

func TestExecuteFilePathAliasesInputFile(t *testing.T) {
	tool := New("")
	result, err := tool.Execute(context.Background(), map[string]any{
		"vehicle_type": "Passenger Car",
		"file_path":    "/no/such/file.xlsx",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure reading a nonexistent file")
	}
	if result.Data["input_file"] != "/no/such/file.xlsx" {
		t.Fatalf("expected input_file debug data to reflect the aliased file_path")
	}
}

func TestExecuteUnknownVehicleType(t *testing.T) {
	tool := New("")
	result, err := tool.Execute(context.Background(), map[string]any{
		"vehicle_type":    "Spaceship",
		"trajectory_data": sampleTrajectory(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure for unknown vehicle type")
	}
}
