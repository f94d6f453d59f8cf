package macro

import (
	"context"
	"testing"

	"github.com/Kirito123l/emission-agent/internal/config"
	"github.com/Kirito123l/emission-agent/internal/standardize"
)

func testStandardizer() *standardize.Standardizer {
	return standardize.New(&config.Mappings{
		VehicleTypes: []config.VehicleType{
			{StandardName: "Passenger Car", Aliases: []string{"小汽车", "轿车"}},
			{StandardName: "Transit Bus", Aliases: []string{"公交车"}},
		},
		Pollutants: []config.Pollutant{{StandardName: "CO2", Aliases: []string{"二氧化碳"}}},
	})
}

func TestExecuteWithDefaultFleetMix(t *testing.T) {
	tool := New(testStandardizer(), "")
	result, err := tool.Execute(context.Background(), map[string]any{
		"links_data": []map[string]any{
			{"link_id": "L1", "link_length_km": 2.0, "traffic_flow_vph": 1000.0, "avg_speed_kph": 60.0},
		},
		"pollutants": []string{"CO2"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
}

func TestExecuteMissingLinksData(t *testing.T) {
	tool := New(testStandardizer(), "")
	result, err := tool.Execute(context.Background(), map[string]any{
		"pollutants": []string{"CO2"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure for missing links_data")
	}
}

func TestExecuteFixesCommonFieldNameErrors(t *testing.T) {
	tool := New(testStandardizer(), "")
	result, err := tool.Execute(context.Background(), map[string]any{
		"links_data": []map[string]any{
			{"id": "L1", "length": 2.0, "traffic_volume": 1000.0, "avg_speed": 60.0},
		},
		"pollutants": []string{"CO2"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected field-name auto-fix to recover a valid link, got error %q", result.Error)
	}
}

func TestExecuteAppliesTopLevelFleetMix(t *testing.T) {
	tool := New(testStandardizer(), "")
	result, err := tool.Execute(context.Background(), map[string]any{
		"links_data": []map[string]any{
			{"link_id": "L1", "link_length_km": 2.0, "traffic_flow_vph": 1000.0, "avg_speed_kph": 60.0},
		},
		"fleet_mix":  map[string]any{"小汽车": 80.0, "公交车": 20.0},
		"pollutants": []string{"CO2"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
}
