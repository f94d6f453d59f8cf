package calc

import "testing"

func TestCalculateLinksEmptyInput(t *testing.T) {
	if _, _, err := CalculateLinks(nil, []string{"CO2"}, 2020, "夏季", nil); err == nil {
		t.Fatalf("expected error for empty links")
	}
}

func TestCalculateLinksUsesDefaultFleetMix(t *testing.T) {
	links := []Link{{LinkID: "L1", LengthKm: 2.0, TrafficFlowVph: 1000, AvgSpeedKph: 60}}
	results, summary, err := CalculateLinks(links, []string{"CO2"}, 2020, "夏季", nil)
	if err != nil {
		t.Fatalf("CalculateLinks() error = %v", err)
	}
	if summary.TotalLinks != 1 {
		t.Fatalf("TotalLinks = %d, want 1", summary.TotalLinks)
	}
	if results[0].TotalEmissionsKgPerHr["CO2"] <= 0 {
		t.Fatalf("expected positive CO2 emissions, got %v", results[0].TotalEmissionsKgPerHr["CO2"])
	}
	if len(results[0].FleetComposition) != len(DefaultFleetMix) {
		t.Fatalf("expected fleet composition to use the default mix, got %d entries", len(results[0].FleetComposition))
	}
}

func TestCalculateLinksNormalizesFleetMixNotSummingTo100(t *testing.T) {
	links := []Link{{
		LinkID: "L1", LengthKm: 1.0, TrafficFlowVph: 500, AvgSpeedKph: 50,
		FleetMix: map[string]float64{"Passenger Car": 60, "Transit Bus": 20}, // sums to 80
	}}
	results, _, err := CalculateLinks(links, []string{"CO2"}, 2020, "夏季", nil)
	if err != nil {
		t.Fatalf("CalculateLinks() error = %v", err)
	}
	var totalPct float64
	for _, v := range results[0].FleetComposition {
		totalPct += v.Percentage
	}
	if totalPct < 99.9 || totalPct > 100.1 {
		t.Fatalf("expected normalized fleet percentages to sum to ~100, got %v", totalPct)
	}
}

func TestCalculateLinksSkipsUnknownVehicleInMix(t *testing.T) {
	links := []Link{{
		LinkID: "L1", LengthKm: 1.0, TrafficFlowVph: 500, AvgSpeedKph: 50,
		FleetMix: map[string]float64{"Passenger Car": 50, "Unicorn Cart": 50},
	}}
	results, _, err := CalculateLinks(links, []string{"CO2"}, 2020, "夏季", nil)
	if err != nil {
		t.Fatalf("CalculateLinks() error = %v", err)
	}
	if len(results[0].FleetComposition) != 1 {
		t.Fatalf("expected only the recognized vehicle type to appear, got %d entries", len(results[0].FleetComposition))
	}
}

func TestCalculateLinksRejectsNonPositiveLength(t *testing.T) {
	links := []Link{{LinkID: "L1", LengthKm: 0, TrafficFlowVph: 500, AvgSpeedKph: 50}}
	if _, _, err := CalculateLinks(links, []string{"CO2"}, 2020, "夏季", nil); err == nil {
		t.Fatalf("expected error for zero link length")
	}
}
