package standardize

import (
	"testing"

	"github.com/Kirito123l/emission-agent/internal/config"
)

func testMappings() *config.Mappings {
	return &config.Mappings{
		VehicleTypes: []config.VehicleType{
			{StandardName: "Passenger Car", DisplayNameZh: "乘用车", Aliases: []string{"小汽车", "轿车", "SUV"}, VSPClassID: 21},
			{StandardName: "Transit Bus", DisplayNameZh: "公交车", Aliases: []string{"公交"}, VSPClassID: 42},
			{StandardName: "Light Commercial Truck", DisplayNameZh: "轻型货车", Aliases: []string{"小货车", "轻卡"}, VSPClassID: 32},
		},
		Pollutants: []config.Pollutant{
			{StandardName: "CO2", DisplayNameZh: "二氧化碳", Aliases: []string{"碳排放"}},
			{StandardName: "NOx", DisplayNameZh: "氮氧化物", Aliases: []string{"氮氧"}},
			{StandardName: "PM2.5", DisplayNameZh: "细颗粒物", Aliases: []string{"颗粒物"}},
		},
		Seasons: map[string]string{
			"春": "春季", "spring": "春季", "夏": "夏季",
		},
		ColumnPatterns: map[string]map[string]config.ColumnField{
			"micro": {
				"speed": {Standard: "speed_kph", Patterns: []string{"speed", "车速"}, Required: true},
				"time":  {Standard: "t", Patterns: []string{"time", "timestamp"}, Required: true},
			},
		},
	}
}

func TestStandardizeVehicleExactMatch(t *testing.T) {
	s := New(testMappings())
	if got := s.StandardizeVehicle("轿车"); got != "Passenger Car" {
		t.Fatalf("StandardizeVehicle(轿车) = %q, want Passenger Car", got)
	}
	if got := s.StandardizeVehicle("SUV"); got != "Passenger Car" {
		t.Fatalf("StandardizeVehicle(SUV) = %q, want Passenger Car", got)
	}
	if got := s.StandardizeVehicle("passenger car"); got != "Passenger Car" {
		t.Fatalf("StandardizeVehicle(passenger car) = %q, want Passenger Car", got)
	}
}

func TestStandardizeVehicleFuzzyMatch(t *testing.T) {
	s := New(testMappings())
	if got := s.StandardizeVehicle("passenger cars"); got != "Passenger Car" {
		t.Fatalf("StandardizeVehicle(passenger cars) = %q, want Passenger Car via fuzzy match", got)
	}
}

func TestStandardizeVehicleUnrecognizedReturnsEmpty(t *testing.T) {
	s := New(testMappings())
	if got := s.StandardizeVehicle("宇宙飞船"); got != "" {
		t.Fatalf("StandardizeVehicle(宇宙飞船) = %q, want empty string, not an error", got)
	}
}

func TestStandardizeVehicleEmptyInput(t *testing.T) {
	s := New(testMappings())
	if got := s.StandardizeVehicle(""); got != "" {
		t.Fatalf("StandardizeVehicle(\"\") = %q, want empty", got)
	}
}

func TestStandardizePollutantStricterThreshold(t *testing.T) {
	s := New(testMappings())
	if got := s.StandardizePollutant("氮氧"); got != "NOx" {
		t.Fatalf("StandardizePollutant(氮氧) = %q, want NOx", got)
	}
	if got := s.StandardizePollutant("PM2.5"); got != "PM2.5" {
		t.Fatalf("StandardizePollutant(PM2.5) = %q, want PM2.5", got)
	}
	// "nox2" scores 75 against "nox": enough for the vehicle threshold (70),
	// not for the pollutant threshold (80).
	if got := s.StandardizePollutant("nox2"); got != "" {
		t.Fatalf("StandardizePollutant(nox2) = %q, want empty (below the pollutant threshold)", got)
	}
}

func TestStandardizePollutantsKeepsUnresolvedVerbatim(t *testing.T) {
	s := New(testMappings())
	standardized, unresolved := s.StandardizePollutants([]string{"CO2", "不知道是啥"})
	if standardized[0] != "CO2" {
		t.Fatalf("expected CO2 standardized, got %q", standardized[0])
	}
	if standardized[1] != "不知道是啥" {
		t.Fatalf("expected unresolved pollutant kept verbatim, got %q", standardized[1])
	}
	if len(unresolved) != 1 || unresolved[0] != "不知道是啥" {
		t.Fatalf("expected unresolved list to flag the unknown pollutant, got %v", unresolved)
	}
}

func TestStandardizeSeason(t *testing.T) {
	s := New(testMappings())
	if got := s.StandardizeSeason("spring"); got != "春季" {
		t.Fatalf("StandardizeSeason(spring) = %q, want 春季", got)
	}
	if got := s.StandardizeSeason("winter"); got != "" {
		t.Fatalf("StandardizeSeason(winter) = %q, want empty (not configured in test mappings)", got)
	}
}

func TestGetVehicleSuggestionsFiltersToConfigured(t *testing.T) {
	s := New(testMappings())
	suggestions := s.GetVehicleSuggestions()
	if len(suggestions) != 3 {
		t.Fatalf("expected 3 suggestions (only Passenger Car, Transit Bus and Light Commercial Truck configured in test set), got %v", suggestions)
	}
}

func TestGetPollutantSuggestionsSorted(t *testing.T) {
	s := New(testMappings())
	got := s.GetPollutantSuggestions()
	want := []string{"CO2", "NOx", "PM2.5"}
	if len(got) != len(want) {
		t.Fatalf("GetPollutantSuggestions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("GetPollutantSuggestions() = %v, want %v", got, want)
		}
	}
}

func TestMapColumnsExactMatch(t *testing.T) {
	s := New(testMappings())
	got := s.MapColumns([]string{"speed", "time"}, "micro")
	if got["speed"] != "speed_kph" || got["time"] != "t" {
		t.Fatalf("MapColumns() = %v", got)
	}
}

func TestMapColumnsSubstringMatchPrefersLongest(t *testing.T) {
	s := New(testMappings())
	got := s.MapColumns([]string{"车速(km/h)"}, "micro")
	if got["车速(km/h)"] != "speed_kph" {
		t.Fatalf("MapColumns() substring match = %v, want speed_kph", got)
	}
	// "timestamp_speed" contains "speed", "time" and "timestamp"; the
	// longest alias, "timestamp", wins.
	got = s.MapColumns([]string{"timestamp_speed"}, "micro")
	if got["timestamp_speed"] != "t" {
		t.Fatalf("MapColumns() longest substring match = %v, want t", got)
	}
}

func TestMapColumnsNeverReassignsMappedField(t *testing.T) {
	s := New(testMappings())
	got := s.MapColumns([]string{"speed", "车速"}, "micro")
	if len(got) != 1 {
		t.Fatalf("expected only the first column to claim speed_kph, got %v", got)
	}
}

func TestGetRequiredColumns(t *testing.T) {
	s := New(testMappings())
	got := s.GetRequiredColumns("micro")
	if len(got) != 2 {
		t.Fatalf("GetRequiredColumns(micro) = %v, want 2 required fields", got)
	}
}
