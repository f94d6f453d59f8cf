// Package factors implements query_emission_factors, a thin tool-contract
// wrapper over internal/calc's speed-curve calculator.
package factors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Kirito123l/emission-agent/internal/calc"
	"github.com/Kirito123l/emission-agent/internal/tools"
	"github.com/Kirito123l/emission-agent/pkg/models"
)

const (
	toolName        = "query_emission_factors"
	toolDescription = "Query emission factors for specific vehicle types and pollutants"
)

// params mirrors the original tool's kwargs: a single vehicle type against
// one or more pollutants, with season/road type defaults baked in by the
// standardizer layer before Execute ever sees them.
type params struct {
	VehicleType string   `json:"vehicle_type" jsonschema:"required,description=Standardized vehicle type, e.g. Passenger Car"`
	Pollutant   string   `json:"pollutant,omitempty" jsonschema:"description=Single pollutant, e.g. CO2"`
	Pollutants  []string `json:"pollutants,omitempty" jsonschema:"description=Multiple pollutants"`
	ModelYear   int      `json:"model_year" jsonschema:"required,description=Vehicle model year 1995-2025"`
	Season      string   `json:"season,omitempty" jsonschema:"description=夏季/冬季/春季/秋季, default 夏季"`
	RoadType    string   `json:"road_type,omitempty" jsonschema:"description=快速路/地面道路/居民区道路, default 快速路"`
	ReturnCurve bool     `json:"return_curve,omitempty" jsonschema:"description=Return the full speed-emission curve"`
}

var schema = tools.GenerateSchema(params{})

// Tool implements tools.Tool.
type Tool struct{}

func New() *Tool { return &Tool{} }

func (t *Tool) Name() string            { return toolName }
func (t *Tool) Description() string     { return toolDescription }
func (t *Tool) Schema() json.RawMessage { return schema }

func (t *Tool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	var p params
	if err := tools.DecodeArgs(args, &p); err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	pollutants := p.Pollutants
	if len(pollutants) == 0 && p.Pollutant != "" {
		pollutants = []string{p.Pollutant}
	}
	if len(pollutants) == 0 {
		return &models.ToolResult{Success: false, Error: "missing required parameter: pollutant or pollutants"}, nil
	}
	if p.VehicleType == "" || p.ModelYear == 0 {
		return &models.ToolResult{Success: false, Error: "missing required parameter: vehicle_type or model_year"}, nil
	}

	season := p.Season
	if season == "" {
		season = "夏季"
	}
	roadType := p.RoadType
	if roadType == "" {
		roadType = "快速路"
	}

	perPollutant := map[string]any{}
	for _, pollutant := range pollutants {
		result, err := calc.QueryEmissionFactors(p.VehicleType, pollutant, p.ModelYear, season, roadType)
		if err != nil {
			return &models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		perPollutant[pollutant] = curveData(result, p.ReturnCurve)
	}

	if len(pollutants) == 1 && !p.ReturnCurve {
		data := perPollutant[pollutants[0]].(map[string]any)
		return &models.ToolResult{
			Success: true,
			Data:    data,
			Summary: fmt.Sprintf("Found %s emission data for %s (%d). Season: %s, Road type: %s.", pollutants[0], p.VehicleType, p.ModelYear, season, roadType),
		}, nil
	}

	return &models.ToolResult{
		Success: true,
		Data: map[string]any{
			"vehicle_type": p.VehicleType,
			"model_year":   p.ModelYear,
			"pollutants":   perPollutant,
			"metadata":     map[string]any{"season": season, "road_type": roadType},
		},
		Summary: fmt.Sprintf("Found emission factors for %d pollutant(s) for %s (%d). Season: %s, Road type: %s.", len(pollutants), p.VehicleType, p.ModelYear, season, roadType),
	}, nil
}

// curveData mirrors the original calculator's query(): the speed curve and
// a query_summary are always present, whether or not the caller asked for
// return_curve. The typical-speed shortcut values are added only when
// return_curve is unset; the flag never removes the curve. The curve is round-tripped through
// JSON so it lands in Data as the plain []map[string]any shape a wire
// response (and extract.go) expects, not a Go struct slice.
func curveData(result *calc.FactorsResult, withCurve bool) map[string]any {
	data := map[string]any{
		"query_summary": map[string]any{
			"vehicle_type": result.VehicleType,
			"pollutant":    result.Pollutant,
			"model_year":   result.ModelYear,
			"season":       result.Season,
			"road_type":    result.RoadType,
		},
		"speed_curve": tools.ToJSONValue(result.SpeedCurve),
		"unit":        "g/mile",
	}
	if !withCurve {
		// Typical-speed summary alongside the curve, for callers that just
		// want a quick answer without walking the full curve.
		typical := make(map[string]float64, len(result.TypicalMphs))
		for _, mph := range result.TypicalMphs {
			for _, point := range result.SpeedCurve {
				if point.SpeedMph == mph {
					typical[fmt.Sprintf("%gmph", mph)] = point.EmissionRateGPerMile
				}
			}
		}
		data["typical_rates_g_per_mile"] = typical
	}
	return data
}
