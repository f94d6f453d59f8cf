// Package macro implements calculate_macro_emission: road-link-level
// emissions over a traffic-flow-and-fleet-mix input, wrapping
// internal/calc's link calculator.
package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Kirito123l/emission-agent/internal/calc"
	"github.com/Kirito123l/emission-agent/internal/standardize"
	"github.com/Kirito123l/emission-agent/internal/tools"
	"github.com/Kirito123l/emission-agent/pkg/models"
)

const (
	toolName        = "calculate_macro_emission"
	toolDescription = "Calculate road link-level emissions using a speed-dependent emission-rate model"
)

// LinkInput documents the canonical fields of one road segment. Execute
// does not populate it: link records stay maps, fixCommonErrors renames
// common spreadsheet spellings to these field names, and toCalcLink reads
// them into a calc.Link.
type LinkInput struct {
	LinkID         string             `json:"link_id,omitempty"`
	LinkLengthKm   float64            `json:"link_length_km"`
	TrafficFlowVph float64            `json:"traffic_flow_vph"`
	AvgSpeedKph    float64            `json:"avg_speed_kph"`
	FleetMix       map[string]float64 `json:"fleet_mix,omitempty"`
}

type params struct {
	LinksData       []map[string]any   `json:"links_data,omitempty" jsonschema:"description=Road link records"`
	Pollutants      []string           `json:"pollutants,omitempty" jsonschema:"description=Pollutants to compute, default [CO2 NOx]"`
	ModelYear       int                `json:"model_year,omitempty" jsonschema:"description=Vehicle model year, default 2020"`
	Season          string             `json:"season,omitempty" jsonschema:"description=夏季/冬季/春季/秋季, default 夏季"`
	DefaultFleetMix map[string]float64 `json:"default_fleet_mix,omitempty" jsonschema:"description=Fallback fleet composition for links without one"`
	FleetMix        map[string]float64 `json:"fleet_mix,omitempty" jsonschema:"description=Top-level fleet mix applied to links lacking their own"`
	InputFile       string             `json:"input_file,omitempty" jsonschema:"description=Path to an Excel links file"`
	FilePath        string             `json:"file_path,omitempty" jsonschema:"description=Alias for input_file, set by the executor when a file is attached"`
	OutputFile      string             `json:"output_file,omitempty" jsonschema:"description=Optional path to write a results workbook to"`
}

var schema = tools.GenerateSchema(params{})

// Tool implements tools.Tool.
type Tool struct {
	standardizer *standardize.Standardizer
	outputsDir   string
}

func New(standardizer *standardize.Standardizer, outputsDir string) *Tool {
	return &Tool{standardizer: standardizer, outputsDir: outputsDir}
}

func (t *Tool) Name() string            { return toolName }
func (t *Tool) Description() string     { return toolDescription }
func (t *Tool) Schema() json.RawMessage { return schema }

func (t *Tool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	var p params
	if err := tools.DecodeArgs(args, &p); err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if p.InputFile == "" && p.FilePath != "" {
		p.InputFile = p.FilePath
	}

	pollutants := p.Pollutants
	if len(pollutants) == 0 {
		pollutants = []string{"CO2", "NOx"}
	}
	modelYear := p.ModelYear
	if modelYear == 0 {
		modelYear = 2020
	}
	season := p.Season
	if season == "" {
		season = "夏季"
	}

	rawLinks := p.LinksData
	if p.InputFile != "" {
		read, err := readLinksFromExcel(p.InputFile)
		if err != nil {
			return &models.ToolResult{Success: false, Error: fmt.Sprintf("failed to read input file: %v", err), Data: map[string]any{"input_file": p.InputFile}}, nil
		}
		rawLinks = read
	}
	if len(rawLinks) == 0 {
		return &models.ToolResult{Success: false, Error: "missing required parameter: links_data or input_file"}, nil
	}

	rawLinks = fixCommonErrors(rawLinks)
	rawLinks = t.applyGlobalFleetMix(rawLinks, p.FleetMix)

	defaultFleetMix := t.standardizeFleetMix(p.DefaultFleetMix)
	if defaultFleetMix == nil {
		defaultFleetMix = p.DefaultFleetMix
	}

	links := make([]calc.Link, 0, len(rawLinks))
	for _, raw := range rawLinks {
		links = append(links, toCalcLink(raw))
	}

	results, summary, err := calc.CalculateLinks(links, pollutants, modelYear, season, defaultFleetMix)
	if err != nil {
		return &models.ToolResult{
			Success: false,
			Error:   err.Error(),
			Data: map[string]any{
				"query_params": map[string]any{
					"pollutants":  pollutants,
					"model_year":  modelYear,
					"season":      season,
					"links_count": len(links),
				},
			},
		}, nil
	}

	data := map[string]any{"results": tools.ToJSONValue(results), "summary": tools.ToJSONValue(summary)}

	if p.OutputFile != "" {
		if err := writeResultsToExcel(p.OutputFile, results, pollutants); err != nil {
			data["output_file_warning"] = fmt.Sprintf("failed to write output file: %v", err)
		} else {
			data["output_file"] = p.OutputFile
		}
	}
	if p.InputFile != "" {
		outPath, filename, err := generateResultWorkbook(t.outputsDir, p.InputFile, results, pollutants)
		if err == nil {
			data["download_file"] = models.DownloadHandle{Path: outPath, Filename: filename}
		}
	}

	summaryText := buildSummary(results, summary, pollutants, modelYear, season)

	return &models.ToolResult{Success: true, Data: data, Summary: summaryText}, nil
}

func buildSummary(results []calc.LinkResult, summary *calc.MacroSummary, pollutants []string, modelYear int, season string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "已完成宏观排放计算，共 %d 个路段\n", summary.TotalLinks)
	fmt.Fprintf(&b, "车型年份: %d，季节: %s，污染物: %s\n", modelYear, season, strings.Join(pollutants, ", "))

	b.WriteString("**总排放量:**\n")
	allZero := true
	for _, pollutant := range pollutants {
		kg := summary.TotalEmissionsKgPerHr[pollutant]
		if kg != 0 {
			allZero = false
		}
		fmt.Fprintf(&b, "  - %s: %s\n", pollutant, tools.FormatEmissionPerHour(kg*1000))
	}
	if allZero {
		b.WriteString("⚠️ 所有污染物结果为 0。请检查车型映射、污染物选择或输入参数是否有效。\n")
	}

	rateSums := map[string]float64{}
	rateCounts := map[string]int{}
	for _, link := range results {
		for pollutant, rate := range link.EmissionRatesGPerVehKm {
			rateSums[pollutant] += rate
			rateCounts[pollutant]++
		}
	}
	if len(rateSums) > 0 {
		b.WriteString("**单位排放率 (平均):**\n")
		for _, pollutant := range pollutants {
			if rateCounts[pollutant] == 0 {
				continue
			}
			fmt.Fprintf(&b, "  - %s: %.2f g/(veh·km)\n", pollutant, rateSums[pollutant]/float64(rateCounts[pollutant]))
		}
	}

	if len(results) > 0 && len(pollutants) > 0 {
		main := pollutants[0]
		values := make([]float64, 0, len(results))
		for _, link := range results {
			values = append(values, link.TotalEmissionsKgPerHr[main])
		}
		stats := tools.CalculateStats(values)
		if stats.Count > 0 {
			fmt.Fprintf(&b, "**路段统计 (%s):**\n", main)
			fmt.Fprintf(&b, "  - 单路段平均: %.2f kg/h\n", stats.Avg)
			fmt.Fprintf(&b, "  - 单路段最高: %.2f kg/h\n", stats.Max)
			fmt.Fprintf(&b, "  - 单路段最低: %.2f kg/h\n", stats.Min)
		}
	}

	return b.String()
}

func toCalcLink(raw map[string]any) calc.Link {
	link := calc.Link{}
	if v, ok := raw["link_id"].(string); ok {
		link.LinkID = v
	}
	link.LengthKm = toFloat(raw["link_length_km"])
	link.TrafficFlowVph = toFloat(raw["traffic_flow_vph"])
	link.AvgSpeedKph = toFloat(raw["avg_speed_kph"])
	if mix := toFleetMix(raw["fleet_mix"]); mix != nil {
		link.FleetMix = mix
	}
	return link
}

// toFleetMix normalizes whatever shape a decoded fleet_mix value has —
// already map[string]float64, or the map[string]any/[]any a JSON round
// trip produces — into a single map[string]float64 representation.
func toFleetMix(v any) map[string]float64 {
	switch mix := v.(type) {
	case map[string]float64:
		return mix
	case map[string]any:
		out := make(map[string]float64, len(mix))
		for k, val := range mix {
			out[k] = toFloat(val)
		}
		return out
	case []any:
		out := map[string]float64{}
		for _, item := range mix {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := entry["vehicle_type"].(string)
			if name == "" {
				name, _ = entry["type"].(string)
			}
			if name != "" {
				out[name] = toFloat(entry["percentage"])
			}
		}
		return out
	default:
		return nil
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// fieldAliases maps each canonical link field to the spelling variants a
// user-authored spreadsheet or an LLM's tool call commonly uses instead.
var fieldAliases = map[string][]string{
	"link_length_km":   {"length", "link_length", "length_km", "road_length"},
	"traffic_flow_vph": {"traffic_volume_veh_h", "traffic_flow", "flow", "volume", "traffic_volume"},
	"avg_speed_kph":    {"avg_speed_kmh", "speed", "avg_speed", "average_speed"},
	"fleet_mix":        {"vehicle_composition", "vehicle_mix", "composition", "fleet_composition"},
	"link_id":          {"id", "road_id", "segment_id"},
}

// fixCommonErrors auto-corrects the field-name drift an LLM-constructed
// tool call or a loosely-formatted spreadsheet tends to introduce.
func fixCommonErrors(links []map[string]any) []map[string]any {
	fixed := make([]map[string]any, 0, len(links))
	for _, link := range links {
		out := map[string]any{}
		for correct, aliases := range fieldAliases {
			if v, ok := link[correct]; ok {
				out[correct] = v
				continue
			}
			for _, alias := range aliases {
				if v, ok := link[alias]; ok {
					out[correct] = v
					break
				}
			}
		}
		if mix := toFleetMix(out["fleet_mix"]); mix != nil {
			out["fleet_mix"] = mix
		}
		fixed = append(fixed, out)
	}
	return fixed
}

// standardizeFleetMix standardizes vehicle names in a fleet mix and drops
// entries that don't resolve to a supported vehicle type, accumulating
// percentages for names that collapse onto the same canonical type.
func (t *Tool) standardizeFleetMix(mix map[string]float64) map[string]float64 {
	if len(mix) == 0 {
		return nil
	}
	result := map[string]float64{}
	for rawName, pct := range mix {
		if pct <= 0 {
			continue
		}
		std := t.standardizer.StandardizeVehicle(rawName)
		if std == "" {
			continue
		}
		if _, known := calc.VehicleTypeID(std); !known {
			continue
		}
		result[std] += pct
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// applyGlobalFleetMix fills in a top-level fleet_mix for links that didn't
// specify their own, and standardizes whichever fleet mix each link ends
// up with.
func (t *Tool) applyGlobalFleetMix(links []map[string]any, globalMix map[string]float64) []map[string]any {
	standardizedGlobal := t.standardizeFleetMix(globalMix)

	out := make([]map[string]any, 0, len(links))
	for _, link := range links {
		updated := map[string]any{}
		for k, v := range link {
			updated[k] = v
		}
		if raw := toFleetMix(updated["fleet_mix"]); len(raw) > 0 {
			if std := t.standardizeFleetMix(raw); std != nil {
				updated["fleet_mix"] = std
			}
		} else if standardizedGlobal != nil {
			updated["fleet_mix"] = standardizedGlobal
		}
		out = append(out, updated)
	}
	return out
}

func readLinksFromExcel(path string) ([]map[string]any, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("workbook has no data rows")
	}

	header := rows[0]
	links := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		link := map[string]any{}
		for i, name := range header {
			if i < len(row) {
				link[strings.TrimSpace(name)] = row[i]
			}
		}
		links = append(links, link)
	}
	return links, nil
}

func writeResultsToExcel(path string, results []calc.LinkResult, pollutants []string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "Results"
	f.NewSheet(sheet)
	f.DeleteSheet("Sheet1")

	header := []string{"link_id", "length_km", "avg_speed_kph"}
	for _, p := range pollutants {
		header = append(header, p+"_kg_per_hr")
	}
	for i, h := range header {
		cellRef, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cellRef, h)
	}
	for r, link := range results {
		values := []any{link.LinkID, link.LengthKm, link.AvgSpeedKph}
		for _, p := range pollutants {
			values = append(values, link.TotalEmissionsKgPerHr[p])
		}
		for c, v := range values {
			cellRef, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cellRef, v)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func generateResultWorkbook(outputsDir, inputFile string, results []calc.LinkResult, pollutants []string) (path, filename string, err error) {
	stem := filepath.Base(inputFile)
	ext := filepath.Ext(stem)
	stem = stem[:len(stem)-len(ext)]
	filename = fmt.Sprintf("%s_result_%d.xlsx", stem, time.Now().UnixNano())
	outDir := outputsDir
	if outDir == "" {
		outDir = filepath.Dir(inputFile)
	}
	path = filepath.Join(outDir, filename)
	if err := writeResultsToExcel(path, results, pollutants); err != nil {
		return "", "", err
	}
	return path, filename, nil
}
