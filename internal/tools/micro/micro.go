// Package micro implements calculate_micro_emission: second-by-second
// emissions from a vehicle trajectory. Each second's emission rate comes
// from internal/calc's speed-dependent emission-rate curve; VSP, VSP bin
// and operating mode are computed per point and reported alongside, but
// are not used to look up rates.
package micro

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Kirito123l/emission-agent/internal/calc"
	"github.com/Kirito123l/emission-agent/internal/tools"
	"github.com/Kirito123l/emission-agent/pkg/models"
)

const (
	toolName        = "calculate_micro_emission"
	toolDescription = "Calculate second-by-second emissions from vehicle trajectory data"
)

// TrajectoryPoint is one second of a vehicle's recorded motion.
type TrajectoryPoint struct {
	T                float64 `json:"t"`
	SpeedKph         float64 `json:"speed_kph"`
	AccelerationMps2 float64 `json:"acceleration_mps2,omitempty"`
	GradePct         float64 `json:"grade_pct,omitempty"`
}

type params struct {
	VehicleType     string            `json:"vehicle_type" jsonschema:"required,description=Standardized vehicle type"`
	Pollutants      []string          `json:"pollutants,omitempty" jsonschema:"description=Pollutants to compute, default [CO2 NOx]"`
	ModelYear       int               `json:"model_year,omitempty" jsonschema:"description=Vehicle model year, default 2020"`
	Season          string            `json:"season,omitempty" jsonschema:"description=夏季/冬季/春季/秋季, default 夏季"`
	TrajectoryData  []TrajectoryPoint `json:"trajectory_data,omitempty" jsonschema:"description=Inline trajectory points"`
	InputFile       string            `json:"input_file,omitempty" jsonschema:"description=Path to an Excel trajectory file"`
	FilePath        string            `json:"file_path,omitempty" jsonschema:"description=Alias for input_file, set by the executor when a file is attached"`
	OutputFile      string            `json:"output_file,omitempty" jsonschema:"description=Optional path to write a results workbook to"`
}

var schema = tools.GenerateSchema(params{})

// PointEmissions is the per-second output row: VSP, operating mode, and
// each requested pollutant's mass emitted during that second.
type PointEmissions struct {
	T         float64            `json:"t"`
	SpeedKph  float64            `json:"speed_kph"`
	VSP       float64            `json:"vsp"`
	VSPBin    int                `json:"vsp_bin"`
	OpMode    int                `json:"op_mode"`
	Emissions map[string]float64 `json:"emissions"` // grams, this second
}

// Summary aggregates a trajectory's emissions and running statistics.
type Summary struct {
	TotalDistanceKm      float64            `json:"total_distance_km"`
	TotalTimeS           float64            `json:"total_time_s"`
	TotalEmissionsG      map[string]float64 `json:"total_emissions_g"`
	EmissionRatesGPerKm  map[string]float64 `json:"emission_rates_g_per_km"`
}

// Tool implements tools.Tool.
type Tool struct {
	outputsDir string
}

// New builds the tool. outputsDir is where generated download workbooks
// are written; an empty value falls back to the input file's own directory.
func New(outputsDir string) *Tool { return &Tool{outputsDir: outputsDir} }

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
	if p.VehicleType == "" {
		return &models.ToolResult{Success: false, Error: "missing required parameter: vehicle_type"}, nil
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

	trajectory := p.TrajectoryData
	if p.InputFile != "" {
		read, err := readTrajectoryFromExcel(p.InputFile)
		if err != nil {
			return &models.ToolResult{Success: false, Error: fmt.Sprintf("failed to read input file: %v", err), Data: map[string]any{"input_file": p.InputFile}}, nil
		}
		trajectory = read
	}
	if len(trajectory) == 0 {
		return &models.ToolResult{Success: false, Error: "missing required parameter: trajectory_data or input_file"}, nil
	}

	rows, summary, err := calculate(p.VehicleType, pollutants, modelYear, season, trajectory)
	if err != nil {
		return &models.ToolResult{
			Success: false,
			Error:   err.Error(),
			Data: map[string]any{
				"query_params": map[string]any{
					"vehicle_type":       p.VehicleType,
					"pollutants":         pollutants,
					"model_year":         modelYear,
					"season":             season,
					"trajectory_points":  len(trajectory),
				},
			},
		}, nil
	}

	data := map[string]any{"results": tools.ToJSONValue(rows), "summary": tools.ToJSONValue(summary)}

	if p.OutputFile != "" {
		if err := writeResultsToExcel(p.OutputFile, trajectory, rows, pollutants); err != nil {
			data["output_file_warning"] = fmt.Sprintf("failed to write output file: %v", err)
		} else {
			data["output_file"] = p.OutputFile
		}
	}
	if p.InputFile != "" {
		outPath, filename, err := generateResultWorkbook(t.outputsDir, p.InputFile, rows, pollutants)
		if err != nil {
			// A missing download file doesn't sink an otherwise successful
			// calculation — the result simply carries no download_file.
		} else {
			data["download_file"] = models.DownloadHandle{Path: outPath, Filename: filename}
		}
	}

	avgSpeed := 0.0
	if summary.TotalTimeS > 0 {
		avgSpeed = summary.TotalDistanceKm / (summary.TotalTimeS / 3600)
	}
	summaryText := fmt.Sprintf(
		"已完成微观排放计算\n**计算参数:**\n  - 车型: %s (%d年)\n  - 季节: %s\n  - 污染物: %s\n  - 轨迹数据点: %d 个\n",
		p.VehicleType, modelYear, season, joinComma(pollutants), len(trajectory))
	summaryText += "**总排放量:**\n"
	for _, pollutant := range pollutants {
		summaryText += fmt.Sprintf("  - %s: %s\n", pollutant, tools.FormatEmission(summary.TotalEmissionsG[pollutant], ""))
	}
	summaryText += "**运行统计:**\n"
	summaryText += fmt.Sprintf("  - 总距离: %.2f km\n", summary.TotalDistanceKm)
	summaryText += fmt.Sprintf("  - 总时间: %.0f 秒 (%.1f 分钟)\n", summary.TotalTimeS, summary.TotalTimeS/60)
	summaryText += fmt.Sprintf("  - 平均速度: %.1f km/h\n", avgSpeed)
	summaryText += "**排放率:**\n"
	for _, pollutant := range pollutants {
		summaryText += fmt.Sprintf("  - %s: %.2f g/km\n", pollutant, summary.EmissionRatesGPerKm[pollutant])
	}

	return &models.ToolResult{Success: true, Data: data, Summary: summaryText}, nil
}

func calculate(vehicleType string, pollutants []string, modelYear int, season string, trajectory []TrajectoryPoint) ([]PointEmissions, *Summary, error) {
	vehicleID, ok := calc.VehicleTypeID(vehicleType)
	if !ok {
		return nil, nil, fmt.Errorf("unknown vehicle type: %s", vehicleType)
	}

	rows := make([]PointEmissions, 0, len(trajectory))
	totals := map[string]float64{}
	for _, p := range pollutants {
		totals[p] = 0
	}

	var totalDistanceKm float64
	var totalTimeS float64

	for i, point := range trajectory {
		speedMps := point.SpeedKph / 3.6
		vsp, known := calc.VSP(speedMps, point.AccelerationMps2, point.GradePct, vehicleID)
		if !known {
			return nil, nil, fmt.Errorf("unknown vehicle type: %s", vehicleType)
		}
		speedMph := point.SpeedKph * 0.621371
		emissions := map[string]float64{}
		for _, pollutant := range pollutants {
			rateGPerMile, err := calc.EmissionRateAtSpeed(vehicleType, pollutant, modelYear, season, speedMph)
			if err != nil {
				return nil, nil, err
			}
			// One second at this speed covers speedMph/3600 miles.
			gramsThisSecond := rateGPerMile * speedMph / 3600
			emissions[pollutant] = round4(gramsThisSecond)
			totals[pollutant] += gramsThisSecond
		}

		rows = append(rows, PointEmissions{
			T:         point.T,
			SpeedKph:  point.SpeedKph,
			VSP:       vsp,
			VSPBin:    calc.VSPBin(vsp),
			OpMode:    calc.OpMode(speedMph, vsp),
			Emissions: emissions,
		})

		if i > 0 {
			dt := point.T - trajectory[i-1].T
			if dt > 0 {
				totalTimeS += dt
				totalDistanceKm += point.SpeedKph * dt / 3600
			}
		}
	}

	rates := map[string]float64{}
	for p, total := range totals {
		totals[p] = round4(total)
		if totalDistanceKm > 0 {
			rates[p] = round4(total / totalDistanceKm)
		}
	}

	return rows, &Summary{
		TotalDistanceKm:     round4(totalDistanceKm),
		TotalTimeS:          totalTimeS,
		TotalEmissionsG:     totals,
		EmissionRatesGPerKm: rates,
	}, nil
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func joinComma(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

// readTrajectoryFromExcel reads a trajectory workbook whose header row
// names one of t/time, speed_kph/speed, acceleration_mps2 and grade_pct —
// accepting the header case/spacing variation a user-provided file
// typically has.
func readTrajectoryFromExcel(path string) ([]TrajectoryPoint, error) {
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

	colIndex := map[string]int{}
	for i, name := range rows[0] {
		colIndex[normalizeHeader(name)] = i
	}

	idxOf := func(names ...string) int {
		for _, n := range names {
			if i, ok := colIndex[n]; ok {
				return i
			}
		}
		return -1
	}

	tIdx := idxOf("t", "time", "timestamp")
	speedIdx := idxOf("speed_kph", "speed", "velocity")
	accelIdx := idxOf("acceleration_mps2", "acceleration", "accel")
	gradeIdx := idxOf("grade_pct", "grade")

	if speedIdx < 0 {
		return nil, fmt.Errorf("no speed column found in workbook header")
	}

	points := make([]TrajectoryPoint, 0, len(rows)-1)
	for i, row := range rows[1:] {
		point := TrajectoryPoint{T: float64(i)}
		if tIdx >= 0 {
			point.T = parseFloat(cell(row, tIdx))
		}
		point.SpeedKph = parseFloat(cell(row, speedIdx))
		if accelIdx >= 0 {
			point.AccelerationMps2 = parseFloat(cell(row, accelIdx))
		}
		if gradeIdx >= 0 {
			point.GradePct = parseFloat(cell(row, gradeIdx))
		}
		points = append(points, point)
	}
	return points, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseFloat(s string) float64 {
	var v float64
	fmt.Sscanf(s, "%f", &v)
	return v
}

func normalizeHeader(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// writeResultsToExcel writes a trajectory-plus-emissions workbook to an
// explicit output path.
func writeResultsToExcel(path string, trajectory []TrajectoryPoint, rows []PointEmissions, pollutants []string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "Results"
	f.NewSheet(sheet)
	f.DeleteSheet("Sheet1")

	header := []string{"t", "speed_kph", "vsp", "vsp_bin", "op_mode"}
	header = append(header, pollutants...)
	for i, h := range header {
		cellRef, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cellRef, h)
	}
	for r, row := range rows {
		values := []any{row.T, row.SpeedKph, row.VSP, row.VSPBin, row.OpMode}
		for _, p := range pollutants {
			values = append(values, row.Emissions[p])
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

// generateResultWorkbook writes a results workbook into a timestamped
// filename inside outputsDir (the server's configured outputs directory),
// for the caller to offer as a download.
func generateResultWorkbook(outputsDir, inputFile string, rows []PointEmissions, pollutants []string) (path, filename string, err error) {
	stem := filepath.Base(inputFile)
	ext := filepath.Ext(stem)
	stem = stem[:len(stem)-len(ext)]
	filename = fmt.Sprintf("%s_result_%d.xlsx", stem, time.Now().UnixNano())
	outDir := outputsDir
	if outDir == "" {
		outDir = filepath.Dir(inputFile)
	}
	path = filepath.Join(outDir, filename)
	if err := writeResultsToExcel(path, nil, rows, pollutants); err != nil {
		return "", "", err
	}
	return path, filename, nil
}
