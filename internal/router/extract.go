package router

import (
	"fmt"
	"path/filepath"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// milesToKm converts the factors tool's g/mile speed curve to g/km for
// chart display.
const milesToKm = 1.60934

// extractChartData returns the first explicit chart_data a tool set, or,
// failing that, a synthesized chart payload for query_emission_factors.
func extractChartData(results []toolResult) map[string]any {
	for _, tr := range results {
		if tr.result.ChartData != nil {
			return tr.result.ChartData
		}
	}
	for _, tr := range results {
		if tr.name == "query_emission_factors" && tr.result.Success {
			if chart := formatEmissionFactorsChart(tr.result.Data); chart != nil {
				return chart
			}
		}
	}
	return nil
}

func formatEmissionFactorsChart(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	if pollutants, ok := data["pollutants"].(map[string]any); ok {
		formatted := make(map[string]any, len(pollutants))
		for name, raw := range pollutants {
			polData, _ := raw.(map[string]any)
			formatted[name] = map[string]any{
				"curve": curveInKm(polData["speed_curve"]),
				"unit":  stringOr(polData["unit"], "g/km"),
			}
		}
		return map[string]any{
			"type":         "emission_factors",
			"vehicle_type": stringOr(data["vehicle_type"], "Unknown"),
			"model_year":   data["model_year"],
			"pollutants":   formatted,
			"metadata":     data["metadata"],
		}
	}

	if curve, ok := data["speed_curve"]; ok {
		summary, _ := data["query_summary"].(map[string]any)
		pollutant := "Unknown"
		vehicleType := "Unknown"
		var modelYear any = 2020
		if summary != nil {
			pollutant = stringOr(summary["pollutant"], "Unknown")
			vehicleType = stringOr(summary["vehicle_type"], "Unknown")
			if v, ok := summary["model_year"]; ok {
				modelYear = v
			}
		}
		return map[string]any{
			"type":         "emission_factors",
			"vehicle_type": vehicleType,
			"model_year":   modelYear,
			"pollutants": map[string]any{
				pollutant: map[string]any{
					"curve": curveInKm(curve),
					"unit":  "g/km",
				},
			},
			"metadata": data["metadata"],
		}
	}

	return nil
}

// asMapSlice coerces a speed_curve value into []map[string]any. Tool
// results round-trip through JSON before landing in Data, so a slice
// value arrives as []any holding map[string]any elements, not the
// concrete []map[string]any a Go literal would produce.
func asMapSlice(raw any) []map[string]any {
	switch v := raw.(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// curveInKm converts a speed_curve of {speed_kph, emission_rate (g/mile)}
// points into {speed_kph, emission_rate (g/km)} points for the chart.
func curveInKm(raw any) []map[string]any {
	points := asMapSlice(raw)
	if len(points) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(points))
	for _, p := range points {
		rate, _ := p["emission_rate"].(float64)
		out = append(out, map[string]any{
			"speed_kph":     p["speed_kph"],
			"emission_rate": rate / milesToKm,
		})
	}
	return out
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

// maxPreviewRows caps how many sample rows the table payload carries —
// a UI preview, not the full result set.
const maxPreviewRows = 4

// extractTableData returns the first explicit table_data a tool set, or a
// synthesized preview table for the factors/micro/macro tools.
func extractTableData(results []toolResult) map[string]any {
	for _, tr := range results {
		if tr.result.TableData != nil {
			return tr.result.TableData
		}
	}
	for _, tr := range results {
		if !tr.result.Success {
			continue
		}
		switch tr.name {
		case "query_emission_factors":
			if table := factorsTable(tr.result.Data); table != nil {
				return table
			}
		case "calculate_micro_emission", "calculate_macro_emission":
			if table := calculatorTable(tr.name, tr.result.Data); table != nil {
				return table
			}
		}
	}
	return nil
}

func factorsTable(data map[string]any) map[string]any {
	if pollutants, ok := data["pollutants"].(map[string]any); ok {
		var curve []map[string]any
		for _, raw := range pollutants {
			polData, _ := raw.(map[string]any)
			if c := asMapSlice(polData["speed_curve"]); len(c) > 0 {
				curve = c
				break
			}
		}
		if len(curve) == 0 {
			return nil
		}
		step := max(1, len(curve)/maxPreviewRows)
		columns := []string{"速度 (km/h)"}
		for name := range pollutants {
			columns = append(columns, fmt.Sprintf("%s (g/km)", name))
		}
		var rows []map[string]any
		for i := 0; i < len(curve) && len(rows) < maxPreviewRows; i += step {
			row := map[string]any{"速度 (km/h)": fmt.Sprintf("%.1f", toFloat(curve[i]["speed_kph"]))}
			for name, raw := range pollutants {
				polData, _ := raw.(map[string]any)
				if c := asMapSlice(polData["speed_curve"]); i < len(c) {
					row[fmt.Sprintf("%s (g/km)", name)] = fmt.Sprintf("%.4f", toFloat(c[i]["emission_rate"])/milesToKm)
				}
			}
			rows = append(rows, row)
		}
		return map[string]any{
			"type":          "query_emission_factors",
			"columns":       columns,
			"preview_rows":  rows,
			"total_rows":    len(curve),
			"total_columns": len(columns),
		}
	}

	if curve := asMapSlice(data["speed_curve"]); len(curve) > 0 {
		summary, _ := data["query_summary"].(map[string]any)
		pollutant := "Unknown"
		if summary != nil {
			pollutant = stringOr(summary["pollutant"], "Unknown")
		}
		step := max(1, len(curve)/maxPreviewRows)
		columns := []string{"速度 (km/h)", fmt.Sprintf("%s (g/km)", pollutant)}
		var rows []map[string]any
		for i := 0; i < len(curve) && len(rows) < maxPreviewRows; i += step {
			rows = append(rows, map[string]any{
				"速度 (km/h)":                          fmt.Sprintf("%.1f", toFloat(curve[i]["speed_kph"])),
				fmt.Sprintf("%s (g/km)", pollutant): fmt.Sprintf("%.4f", toFloat(curve[i]["emission_rate"])/milesToKm),
			})
		}
		return map[string]any{
			"type":          "query_emission_factors",
			"columns":       columns,
			"preview_rows":  rows,
			"total_rows":    len(curve),
			"total_columns": len(columns),
		}
	}

	return nil
}

func calculatorTable(toolName string, data map[string]any) map[string]any {
	results, _ := data["results"].([]any)
	summary, _ := data["summary"].(map[string]any)

	if len(results) == 0 {
		if summary == nil {
			return nil
		}
		totals, _ := summary["total_emissions_g"].(map[string]any)
		var rows []map[string]any
		for k, v := range totals {
			rows = append(rows, map[string]any{"指标": k, "数值": fmt.Sprintf("%.2f g", toFloat(v))})
		}
		return map[string]any{
			"type":          toolName,
			"columns":       []string{"指标", "数值"},
			"preview_rows":  rows,
			"total_rows":    len(totals),
			"total_columns": 2,
		}
	}

	if toolName == "calculate_micro_emission" {
		columns := []string{"t", "speed_kph", "VSP"}
		var rows []map[string]any
		for i, raw := range results {
			if i >= maxPreviewRows {
				break
			}
			row, _ := raw.(map[string]any)
			out := map[string]any{
				"t":         row["t"],
				"speed_kph": fmt.Sprintf("%.1f", toFloat(row["speed_kph"])),
				"VSP":       fmt.Sprintf("%.2f", toFloat(row["vsp"])),
			}
			if emissions, ok := row["emissions"].(map[string]any); ok {
				for pol, val := range emissions {
					out[pol] = fmt.Sprintf("%.4f", toFloat(val))
				}
			}
			rows = append(rows, out)
		}
		return map[string]any{
			"type":          toolName,
			"columns":       columns,
			"preview_rows":  rows,
			"total_rows":    len(results),
			"total_columns": len(columns),
		}
	}

	// calculate_macro_emission: prefer computed output columns over raw inputs.
	columns := []string{"link_id"}
	var rows []map[string]any
	for i, raw := range results {
		if i >= maxPreviewRows {
			break
		}
		row, _ := raw.(map[string]any)
		out := map[string]any{"link_id": row["link_id"]}
		kgPerHr, _ := row["total_emissions_kg_per_hr"].(map[string]any)
		ratesVehKm, _ := row["emission_rates_g_per_veh_km"].(map[string]any)
		for pol, val := range kgPerHr {
			col := fmt.Sprintf("%s_kg_h", pol)
			if !contains(columns, col) {
				columns = append(columns, col)
			}
			out[col] = fmt.Sprintf("%.2f", toFloat(val))
		}
		for pol, val := range ratesVehKm {
			col := fmt.Sprintf("%s_g_veh_km", pol)
			if !contains(columns, col) {
				columns = append(columns, col)
			}
			out[col] = fmt.Sprintf("%.2f", toFloat(val))
		}
		rows = append(rows, out)
	}
	return map[string]any{
		"type":          toolName,
		"columns":       columns,
		"preview_rows":  rows,
		"total_rows":    len(results),
		"total_columns": len(columns),
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
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

// extractDownloadFile returns the first non-empty download_file found at
// the top level, in data, or in metadata, normalizing a bare string path
// to {path, filename}.
func extractDownloadFile(results []toolResult) *models.DownloadHandle {
	for _, tr := range results {
		if h := downloadHandleFrom(tr.result.DownloadFile); h != nil {
			return h
		}
		if tr.result.Data != nil {
			if h := downloadHandleFrom(tr.result.Data["download_file"]); h != nil {
				return h
			}
		}
	}
	return nil
}

func downloadHandleFrom(v any) *models.DownloadHandle {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return &models.DownloadHandle{Path: val, Filename: filepath.Base(val)}
	case models.DownloadHandle:
		return &val
	case *models.DownloadHandle:
		return val
	case map[string]any:
		path, _ := val["path"].(string)
		if path == "" {
			return nil
		}
		filename, _ := val["filename"].(string)
		if filename == "" {
			filename = filepath.Base(path)
		}
		return &models.DownloadHandle{Path: path, Filename: filename}
	default:
		return nil
	}
}
