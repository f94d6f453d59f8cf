// Package fileanalyzer implements analyze_file: it inspects an uploaded
// spreadsheet's columns and guesses which emission-calculation task it's
// meant for, without mutating anything.
package fileanalyzer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Kirito123l/emission-agent/internal/standardize"
	"github.com/Kirito123l/emission-agent/internal/tools"
	"github.com/Kirito123l/emission-agent/pkg/models"
)

const (
	toolName        = "analyze_file"
	toolDescription = "Analyze an uploaded file's structure and suggest how to process it"
)

type params struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path to the uploaded .csv/.xlsx/.xls file"`
}

var schema = tools.GenerateSchema(params{})

// Tool implements tools.Tool.
type Tool struct {
	standardizer *standardize.Standardizer
}

func New(standardizer *standardize.Standardizer) *Tool {
	return &Tool{standardizer: standardizer}
}

func (t *Tool) Name() string            { return toolName }
func (t *Tool) Description() string     { return toolDescription }
func (t *Tool) Schema() json.RawMessage { return schema }

func (t *Tool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	var p params
	if err := tools.DecodeArgs(args, &p); err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if p.FilePath == "" {
		return &models.ToolResult{Success: false, Error: "missing required parameter: file_path"}, nil
	}
	if _, err := os.Stat(p.FilePath); err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("file not found: %s", p.FilePath)}, nil
	}

	columns, rows, err := ReadTable(p.FilePath)
	if err != nil {
		return &models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if len(rows) == 0 {
		return &models.ToolResult{Success: false, Error: "file is empty"}, nil
	}

	taskType, confidence := IdentifyTaskType(columns)
	microMapping := t.standardizer.MapColumns(columns, "micro_emission")
	macroMapping := t.standardizer.MapColumns(columns, "macro_emission")
	microHasRequired := hasAllRequired(t.standardizer.GetRequiredColumns("micro_emission"), microMapping)
	macroHasRequired := hasAllRequired(t.standardizer.GetRequiredColumns("macro_emission"), macroMapping)

	sample := rows
	if len(sample) > 2 {
		sample = sample[:2]
	}

	data := map[string]any{
		"filename":           filepath.Base(p.FilePath),
		"row_count":          len(rows),
		"columns":            columns,
		"task_type":          taskType,
		"confidence":         confidence,
		"micro_mapping":      microMapping,
		"macro_mapping":      macroMapping,
		"micro_has_required": microHasRequired,
		"macro_has_required": macroHasRequired,
		"sample_rows":        sample,
	}

	summary := fmt.Sprintf("File: %s\nRows: %d\nColumns: %s\nDetected type: %s (confidence: %.0f%%)",
		filepath.Base(p.FilePath), len(rows), strings.Join(columns, ", "), taskType, confidence*100)

	return &models.ToolResult{Success: true, Data: data, Summary: summary}, nil
}

// ReadTable loads a CSV or XLSX file's header row and data rows as maps
// keyed by header name, trimming whitespace from header names the way the
// original pandas-based analyzer did via str.strip().
func ReadTable(path string) (columns []string, rows []map[string]any, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx", ".xls":
		return readXLSX(path)
	default:
		return nil, nil, fmt.Errorf("unsupported file format: %s. Supported: .csv, .xlsx, .xls", filepath.Ext(path))
	}
}

func readCSV(path string) ([]string, []map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	header := trimAll(records[0])
	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := map[string]any{}
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func readXLSX(path string) ([]string, []map[string]any, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read excel rows: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	header := trimAll(all[0])
	rows := make([]map[string]any, 0, len(all)-1)
	for _, record := range all[1:] {
		row := map[string]any{}
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func hasAllRequired(required []string, mapping map[string]string) bool {
	mapped := map[string]bool{}
	for _, std := range mapping {
		mapped[std] = true
	}
	for _, req := range required {
		if !mapped[req] {
			return false
		}
	}
	return true
}

var microIndicators = []string{"speed", "velocity", "速度", "time", "acceleration", "加速"}
var macroIndicators = []string{"length", "flow", "volume", "traffic", "长度", "流量", "link"}

// IdentifyTaskType guesses micro vs macro from column-name keyword hits,
// the same heuristic the original analyzer used rather than anything
// dataset-driven.
func IdentifyTaskType(columns []string) (string, float64) {
	lower := make([]string, len(columns))
	for i, c := range columns {
		lower[i] = strings.ToLower(c)
	}
	countHits := func(indicators []string) int {
		hits := 0
		for _, ind := range indicators {
			for _, col := range lower {
				if strings.Contains(col, ind) {
					hits++
					break
				}
			}
		}
		return hits
	}

	microScore := countHits(microIndicators)
	macroScore := countHits(macroIndicators)

	switch {
	case microScore > macroScore:
		return "micro_emission", min(0.5+float64(microScore)*0.15, 0.95)
	case macroScore > microScore:
		return "macro_emission", min(0.5+float64(macroScore)*0.15, 0.95)
	default:
		return "unknown", 0.3
	}
}
