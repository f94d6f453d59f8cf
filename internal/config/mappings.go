package config

import "fmt"

// VehicleType is one canonical vehicle category with its display name and
// the user-vocabulary aliases that should standardize to it.
type VehicleType struct {
	StandardName  string   `yaml:"standard_name"`
	DisplayNameZh string   `yaml:"display_name_zh"`
	Aliases       []string `yaml:"aliases"`
	VSPClassID    int      `yaml:"vsp_class_id"`
}

// Pollutant is one canonical pollutant with its display name and aliases.
type Pollutant struct {
	StandardName  string   `yaml:"standard_name"`
	DisplayNameZh string   `yaml:"display_name_zh"`
	Aliases       []string `yaml:"aliases"`
}

// ColumnField describes one standard column a task type expects: the
// canonical field name, the aliases a user's spreadsheet might use for it,
// and whether the field is mandatory.
type ColumnField struct {
	Standard string   `yaml:"standard"`
	Patterns []string `yaml:"patterns"`
	Required bool     `yaml:"required"`
}

// Mappings is the standardization dictionary: vehicle types, pollutants,
// per-task-type column patterns, and season aliases.
type Mappings struct {
	VehicleTypes   []VehicleType                    `yaml:"vehicle_types"`
	Pollutants     []Pollutant                      `yaml:"pollutants"`
	ColumnPatterns map[string]map[string]ColumnField `yaml:"column_patterns"`
	Seasons        map[string]string                `yaml:"seasons"`
}

// GetRequiredColumns returns the canonical column names a task type
// requires.
func (m *Mappings) GetRequiredColumns(taskType string) []string {
	var required []string
	for _, field := range m.ColumnPatterns[taskType] {
		if field.Required {
			required = append(required, field.Standard)
		}
	}
	return required
}

// GetColumnPatterns returns the alias list configured for one field of a
// task type, for display in clarification messages.
func (m *Mappings) GetColumnPatterns(taskType, fieldName string) []string {
	return m.ColumnPatterns[taskType][fieldName].Patterns
}

// LoadMappings loads the standardization dictionary from path. Failure is
// fatal to the caller: the orchestrator cannot standardize user vocabulary
// without it.
func LoadMappings(path string) (*Mappings, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	var m Mappings
	if err := decodeRaw(raw, &m); err != nil {
		return nil, fmt.Errorf("decode mappings: %w", err)
	}
	if len(m.VehicleTypes) == 0 {
		return nil, fmt.Errorf("mappings %s: no vehicle_types defined", path)
	}
	if len(m.Pollutants) == 0 {
		return nil, fmt.Errorf("mappings %s: no pollutants defined", path)
	}
	return &m, nil
}
