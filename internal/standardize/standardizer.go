// Package standardize turns the free-form vocabulary a user or a
// spreadsheet uses (vehicle names, pollutant names, column headers) into
// the canonical names the calculators expect. It never raises an error
// for an unrecognized term — it returns an empty standard name and lets
// the caller decide whether to ask a clarifying question.
package standardize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Kirito123l/emission-agent/internal/config"
)

const (
	vehicleFuzzyThreshold   = 70
	pollutantFuzzyThreshold = 80
	minSubstringPatternLen  = 3
	maxSuggestions          = 5
)

// commonVehicleSuggestions mirrors the fixed "most people ask about these"
// shortlist surfaced when a vehicle can't be standardized.
var commonVehicleSuggestions = []string{
	"Passenger Car",
	"Transit Bus",
	"Light Commercial Truck",
	"Combination Long-haul Truck",
	"Passenger Truck",
	"Intercity Bus",
}

type vehicleEntry struct {
	standard config.VehicleType
}

type pollutantEntry struct {
	standard config.Pollutant
}

// Standardizer is the unified standardization service (C2): dictionary
// lookup first, fuzzy match second, never an error — only an empty result.
type Standardizer struct {
	mappings *config.Mappings

	vehicleLookup   map[string]vehicleEntry
	pollutantLookup map[string]pollutantEntry
	seasonLookup    map[string]string
}

// New builds lookup tables from a loaded mapping dictionary.
func New(mappings *config.Mappings) *Standardizer {
	s := &Standardizer{
		mappings:        mappings,
		vehicleLookup:   map[string]vehicleEntry{},
		pollutantLookup: map[string]pollutantEntry{},
		seasonLookup:    map[string]string{},
	}
	s.buildLookupTables()
	return s
}

func (s *Standardizer) buildLookupTables() {
	for _, vt := range s.mappings.VehicleTypes {
		entry := vehicleEntry{standard: vt}
		s.vehicleLookup[strings.ToLower(vt.StandardName)] = entry
		s.vehicleLookup[vt.DisplayNameZh] = entry
		for _, alias := range vt.Aliases {
			s.vehicleLookup[strings.ToLower(alias)] = entry
		}
	}
	for _, p := range s.mappings.Pollutants {
		entry := pollutantEntry{standard: p}
		s.pollutantLookup[strings.ToLower(p.StandardName)] = entry
		s.pollutantLookup[p.DisplayNameZh] = entry
		for _, alias := range p.Aliases {
			s.pollutantLookup[strings.ToLower(alias)] = entry
		}
	}
	for alias, canonical := range s.mappings.Seasons {
		s.seasonLookup[strings.ToLower(alias)] = canonical
	}
}

// fuzzyRatio approximates fuzzywuzzy.fuzz.ratio(): a 0-100 similarity score
// derived from normalized Levenshtein edit distance.
func fuzzyRatio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	ratio := (1 - float64(dist)/float64(maxLen)) * 100
	if ratio < 0 {
		ratio = 0
	}
	return int(ratio)
}

// StandardizeVehicle resolves free-form vehicle vocabulary to a canonical
// standard name. An empty string means "not recognized" — never an error.
func (s *Standardizer) StandardizeVehicle(rawInput string) string {
	raw := strings.TrimSpace(rawInput)
	if raw == "" {
		return ""
	}
	rawLower := strings.ToLower(raw)

	if entry, ok := s.vehicleLookup[rawLower]; ok {
		return entry.standard.StandardName
	}

	var best vehicleEntry
	var bestScore int
	found := false
	for key, entry := range s.vehicleLookup {
		score := fuzzyRatio(rawLower, strings.ToLower(key))
		if score > bestScore && score >= vehicleFuzzyThreshold {
			bestScore = score
			best = entry
			found = true
		}
	}
	if found {
		return best.standard.StandardName
	}
	return ""
}

// StandardizePollutant resolves free-form pollutant vocabulary to a
// canonical standard name, using a stricter fuzzy threshold than vehicles.
func (s *Standardizer) StandardizePollutant(rawInput string) string {
	raw := strings.TrimSpace(rawInput)
	if raw == "" {
		return ""
	}
	rawLower := strings.ToLower(raw)

	if entry, ok := s.pollutantLookup[rawLower]; ok {
		return entry.standard.StandardName
	}

	var best pollutantEntry
	var bestScore int
	found := false
	for key, entry := range s.pollutantLookup {
		score := fuzzyRatio(rawLower, strings.ToLower(key))
		if score > bestScore && score >= pollutantFuzzyThreshold {
			bestScore = score
			best = entry
			found = true
		}
	}
	if found {
		return best.standard.StandardName
	}
	return ""
}

// StandardizePollutants standardizes each element of a list, keeping
// unrecognized entries verbatim rather than dropping the whole request.
// It returns the standardized list and the subset of inputs that could
// not be resolved, so the caller can surface a warning without failing.
func (s *Standardizer) StandardizePollutants(raw []string) (standardized []string, unresolved []string) {
	standardized = make([]string, 0, len(raw))
	for _, p := range raw {
		std := s.StandardizePollutant(p)
		if std == "" {
			standardized = append(standardized, p)
			unresolved = append(unresolved, p)
			continue
		}
		standardized = append(standardized, std)
	}
	return standardized, unresolved
}

// StandardizeSeason resolves a season alias to one of the four canonical
// Chinese season strings, or "" if unrecognized.
func (s *Standardizer) StandardizeSeason(rawInput string) string {
	raw := strings.ToLower(strings.TrimSpace(rawInput))
	if raw == "" {
		return ""
	}
	return s.seasonLookup[raw]
}

// GetVehicleSuggestions returns a short list of common vehicle types for
// a clarification prompt, formatted "<display name zh> (<standard name>)".
func (s *Standardizer) GetVehicleSuggestions() []string {
	byStandard := map[string]config.VehicleType{}
	for _, vt := range s.mappings.VehicleTypes {
		byStandard[vt.StandardName] = vt
	}
	suggestions := make([]string, 0, len(commonVehicleSuggestions))
	for _, std := range commonVehicleSuggestions {
		vt, ok := byStandard[std]
		if !ok {
			continue
		}
		suggestions = append(suggestions, fmt.Sprintf("%s (%s)", vt.DisplayNameZh, std))
	}
	return suggestions
}

// GetPollutantSuggestions returns every canonical pollutant name.
func (s *Standardizer) GetPollutantSuggestions() []string {
	names := make([]string, 0, len(s.mappings.Pollutants))
	for _, p := range s.mappings.Pollutants {
		names = append(names, p.StandardName)
	}
	sort.Strings(names)
	return names
}

// GetRequiredColumns returns the required standard column names for a
// task type ("micro" or "macro").
func (s *Standardizer) GetRequiredColumns(taskType string) []string {
	return s.mappings.GetRequiredColumns(taskType)
}

// MapColumns maps a spreadsheet's raw column headers to standard field
// names for a task type. Pass 1 matches a header against a configured
// alias exactly; pass 2 falls back to substring containment, preferring
// the longest alias match. In neither pass is a field already mapped
// reassigned to a later column.
func (s *Standardizer) MapColumns(columns []string, taskType string) map[string]string {
	patterns := s.mappings.ColumnPatterns[taskType]
	mapping := map[string]string{}
	mappedStandards := map[string]bool{}

	unmatched := make([]string, 0, len(columns))
	for _, col := range columns {
		colLower := strings.ToLower(strings.TrimSpace(col))
		matched := false
		for _, field := range patterns {
			if mappedStandards[field.Standard] {
				continue
			}
			for _, pattern := range field.Patterns {
				if colLower == strings.ToLower(pattern) {
					mapping[col] = field.Standard
					mappedStandards[field.Standard] = true
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			unmatched = append(unmatched, col)
		}
	}

	for _, col := range unmatched {
		colLower := strings.ToLower(strings.TrimSpace(col))
		var bestStandard string
		bestLen := 0
		for _, field := range patterns {
			if mappedStandards[field.Standard] {
				continue
			}
			for _, pattern := range field.Patterns {
				pLower := strings.ToLower(pattern)
				if len(pLower) < minSubstringPatternLen {
					continue
				}
				if strings.Contains(colLower, pLower) || strings.Contains(pLower, colLower) {
					if len(pLower) > bestLen {
						bestLen = len(pLower)
						bestStandard = field.Standard
					}
				}
			}
		}
		if bestStandard != "" {
			mapping[col] = bestStandard
			mappedStandards[bestStandard] = true
		}
	}

	return mapping
}
