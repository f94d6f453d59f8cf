// Package memory implements the three-layer per-session memory (C7):
// working memory (recent turns verbatim), fact memory (structured facts
// extracted from successful tool calls), and compressed memory (a
// one-line-per-call summary of turns evicted from working memory).
package memory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// maxWorkingMemoryTurns is how many recent turns stay verbatim in working
// memory; older turns are folded into compressedMemory once the buffer
// grows past twice this size.
const maxWorkingMemoryTurns = 5

// persistedTurns caps how many turns are written to disk per session, so
// a long-running session doesn't grow its history file unboundedly.
const persistedTurns = 10

// correctionPhrases are the fixed set of user phrasings that flag "I meant
// something else" — a simple keyword scan rather than an LLM call, so
// correction detection never adds a round trip to the turn.
var correctionPhrases = []string{"不对", "不是", "应该是", "我说的是", "换成", "改成"}

// correctionVehicleKeywords is the vocabulary the correction detector
// checks for after a correction phrase fires.
var correctionVehicleKeywords = []string{"小汽车", "公交车", "货车", "轿车", "客车"}

// persisted is the on-disk JSON shape for one session's memory.
type persisted struct {
	SessionID        string            `json:"session_id"`
	FactMemory       models.FactMemory `json:"fact_memory"`
	CompressedMemory string            `json:"compressed_memory"`
	WorkingMemory    []models.Turn     `json:"working_memory"`
}

// Manager holds one session's three memory layers in process and
// persists them to dataDir/history/<id>.json after every update.
type Manager struct {
	mu               sync.RWMutex
	sessionID        string
	dataDir          string
	workingMemory    []models.Turn
	factMemory       models.FactMemory
	compressedMemory string
	logger           *slog.Logger
}

// NewManager builds a Manager for sessionID, loading any memory already
// persisted to dataDir. A missing or unreadable history file yields an
// empty Manager rather than an error — the conversation simply starts
// without recall.
func NewManager(sessionID, dataDir string, logger *slog.Logger) *Manager {
	m := &Manager{sessionID: sessionID, dataDir: dataDir, logger: logger}
	m.load()
	return m
}

// SessionID returns the session this Manager holds memory for.
func (m *Manager) SessionID() string { return m.sessionID }

// GetWorkingMemory returns the most recent turns, oldest first, deep-
// copied so the caller can't mutate the manager's internal state.
func (m *Manager) GetWorkingMemory() []models.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if len(m.workingMemory) > maxWorkingMemoryTurns {
		start = len(m.workingMemory) - maxWorkingMemoryTurns
	}
	out := make([]models.Turn, len(m.workingMemory)-start)
	copy(out, m.workingMemory[start:])
	return out
}

// GetFactMemory returns a copy of the structured facts layer.
func (m *Manager) GetFactMemory() models.FactMemory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneFactMemory(m.factMemory)
}

// GetCompressedMemory returns the summary of turns evicted from working
// memory.
func (m *Manager) GetCompressedMemory() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.compressedMemory
}

// Update records one completed turn: appends it to working memory,
// extracts facts from any successful tool calls, remembers the active
// file and its cached analysis, scans for a user correction, compresses
// old memory if the buffer has grown too large, and persists.
func (m *Manager) Update(userMessage, assistantResponse string, toolCalls []models.CompletedCall, filePath string, fileAnalysis map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workingMemory = append(m.workingMemory, models.Turn{
		User:      userMessage,
		Assistant: assistantResponse,
		ToolCalls: toolCalls,
		Timestamp: time.Now(),
	})

	m.extractFactsFromToolCalls(toolCalls)

	if filePath != "" {
		m.factMemory.ActiveFile = filePath
		if fileAnalysis != nil {
			m.factMemory.FileAnalysis = fileAnalysis
		}
	}

	m.detectCorrection(userMessage)

	if len(m.workingMemory) > maxWorkingMemoryTurns*2 {
		m.compressOldMemory()
	}

	if err := m.save(); err != nil && m.logger != nil {
		m.logger.Warn("failed to persist memory", "session_id", m.sessionID, "error", err)
	}
}

// ClearTopicMemory drops the active-file reference, for when the
// conversation moves on to an unrelated topic.
func (m *Manager) ClearTopicMemory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factMemory.ActiveFile = ""
	m.factMemory.FileAnalysis = nil
}

// extractFactsFromToolCalls updates fact memory from successful tool
// calls only — a failed call's arguments say nothing about what the user
// actually meant to compute.
func (m *Manager) extractFactsFromToolCalls(calls []models.CompletedCall) {
	for _, call := range calls {
		if !call.Success {
			continue
		}
		if v, ok := call.Arguments["vehicle_type"].(string); ok && v != "" {
			m.factMemory.RecentVehicle = v
		}
		if v, ok := call.Arguments["pollutant"].(string); ok && v != "" {
			m.rememberPollutant(v)
		}
		if list, ok := call.Arguments["pollutants"].([]any); ok {
			for _, item := range list {
				if v, ok := item.(string); ok {
					m.rememberPollutant(v)
				}
			}
		} else if list, ok := call.Arguments["pollutants"].([]string); ok {
			for _, v := range list {
				m.rememberPollutant(v)
			}
		}
		if v, ok := call.Arguments["model_year"].(int); ok {
			m.factMemory.RecentYear = v
		} else if v, ok := call.Arguments["model_year"].(float64); ok {
			m.factMemory.RecentYear = int(v)
		}
	}
}

func (m *Manager) rememberPollutant(pollutant string) {
	for _, existing := range m.factMemory.RecentPollutants {
		if existing == pollutant {
			return
		}
	}
	m.factMemory.RecentPollutants = append([]string{pollutant}, m.factMemory.RecentPollutants...)
	if len(m.factMemory.RecentPollutants) > 5 {
		m.factMemory.RecentPollutants = m.factMemory.RecentPollutants[:5]
	}
}

// detectCorrection flags a recent-vehicle correction when the user's
// message contains both a correction phrase and a known vehicle keyword —
// a deliberately simple heuristic, not an LLM-backed intent classifier.
func (m *Manager) detectCorrection(userMessage string) {
	hasCorrectionPhrase := false
	for _, phrase := range correctionPhrases {
		if strings.Contains(userMessage, phrase) {
			hasCorrectionPhrase = true
			break
		}
	}
	if !hasCorrectionPhrase {
		return
	}
	for _, kw := range correctionVehicleKeywords {
		if strings.Contains(userMessage, kw) {
			m.factMemory.RecentVehicle = kw
			if m.logger != nil {
				m.logger.Info("detected user correction", "session_id", m.sessionID, "vehicle", kw)
			}
			return
		}
	}
}

// compressOldMemory folds every turn beyond the most recent
// maxWorkingMemoryTurns into a one-line-per-tool-call summary, then
// drops them from working memory.
func (m *Manager) compressOldMemory() {
	cut := len(m.workingMemory) - maxWorkingMemoryTurns
	old := m.workingMemory[:cut]

	var lines []string
	for _, turn := range old {
		for _, call := range turn.ToolCalls {
			lines = append(lines, fmt.Sprintf("- Called %s with %v", call.Name, call.Arguments))
		}
	}
	m.compressedMemory = strings.Join(lines, "\n")
	m.workingMemory = m.workingMemory[cut:]
}

func (m *Manager) historyPath() string {
	return filepath.Join(m.dataDir, "history", m.sessionID+".json")
}

func (m *Manager) save() error {
	turns := m.workingMemory
	if len(turns) > persistedTurns {
		turns = turns[len(turns)-persistedTurns:]
	}
	data := persisted{
		SessionID:        m.sessionID,
		FactMemory:       cloneFactMemory(m.factMemory),
		CompressedMemory: m.compressedMemory,
		WorkingMemory:    turns,
	}

	path := m.historyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func (m *Manager) load() {
	raw, err := os.ReadFile(m.historyPath())
	if err != nil {
		return // no persisted memory yet — start empty, not an error
	}
	var data persisted
	if err := json.Unmarshal(raw, &data); err != nil {
		if m.logger != nil {
			m.logger.Warn("failed to parse persisted memory", "session_id", m.sessionID, "error", err)
		}
		return
	}
	m.factMemory = data.FactMemory
	m.compressedMemory = data.CompressedMemory
	m.workingMemory = data.WorkingMemory
}

func cloneFactMemory(f models.FactMemory) models.FactMemory {
	clone := f
	if f.RecentPollutants != nil {
		clone.RecentPollutants = append([]string(nil), f.RecentPollutants...)
	}
	if f.FileAnalysis != nil {
		clone.FileAnalysis = make(map[string]any, len(f.FileAnalysis))
		for k, v := range f.FileAnalysis {
			clone.FileAnalysis[k] = v
		}
	}
	if f.UserPreferences != nil {
		clone.UserPreferences = make(map[string]any, len(f.UserPreferences))
		for k, v := range f.UserPreferences {
			clone.UserPreferences[k] = v
		}
	}
	return clone
}
