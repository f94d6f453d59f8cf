package sessions

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// titlePreviewRunes is how much of the first user message becomes the
// auto-generated session title.
const titlePreviewRunes = 20

// maxManualTitleRunes bounds a manually-set title.
const maxManualTitleRunes = 80

// SessionManager owns every session for one user, persisting metadata to
// sessions_meta.json and each session's history to history/{id}.json
// under its storage directory.
type SessionManager struct {
	mu sync.RWMutex

	sessions   map[string]*Session
	storageDir string
	historyDir string
	metaPath   string
	newRouter  RouterFactory
	logger     *slog.Logger
}

// NewManager builds a SessionManager rooted at storageDir, creating the
// directory tree if needed and loading any previously persisted sessions.
func NewManager(storageDir string, newRouter RouterFactory, logger *slog.Logger) *SessionManager {
	historyDir := filepath.Join(storageDir, "history")
	os.MkdirAll(historyDir, 0o755)

	m := &SessionManager{
		sessions:   make(map[string]*Session),
		storageDir: storageDir,
		historyDir: historyDir,
		metaPath:   filepath.Join(storageDir, "sessions_meta.json"),
		newRouter:  newRouter,
		logger:     logger,
	}
	m.loadFromDisk()
	return m
}

// CreateSession creates and persists a fresh session, returning its id.
func (m *SessionManager) CreateSession() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := newShortID()
	m.sessions[id] = newSession(id, m.storageDir, m.newRouter)
	m.saveToDisk()
	return id
}

// GetSession returns a session by id, or false if it doesn't exist.
func (m *SessionManager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetOrCreateSession returns the session for id if it exists, or creates
// one under that id (or a fresh id, if id is empty).
func (m *SessionManager) GetOrCreateSession(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if s, ok := m.sessions[id]; ok {
			return s
		}
	} else {
		id = newShortID()
	}

	s := newSession(id, m.storageDir, m.newRouter)
	m.sessions[id] = s
	m.saveToDisk()
	return s
}

// UpdateSessionTitle derives a session's title from its first user
// message once, the first time message_count reaches 1.
func (m *SessionManager) UpdateSessionTitle(id, firstMessage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.messageCount != 1 {
		return
	}
	s.title = truncateRunes(firstMessage, titlePreviewRunes)
	m.saveToDisk()
}

// SetSessionTitle manually overrides a session's title.
func (m *SessionManager) SetSessionTitle(id, title string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	clean := strings.TrimSpace(title)
	if clean == "" {
		return false
	}
	s.title = truncateRunesHard(clean, maxManualTitleRunes)
	s.updatedAt = time.Now()
	m.saveToDisk()
	return true
}

// ListSessions returns every session, most recently updated first.
func (m *SessionManager) ListSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].updatedAt.After(out[j].updatedAt) })
	return out
}

// DeleteSession removes a session and its persisted history file.
func (m *SessionManager) DeleteSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return
	}
	delete(m.sessions, id)
	os.Remove(filepath.Join(m.historyDir, id+".json"))
	m.saveToDisk()
}

// Save persists current session state. Callers that mutate a Session's
// history directly (via SaveTurn) must call Save afterward.
func (m *SessionManager) Save() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveToDisk()
}

func (m *SessionManager) loadFromDisk() {
	raw, err := os.ReadFile(m.metaPath)
	if err != nil {
		return // no persisted sessions yet — start empty, not an error
	}

	var metaList []models.SessionMeta
	if err := json.Unmarshal(raw, &metaList); err != nil {
		if m.logger != nil {
			m.logger.Warn("failed to parse sessions_meta.json, starting empty", "error", err)
		}
		return
	}

	for _, meta := range metaList {
		s := newSession(meta.SessionID, m.storageDir, m.newRouter)
		s.title = meta.Title
		if !meta.CreatedAt.IsZero() {
			s.createdAt = meta.CreatedAt
		}
		if !meta.UpdatedAt.IsZero() {
			s.updatedAt = meta.UpdatedAt
		}
		s.messageCount = meta.MessageCount
		s.lastResultFile = meta.LastResultFile

		historyPath := filepath.Join(m.historyDir, meta.SessionID+".json")
		if histRaw, err := os.ReadFile(historyPath); err == nil {
			var history []models.HistoryEntry
			if err := json.Unmarshal(histRaw, &history); err == nil {
				s.history = history
			} else if m.logger != nil {
				m.logger.Warn("failed to parse session history, starting empty", "session_id", meta.SessionID, "error", err)
			}
		}

		m.sessions[meta.SessionID] = s
	}

	if m.logger != nil {
		m.logger.Info("loaded sessions from disk", "count", len(m.sessions))
	}
}

func (m *SessionManager) saveToDisk() {
	metaList := make([]models.SessionMeta, 0, len(m.sessions))
	for _, s := range m.sessions {
		metaList = append(metaList, s.meta())
	}

	raw, err := json.MarshalIndent(metaList, "", "  ")
	if err != nil {
		if m.logger != nil {
			m.logger.Error("failed to marshal sessions_meta.json", "error", err)
		}
		return
	}
	if err := os.WriteFile(m.metaPath, raw, 0o644); err != nil {
		if m.logger != nil {
			m.logger.Error("failed to write sessions_meta.json", "error", err)
		}
		return
	}

	for _, s := range m.sessions {
		if len(s.history) == 0 {
			continue
		}
		histRaw, err := json.MarshalIndent(s.history, "", "  ")
		if err != nil {
			continue
		}
		path := filepath.Join(m.historyDir, s.id+".json")
		if err := os.WriteFile(path, histRaw, 0o644); err != nil && m.logger != nil {
			m.logger.Error("failed to write session history", "session_id", s.id, "error", err)
		}
	}
}

// truncateRunes shortens s to the first n runes, appending "..." when it
// had to cut anything — used for the auto-derived title.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// truncateRunesHard shortens s to the first n runes with no suffix — used
// for a manually-set title, matching the original's plain slice cutoff.
func truncateRunesHard(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
