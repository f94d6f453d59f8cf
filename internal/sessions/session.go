// Package sessions owns conversational state above the router: one
// Session per conversation (history, lazily-created router, turn
// serialization), a SessionManager that persists a user's sessions to
// disk, and a SessionRegistry that memoizes one manager per user (C10).
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/Kirito123l/emission-agent/internal/router"
	"github.com/Kirito123l/emission-agent/pkg/models"
)

// RouterFactory builds the Router for one session, closing over the
// process-wide assembler, executor, LLM client, and synthesis prompt, and
// constructing that session's own memory.Manager rooted at dataDir (the
// owning SessionManager's per-user storage directory, so two users'
// sessions never share a memory file even if they happen to pick the
// same session id). It exists so Session can create its router lazily,
// on first use, without reaching into any global state.
type RouterFactory func(sessionID, dataDir string) *router.Router

// Session is one conversation: its chat history, its lazily-created
// router, and the turn-ordering lock that keeps concurrent requests for
// the same session from interleaving.
type Session struct {
	mu sync.Mutex

	id             string
	title          string
	createdAt      time.Time
	updatedAt      time.Time
	messageCount   int
	lastResultFile string

	history   []models.HistoryEntry
	router    *router.Router
	dataDir   string
	newRouter RouterFactory
}

func newSession(id, dataDir string, newRouter RouterFactory) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		title:     "新对话",
		createdAt: now,
		updatedAt: now,
		dataDir:   dataDir,
		newRouter: newRouter,
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// LastResultFile returns the path of the most recent download-producing
// turn's result file, or "" if none yet.
func (s *Session) LastResultFile() string { return s.lastResultFile }

// Lock serializes an entire turn (chat, then SaveTurn) for this session.
// Callers must pair it with Unlock, typically via defer, so that a turn
// for session S fully commits before the next turn for S begins.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the turn lock acquired by Lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// getRouter lazily builds this session's router on first use. Callers
// must hold the turn lock.
func (s *Session) getRouter() *router.Router {
	if s.router == nil {
		s.router = s.newRouter(s.id, s.dataDir)
	}
	return s.router
}

// Chat runs one turn through this session's router. Callers must hold
// the turn lock (Lock/Unlock) for the duration of Chat and any following
// SaveTurn so the two commit as a unit.
func (s *Session) Chat(ctx context.Context, message string, filePath string) models.RouterResponse {
	return s.getRouter().Chat(ctx, message, filePath)
}

// SaveTurn appends one user entry and one assistant entry to history,
// assigning a fresh message id when the caller didn't supply one, and
// returns the id actually used.
func (s *Session) SaveTurn(userInput, assistantResponse string, chartData, tableData map[string]any, dataType models.DataType, fileID string, downloadFile *models.DownloadHandle, messageID string) string {
	if messageID == "" {
		messageID = newMessageID()
	}

	now := time.Now()
	s.history = append(s.history,
		models.HistoryEntry{Role: models.RoleUser, Content: userInput, CreatedAt: now},
		models.HistoryEntry{
			Role:         models.RoleAssistant,
			Content:      assistantResponse,
			MessageID:    messageID,
			DataType:     dataType,
			ChartData:    chartData,
			TableData:    tableData,
			DownloadFile: downloadFile,
			FileID:       fileID,
			CreatedAt:    now,
		},
	)

	if downloadFile != nil {
		s.lastResultFile = downloadFile.Path
	}
	s.messageCount++
	s.updatedAt = now
	return messageID
}

// History returns the full persisted history for this session.
func (s *Session) History() []models.HistoryEntry {
	return append([]models.HistoryEntry(nil), s.history...)
}

// meta returns the serializable metadata record for this session.
func (s *Session) meta() models.SessionMeta {
	return models.SessionMeta{
		SessionID:      s.id,
		Title:          s.title,
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
		MessageCount:   s.messageCount,
		LastResultFile: s.lastResultFile,
	}
}

// Meta exports meta for callers outside the package (the HTTP layer's
// session-list endpoint).
func (s *Session) Meta() models.SessionMeta { return s.meta() }
