package sessions

import (
	"log/slog"
	"path/filepath"
	"sync"
)

// SessionRegistry memoizes one SessionManager per user id, each rooted
// under its own storage directory so users' sessions never collide.
type SessionRegistry struct {
	mu       sync.Mutex
	managers map[string]*SessionManager

	sessionsRoot string
	newRouter    RouterFactory
	logger       *slog.Logger
}

// NewRegistry builds a SessionRegistry. sessionsRoot is the "sessions"
// directory under the configured data directory; each user gets
// sessionsRoot/{user_id} as their SessionManager's storage directory.
func NewRegistry(sessionsRoot string, newRouter RouterFactory, logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		managers:     make(map[string]*SessionManager),
		sessionsRoot: sessionsRoot,
		newRouter:    newRouter,
		logger:       logger,
	}
}

// Get returns the SessionManager for userID, creating it on first use.
func (r *SessionRegistry) Get(userID string) *SessionManager {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[userID]; ok {
		return m
	}

	storageDir := filepath.Join(r.sessionsRoot, userID)
	m := NewManager(storageDir, r.newRouter, r.logger)
	r.managers[userID] = m
	return m
}
