// Package web exposes the conversation orchestrator over HTTP: chat
// (request/response and streaming), file preview, session management, and
// result-file download (C11). It holds no business logic of its own —
// every handler is a thin adapter over internal/sessions.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kirito123l/emission-agent/internal/observability"
	"github.com/Kirito123l/emission-agent/internal/sessions"
)

// defaultHeartbeatEvery is used when Config doesn't set one.
const defaultHeartbeatEvery = 15 * time.Second

// Config is everything the HTTP surface needs, gathered once at startup.
type Config struct {
	Registry       *sessions.SessionRegistry
	OutputsDir     string
	TmpDir         string
	CORSOrigins    []string
	HeartbeatEvery time.Duration
	Logger         *slog.Logger
	Metrics        *observability.Metrics
}

// Handler serves every endpoint in spec.md §4.11 off one mux.
type Handler struct {
	registry       *sessions.SessionRegistry
	outputsDir     string
	tmpDir         string
	cors           []string
	heartbeatEvery time.Duration
	logger         *slog.Logger
	metrics        *observability.Metrics
	mux            *http.ServeMux
}

// NewHandler builds a Handler and registers its routes.
func NewHandler(cfg Config) *Handler {
	heartbeat := cfg.HeartbeatEvery
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatEvery
	}
	h := &Handler{
		registry:       cfg.Registry,
		outputsDir:     cfg.OutputsDir,
		tmpDir:         cfg.TmpDir,
		cors:           cfg.CORSOrigins,
		heartbeatEvery: heartbeat,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		mux:            http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("/api/chat", h.apiChat)
	h.mux.HandleFunc("/api/chat/stream", h.apiChatStream)
	h.mux.HandleFunc("/api/file/preview", h.apiFilePreview)
	h.mux.HandleFunc("/api/file/download/message/", h.apiFileDownloadByMessage)
	h.mux.HandleFunc("/api/file/download/", h.apiFileDownloadBySession)
	h.mux.HandleFunc("/api/download/", h.apiDownloadByFilename)
	h.mux.HandleFunc("/api/sessions/new", h.apiSessionsNew)
	h.mux.HandleFunc("/api/sessions", h.apiSessionsList)
	h.mux.HandleFunc("/api/sessions/", h.apiSessionDetail)
	h.mux.Handle("/metrics", promhttp.Handler())
}

// ServeHTTP makes Handler an http.Handler directly.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Mount wraps the handler with the standard request-logging and CORS
// middleware chain.
func (h *Handler) Mount() http.Handler {
	var handler http.Handler = h
	if len(h.cors) > 0 {
		handler = CORSMiddleware(h.cors)(handler)
	}
	handler = MetricsMiddleware(h.metrics)(handler)
	handler = LoggingMiddleware(h.logger)(handler)
	return handler
}

// userID reads X-User-ID, falling back to "default" per spec.md §4.11.
func userID(r *http.Request) string {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		return "default"
	}
	return id
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}
