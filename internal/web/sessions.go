package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// apiSessionsList handles GET /api/sessions.
func (h *Handler) apiSessionsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	mgr := h.registry.Get(userID(r))
	list := mgr.ListSessions()

	out := make([]sessionInfo, 0, len(list))
	for _, s := range list {
		meta := s.Meta()
		out = append(out, sessionInfo{
			SessionID:    meta.SessionID,
			Title:        meta.Title,
			CreatedAt:    meta.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    meta.UpdatedAt.Format(time.RFC3339),
			MessageCount: meta.MessageCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// apiSessionsNew handles POST /api/sessions/new.
func (h *Handler) apiSessionsNew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := h.registry.Get(userID(r)).CreateSession()
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

// apiSessionDetail dispatches the remaining /api/sessions/{id}... routes:
// DELETE /api/sessions/{id}, PATCH /api/sessions/{id}/title, and
// GET /api/sessions/{id}/history.
func (h *Handler) apiSessionDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	sessionID := parts[0]
	if sessionID == "" {
		h.jsonError(w, "session id is required", http.StatusBadRequest)
		return
	}

	var sub string
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodDelete:
		h.registry.Get(userID(r)).DeleteSession(sessionID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case sub == "title" && r.Method == http.MethodPatch:
		h.apiSessionUpdateTitle(w, r, sessionID)
	case sub == "history" && r.Method == http.MethodGet:
		h.apiSessionHistory(w, r, sessionID)
	default:
		h.jsonError(w, "not found", http.StatusNotFound)
	}
}

type updateTitleRequest struct {
	Title string `json:"title"`
}

func (h *Handler) apiSessionUpdateTitle(w http.ResponseWriter, r *http.Request, sessionID string) {
	var payload updateTitleRequest
	code, err := decodeJSONRequest(w, r, &payload)
	if err != nil {
		h.jsonError(w, err.Error(), code)
		return
	}

	ok := h.registry.Get(userID(r)).SetSessionTitle(sessionID, payload.Title)
	if !ok {
		h.jsonError(w, "标题不能为空或会话不存在", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"session_id": sessionID,
		"title":      truncateRunesForResponse(strings.TrimSpace(payload.Title), 80),
	})
}

func (h *Handler) apiSessionHistory(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, ok := h.registry.Get(userID(r)).GetSession(sessionID)
	if !ok {
		h.jsonError(w, "Session not found", http.StatusNotFound)
		return
	}

	entries := session.History()
	messages := make([]historyMessage, 0, len(entries))
	for i, e := range entries {
		msg := historyMessage{
			Role:      e.Role,
			Content:   e.Content,
			DataType:  string(e.DataType),
			ChartData: e.ChartData,
			TableData: e.TableData,
			MessageID: e.MessageID,
			FileID:    e.FileID,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
		if e.Role == models.RoleAssistant {
			if msg.MessageID == "" {
				msg.MessageID = legacyMessageID(i)
			}
			msg.DownloadFile = backfillDownloadFile(e, sessionID, msg.MessageID, h.outputsDir)
			if msg.FileID == "" && msg.DownloadFile != nil {
				msg.FileID = sessionID
			}
		}
		messages = append(messages, msg)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
		"success":    true,
	})
}

func legacyMessageID(index int) string {
	return "legacy-" + strconv.Itoa(index)
}

// backfillDownloadFile reconstructs download metadata for history entries
// that predate a stored download_file but still carry a table_data.download
// block — matching original_source/api/routes.py's legacy back-fill.
func backfillDownloadFile(e models.HistoryEntry, sessionID, messageID, outputsDir string) map[string]any {
	if e.DownloadFile != nil {
		return normalizeDownloadFile(e.DownloadFile, sessionID, messageID)
	}
	td, ok := e.TableData["download"].(map[string]any)
	if !ok {
		return nil
	}
	filename, _ := td["filename"].(string)
	if filename == "" {
		return nil
	}
	return map[string]any{
		"filename":   filename,
		"path":       outputsDir + "/" + filename,
		"file_id":    sessionID,
		"message_id": messageID,
		"url":        "/api/file/download/message/" + sessionID + "/" + messageID,
	}
}

// decodeJSONRequest bounds and strictly decodes a JSON request body,
// matching the teacher's request-size guard and its 413-on-overflow
// mapping.
func decodeJSONRequest(w http.ResponseWriter, r *http.Request, dst any) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAPIRequestBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, err
		}
		return http.StatusBadRequest, err
	}
	return 0, nil
}

const maxAPIRequestBodyBytes int64 = 1 * 1024 * 1024

// truncateRunesForResponse mirrors SessionManager.SetSessionTitle's own
// hard cutoff, so the echoed title in the response matches what was
// actually persisted.
func truncateRunesForResponse(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
