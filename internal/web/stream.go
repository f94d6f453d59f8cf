package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Kirito123l/emission-agent/internal/sessions"
	"github.com/Kirito123l/emission-agent/pkg/models"
)

// streamChunkRunes is how many characters of the final reply are streamed
// per "text" event.
const streamChunkRunes = 20

// streamChunkDelay is the pacing pause between "text" events, for a
// typing-effect UX.
const streamChunkDelay = 50 * time.Millisecond

type streamEvent struct {
	Type         string         `json:"type"`
	Content      any            `json:"content,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	FileID       string         `json:"file_id,omitempty"`
	DownloadFile map[string]any `json:"download_file,omitempty"`
	MessageID    string         `json:"message_id,omitempty"`
}

// apiChatStream handles POST /api/chat/stream: the same turn as apiChat,
// reported as a newline-delimited JSON event stream with periodic
// heartbeats while the LLM call is in flight.
func (h *Handler) apiChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.jsonError(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	message := r.FormValue("message")
	if message == "" {
		h.jsonError(w, "message is required", http.StatusBadRequest)
		return
	}
	requestedSessionID := r.FormValue("session_id")
	uid := userID(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	emit := func(ev streamEvent) bool {
		if err := enc.Encode(ev); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	ctx := r.Context()
	if !emit(streamEvent{Type: "status", Content: "正在理解您的问题..."}) {
		return
	}

	mgr := h.registry.Get(uid)
	session := mgr.GetOrCreateSession(requestedSessionID)

	filePath := ""
	if _, _, err := r.FormFile("file"); err == nil {
		if !emit(streamEvent{Type: "status", Content: "正在处理上传的文件..."}) {
			return
		}
		var err error
		filePath, err = saveUploadedFile(r, h.tmpDir, session.ID()+"_input")
		if err != nil {
			emit(streamEvent{Type: "error", Content: "文件保存失败: " + err.Error()})
			return
		}
	}

	if !emit(streamEvent{Type: "status", Content: "正在分析任务..."}) {
		return
	}

	session.Lock()
	defer session.Unlock()

	done := make(chan models.RouterResponse, 1)
	go func() {
		done <- session.Chat(ctx, message, filePath)
	}()

	ticker := time.NewTicker(h.heartbeatEvery)
	defer ticker.Stop()

	var resp models.RouterResponse
waitLoop:
	for {
		select {
		case resp = <-done:
			break waitLoop
		case <-ticker.C:
			if !emit(streamEvent{Type: "heartbeat"}) {
				return
			}
		case <-ctx.Done():
			return
		}
	}

	messageID := sessions.NewMessageID()

	runes := []rune(resp.Text)
	for i := 0; i < len(runes); i += streamChunkRunes {
		end := i + streamChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		if !emit(streamEvent{Type: "text", Content: string(runes[i:end])}) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(streamChunkDelay):
		}
	}

	normalizedDownload := normalizeDownloadFile(resp.DownloadFile, session.ID(), messageID)

	if resp.ChartData != nil {
		if !emit(streamEvent{Type: "chart", Content: resp.ChartData}) {
			return
		}
	}

	tableData := resp.TableData
	if tableData != nil {
		tableData = attachDownloadToTableData(tableData, normalizedDownload)
		if !emit(streamEvent{Type: "table", Content: tableData}) {
			return
		}
	}

	dt := dataTypeOf(resp.ChartData, tableData)
	fileID := ""
	if normalizedDownload != nil {
		fileID = session.ID()
	}

	session.SaveTurn(message, resp.Text, resp.ChartData, tableData, dt, fileID, resp.DownloadFile, messageID)
	mgr.UpdateSessionTitle(session.ID(), message)
	mgr.Save()

	emit(streamEvent{
		Type:         "done",
		SessionID:    session.ID(),
		FileID:       fileID,
		DownloadFile: normalizedDownload,
		MessageID:    messageID,
	})
}
