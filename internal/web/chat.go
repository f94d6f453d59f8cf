package web

import (
	"net/http"

	"github.com/Kirito123l/emission-agent/internal/sessions"
	"github.com/Kirito123l/emission-agent/pkg/models"
)

// apiChat handles POST /api/chat: one request/response turn.
func (h *Handler) apiChat(w http.ResponseWriter, r *http.Request) {
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

	mgr := h.registry.Get(uid)
	session := mgr.GetOrCreateSession(requestedSessionID)

	filePath, err := saveUploadedFile(r, h.tmpDir, session.ID()+"_input")
	if err != nil {
		writeJSON(w, http.StatusOK, chatResponse{
			SessionID: session.ID(),
			Success:   false,
			Error:     "文件保存失败: " + err.Error(),
		})
		return
	}

	session.Lock()
	defer session.Unlock()

	resp := session.Chat(r.Context(), message, filePath)
	messageID := sessions.NewMessageID()

	normalizedDownload := normalizeDownloadFile(resp.DownloadFile, session.ID(), messageID)
	tableData := attachDownloadToTableData(resp.TableData, normalizedDownload)
	dt := dataTypeOf(resp.ChartData, tableData)

	fileID := ""
	if normalizedDownload != nil {
		fileID = session.ID()
	}

	session.SaveTurn(message, resp.Text, resp.ChartData, tableData, dt, fileID, resp.DownloadFile, messageID)
	mgr.UpdateSessionTitle(session.ID(), message)
	mgr.Save()

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:        resp.Text,
		SessionID:    session.ID(),
		DataType:     string(dt),
		ChartData:    resp.ChartData,
		TableData:    tableData,
		FileID:       fileID,
		DownloadFile: normalizedDownload,
		MessageID:    messageID,
		Success:      true,
	})
}

// dataTypeOf picks chart over table over plain text, matching the
// router's own extraction priority.
func dataTypeOf(chartData, tableData map[string]any) models.DataType {
	switch {
	case chartData != nil:
		return models.DataTypeChart
	case tableData != nil:
		return models.DataTypeTable
	default:
		return models.DataTypeText
	}
}
