package web

import "github.com/Kirito123l/emission-agent/pkg/models"

// chatResponse is the JSON body for both POST /api/chat and the terminal
// "done" event of POST /api/chat/stream.
type chatResponse struct {
	Reply        string         `json:"reply"`
	SessionID    string         `json:"session_id"`
	DataType     string         `json:"data_type,omitempty"`
	ChartData    map[string]any `json:"chart_data,omitempty"`
	TableData    map[string]any `json:"table_data,omitempty"`
	FileID       string         `json:"file_id,omitempty"`
	DownloadFile map[string]any `json:"download_file,omitempty"`
	MessageID    string         `json:"message_id,omitempty"`
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
}

// filePreviewResponse is the body of POST /api/file/preview.
type filePreviewResponse struct {
	Filename     string           `json:"filename"`
	SizeKB       float64          `json:"size_kb"`
	RowsTotal    int              `json:"rows_total"`
	Columns      []string         `json:"columns"`
	PreviewRows  []map[string]any `json:"preview_rows"`
	DetectedType string           `json:"detected_type"`
	Warnings     []string         `json:"warnings"`
}

// sessionInfo is one entry of GET /api/sessions.
type sessionInfo struct {
	SessionID    string `json:"session_id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	MessageCount int    `json:"message_count"`
}

// historyMessage is one entry of GET /api/sessions/{id}/history, the
// outward-facing shape of models.HistoryEntry with legacy back-fill
// applied for assistant entries missing message_id/download_file.
type historyMessage struct {
	Role         models.Role    `json:"role"`
	Content      string         `json:"content"`
	DataType     string         `json:"data_type,omitempty"`
	ChartData    map[string]any `json:"chart_data,omitempty"`
	TableData    map[string]any `json:"table_data,omitempty"`
	MessageID    string         `json:"message_id,omitempty"`
	FileID       string         `json:"file_id,omitempty"`
	DownloadFile map[string]any `json:"download_file,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

// normalizeDownloadFile turns a router-produced DownloadHandle into the
// richer, frontend-facing shape: a stable file_id (the session id, since
// the last-result-file download route is keyed by session) and a ready-to-
// use url, preferring the message-scoped route when a message id is known.
func normalizeDownloadFile(h *models.DownloadHandle, sessionID, messageID string) map[string]any {
	if h == nil || (h.Path == "" && h.Filename == "") {
		return nil
	}
	filename := h.Filename
	if filename == "" {
		filename = h.Path
	}
	out := map[string]any{
		"path":     h.Path,
		"filename": filename,
		"file_id":  sessionID,
	}
	if messageID != "" {
		out["message_id"] = messageID
		out["url"] = "/api/file/download/message/" + sessionID + "/" + messageID
	} else if filename != "" {
		out["url"] = "/api/download/" + filename
	}
	return out
}

// attachDownloadToTableData embeds the normalized download handle into
// table_data.download (and file_id, if table_data doesn't already carry
// one) so history rendering keeps a download button even when the turn's
// primary payload is a table.
func attachDownloadToTableData(tableData map[string]any, download map[string]any) map[string]any {
	if tableData == nil || download == nil {
		return tableData
	}
	enriched := make(map[string]any, len(tableData)+1)
	for k, v := range tableData {
		enriched[k] = v
	}
	if _, ok := enriched["download"]; !ok {
		url, _ := download["url"].(string)
		filename, _ := download["filename"].(string)
		if url != "" && filename != "" {
			enriched["download"] = map[string]any{"url": url, "filename": filename}
		}
	}
	if _, ok := enriched["file_id"]; !ok {
		if fid, ok := download["file_id"]; ok {
			enriched["file_id"] = fid
		}
	}
	return enriched
}
