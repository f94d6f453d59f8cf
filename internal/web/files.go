package web

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Kirito123l/emission-agent/internal/tools/fileanalyzer"
)

// previewRows is how many rows of the uploaded file are echoed back to the
// caller before they commit to sending it through chat.
const previewRows = 5

var (
	speedIndicators  = []string{"speed", "速度", "车速"}
	accelIndicators  = []string{"acc", "加速度"}
	gradeIndicators  = []string{"grade", "坡度"}
	lengthIndicators = []string{"length", "长度"}
)

// apiFilePreview handles POST /api/file/preview: a read-only peek at an
// uploaded spreadsheet's structure, without running it through the agent.
func (h *Handler) apiFilePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.jsonError(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	data, header, err := readUploadedFile(r)
	if err != nil {
		h.jsonError(w, "文件解析失败: "+err.Error(), http.StatusBadRequest)
		return
	}

	tmp, err := os.CreateTemp(h.tmpDir, "preview-*"+filepath.Ext(header.Filename))
	if err != nil {
		h.jsonError(w, "文件解析失败: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		h.jsonError(w, "文件解析失败: "+err.Error(), http.StatusBadRequest)
		return
	}
	tmp.Close()

	columns, rows, err := fileanalyzer.ReadTable(tmp.Name())
	if err != nil {
		h.jsonError(w, "文件解析失败: "+err.Error(), http.StatusBadRequest)
		return
	}

	detectedType, warnings := detectPreviewType(columns)

	sample := rows
	if len(sample) > previewRows {
		sample = sample[:previewRows]
	}

	writeJSON(w, http.StatusOK, filePreviewResponse{
		Filename:     header.Filename,
		SizeKB:       float64(len(data)) / 1024,
		RowsTotal:    len(rows),
		Columns:      columns,
		PreviewRows:  sample,
		DetectedType: detectedType,
		Warnings:     warnings,
	})
}

func detectPreviewType(columns []string) (string, []string) {
	lower := make([]string, len(columns))
	for i, c := range columns {
		lower[i] = strings.ToLower(c)
	}
	has := func(indicators []string) bool {
		for _, ind := range indicators {
			for _, c := range lower {
				if strings.Contains(c, ind) {
					return true
				}
			}
		}
		return false
	}

	switch {
	case has(speedIndicators):
		var warnings []string
		if !has(accelIndicators) {
			warnings = append(warnings, "未找到加速度列，将自动计算")
		}
		if !has(gradeIndicators) {
			warnings = append(warnings, "未找到坡度列，默认使用0%")
		}
		return "trajectory", warnings
	case has(lengthIndicators):
		return "links", nil
	default:
		return "unknown", []string{"无法识别文件类型"}
	}
}

// apiFileDownloadBySession handles GET /api/file/download/{file_id}: the
// last result file produced for that session (file_id is the session id).
func (h *Handler) apiFileDownloadBySession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := strings.TrimPrefix(r.URL.Path, "/api/file/download/")
	if sessionID == "" {
		h.jsonError(w, "file id is required", http.StatusBadRequest)
		return
	}

	mgr := h.registry.Get(userID(r))
	session, ok := mgr.GetSession(sessionID)
	if !ok {
		h.jsonError(w, "文件不存在", http.StatusNotFound)
		return
	}

	path := session.LastResultFile()
	if path == "" {
		h.jsonError(w, "文件不存在", http.StatusNotFound)
		return
	}

	filename := filepath.Base(path)
	h.serveOutputFile(w, r, path, filename)
}

// apiFileDownloadByMessage handles
// GET /api/file/download/message/{session_id}/{message_id}: the result
// file attached to one specific assistant message.
func (h *Handler) apiFileDownloadByMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/file/download/message/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		h.jsonError(w, "session id and message id are required", http.StatusBadRequest)
		return
	}
	sessionID, messageID := parts[0], parts[1]

	mgr := h.registry.Get(userID(r))
	session, ok := mgr.GetSession(sessionID)
	if !ok {
		h.jsonError(w, "会话不存在", http.StatusNotFound)
		return
	}

	for _, entry := range session.History() {
		if entry.MessageID != messageID {
			continue
		}
		if entry.DownloadFile == nil {
			break
		}
		filename := entry.DownloadFile.Filename
		path := entry.DownloadFile.Path
		if path == "" && filename != "" {
			path = filepath.Join(h.outputsDir, filename)
		}
		if filename == "" {
			filename = filepath.Base(path)
		}
		h.serveOutputFile(w, r, path, filename)
		return
	}
	h.jsonError(w, "文件不存在", http.StatusNotFound)
}

// apiDownloadByFilename handles GET /api/download/{filename}: a generic
// outputs-directory download, rejecting any path that would resolve
// outside the outputs directory.
func (h *Handler) apiDownloadByFilename(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	filename := strings.TrimPrefix(r.URL.Path, "/api/download/")
	if filename == "" {
		h.jsonError(w, "filename is required", http.StatusBadRequest)
		return
	}
	h.serveOutputFile(w, r, filepath.Join(h.outputsDir, filename), filename)
}

// serveOutputFile streams path to the client, enforcing that its resolved
// location is inside the outputs directory (PathSecurityError, HTTP 403
// per spec.md §7) before touching the filesystem.
func (h *Handler) serveOutputFile(w http.ResponseWriter, r *http.Request, path, filename string) {
	if path == "" {
		h.jsonError(w, "文件不存在", http.StatusNotFound)
		return
	}

	outputsAbs, err := filepath.Abs(h.outputsDir)
	if err != nil {
		h.jsonError(w, "文件不存在", http.StatusNotFound)
		return
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		h.jsonError(w, "Access denied", http.StatusForbidden)
		return
	}
	if !strings.HasPrefix(pathAbs, outputsAbs+string(filepath.Separator)) && pathAbs != outputsAbs {
		h.jsonError(w, "Access denied", http.StatusForbidden)
		return
	}

	info, err := os.Stat(pathAbs)
	if err != nil || info.IsDir() {
		h.jsonError(w, "文件不存在", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	http.ServeFile(w, r, pathAbs)
}
