package web

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// friendlyError maps the narrow class of connection-layer signals the LLM
// client and retriever can raise to one actionable message, and otherwise
// returns a generic apology prefixed the same way the router's own fixed
// messages are.
func friendlyError(err error) string {
	if err == nil {
		return ""
	}
	if isConnectionLikeError(err.Error()) {
		return "上游大模型连接失败（网络/代理异常）。请稍后重试。\n" +
			"若问题持续：请检查 HTTP(S)_PROXY 配置、代理服务连通性，或暂时关闭代理后重试。"
	}
	return "处理出错: " + err.Error()
}

// isConnectionLikeError matches the error text against a list of signal
// words that overlaps, but is not identical to, the one the LLM transport's
// isConnectionError uses; unlike that classifier it does not inspect error
// types.
func isConnectionLikeError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{
		"connection error",
		"connecterror",
		"connection refused",
		"connection reset",
		"unexpected eof",
		"ssl",
		"tls",
		"handshake",
		"timed out",
		"timeout",
		"no such host",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
