package llm

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// isConnectionError reports whether err belongs to the narrow class of
// failures that should trigger a proxy↔direct transport switch: connection
// refused, TLS/SSL handshake failures, read/connect timeouts, and
// "unexpected EOF". Every other error (auth, rate limit, bad request,
// server 5xx) is left alone — those are the caller's problem, not the
// transport's.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isConnectionError(urlErr.Err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"tls:",
		"ssl:",
		"handshake",
		"i/o timeout",
		"timeout",
		"unexpected eof",
		"no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
