package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// ErrorResponse is the JSON body for all error statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// storageError maps a database failure to a response: transient connectivity
// problems surface as 503 so clients retry, everything else as 500. The
// transaction has already been rolled back by the caller's deferred Rollback.
func storageError(w http.ResponseWriter, log *slog.Logger, err error) {
	log.Error("storage error", "error", err)
	if isTransient(err) {
		writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

// isTransient reports whether the error is likely a connectivity or timeout
// problem worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	s := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"broken pipe",
		"i/o timeout",
		"no such host",
		"dial tcp",
		"statement timeout",
		"too many clients",
	} {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}
