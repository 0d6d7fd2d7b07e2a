// Package httpapi is the thin admin HTTP surface: enqueue a job, list jobs,
// inspect queue stats, trigger a manual batch, and the internal
// authenticated process-now endpoint (SPEC_FULL.md §6). Grounded on
// wisbric-nightowl's internal/httpserver package for the chi-plus-JSON-envelope
// shape; the teacher's own internal/context.go is a session/HTMX web-app
// abstraction (cookies, i18n, templ rendering) that doesn't fit a backend
// job processor's admin API, so this package talks to net/http directly
// instead of wrapping the teacher's Context type.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("httpapi: encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, errCode, message string) {
	Respond(w, status, ErrorResponse{Error: errCode, Message: message})
}
