// Package api exposes the HTTP/SSE surface over the orchestrator,
// repository, audit, and legal-reference components.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// errorBody is the wire contract for every error response: a flat
// {"error": string}, never the richer internal error detail.
type errorBody struct {
	Error string `json:"error"`
}

// WriteError writes the {"error": string} body at status.
func WriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "authentication required"
	}
	WriteError(w, http.StatusUnauthorized, detail)
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "method not supported for this endpoint")
}

// WriteConflict writes a 409 error response (used by the preservation-issue
// handler when the repository reports the request as not issued).
func WriteConflict(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusConflict, detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "rate limit exceeded, retry after the specified interval")
}

// WriteInternal writes a 500 response. err is logged server-side and never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "an unexpected error occurred")
}
