package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
)

// ──────────────────────────────────────────────────
// Request helpers
// ──────────────────────────────────────────────────

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// ──────────────────────────────────────────────────
// Response helpers
// ──────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrAgentNotFound),
		errors.Is(err, dispatch.ErrJobNotFound),
		errors.Is(err, dispatch.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrInvalidState),
		errors.Is(err, dispatch.ErrJobNotDue):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrJobAlreadyExists),
		errors.Is(err, dispatch.ErrAlertAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
