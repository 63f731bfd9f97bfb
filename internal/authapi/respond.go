package authapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/relaychat/backend/internal/services"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeAuthError maps service errors onto HTTP statuses. Anything that is
// not a *services.Error is an internal failure and stays opaque.
func writeAuthError(w http.ResponseWriter, err error) {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		writeError(w, svcErr.HTTPStatus(), svcErr.Message)
		return
	}
	slog.Error("unhandled service error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
