package recordapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/relaychat/backend/internal/store"
	"github.com/relaychat/backend/types"
)

// SessionHandler exposes session records over HTTP.
type SessionHandler struct {
	repo *store.SessionRepository
}

func NewSessionHandler(repo *store.SessionRepository) *SessionHandler {
	return &SessionHandler{repo: repo}
}

// Routes registers session routes on the given router.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/user/{userID}", h.ListByUser)
	r.Delete("/{id}", h.Delete)
	r.Delete("/user/{userID}", h.DeleteByUser)
	r.Post("/cleanup", h.Cleanup)
}

// CreateSessionRequest is the body accepted by POST /sessions.
type CreateSessionRequest struct {
	UserID    string     `json:"userId"`
	IPAddress string     `json:"ipAddress"`
	UserAgent string     `json:"userAgent"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	session, err := h.repo.Create(r.Context(), types.Session{
		UserID:    req.UserID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *SessionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	sessions, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) DeleteByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.repo.DeleteByUser(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete sessions")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cleanup deletes all expired sessions.
func (h *SessionHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.repo.DeleteExpired(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clean sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
