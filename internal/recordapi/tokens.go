package recordapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/relaychat/backend/internal/store"
	"github.com/relaychat/backend/types"
)

// RefreshTokenHandler exposes refresh token records over HTTP.
type RefreshTokenHandler struct {
	repo *store.RefreshTokenRepository
}

func NewRefreshTokenHandler(repo *store.RefreshTokenRepository) *RefreshTokenHandler {
	return &RefreshTokenHandler{repo: repo}
}

// Routes registers refresh token routes on the given router.
func (h *RefreshTokenHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{token}", h.GetByToken)
	r.Delete("/{token}", h.DeleteByToken)
	r.Delete("/user/{userID}", h.DeleteByUser)
	r.Post("/cleanup", h.Cleanup)
}

// CreateTokenRequest is the body accepted by the token creation endpoints.
type CreateTokenRequest struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *RefreshTokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "token and userId are required")
		return
	}

	token, err := h.repo.Create(r.Context(), types.RefreshToken{
		Token:     req.Token,
		UserID:    req.UserID,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeStoreError(w, err, "Refresh token not found")
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// GetByToken returns the refresh token row with the owning user embedded,
// including the user's password hash field under "user".
func (h *RefreshTokenHandler) GetByToken(w http.ResponseWriter, r *http.Request) {
	tokenValue := chi.URLParam(r, "token")
	token, err := h.repo.GetByToken(r.Context(), tokenValue)
	if err != nil {
		writeStoreError(w, err, "Refresh token not found")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *RefreshTokenHandler) DeleteByToken(w http.ResponseWriter, r *http.Request) {
	tokenValue := chi.URLParam(r, "token")
	if err := h.repo.DeleteByToken(r.Context(), tokenValue); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete refresh token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RefreshTokenHandler) DeleteByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.repo.DeleteByUser(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete refresh tokens")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cleanup deletes all expired refresh tokens.
func (h *RefreshTokenHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.repo.DeleteExpired(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clean refresh tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// PasswordResetTokenHandler exposes password reset token records over HTTP.
type PasswordResetTokenHandler struct {
	repo *store.PasswordResetTokenRepository
}

func NewPasswordResetTokenHandler(repo *store.PasswordResetTokenRepository) *PasswordResetTokenHandler {
	return &PasswordResetTokenHandler{repo: repo}
}

// Routes registers password reset token routes on the given router.
func (h *PasswordResetTokenHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{token}", h.GetByToken)
	r.Delete("/{token}", h.DeleteByToken)
	r.Post("/cleanup", h.Cleanup)
}

func (h *PasswordResetTokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "token and userId are required")
		return
	}

	token, err := h.repo.Create(r.Context(), types.PasswordResetToken{
		Token:     req.Token,
		UserID:    req.UserID,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeStoreError(w, err, "Password reset token not found")
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func (h *PasswordResetTokenHandler) GetByToken(w http.ResponseWriter, r *http.Request) {
	tokenValue := chi.URLParam(r, "token")
	token, err := h.repo.GetByToken(r.Context(), tokenValue)
	if err != nil {
		writeStoreError(w, err, "Password reset token not found")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *PasswordResetTokenHandler) DeleteByToken(w http.ResponseWriter, r *http.Request) {
	tokenValue := chi.URLParam(r, "token")
	if err := h.repo.DeleteByToken(r.Context(), tokenValue); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete reset token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cleanup deletes all expired password reset tokens.
func (h *PasswordResetTokenHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.repo.DeleteExpired(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clean reset tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
