package recordapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/relaychat/backend/internal/store"
	"github.com/relaychat/backend/types"
)

const (
	defaultListTake = 10
	maxListTake     = 100
)

// UserHandler exposes user records over HTTP.
type UserHandler struct {
	repo *store.UserRepository
}

func NewUserHandler(repo *store.UserRepository) *UserHandler {
	return &UserHandler{repo: repo}
}

// Routes registers user routes on the given router.
func (h *UserHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/email/{email}", h.GetByEmail)
	r.Get("/external/{githubID}", h.GetByGithubID)
	r.Get("/{id}", h.GetByID)
	r.Get("/{id}/credentials", h.GetCredentials)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// CreateUserRequest is the body accepted by POST /users. Password carries
// an already-hashed value; the record store never sees plaintext.
type CreateUserRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Username      string `json:"username"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	GithubID      string `json:"githubId"`
	Avatar        string `json:"avatar"`
	EmailVerified bool   `json:"emailVerified"`
	Role          string `json:"role"`
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if _, err := h.repo.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "User with this email already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to check email")
		return
	}

	user, err := h.repo.Create(r.Context(), types.User{
		Email:         req.Email,
		PasswordHash:  req.Password,
		Username:      strings.TrimSpace(req.Username),
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		GithubID:      req.GithubID,
		Avatar:        req.Avatar,
		EmailVerified: req.EmailVerified,
		Role:          req.Role,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "User with this email or username already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	take := queryInt(r, "take", defaultListTake)
	if take < 1 || take > maxListTake {
		take = defaultListTake
	}
	if skip < 0 {
		skip = 0
	}

	list, err := h.repo.List(r.Context(), skip, take)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetByEmail returns the user with the password hash included; the
// credential service needs it to verify logins.
func (h *UserHandler) GetByEmail(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	user, err := h.repo.GetByEmail(r.Context(), email)
	if err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, withSecret(user))
}

func (h *UserHandler) GetByGithubID(w http.ResponseWriter, r *http.Request) {
	githubID := chi.URLParam(r, "githubID")
	user, err := h.repo.GetByGithubID(r.Context(), githubID)
	if err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetCredentials returns the user with the password hash included.
func (h *UserHandler) GetCredentials(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, withSecret(user))
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var update types.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.repo.Update(r.Context(), id, update)
	if err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func withSecret(user types.User) types.UserWithSecret {
	return types.UserWithSecret{User: user, Password: user.PasswordHash}
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
