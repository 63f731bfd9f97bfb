package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaychat/backend/internal/recordclient"
	"github.com/relaychat/backend/types"
)

// fakeRecordStore is an in-memory RecordStore mirroring the record store's
// observable behavior, including its error shapes.
type fakeRecordStore struct {
	mu            sync.Mutex
	users         map[string]types.User
	refreshTokens map[string]types.RefreshToken
	resetTokens   map[string]types.PasswordResetToken
	sessions      map[string]types.Session
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		users:         make(map[string]types.User),
		refreshTokens: make(map[string]types.RefreshToken),
		resetTokens:   make(map[string]types.PasswordResetToken),
		sessions:      make(map[string]types.Session),
	}
}

func notFound(what string) error {
	return &recordclient.APIError{Status: http.StatusNotFound, Message: what + " not found"}
}

func (f *fakeRecordStore) CreateUser(ctx context.Context, input recordclient.CreateUserInput) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == input.Email {
			return types.User{}, &recordclient.APIError{
				Status:  http.StatusConflict,
				Message: "User with this email already exists",
			}
		}
	}

	role := input.Role
	if role == "" {
		role = types.RoleUser
	}
	now := time.Now()
	user := types.User{
		ID:            uuid.New().String(),
		Email:         input.Email,
		Username:      input.Username,
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		Avatar:        input.Avatar,
		GithubID:      input.GithubID,
		Role:          role,
		Status:        types.StatusActive,
		EmailVerified: input.EmailVerified,
		PasswordHash:  input.Password,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeRecordStore) FindUserByEmail(ctx context.Context, email string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, notFound("user")
}

func (f *fakeRecordStore) FindUserByID(ctx context.Context, id string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, notFound("user")
	}
	user.PasswordHash = ""
	return user, nil
}

func (f *fakeRecordStore) FindUserByIDWithHash(ctx context.Context, id string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, notFound("user")
	}
	return user, nil
}

func (f *fakeRecordStore) FindUserByGithubID(ctx context.Context, githubID string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.GithubID != "" && u.GithubID == githubID {
			return u, nil
		}
	}
	return types.User{}, notFound("user")
}

func (f *fakeRecordStore) UpdateUser(ctx context.Context, id string, update types.UserUpdate) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, notFound("user")
	}
	if update.Username != nil {
		user.Username = *update.Username
	}
	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}
	if update.Avatar != nil {
		user.Avatar = *update.Avatar
	}
	if update.GithubID != nil {
		user.GithubID = *update.GithubID
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.Status != nil {
		user.Status = *update.Status
	}
	if update.EmailVerified != nil {
		user.EmailVerified = *update.EmailVerified
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	if update.LastLoginAt != nil {
		user.LastLoginAt = update.LastLoginAt
	}
	user.UpdatedAt = time.Now()
	f.users[id] = user
	return user, nil
}

func (f *fakeRecordStore) DeleteUser(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return notFound("user")
	}
	delete(f.users, id)
	return nil
}

func (f *fakeRecordStore) CreateRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) (types.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := types.RefreshToken{
		ID:        uuid.New().String(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	f.refreshTokens[token] = stored
	return stored, nil
}

func (f *fakeRecordStore) FindRefreshToken(ctx context.Context, token string) (types.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.refreshTokens[token]
	if !ok {
		return types.RefreshToken{}, notFound("refresh token")
	}
	user, ok := f.users[stored.UserID]
	if !ok {
		return types.RefreshToken{}, notFound("refresh token")
	}
	stored.User = &user
	return stored, nil
}

func (f *fakeRecordStore) DeleteRefreshToken(ctx context.Context, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refreshTokens, token)
}

func (f *fakeRecordStore) DeleteUserRefreshTokens(ctx context.Context, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, stored := range f.refreshTokens {
		if stored.UserID == userID {
			delete(f.refreshTokens, token)
		}
	}
}

func (f *fakeRecordStore) CreatePasswordResetToken(ctx context.Context, token, userID string, expiresAt time.Time) (types.PasswordResetToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := types.PasswordResetToken{
		ID:        uuid.New().String(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	f.resetTokens[token] = stored
	return stored, nil
}

func (f *fakeRecordStore) FindPasswordResetToken(ctx context.Context, token string) (types.PasswordResetToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.resetTokens[token]
	if !ok {
		return types.PasswordResetToken{}, notFound("password reset token")
	}
	return stored, nil
}

func (f *fakeRecordStore) DeletePasswordResetToken(ctx context.Context, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resetTokens, token)
}

func (f *fakeRecordStore) CreateSession(ctx context.Context, input recordclient.CreateSessionInput) (types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := types.Session{
		ID:        uuid.New().String(),
		UserID:    input.UserID,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		CreatedAt: time.Now(),
	}
	f.sessions[session.ID] = session
	return session, nil
}

func (f *fakeRecordStore) DeleteUserSessions(ctx context.Context, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, session := range f.sessions {
		if session.UserID == userID {
			delete(f.sessions, id)
		}
	}
}

func (f *fakeRecordStore) refreshTokenCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, stored := range f.refreshTokens {
		if stored.UserID == userID {
			count++
		}
	}
	return count
}

func (f *fakeRecordStore) sessionCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, session := range f.sessions {
		if session.UserID == userID {
			count++
		}
	}
	return count
}

func (f *fakeRecordStore) expireRefreshToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.refreshTokens[token]
	if !ok {
		return fmt.Errorf("no such refresh token")
	}
	stored.ExpiresAt = time.Now().Add(-time.Minute)
	f.refreshTokens[token] = stored
	return nil
}

func (f *fakeRecordStore) expireResetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.resetTokens[token]
	if !ok {
		return fmt.Errorf("no such reset token")
	}
	stored.ExpiresAt = time.Now().Add(-time.Minute)
	f.resetTokens[token] = stored
	return nil
}
