package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/relaychat/backend/internal/mailer"
	"github.com/relaychat/backend/internal/recordclient"
	"github.com/relaychat/backend/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost       = 10
	resetTokenBytes  = 32
	resetTokenExpiry = time.Hour
)

// resetRequestMessage is returned for every reset request, found or not,
// so the endpoint cannot be used to probe which emails have accounts.
const resetRequestMessage = "If an account exists with this email, a password reset link will be sent"

// RecordStore is the set of record store operations the auth service
// consumes. Implemented by recordclient.Client; faked in tests.
type RecordStore interface {
	CreateUser(ctx context.Context, input recordclient.CreateUserInput) (types.User, error)
	FindUserByEmail(ctx context.Context, email string) (types.User, error)
	FindUserByID(ctx context.Context, id string) (types.User, error)
	FindUserByIDWithHash(ctx context.Context, id string) (types.User, error)
	FindUserByGithubID(ctx context.Context, githubID string) (types.User, error)
	UpdateUser(ctx context.Context, id string, update types.UserUpdate) (types.User, error)
	DeleteUser(ctx context.Context, id string) error
	CreateRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) (types.RefreshToken, error)
	FindRefreshToken(ctx context.Context, token string) (types.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string)
	DeleteUserRefreshTokens(ctx context.Context, userID string)
	CreatePasswordResetToken(ctx context.Context, token, userID string, expiresAt time.Time) (types.PasswordResetToken, error)
	FindPasswordResetToken(ctx context.Context, token string) (types.PasswordResetToken, error)
	DeletePasswordResetToken(ctx context.Context, token string)
	CreateSession(ctx context.Context, input recordclient.CreateSessionInput) (types.Session, error)
	DeleteUserSessions(ctx context.Context, userID string)
}

// AuthService orchestrates the account and token lifecycle against the
// record store.
type AuthService struct {
	store       RecordStore
	issuer      *TokenIssuer
	mailer      mailer.Mailer
	logger      *slog.Logger
	frontendURL string
	devMode     bool
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(store RecordStore, issuer *TokenIssuer, m mailer.Mailer, logger *slog.Logger, frontendURL string, devMode bool) *AuthService {
	return &AuthService{
		store:       store,
		issuer:      issuer,
		mailer:      m,
		logger:      logger,
		frontendURL: frontendURL,
		devMode:     devMode,
	}
}

// AuthResult is a user plus a freshly issued token pair. User never carries
// a password hash past this boundary.
type AuthResult struct {
	User types.User `json:"user"`
	TokenPair
}

type RegisterInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
	IPAddress string
	UserAgent string
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// OAuthProfile is a verified profile delivered by an external identity
// provider. GithubID and Email are required, the rest optional.
type OAuthProfile struct {
	GithubID  string
	Email     string
	Username  string
	FirstName string
	LastName  string
	Avatar    string
}

// MessageResult is the success payload for operations that only confirm.
type MessageResult struct {
	Message string `json:"message"`
}

// ResetRequestResult carries the uniform reset-request message; the link
// itself is only exposed in development.
type ResetRequestResult struct {
	Message   string `json:"message"`
	ResetLink string `json:"resetLink,omitempty"`
}

// Register creates an account and signs the user in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return AuthResult{}, Upstream(http.StatusInternalServerError, "failed to hash password")
	}

	user, err := s.store.CreateUser(ctx, recordclient.CreateUserInput{
		Email:     input.Email,
		Password:  string(hash),
		Username:  input.Username,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if err != nil {
		return AuthResult{}, storeError(err)
	}

	s.recordSession(ctx, user.ID, input.IPAddress, input.UserAgent)
	return s.signIn(ctx, user)
}

// Login verifies credentials and signs the user in. A missing user and a
// wrong password produce the same failure.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	user, err := s.ValidateCredentials(ctx, input.Email, input.Password)
	if err != nil {
		var authErr *Error
		if errors.As(err, &authErr) && authErr.Kind == KindNotFound {
			return AuthResult{}, Unauthorized("Invalid credentials")
		}
		return AuthResult{}, err
	}

	now := time.Now()
	if _, err := s.store.UpdateUser(ctx, user.ID, types.UserUpdate{LastLoginAt: &now}); err != nil {
		// Not critical, the login still counts.
		s.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	s.recordSession(ctx, user.ID, input.IPAddress, input.UserAgent)
	return s.signIn(ctx, user)
}

// ValidateCredentials decides whether an email/password pair authenticates
// a user, without issuing tokens. The returned user has no password hash.
func (s *AuthService) ValidateCredentials(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return types.User{}, storeError(err)
	}

	if user.Status != types.StatusActive {
		return types.User{}, Unauthorized("Account is not active")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, Unauthorized("Invalid credentials")
	}

	user.PasswordHash = ""
	return user, nil
}

// Refresh rotates a refresh token: the presented token is verified,
// deleted, and replaced with a fresh pair bound to the same user. Every
// failure collapses to the same generic rejection.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	invalid := Unauthorized("Invalid refresh token")

	if _, err := s.issuer.VerifyRefresh(refreshToken); err != nil {
		return AuthResult{}, invalid
	}

	stored, err := s.store.FindRefreshToken(ctx, refreshToken)
	if err != nil || stored.User == nil {
		return AuthResult{}, invalid
	}
	if stored.ExpiresAt.Before(time.Now()) {
		return AuthResult{}, invalid
	}

	// Rotation: the presented token is single-use.
	s.store.DeleteRefreshToken(ctx, refreshToken)

	result, err := s.signIn(ctx, *stored.User)
	if err != nil {
		return AuthResult{}, invalid
	}
	return result, nil
}

// Logout deletes every refresh token and session for the user. Idempotent.
func (s *AuthService) Logout(ctx context.Context, userID string) MessageResult {
	s.store.DeleteUserRefreshTokens(ctx, userID)
	s.store.DeleteUserSessions(ctx, userID)
	return MessageResult{Message: "Logout successful"}
}

// LogoutAll signs the user out everywhere. Alias of Logout.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) MessageResult {
	return s.Logout(ctx, userID)
}

// Profile returns the user record without the password hash.
func (s *AuthService) Profile(ctx context.Context, userID string) (types.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return types.User{}, storeError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateAvatar records a new avatar URL on the user's profile.
func (s *AuthService) UpdateAvatar(ctx context.Context, userID, avatarURL string) (types.User, error) {
	user, err := s.store.UpdateUser(ctx, userID, types.UserUpdate{Avatar: &avatarURL})
	if err != nil {
		return types.User{}, storeError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

// ChangePassword re-validates the current password, persists the new one
// and signs the user out everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (MessageResult, error) {
	user, err := s.store.FindUserByIDWithHash(ctx, userID)
	if err != nil {
		return MessageResult{}, storeError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return MessageResult{}, Unauthorized("Current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return MessageResult{}, Upstream(http.StatusInternalServerError, "failed to hash password")
	}
	newHash := string(hash)
	if _, err := s.store.UpdateUser(ctx, userID, types.UserUpdate{PasswordHash: &newHash}); err != nil {
		return MessageResult{}, storeError(err)
	}

	s.Logout(ctx, userID)
	return MessageResult{Message: "Password changed successfully. Please login again."}, nil
}

// DeleteAccount verifies the password and removes the user along with all
// refresh tokens and sessions. The cascade is not atomic; each step is
// idempotent and an orphaned row only fails future lookups.
func (s *AuthService) DeleteAccount(ctx context.Context, userID, password string) (MessageResult, error) {
	user, err := s.store.FindUserByIDWithHash(ctx, userID)
	if err != nil {
		return MessageResult{}, storeError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return MessageResult{}, Unauthorized("Password is incorrect")
	}

	s.store.DeleteUserRefreshTokens(ctx, userID)
	s.store.DeleteUserSessions(ctx, userID)
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return MessageResult{}, storeError(err)
	}

	return MessageResult{Message: "Account deleted successfully"}, nil
}

// OAuthUpsert resolves an external identity to a user: an existing link
// wins, then an account sharing the email is linked, then a new account is
// created with the provider-verified email.
func (s *AuthService) OAuthUpsert(ctx context.Context, profile OAuthProfile) (AuthResult, error) {
	user, err := s.resolveOAuthUser(ctx, profile)
	if err != nil {
		return AuthResult{}, err
	}
	if user.ID == "" {
		return AuthResult{}, Unauthorized("Failed to authenticate with GitHub")
	}

	s.recordSession(ctx, user.ID, "", "")
	return s.signIn(ctx, user)
}

func (s *AuthService) resolveOAuthUser(ctx context.Context, profile OAuthProfile) (types.User, error) {
	now := time.Now()

	existing, err := s.store.FindUserByGithubID(ctx, profile.GithubID)
	if err == nil {
		update := types.UserUpdate{LastLoginAt: &now}
		if profile.Avatar != "" {
			update.Avatar = &profile.Avatar
		}
		updated, err := s.store.UpdateUser(ctx, existing.ID, update)
		if err != nil {
			return types.User{}, storeError(err)
		}
		return updated, nil
	}
	if !errors.Is(err, recordclient.ErrNotFound) {
		return types.User{}, storeError(err)
	}

	byEmail, err := s.store.FindUserByEmail(ctx, profile.Email)
	if err == nil {
		// Link the external identity onto the existing account.
		update := types.UserUpdate{GithubID: &profile.GithubID, LastLoginAt: &now}
		if profile.Avatar != "" {
			update.Avatar = &profile.Avatar
		}
		linked, err := s.store.UpdateUser(ctx, byEmail.ID, update)
		if err != nil {
			return types.User{}, storeError(err)
		}
		return linked, nil
	}
	if !errors.Is(err, recordclient.ErrNotFound) {
		return types.User{}, storeError(err)
	}

	created, err := s.store.CreateUser(ctx, recordclient.CreateUserInput{
		Email:     profile.Email,
		GithubID:  profile.GithubID,
		Username:  profile.Username,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Avatar:    profile.Avatar,
		// The provider already verified this address.
		EmailVerified: true,
	})
	if err != nil {
		return types.User{}, storeError(err)
	}
	return created, nil
}

// RequestPasswordReset issues a one-hour reset token and queues the reset
// link for delivery. The response never reveals whether the email exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) ResetRequestResult {
	generic := ResetRequestResult{Message: resetRequestMessage}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return generic
	}

	token, err := newResetToken()
	if err != nil {
		return generic
	}

	expiresAt := time.Now().Add(resetTokenExpiry)
	if _, err := s.store.CreatePasswordResetToken(ctx, token, user.ID, expiresAt); err != nil {
		return generic
	}

	link := s.frontendURL + "/auth/reset-password?token=" + token
	if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
		s.logger.WarnContext(ctx, "failed to deliver password reset link", slog.Any("error", err))
	}

	if s.devMode {
		generic.ResetLink = link
	}
	return generic
}

// ResetPassword consumes a reset token: the new password is persisted, the
// token deleted, and every live session invalidated.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (MessageResult, error) {
	stored, err := s.store.FindPasswordResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, recordclient.ErrNotFound) {
			return MessageResult{}, Unauthorized("Invalid or expired reset token")
		}
		return MessageResult{}, storeError(err)
	}

	if time.Now().After(stored.ExpiresAt) {
		return MessageResult{}, Unauthorized("Reset token has expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return MessageResult{}, Upstream(http.StatusInternalServerError, "failed to hash password")
	}
	newHash := string(hash)
	if _, err := s.store.UpdateUser(ctx, stored.UserID, types.UserUpdate{PasswordHash: &newHash}); err != nil {
		return MessageResult{}, storeError(err)
	}

	s.store.DeletePasswordResetToken(ctx, token)
	s.store.DeleteUserRefreshTokens(ctx, stored.UserID)
	s.store.DeleteUserSessions(ctx, stored.UserID)

	return MessageResult{Message: "Password reset successfully. Please login with your new password."}, nil
}

// signIn issues a token pair for the user and strips the hash.
func (s *AuthService) signIn(ctx context.Context, user types.User) (AuthResult, error) {
	tokens, err := s.issuer.Issue(ctx, user.ID, user.Email, user.Role)
	if err != nil {
		return AuthResult{}, err
	}
	user.PasswordHash = ""
	return AuthResult{User: user, TokenPair: tokens}, nil
}

// recordSession notes login activity. Best effort, a failed session write
// never blocks authentication.
func (s *AuthService) recordSession(ctx context.Context, userID, ipAddress, userAgent string) {
	_, err := s.store.CreateSession(ctx, recordclient.CreateSessionInput{
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record session", slog.Any("error", err))
	}
}

func newResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
