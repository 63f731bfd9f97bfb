// Package recordclient is the credential service's typed HTTP client for
// the record store. It is constructed once at process start and injected
// into the services that need it.
package recordclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/relaychat/backend/config"
	"github.com/relaychat/backend/types"
)

// Client talks to the record store over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Client from the record store config section.
func New(cfg config.RecordStoreConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateUserInput is the payload for user creation. Password carries an
// already-computed hash.
type CreateUserInput struct {
	Email         string `json:"email"`
	Password      string `json:"password,omitempty"`
	Username      string `json:"username,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	GithubID      string `json:"githubId,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
	Role          string `json:"role,omitempty"`
}

// CreateSessionInput is the payload for session creation.
type CreateSessionInput struct {
	UserID    string     `json:"userId"`
	IPAddress string     `json:"ipAddress,omitempty"`
	UserAgent string     `json:"userAgent,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type createTokenInput struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateUser creates a user record. Fails with ErrConflict if the email or
// username is already taken.
func (c *Client) CreateUser(ctx context.Context, input CreateUserInput) (types.User, error) {
	var user types.User
	if err := c.do(ctx, http.MethodPost, "/users", input, &user); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// FindUserByEmail fetches a user by email with the password hash populated.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.UserWithSecret
	path := "/users/email/" + url.PathEscape(email)
	if err := c.do(ctx, http.MethodGet, path, nil, &user); err != nil {
		return types.User{}, err
	}
	return unwrapSecret(user), nil
}

// FindUserByID fetches a user by id without the password hash.
func (c *Client) FindUserByID(ctx context.Context, id string) (types.User, error) {
	var user types.User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &user); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// FindUserByIDWithHash fetches a user by id with the password hash populated.
func (c *Client) FindUserByIDWithHash(ctx context.Context, id string) (types.User, error) {
	var user types.UserWithSecret
	path := "/users/" + url.PathEscape(id) + "/credentials"
	if err := c.do(ctx, http.MethodGet, path, nil, &user); err != nil {
		return types.User{}, err
	}
	return unwrapSecret(user), nil
}

// FindUserByGithubID fetches a user by external GitHub identity.
func (c *Client) FindUserByGithubID(ctx context.Context, githubID string) (types.User, error) {
	var user types.User
	path := "/users/external/" + url.PathEscape(githubID)
	if err := c.do(ctx, http.MethodGet, path, nil, &user); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// UpdateUser applies a partial update to a user record.
func (c *Client) UpdateUser(ctx context.Context, id string, update types.UserUpdate) (types.User, error) {
	var user types.User
	if err := c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id), update, &user); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// DeleteUser hard-deletes a user record.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}

// CreateRefreshToken persists an issued refresh token.
func (c *Client) CreateRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) (types.RefreshToken, error) {
	input := createTokenInput{Token: token, UserID: userID, ExpiresAt: expiresAt}
	var created types.RefreshToken
	if err := c.do(ctx, http.MethodPost, "/refresh-tokens", input, &created); err != nil {
		return types.RefreshToken{}, err
	}
	return created, nil
}

// FindRefreshToken fetches a stored refresh token with its owning user.
func (c *Client) FindRefreshToken(ctx context.Context, token string) (types.RefreshToken, error) {
	var stored types.RefreshToken
	path := "/refresh-tokens/" + url.PathEscape(token)
	if err := c.do(ctx, http.MethodGet, path, nil, &stored); err != nil {
		return types.RefreshToken{}, err
	}
	return stored, nil
}

// DeleteRefreshToken removes one refresh token. Failures are swallowed:
// a missing token during cleanup must not surface as an error.
func (c *Client) DeleteRefreshToken(ctx context.Context, token string) {
	_ = c.do(ctx, http.MethodDelete, "/refresh-tokens/"+url.PathEscape(token), nil, nil)
}

// DeleteUserRefreshTokens removes all refresh tokens for a user.
// Failures are swallowed.
func (c *Client) DeleteUserRefreshTokens(ctx context.Context, userID string) {
	_ = c.do(ctx, http.MethodDelete, "/refresh-tokens/user/"+url.PathEscape(userID), nil, nil)
}

// CreatePasswordResetToken persists a password reset token.
func (c *Client) CreatePasswordResetToken(ctx context.Context, token, userID string, expiresAt time.Time) (types.PasswordResetToken, error) {
	input := createTokenInput{Token: token, UserID: userID, ExpiresAt: expiresAt}
	var created types.PasswordResetToken
	if err := c.do(ctx, http.MethodPost, "/password-reset-tokens", input, &created); err != nil {
		return types.PasswordResetToken{}, err
	}
	return created, nil
}

// FindPasswordResetToken fetches a stored reset token.
func (c *Client) FindPasswordResetToken(ctx context.Context, token string) (types.PasswordResetToken, error) {
	var stored types.PasswordResetToken
	path := "/password-reset-tokens/" + url.PathEscape(token)
	if err := c.do(ctx, http.MethodGet, path, nil, &stored); err != nil {
		return types.PasswordResetToken{}, err
	}
	return stored, nil
}

// DeletePasswordResetToken removes a reset token. Failures are swallowed.
func (c *Client) DeletePasswordResetToken(ctx context.Context, token string) {
	_ = c.do(ctx, http.MethodDelete, "/password-reset-tokens/"+url.PathEscape(token), nil, nil)
}

// CreateSession records a login session.
func (c *Client) CreateSession(ctx context.Context, input CreateSessionInput) (types.Session, error) {
	var session types.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", input, &session); err != nil {
		return types.Session{}, err
	}
	return session, nil
}

// DeleteUserSessions removes all sessions for a user. Failures are swallowed.
func (c *Client) DeleteUserSessions(ctx context.Context, userID string) {
	_ = c.do(ctx, http.MethodDelete, "/sessions/user/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Status: http.StatusInternalServerError, Message: "record store unreachable"}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	if payload.Error == "" {
		payload.Error = fmt.Sprintf("record store returned %d", resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: payload.Error}
}

func unwrapSecret(user types.UserWithSecret) types.User {
	result := user.User
	result.PasswordHash = user.Password
	return result
}
