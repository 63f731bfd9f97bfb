//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/relaychat/backend/config"
	"github.com/relaychat/backend/internal/authapi"
	"github.com/relaychat/backend/internal/db"
	"github.com/relaychat/backend/internal/recordapi"
)

const (
	authPort    = 13001
	recordsPort = 13002
)

var (
	authBaseURL    = fmt.Sprintf("http://localhost:%d", authPort)
	recordsBaseURL = fmt.Sprintf("http://localhost:%d", recordsPort)
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	setServiceEnv()

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	records, auth, err := startServers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start servers: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	for _, endpoint := range []string{recordsBaseURL + "/healthz", authBaseURL + "/healthz"} {
		if err := waitForHealth(ctx, endpoint); err != nil {
			fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
			_ = records.Shutdown()
			_ = auth.Shutdown()
			_ = dockerCompose(context.Background(), root, "down")
			os.Exit(1)
		}
	}

	code := m.Run()

	_ = records.Shutdown()
	_ = auth.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

type userListResponse struct {
	Users []userResponse `json:"users"`
	Total int            `json:"total"`
}

type refreshTokenResponse struct {
	Token  string        `json:"token"`
	UserID string        `json:"userId"`
	User   *userResponse `json:"user"`
}

type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func TestUserLifecycle(t *testing.T) {
	email := fmt.Sprintf("lifecycle_%d@example.com", time.Now().UnixNano())

	created := postJSON(t, recordsBaseURL+"/users", map[string]any{
		"email":    email,
		"password": "$2a$10$notarealhashbutitdoesnotmatter",
		"username": fmt.Sprintf("lifecycle_%d", time.Now().UnixNano()),
	}, http.StatusCreated)
	var user userResponse
	decodeInto(t, created, &user)
	if user.ID == "" {
		t.Fatalf("expected created user to have an id")
	}
	if user.Role != "USER" || user.Status != "ACTIVE" {
		t.Fatalf("unexpected defaults: role=%q status=%q", user.Role, user.Status)
	}
	if user.Password != "" {
		t.Fatalf("create response must not carry the password hash")
	}

	// A second create with the same email conflicts.
	conflict := postJSON(t, recordsBaseURL+"/users", map[string]any{
		"email":    email,
		"password": "$2a$10$anotherhash",
	}, http.StatusConflict)
	var conflictBody messageResponse
	decodeInto(t, conflict, &conflictBody)
	if !strings.Contains(conflictBody.Error, "already exists") {
		t.Fatalf("unexpected conflict message: %q", conflictBody.Error)
	}

	// The email lookup carries the hash, the id lookup does not.
	var byEmail userResponse
	decodeInto(t, getJSON(t, recordsBaseURL+"/users/email/"+email, http.StatusOK), &byEmail)
	if byEmail.Password == "" {
		t.Fatalf("email lookup must embed the password hash")
	}
	var byID userResponse
	decodeInto(t, getJSON(t, recordsBaseURL+"/users/"+user.ID, http.StatusOK), &byID)
	if byID.Password != "" {
		t.Fatalf("id lookup must not embed the password hash")
	}
	var credentials userResponse
	decodeInto(t, getJSON(t, recordsBaseURL+"/users/"+user.ID+"/credentials", http.StatusOK), &credentials)
	if credentials.Password == "" {
		t.Fatalf("credentials lookup must embed the password hash")
	}

	// Partial update touches only the named field.
	patched := patchJSON(t, recordsBaseURL+"/users/"+user.ID, map[string]any{
		"firstName": "Updated",
	}, http.StatusOK)
	var afterPatch userResponse
	decodeInto(t, patched, &afterPatch)
	if afterPatch.Email != email {
		t.Fatalf("patch must not change the email: %q", afterPatch.Email)
	}

	var list userListResponse
	decodeInto(t, getJSON(t, recordsBaseURL+"/users?skip=0&take=100", http.StatusOK), &list)
	if list.Total < 1 {
		t.Fatalf("expected at least one user in the listing")
	}

	doRequest(t, http.MethodDelete, recordsBaseURL+"/users/"+user.ID, nil, http.StatusNoContent)
	getJSON(t, recordsBaseURL+"/users/"+user.ID, http.StatusNotFound)
}

func TestRefreshTokenCascade(t *testing.T) {
	email := fmt.Sprintf("cascade_%d@example.com", time.Now().UnixNano())

	var user userResponse
	decodeInto(t, postJSON(t, recordsBaseURL+"/users", map[string]any{
		"email":    email,
		"password": "$2a$10$notarealhash",
	}, http.StatusCreated), &user)

	token := fmt.Sprintf("opaque-token-%d", time.Now().UnixNano())
	postJSON(t, recordsBaseURL+"/refresh-tokens", map[string]any{
		"token":     token,
		"userId":    user.ID,
		"expiresAt": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}, http.StatusCreated)

	var stored refreshTokenResponse
	decodeInto(t, getJSON(t, recordsBaseURL+"/refresh-tokens/"+token, http.StatusOK), &stored)
	if stored.User == nil || stored.User.ID != user.ID {
		t.Fatalf("token lookup must embed the owning user")
	}

	doRequest(t, http.MethodDelete, recordsBaseURL+"/refresh-tokens/user/"+user.ID, nil, http.StatusNoContent)
	getJSON(t, recordsBaseURL+"/refresh-tokens/"+token, http.StatusNotFound)

	// Deleting the user cascades over its tokens at the schema level.
	postJSON(t, recordsBaseURL+"/refresh-tokens", map[string]any{
		"token":     token + "-second",
		"userId":    user.ID,
		"expiresAt": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}, http.StatusCreated)
	doRequest(t, http.MethodDelete, recordsBaseURL+"/users/"+user.ID, nil, http.StatusNoContent)
	getJSON(t, recordsBaseURL+"/refresh-tokens/"+token+"-second", http.StatusNotFound)
}

func TestExpiredTokenCleanup(t *testing.T) {
	email := fmt.Sprintf("cleanup_%d@example.com", time.Now().UnixNano())

	var user userResponse
	decodeInto(t, postJSON(t, recordsBaseURL+"/users", map[string]any{
		"email":    email,
		"password": "$2a$10$notarealhash",
	}, http.StatusCreated), &user)

	token := fmt.Sprintf("expired-token-%d", time.Now().UnixNano())
	postJSON(t, recordsBaseURL+"/refresh-tokens", map[string]any{
		"token":     token,
		"userId":    user.ID,
		"expiresAt": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	}, http.StatusCreated)

	var cleanup struct {
		Deleted int `json:"deleted"`
	}
	decodeInto(t, postJSON(t, recordsBaseURL+"/refresh-tokens/cleanup", nil, http.StatusOK), &cleanup)
	if cleanup.Deleted < 1 {
		t.Fatalf("expected cleanup to delete the expired token")
	}
	getJSON(t, recordsBaseURL+"/refresh-tokens/"+token, http.StatusNotFound)
}

func TestAuthFlow(t *testing.T) {
	email := fmt.Sprintf("flow_%d@example.com", time.Now().UnixNano())
	password := "flow password 1"

	var registered authResponse
	decodeInto(t, postJSON(t, authBaseURL+"/auth/register", map[string]any{
		"email":    email,
		"password": password,
	}, http.StatusCreated), &registered)
	if registered.AccessToken == "" || registered.RefreshToken == "" {
		t.Fatalf("register must return a token pair")
	}

	var loggedIn authResponse
	decodeInto(t, postJSON(t, authBaseURL+"/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, http.StatusOK), &loggedIn)
	if loggedIn.User.ID != registered.User.ID {
		t.Fatalf("login resolved a different user")
	}

	// Rotation: the first refresh succeeds, replaying the consumed token fails.
	var refreshed authResponse
	decodeInto(t, postJSON(t, authBaseURL+"/auth/refresh", map[string]any{
		"refreshToken": registered.RefreshToken,
	}, http.StatusOK), &refreshed)
	if refreshed.RefreshToken == registered.RefreshToken {
		t.Fatalf("refresh must rotate the token")
	}
	postJSON(t, authBaseURL+"/auth/refresh", map[string]any{
		"refreshToken": registered.RefreshToken,
	}, http.StatusUnauthorized)

	// Profile with the rotated access token.
	req, err := http.NewRequest(http.MethodGet, authBaseURL+"/auth/profile", nil)
	if err != nil {
		t.Fatalf("build profile request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("profile request: %v", err)
	}
	body := readBody(t, resp, http.StatusOK)
	var profile userResponse
	decodeInto(t, body, &profile)
	if profile.Email != email {
		t.Fatalf("unexpected profile email: %q", profile.Email)
	}

	// Logout invalidates the remaining refresh token.
	req, err = http.NewRequest(http.MethodPost, authBaseURL+"/auth/logout", nil)
	if err != nil {
		t.Fatalf("build logout request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout request: %v", err)
	}
	readBody(t, resp, http.StatusOK)

	postJSON(t, authBaseURL+"/auth/refresh", map[string]any{
		"refreshToken": refreshed.RefreshToken,
	}, http.StatusUnauthorized)
}

func postJSON(t *testing.T, endpoint string, payload any, wantStatus int) []byte {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	return doRequest(t, http.MethodPost, endpoint, body, wantStatus)
}

func patchJSON(t *testing.T, endpoint string, payload any, wantStatus int) []byte {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return doRequest(t, http.MethodPatch, endpoint, bytes.NewReader(data), wantStatus)
}

func getJSON(t *testing.T, endpoint string, wantStatus int) []byte {
	t.Helper()
	return doRequest(t, http.MethodGet, endpoint, nil, wantStatus)
}

func doRequest(t *testing.T, method, endpoint string, body io.Reader, wantStatus int) []byte {
	t.Helper()

	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, endpoint, err)
	}
	return readBody(t, resp, wantStatus)
}

func readBody(t *testing.T, resp *http.Response, wantStatus int) []byte {
	t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d: %s",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, wantStatus, strings.TrimSpace(string(data)))
	}
	return data
}

func decodeInto(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode response: %v: %s", err, strings.TrimSpace(string(data)))
	}
}

func setServiceEnv() {
	_ = os.Setenv("ENV", "test")
	_ = os.Setenv("JWT_SECRET", "e2e-access-secret")
	_ = os.Setenv("JWT_REFRESH_SECRET", "e2e-refresh-secret")
	_ = os.Setenv("AUTH_PORT", fmt.Sprintf("%d", authPort))
	_ = os.Setenv("RECORDS_PORT", fmt.Sprintf("%d", recordsPort))
	_ = os.Setenv("RECORD_STORE_URL", recordsBaseURL)
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "relaychat")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "relaychat_db")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("MQ_BACKEND", "")
	_ = os.Setenv("STORAGE_BACKEND", "")
}

func startServers() (*recordapi.Server, *authapi.Server, error) {
	cfg := config.LoadConfig()

	records, err := recordapi.New(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}
	auth, err := authapi.New(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}

	go func() {
		_ = records.Start()
	}()
	go func() {
		_ = auth.Start()
	}()

	return records, auth, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.DSN(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not reachable: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, endpoint string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		resp, err := http.Get(endpoint)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("health check timed out for %s", endpoint)
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, db.DSN(cfg))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
