// Package oauth performs the GitHub authorization-code exchange and
// profile fetch directly against the GitHub API.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relaychat/backend/config"
)

const (
	githubAuthorizeURL = "https://github.com/login/oauth/authorize"
	githubTokenURL     = "https://github.com/login/oauth/access_token"
	githubUserURL      = "https://api.github.com/user"
	githubEmailsURL    = "https://api.github.com/user/emails"
)

// Profile is the verified identity GitHub reports for an authorized user.
type Profile struct {
	GithubID  string
	Email     string
	Username  string
	FirstName string
	LastName  string
	Avatar    string
}

// GitHubClient drives the GitHub OAuth flow.
type GitHubClient struct {
	cfg        config.GitHubConfig
	httpClient *http.Client
}

// NewGitHubClient constructs a GitHubClient from config.
func NewGitHubClient(cfg config.GitHubConfig) *GitHubClient {
	return &GitHubClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether client credentials are present.
func (c *GitHubClient) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// AuthorizeURL builds the redirect URL that starts the flow.
func (c *GitHubClient) AuthorizeURL(state string) string {
	query := url.Values{}
	query.Set("client_id", c.cfg.ClientID)
	query.Set("redirect_uri", c.cfg.CallbackURL)
	query.Set("scope", "user:email")
	query.Set("state", state)
	return githubAuthorizeURL + "?" + query.Encode()
}

// Exchange trades an authorization code for an access token.
func (c *GitHubClient) Exchange(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.CallbackURL)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, githubTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.New("token exchange failed")
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", errors.New("missing access token")
	}
	return payload.AccessToken, nil
}

// FetchProfile loads the authorized user's profile and primary email.
func (c *GitHubClient) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.getJSON(ctx, githubUserURL, accessToken, &payload); err != nil {
		return Profile{}, err
	}
	if payload.ID == 0 {
		return Profile{}, errors.New("missing github user id")
	}

	email := payload.Email
	if email == "" {
		primary, err := c.fetchPrimaryEmail(ctx, accessToken)
		if err != nil {
			return Profile{}, err
		}
		email = primary
	}
	if email == "" {
		return Profile{}, errors.New("github account has no usable email")
	}

	firstName, lastName := splitName(payload.Name)
	return Profile{
		GithubID:  fmt.Sprintf("%d", payload.ID),
		Email:     email,
		Username:  payload.Login,
		FirstName: firstName,
		LastName:  lastName,
		Avatar:    payload.AvatarURL,
	}, nil
}

func (c *GitHubClient) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := c.getJSON(ctx, githubEmailsURL, accessToken, &emails); err != nil {
		return "", err
	}

	for _, entry := range emails {
		if entry.Primary && entry.Verified {
			return entry.Email, nil
		}
	}
	for _, entry := range emails {
		if entry.Verified {
			return entry.Email, nil
		}
	}
	return "", nil
}

func (c *GitHubClient) getJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
