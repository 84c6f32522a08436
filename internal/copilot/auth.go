// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package copilot talks to GitHub: the OAuth device-code sign-in, the
// exchange of the persisted GitHub token for a short-lived Copilot bearer
// token, and the model catalog backing /api/tags.
package copilot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/ljie-PI/ghcp-ollama/internal/json"
)

const (
	// githubClientID is the OAuth app id used by the Copilot plugin family.
	githubClientID = "Iv1.b507a08c87ecfe98"

	defaultExchangeURL    = "https://api.github.com/copilot_internal/v2/token"
	defaultDeviceAuthURL  = "https://github.com/login/device/code"
	defaultAccessTokenURL = "https://github.com/login/oauth/access_token"

	// refreshMargin re-exchanges the bearer token this long before expiry.
	refreshMargin = 2 * time.Minute
)

// Token is a short-lived Copilot bearer token bound to an API endpoint.
type Token struct {
	Endpoint  string
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the token is past (or within the margin of) its
// expiry.
func (t *Token) Expired() bool {
	return time.Now().After(t.ExpiresAt.Add(-refreshMargin))
}

// Authenticator exchanges the persisted GitHub OAuth token for Copilot
// bearer tokens and caches the result. Safe for concurrent use.
type Authenticator struct {
	tokenFile   string
	exchangeURL string
	client      *http.Client
	logger      *slog.Logger

	mu     sync.Mutex
	cached *Token
}

// NewAuthenticator returns an authenticator reading the GitHub token from
// tokenFile.
func NewAuthenticator(tokenFile string, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		tokenFile:   tokenFile,
		exchangeURL: defaultExchangeURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// GetToken returns the cached Copilot token. A nil cache or a past-expiry
// token reports expired=true; the caller decides whether to Refresh.
func (a *Authenticator) GetToken() (endpoint, token string, expired bool, expiresAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cached == nil {
		return "", "", true, time.Time{}
	}
	return a.cached.Endpoint, a.cached.Value, a.cached.Expired(), a.cached.ExpiresAt
}

// Refresh exchanges the persisted GitHub token for a fresh Copilot bearer
// token and reports whether the cache now holds a usable token.
func (a *Authenticator) Refresh(ctx context.Context) bool {
	token, err := a.exchange(ctx)
	if err != nil {
		a.logger.Error("failed to refresh copilot token", slog.Any("error", err))
		return false
	}
	a.mu.Lock()
	a.cached = token
	a.mu.Unlock()
	a.logger.Info("refreshed copilot token",
		slog.String("endpoint", token.Endpoint),
		slog.Time("expires_at", token.ExpiresAt))
	return true
}

// RunRefreshLoop refreshes the token shortly before each expiry until the
// context is canceled. An initial refresh happens immediately.
func (a *Authenticator) RunRefreshLoop(ctx context.Context) {
	for {
		a.Refresh(ctx)
		_, _, _, expiresAt := a.GetToken()
		wait := time.Minute
		if until := time.Until(expiresAt.Add(-refreshMargin)); until > wait {
			wait = until
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// exchangeResponse is the body of the copilot_internal/v2/token endpoint.
type exchangeResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	Endpoints struct {
		API string `json:"api"`
	} `json:"endpoints"`
}

func (a *Authenticator) exchange(ctx context.Context) (*Token, error) {
	github, err := loadGitHubToken(a.tokenFile)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.exchangeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build token exchange request: %w", err)
	}
	req.Header.Set("Authorization", "token "+github)
	req.Header.Set("Accept", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token exchange returned status %d: %s", resp.StatusCode, body)
	}
	var parsed exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode token exchange response: %w", err)
	}
	if parsed.Token == "" {
		return nil, fmt.Errorf("token exchange response carries no token")
	}
	return &Token{
		Endpoint:  parsed.Endpoints.API,
		Value:     parsed.Token,
		ExpiresAt: time.Unix(parsed.ExpiresAt, 0),
	}, nil
}

// githubToken is the persisted token file shape.
type githubToken struct {
	AccessToken string `json:"access_token"`
}

func loadGitHubToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("no GitHub token at %s, run the login command first: %w", path, err)
	}
	var token githubToken
	if err := json.Unmarshal(data, &token); err != nil {
		return "", fmt.Errorf("failed to parse token file %s: %w", path, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token file %s carries no access_token", path)
	}
	return token.AccessToken, nil
}

// Login runs the GitHub device-code flow and persists the resulting OAuth
// token at tokenFile with 0600 permissions. Progress prompts go to out.
func Login(ctx context.Context, tokenFile string, out io.Writer) error {
	return login(ctx, tokenFile, out, oauth2.Endpoint{
		DeviceAuthURL: defaultDeviceAuthURL,
		TokenURL:      defaultAccessTokenURL,
	})
}

func login(ctx context.Context, tokenFile string, out io.Writer, endpoint oauth2.Endpoint) error {
	cfg := &oauth2.Config{
		ClientID: githubClientID,
		Scopes:   []string{"read:user"},
		Endpoint: endpoint,
	}
	device, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return fmt.Errorf("failed to start device authorization: %w", err)
	}
	fmt.Fprintf(out, "Open %s and enter code: %s\n", device.VerificationURI, device.UserCode)
	token, err := cfg.DeviceAccessToken(ctx, device)
	if err != nil {
		return fmt.Errorf("device authorization failed: %w", err)
	}
	return persistGitHubToken(tokenFile, token.AccessToken)
}

func persistGitHubToken(path, accessToken string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	data, err := json.Marshal(githubToken{AccessToken: accessToken})
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
