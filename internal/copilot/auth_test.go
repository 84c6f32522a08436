// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package copilot

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ljie-PI/ghcp-ollama/internal/json"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTokenFile(t *testing.T, accessToken string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "github-token.json")
	require.NoError(t, persistGitHubToken(path, accessToken))
	return path
}

func TestAuthenticator_Refresh(t *testing.T) {
	expiresAt := time.Now().Add(30 * time.Minute).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "token gho_test", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "copilot-bearer",
			"expires_at": expiresAt,
			"endpoints":  map[string]string{"api": "https://api.example.com"},
		})
	}))
	defer srv.Close()

	auth := NewAuthenticator(writeTokenFile(t, "gho_test"), testLogger())
	auth.exchangeURL = srv.URL

	_, _, expired, _ := auth.GetToken()
	require.True(t, expired)

	require.True(t, auth.Refresh(t.Context()))
	endpoint, token, expired, got := auth.GetToken()
	require.Equal(t, "https://api.example.com", endpoint)
	require.Equal(t, "copilot-bearer", token)
	require.False(t, expired)
	require.Equal(t, expiresAt, got.Unix())
}

func TestAuthenticator_RefreshFailures(t *testing.T) {
	t.Run("missing token file", func(t *testing.T) {
		auth := NewAuthenticator(filepath.Join(t.TempDir(), "nope.json"), testLogger())
		require.False(t, auth.Refresh(t.Context()))
	})
	t.Run("upstream 401", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
		}))
		defer srv.Close()
		auth := NewAuthenticator(writeTokenFile(t, "gho_test"), testLogger())
		auth.exchangeURL = srv.URL
		require.False(t, auth.Refresh(t.Context()))
		_, _, expired, _ := auth.GetToken()
		require.True(t, expired)
	})
	t.Run("empty token in response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"token":""}`))
		}))
		defer srv.Close()
		auth := NewAuthenticator(writeTokenFile(t, "gho_test"), testLogger())
		auth.exchangeURL = srv.URL
		require.False(t, auth.Refresh(t.Context()))
	})
}

func TestTokenExpired(t *testing.T) {
	require.True(t, (&Token{ExpiresAt: time.Now().Add(time.Minute)}).Expired()) // within margin
	require.False(t, (&Token{ExpiresAt: time.Now().Add(10 * time.Minute)}).Expired())
}

func TestLogin_DeviceFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/login/device/code":
			require.Equal(t, githubClientID, r.FormValue("client_id"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"device_code":"dev-1","user_code":"ABCD-1234","verification_uri":"https://github.com/login/device","expires_in":900,"interval":1}`))
		case "/login/oauth/access_token":
			require.Equal(t, "dev-1", r.FormValue("device_code"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"gho_device","token_type":"bearer","scope":"read:user"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tokenFile := filepath.Join(t.TempDir(), "github-token.json")
	err := login(t.Context(), tokenFile, io.Discard, oauth2.Endpoint{
		DeviceAuthURL: srv.URL + "/login/device/code",
		TokenURL:      srv.URL + "/login/oauth/access_token",
	})
	require.NoError(t, err)

	info, err := os.Stat(tokenFile)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	token, err := loadGitHubToken(tokenFile)
	require.NoError(t, err)
	require.Equal(t, "gho_device", token)
}

func TestModelCatalog(t *testing.T) {
	catalog := NewModelCatalog()
	require.Equal(t, FallbackModel, catalog.CurrentModel())
	require.NotEmpty(t, catalog.Models())

	catalog.Select("gpt-4.1")
	require.Equal(t, "GPT-4.1", catalog.CurrentModel().Name)

	catalog.Select("experimental-model")
	require.Equal(t, "experimental-model", catalog.CurrentModel().ID)
	require.Equal(t, "experimental-model", catalog.CurrentModel().Name)
}
