// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ljie-PI/ghcp-ollama/internal/config"
)

// defaultEndpoint is used when the token exchange carries no API endpoint.
const defaultEndpoint = "https://api.githubcopilot.com"

// AuthProvider supplies the upstream credential. Implemented by
// copilot.Authenticator.
type AuthProvider interface {
	GetToken() (endpoint, token string, expired bool, expiresAt time.Time)
	Refresh(ctx context.Context) bool
}

// UpstreamClient posts translated payloads to the Copilot chat endpoint.
type UpstreamClient struct {
	auth   AuthProvider
	cfg    *config.Config
	client *http.Client
	logger *slog.Logger
}

// NewUpstreamClient builds the upstream transport. Streaming reads have no
// client-side timeout; cancellation rides on the request context.
func NewUpstreamClient(auth AuthProvider, cfg *config.Config, logger *slog.Logger) *UpstreamClient {
	return &UpstreamClient{auth: auth, cfg: cfg, client: &http.Client{}, logger: logger}
}

// Post sends the payload to <endpoint>/chat/completions. An expired cached
// token triggers exactly one Refresh attempt before failing with an auth
// error. The caller owns the response body.
func (c *UpstreamClient) Post(ctx context.Context, payload []byte, vision, stream bool) (*http.Response, error) {
	endpoint, token, expired, _ := c.auth.GetToken()
	if expired {
		if !c.auth.Refresh(ctx) {
			return nil, newError(kindAuth, "no valid upstream token and refresh failed", nil)
		}
		endpoint, token, expired, _ = c.auth.GetToken()
		if expired {
			return nil, newError(kindAuth, "upstream token expired after refresh", nil)
		}
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, newError(kindUpstreamTransport, "failed to build upstream request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Copilot-Integration-Id", c.cfg.CopilotIntegrationID)
	req.Header.Set("Editor-Version", c.cfg.EditorVersion)
	req.Header.Set("Editor-Plugin-Version", c.cfg.EditorPluginVersion)
	if vision {
		req.Header.Set("Copilot-Vision-Request", "true")
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newError(kindUpstreamTransport, "upstream call failed", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, newError(kindAuth, "upstream rejected the token", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, newError(kindUpstreamStatus,
			fmt.Sprintf("upstream returned status %d: %s", resp.StatusCode, excerpt), nil)
	}
	return resp, nil
}
