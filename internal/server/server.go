// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package server is the HTTP surface of the gateway: the Ollama, OpenAI
// Chat Completions, Anthropic Messages and OpenAI Responses endpoints, the
// per-request pipeline driving the translators, and the stream dispatcher.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ljie-PI/ghcp-ollama/internal/config"
	"github.com/ljie-PI/ghcp-ollama/internal/copilot"
	"github.com/ljie-PI/ghcp-ollama/internal/metrics"
)

// Server owns the listener and the per-endpoint pipelines.
type Server struct {
	cfg      *config.Config
	auth     AuthProvider
	models   *copilot.ModelCatalog
	upstream *UpstreamClient
	logger   *slog.Logger
	genAI    *metrics.GenAI
	registry *prometheus.Registry
}

// New builds a server with its own metrics registry.
func New(cfg *config.Config, auth AuthProvider, models *copilot.ModelCatalog, logger *slog.Logger) *Server {
	registry := prometheus.NewRegistry()
	return &Server{
		cfg:      cfg,
		auth:     auth,
		models:   models,
		upstream: NewUpstreamClient(auth, cfg, logger),
		logger:   logger,
		genAI:    metrics.NewGenAI(registry),
		registry: registry,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	// Ollama clients probe GET / for liveness.
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Ollama is running"))
	})
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/tags", s.handleTags)
	mux.HandleFunc("POST /api/chat", s.handleOllamaChat)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("POST /v1/messages", s.handleMessages)
	mux.HandleFunc("POST /v1/response", s.handleResponses)
	mux.HandleFunc("POST /v1/response/compact", s.handleResponses)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("listening", slog.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-done
}

// ensureAuth validates the upstream credential up front, attempting one
// refresh when the cached token is expired.
func (s *Server) ensureAuth(ctx context.Context) *gatewayError {
	if _, _, expired, _ := s.auth.GetToken(); !expired {
		return nil
	}
	if s.auth.Refresh(ctx) {
		return nil
	}
	return newError(kindAuth, "no valid upstream token and refresh failed", nil)
}
