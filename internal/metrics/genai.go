// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package metrics records the GenAI semantic-convention metrics for every
// request crossing the gateway, exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// genAISystem labels every series; there is a single upstream.
const genAISystem = "github_copilot"

// Operation names label the per-endpoint series.
const (
	OperationChat      = "chat"
	OperationMessages  = "messages"
	OperationResponses = "responses"
	OperationOllama    = "ollama_chat"
)

// GenAI holds the prometheus metrics.
// See: https://opentelemetry.io/docs/specs/semconv/gen-ai/gen-ai-metrics/
type GenAI struct {
	// tokenUsage counts tokens processed, by token type.
	tokenUsage *prometheus.HistogramVec
	// requestLatency is the total latency of the request, from inbound
	// decode to the last byte written to the client.
	requestLatency *prometheus.HistogramVec
	// firstTokenLatency is the latency to the first streamed token.
	firstTokenLatency *prometheus.HistogramVec
	// outputTokenLatency is the latency between consecutive streamed chunks.
	outputTokenLatency *prometheus.HistogramVec
}

// NewGenAI creates and registers the metrics on registry.
func NewGenAI(registry prometheus.Registerer) *GenAI {
	m := &GenAI{
		tokenUsage: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gen_ai.client.token.usage",
				Help:    "Number of tokens processed.",
				Buckets: []float64{1, 4, 16, 64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
			},
			[]string{
				"gen_ai.operation.name",
				"gen_ai.system",
				"gen_ai.token.type",
				"gen_ai.request.model",
			},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gen_ai.server.request.duration",
				Help:    "Time spent processing request.",
				Buckets: []float64{0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64, 1.28, 2.56, 5.12, 10.24, 20.48, 40.96, 81.92},
			},
			[]string{
				"gen_ai.operation.name",
				"gen_ai.system",
				"gen_ai.request.model",
				"error.type",
			},
		),
		firstTokenLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gen_ai.server.time_to_first_token",
				Help:    "Time to receive first token in streaming responses.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.04, 0.06, 0.08, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0},
			},
			[]string{
				"gen_ai.operation.name",
				"gen_ai.system",
				"gen_ai.request.model",
			},
		),
		outputTokenLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gen_ai.server.time_per_output_token",
				Help:    "Time between consecutive tokens in streaming responses.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.075, 0.1, 0.15, 0.2, 0.3, 0.4, 0.5, 0.75, 1.0, 2.5},
			},
			[]string{
				"gen_ai.operation.name",
				"gen_ai.system",
				"gen_ai.request.model",
			},
		),
	}

	registry.MustRegister(m.tokenUsage)
	registry.MustRegister(m.requestLatency)
	registry.MustRegister(m.firstTokenLatency)
	registry.MustRegister(m.outputTokenLatency)

	return m
}

// RecordTokenUsage records input and output token counts for one request.
func (m *GenAI) RecordTokenUsage(operation, model string, inputTokens, outputTokens float64) {
	m.tokenUsage.WithLabelValues(operation, genAISystem, "input", model).Observe(inputTokens)
	m.tokenUsage.WithLabelValues(operation, genAISystem, "output", model).Observe(outputTokens)
}

// RecordRequestDuration records the total request latency. errorType is
// empty on success.
func (m *GenAI) RecordRequestDuration(operation, model, errorType string, d time.Duration) {
	m.requestLatency.WithLabelValues(operation, genAISystem, model, errorType).Observe(d.Seconds())
}

// RecordFirstTokenLatency records the time to the first streamed chunk.
func (m *GenAI) RecordFirstTokenLatency(operation, model string, d time.Duration) {
	m.firstTokenLatency.WithLabelValues(operation, genAISystem, model).Observe(d.Seconds())
}

// RecordInterTokenLatency records the gap between consecutive chunks.
func (m *GenAI) RecordInterTokenLatency(operation, model string, d time.Duration) {
	m.outputTokenLatency.WithLabelValues(operation, genAISystem, model).Observe(d.Seconds())
}
