// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ljie-PI/ghcp-ollama/internal/apischema/anthropic"
	"github.com/ljie-PI/ghcp-ollama/internal/apischema/ollama"
	"github.com/ljie-PI/ghcp-ollama/internal/apischema/openai"
	"github.com/ljie-PI/ghcp-ollama/internal/json"
	"github.com/ljie-PI/ghcp-ollama/internal/metrics"
	"github.com/ljie-PI/ghcp-ollama/internal/translator"
	"github.com/ljie-PI/ghcp-ollama/internal/version"
)

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ollama.VersionResponse{Version: version.Version})
}

// handleTags lists the Copilot model catalog in the Ollama /api/tags shape.
func (s *Server) handleTags(w http.ResponseWriter, _ *http.Request) {
	resp := ollama.ListTagsResponse{Models: []ollama.ModelResponse{}}
	for _, m := range s.models.Models() {
		digest := sha256.Sum256([]byte(m.ID))
		resp.Models = append(resp.Models, ollama.ModelResponse{
			Name:       m.ID,
			Model:      m.ID,
			ModifiedAt: time.Now().UTC(),
			Digest:     hex.EncodeToString(digest[:]),
			Details: ollama.ModelDetails{
				Format:            "gguf",
				Family:            "copilot",
				Families:          []string{"copilot"},
				ParameterSize:     "unknown",
				QuantizationLevel: "unknown",
			},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleOllamaChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if ge := s.ensureAuth(r.Context()); ge != nil {
		writeError(w, wireOllama, ge)
		return
	}
	var req ollama.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wireOllama, newError(kindInputInvalid, "failed to decode request body", err))
		return
	}
	tr := translator.NewOllamaToOpenAITranslator()
	payload, err := tr.RequestBody(&req)
	if err != nil {
		writeError(w, wireOllama, newError(kindInputInvalid, "failed to convert request", err))
		return
	}
	payload, model := s.fillDefaultModel(payload)
	vision := tr.IsVisionRequest(&req)
	if tr.Streaming() {
		s.stream(w, r, metrics.OperationOllama, model, payload, vision, tr, wireOllama, start)
		return
	}
	s.unary(w, r, metrics.OperationOllama, model, payload, vision, tr, wireOllama, start)
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if ge := s.ensureAuth(r.Context()); ge != nil {
		writeError(w, wireOpenAI, ge)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, wireOpenAI, newError(kindInputInvalid, "failed to read request body", err))
		return
	}
	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, wireOpenAI, newError(kindInputInvalid, "failed to decode request body", err))
		return
	}
	tr := translator.NewOpenAIChatTranslator()
	payload, err := tr.RequestBody(raw)
	if err != nil {
		writeError(w, wireOpenAI, newError(kindInputInvalid, "failed to convert request", err))
		return
	}
	payload, model := s.fillDefaultModel(payload)
	vision := translator.IsVisionRequest(req.Messages)
	if req.Stream {
		s.stream(w, r, metrics.OperationChat, model, payload, vision, tr, wireOpenAI, start)
		return
	}
	s.unary(w, r, metrics.OperationChat, model, payload, vision, tr, wireOpenAI, start)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if ge := s.ensureAuth(r.Context()); ge != nil {
		writeError(w, wireAnthropic, ge)
		return
	}
	var req anthropic.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wireAnthropic, newError(kindInputInvalid, "failed to decode request body", err))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, wireAnthropic, newError(kindInputInvalid, "messages must not be empty", nil))
		return
	}
	tr := translator.NewAnthropicToOpenAITranslator()
	payload, err := tr.RequestBody(&req)
	if err != nil {
		writeError(w, wireAnthropic, newError(kindInputInvalid, "failed to convert request", err))
		return
	}
	payload, model := s.fillDefaultModel(payload)
	vision := tr.IsVisionRequest(&req)
	if tr.Streaming() {
		s.stream(w, r, metrics.OperationMessages, model, payload, vision, tr, wireAnthropic, start)
		return
	}
	s.unary(w, r, metrics.OperationMessages, model, payload, vision, tr, wireAnthropic, start)
}

func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if ge := s.ensureAuth(r.Context()); ge != nil {
		writeError(w, wireResponses, ge)
		return
	}
	var req openai.ResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wireResponses, newError(kindInputInvalid, "failed to decode request body", err))
		return
	}
	tr := translator.NewResponsesToOpenAITranslator()
	payload, err := tr.RequestBody(&req)
	if err != nil {
		writeError(w, wireResponses, newError(kindInputInvalid, "failed to convert request", err))
		return
	}
	payload, model := s.fillDefaultModel(payload)
	vision := tr.IsVisionRequest(&req)
	if tr.Streaming() {
		s.stream(w, r, metrics.OperationResponses, model, payload, vision, tr, wireResponses, start)
		return
	}
	s.unary(w, r, metrics.OperationResponses, model, payload, vision, tr, wireResponses, start)
}

// fillDefaultModel sets the configured default model on the upstream payload
// when the inbound request left it blank, and returns the effective model.
func (s *Server) fillDefaultModel(payload []byte) ([]byte, string) {
	if model := gjson.GetBytes(payload, "model").String(); model != "" {
		return payload, model
	}
	model := s.models.CurrentModel().ID
	out, err := sjson.SetBytes(payload, "model", model)
	if err != nil {
		return payload, model
	}
	return out, model
}

// unary performs the upstream call, translates the whole response body once
// and writes it.
func (s *Server) unary(w http.ResponseWriter, r *http.Request, operation, model string, payload []byte, vision bool, tr translator.ResponseTranslator, wire wireProtocol, start time.Time) {
	resp, err := s.upstream.Post(r.Context(), payload, vision, false)
	if err != nil {
		ge := classify(err, kindUpstreamTransport)
		writeError(w, wire, ge)
		s.genAI.RecordRequestDuration(operation, model, string(ge.kind), time.Since(start))
		return
	}
	defer resp.Body.Close()

	out, err := tr.ResponseBody(resp.Body)
	if err != nil {
		ge := classify(err, kindParse)
		writeError(w, wire, ge)
		s.genAI.RecordRequestDuration(operation, model, string(ge.kind), time.Since(start))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)

	input, output := tokenUsageFromBody(wire, out)
	s.genAI.RecordTokenUsage(operation, model, input, output)
	s.genAI.RecordRequestDuration(operation, model, "", time.Since(start))
}

// tokenUsageFromBody reads token counts back out of the translated unary
// body, whose usage shape differs per protocol.
func tokenUsageFromBody(wire wireProtocol, body []byte) (input, output float64) {
	switch wire {
	case wireOllama:
		return gjson.GetBytes(body, "prompt_eval_count").Float(), gjson.GetBytes(body, "eval_count").Float()
	case wireAnthropic:
		return gjson.GetBytes(body, "usage.input_tokens").Float(), gjson.GetBytes(body, "usage.output_tokens").Float()
	default:
		if usage := gjson.GetBytes(body, "usage.prompt_tokens"); usage.Exists() {
			return usage.Float(), gjson.GetBytes(body, "usage.completion_tokens").Float()
		}
		return gjson.GetBytes(body, "usage.input_tokens").Float(), gjson.GetBytes(body, "usage.output_tokens").Float()
	}
}
