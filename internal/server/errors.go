// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ljie-PI/ghcp-ollama/internal/apischema/anthropic"
	"github.com/ljie-PI/ghcp-ollama/internal/apischema/ollama"
	"github.com/ljie-PI/ghcp-ollama/internal/apischema/openai"
	"github.com/ljie-PI/ghcp-ollama/internal/json"
)

// errorKind classifies request failures for HTTP status mapping.
type errorKind string

const (
	kindInputInvalid      errorKind = "input_invalid"
	kindAuth              errorKind = "auth"
	kindUpstreamStatus    errorKind = "upstream_status"
	kindUpstreamTransport errorKind = "upstream_transport"
	kindParse             errorKind = "parse"
)

// gatewayError carries a kind alongside the wrapped cause.
type gatewayError struct {
	kind    errorKind
	message string
	cause   error
}

func (e *gatewayError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *gatewayError) Unwrap() error { return e.cause }

func newError(kind errorKind, message string, cause error) *gatewayError {
	return &gatewayError{kind: kind, message: message, cause: cause}
}

// classify returns the gateway error for err, defaulting to defaultKind for
// untyped errors.
func classify(err error, defaultKind errorKind) *gatewayError {
	var ge *gatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return newError(defaultKind, err.Error(), nil)
}

func (e *gatewayError) status() int {
	switch e.kind {
	case kindInputInvalid:
		return http.StatusBadRequest
	case kindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// wireProtocol selects the error envelope and stream framing of an endpoint.
type wireProtocol int

// wireOllama frames NDJSON. The others are SSE: wireOpenAI closes with a
// [DONE] terminator, wireResponses and wireAnthropic do not.
const (
	wireOllama wireProtocol = iota
	wireOpenAI
	wireResponses
	wireAnthropic
)

// writeError responds with the protocol-native error envelope.
func writeError(w http.ResponseWriter, wire wireProtocol, ge *gatewayError) {
	status := ge.status()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	switch wire {
	case wireOllama:
		_ = json.NewEncoder(w).Encode(ollama.ErrorResponse{Error: ge.Error()})
	case wireAnthropic:
		_ = json.NewEncoder(w).Encode(anthropic.ErrorResponse{
			Type:  "error",
			Error: anthropic.ErrorResponseMessage{Type: anthropicErrorType(status), Message: ge.Error()},
		})
	default:
		_ = json.NewEncoder(w).Encode(openai.Error{
			Type:  "error",
			Error: openai.ErrorType{Type: string(ge.kind), Message: ge.Error()},
		})
	}
}

// anthropicErrorType maps HTTP statuses to the error type names the
// Anthropic SDKs use for retry decisions.
func anthropicErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusServiceUnavailable:
		return "overloaded_error"
	default:
		return "api_error"
	}
}

// errorFrame renders a mid-stream error in the wire framing of the endpoint,
// written after bytes have already reached the client.
func errorFrame(wire wireProtocol, ge *gatewayError) []byte {
	payload, err := json.Marshal(map[string]string{"error": string(ge.kind), "message": ge.Error()})
	if err != nil {
		payload = []byte(`{"error":"internal"}`)
	}
	if wire == wireOllama {
		return append(payload, '\n', '\n')
	}
	out := append([]byte("data: "), payload...)
	return append(out, '\n', '\n')
}
