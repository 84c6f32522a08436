// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package translator converts between the public protocols served by the
// gateway (Ollama chat, OpenAI Chat Completions, Anthropic Messages, OpenAI
// Responses) and the upstream OpenAI Chat Completions format.
//
// Translators are created per request and carry all mutable state of that
// request: the SSE reassembly buffer and the tool-call accumulators of the
// streaming state machines. They are never shared across requests.
package translator

import "io"

// ResponseStreamTranslator is the part of a translator driven by the stream
// dispatcher. ResponseStreamChunk appends one upstream body chunk, translates
// every SSE frame completed by it, and returns the client-native wire bytes
// (NDJSON for Ollama, SSE for the rest). The final call passes
// endOfStream=true, allowing the translator to close any open state; it is
// made exactly once.
type ResponseStreamTranslator interface {
	ResponseStreamChunk(chunk []byte, endOfStream bool) ([]byte, error)
}

// ResponseTranslator additionally translates a unary upstream body.
type ResponseTranslator interface {
	ResponseStreamTranslator
	ResponseBody(body io.Reader) ([]byte, error)
}
