// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"io"

	"github.com/ljie-PI/ghcp-ollama/internal/apischema/openai"
	"github.com/ljie-PI/ghcp-ollama/internal/sse"
)

// OpenAIChatTranslator serves /v1/chat/completions, which speaks the same
// protocol as the upstream. Requests and unary responses pass through
// unchanged; streams are reframed so each upstream frame reaches the client
// as its own well-formed SSE event, with the [DONE] sentinel left to the
// dispatcher.
type OpenAIChatTranslator struct {
	splitter sse.Splitter
	done     bool
}

// NewOpenAIChatTranslator returns a translator for one request.
func NewOpenAIChatTranslator() *OpenAIChatTranslator {
	return &OpenAIChatTranslator{}
}

// RequestBody returns the inbound payload unchanged. The upstream speaks the
// same dialect, so translation would only risk dropping unknown fields.
func (t *OpenAIChatTranslator) RequestBody(raw []byte) ([]byte, error) {
	return raw, nil
}

// IsVisionRequest reports whether any message carries an image_url part.
func IsVisionRequest(messages []openai.ChatCompletionMessageParamUnion) bool {
	for i := range messages {
		user := messages[i].OfUser
		if user == nil {
			continue
		}
		parts, ok := user.Content.Value.([]openai.ChatCompletionContentPartUserUnionParam)
		if !ok {
			continue
		}
		for j := range parts {
			if parts[j].ImageContent != nil {
				return true
			}
		}
	}
	return false
}

// ResponseBody passes the unary upstream body through unchanged.
func (t *OpenAIChatTranslator) ResponseBody(body io.Reader) ([]byte, error) {
	return io.ReadAll(body)
}

// ResponseStreamChunk re-emits each complete upstream frame and stops at the
// upstream [DONE] sentinel. Frames after the sentinel are dropped.
func (t *OpenAIChatTranslator) ResponseStreamChunk(chunk []byte, endOfStream bool) ([]byte, error) {
	frames := t.splitter.Push(chunk)
	if endOfStream {
		frames = append(frames, t.splitter.Flush()...)
	}
	var out []byte
	for i := range frames {
		if t.done {
			break
		}
		if frames[i].IsDone() {
			t.done = true
			break
		}
		out = sse.AppendEvent(out, "", frames[i].Data)
	}
	return out, nil
}
