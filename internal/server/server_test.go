// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ljie-PI/ghcp-ollama/internal/config"
	"github.com/ljie-PI/ghcp-ollama/internal/copilot"
)

// stubAuth is a fixed-credential AuthProvider.
type stubAuth struct {
	endpoint string
	fail     bool
}

func (a *stubAuth) GetToken() (string, string, bool, time.Time) {
	if a.fail {
		return "", "", true, time.Time{}
	}
	return a.endpoint, "test-token", false, time.Now().Add(time.Hour)
}

func (a *stubAuth) Refresh(context.Context) bool { return !a.fail }

// upstreamRecorder captures what the gateway sent upstream.
type upstreamRecorder struct {
	mu      sync.Mutex
	headers http.Header
	body    []byte
}

func (u *upstreamRecorder) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	u.mu.Lock()
	u.headers = r.Header.Clone()
	u.body = body
	u.mu.Unlock()
}

func (u *upstreamRecorder) get() (http.Header, []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.headers, u.body
}

// newTestGateway wires a gateway to a stub upstream whose /chat/completions
// handler is respond.
func newTestGateway(t *testing.T, respond http.HandlerFunc) (*httptest.Server, *upstreamRecorder) {
	t.Helper()
	rec := &upstreamRecorder{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		rec.record(r)
		respond(w, r)
	}))
	t.Cleanup(upstream.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(config.Default(), &stubAuth{endpoint: upstream.URL}, copilot.NewModelCatalog(), logger)
	gateway := httptest.NewServer(srv.Handler())
	t.Cleanup(gateway.Close)
	return gateway, rec
}

func post(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestRootAndVersion(t *testing.T) {
	gateway, _ := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})

	resp, err := http.Get(gateway.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "Ollama is running", string(body))

	resp, err = http.Get(gateway.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ = io.ReadAll(resp.Body)
	require.NotEmpty(t, gjson.GetBytes(body, "version").String())
}

func TestTags(t *testing.T) {
	gateway, _ := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})
	resp, err := http.Get(gateway.URL + "/api/tags")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	models := gjson.GetBytes(body, "models").Array()
	require.NotEmpty(t, models)
	for _, m := range models {
		require.NotEmpty(t, m.Get("name").String())
		require.Len(t, m.Get("digest").String(), 64)
		require.NotEmpty(t, m.Get("modified_at").String())
		require.Equal(t, "gguf", m.Get("details.format").String())
	}
}

const upstreamTextStream = "data: {\"id\":\"c1\",\"created\":1736500000,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hello \"}}]}\n\n" +
	"data: {\"id\":\"c1\",\"created\":1736500000,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"world.\"}}]}\n\n" +
	"data: {\"id\":\"c1\",\"created\":1736500000,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2}}\n\n" +
	"data: [DONE]\n\n"

func serveSSE(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}
}

func TestOllamaChat_Streaming(t *testing.T) {
	gateway, rec := newTestGateway(t, serveSSE(upstreamTextStream))
	resp, body := post(t, gateway.URL+"/api/chat",
		`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	_, sent := rec.get()
	require.True(t, gjson.GetBytes(sent, "stream").Bool())
	require.True(t, gjson.GetBytes(sent, "stream_options.include_usage").Bool())

	// Leading newline, then NDJSON frames.
	require.True(t, strings.HasPrefix(body, "\n"))
	var frames []string
	for _, f := range strings.Split(strings.TrimPrefix(body, "\n"), "\n\n") {
		if strings.TrimSpace(f) != "" {
			frames = append(frames, f)
		}
	}
	require.Len(t, frames, 3)
	require.Equal(t, "Hello ", gjson.Get(frames[0], "message.content").String())
	require.False(t, gjson.Get(frames[0], "done").Bool())
	require.Equal(t, "world.", gjson.Get(frames[1], "message.content").String())
	require.True(t, gjson.Get(frames[2], "done").Bool())
	require.Equal(t, int64(5), gjson.Get(frames[2], "prompt_eval_count").Int())
	require.Equal(t, int64(2), gjson.Get(frames[2], "eval_count").Int())
}

func TestChatCompletions_StreamingPassthrough(t *testing.T) {
	gateway, rec := newTestGateway(t, serveSSE(upstreamTextStream))
	resp, body := post(t, gateway.URL+"/v1/chat/completions",
		`{"messages":[{"role":"user","content":[{"type":"text","text":"what?"},{"type":"image_url","image_url":{"url":"data:image/png;base64,iVBOR"}}]}],"stream":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	headers, sent := rec.get()
	// Vision header set by image detection; blank model filled from catalog.
	require.Equal(t, "true", headers.Get("Copilot-Vision-Request"))
	require.Equal(t, "Bearer test-token", headers.Get("Authorization"))
	require.NotEmpty(t, headers.Get("Copilot-Integration-Id"))
	require.NotEmpty(t, headers.Get("Editor-Version"))
	require.NotEmpty(t, headers.Get("Editor-Plugin-Version"))
	require.Equal(t, "gpt-4o-2024-11-20", gjson.GetBytes(sent, "model").String())

	// Frames pass through; the gateway appends its own terminator.
	require.Contains(t, body, `"content":"Hello "`)
	require.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	require.Equal(t, 1, strings.Count(body, "data: [DONE]"))
}

func TestMessages_Streaming(t *testing.T) {
	gateway, _ := newTestGateway(t, serveSSE(upstreamTextStream))
	resp, body := post(t, gateway.URL+"/v1/messages",
		`{"model":"claude-sonnet-4","max_tokens":64,"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Contains(t, body, "event: message_start\n")
	require.Contains(t, body, "event: content_block_start\n")
	require.Contains(t, body, "event: message_stop\n")
	// Anthropic streams carry no [DONE] terminator.
	require.NotContains(t, body, "[DONE]")
}

func TestResponses_Unary(t *testing.T) {
	upstream := `{
		"id":"chatcmpl-1","created":1736500000,"model":"gpt-4o",
		"choices":[{"index":0,"message":{"role":"assistant","reasoning_content":"step 1","content":"answer","tool_calls":[{"id":"call_1","type":"function","function":{"name":"f","arguments":"{}"}}]},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
	}`
	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstream))
	})

	for _, path := range []string{"/v1/response", "/v1/response/compact"} {
		resp, body := post(t, gateway.URL+path, `{"model":"gpt-4o","input":"question"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		output := gjson.Get(body, "output").Array()
		require.Len(t, output, 3)
		require.Equal(t, "reasoning", output[0].Get("type").String())
		require.Equal(t, "message", output[1].Get("type").String())
		require.Equal(t, "function_call", output[2].Get("type").String())
		require.Equal(t, "answer", gjson.Get(body, "output_text").String())
	}
}

func TestResponses_Streaming(t *testing.T) {
	gateway, _ := newTestGateway(t, serveSSE(upstreamTextStream))
	resp, body := post(t, gateway.URL+"/v1/response",
		`{"model":"gpt-4o","input":"question","stream":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The stream ends at response.completed; no [DONE] terminator follows.
	require.NotContains(t, body, "[DONE]")
	idx := strings.LastIndex(body, "event: response.completed\ndata: ")
	require.GreaterOrEqual(t, idx, 0)
	completed := strings.TrimSuffix(body[idx+len("event: response.completed\ndata: "):], "\n\n")
	require.NotContains(t, completed, "\n\n")
	require.Equal(t, "Hello world.", gjson.Get(completed, "response.output_text").String())

	// total_tokens falls back to input+output when upstream omits it.
	usage := gjson.Get(completed, "response.usage")
	require.Equal(t, int64(5), usage.Get("input_tokens").Int())
	require.Equal(t, int64(2), usage.Get("output_tokens").Int())
	require.Equal(t, int64(7), usage.Get("total_tokens").Int())
}

func TestStreamErrorBeforeFirstByte(t *testing.T) {
	gateway, _ := newTestGateway(t, serveSSE("data: {not json}\n\n"))
	resp, body := post(t, gateway.URL+"/v1/messages",
		`{"model":"claude-sonnet-4","max_tokens":64,"stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	// The first upstream frame fails to parse before anything reached the
	// client, so the response is a full HTTP error, not a 200 plus an error
	// frame.
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.Equal(t, "error", gjson.Get(body, "type").String())
	require.Equal(t, "api_error", gjson.Get(body, "error.type").String())
}

func TestErrorMapping(t *testing.T) {
	t.Run("malformed body is 400", func(t *testing.T) {
		gateway, _ := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})
		resp, body := post(t, gateway.URL+"/api/chat", `{not json`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.NotEmpty(t, gjson.Get(body, "error").String())
	})
	t.Run("auth failure is 401 in protocol envelope", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		srv := New(config.Default(), &stubAuth{fail: true}, copilot.NewModelCatalog(), logger)
		gateway := httptest.NewServer(srv.Handler())
		defer gateway.Close()

		resp, body := post(t, gateway.URL+"/v1/messages",
			`{"model":"m","max_tokens":1,"messages":[{"role":"user","content":"hi"}]}`)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "error", gjson.Get(body, "type").String())
		require.Equal(t, "authentication_error", gjson.Get(body, "error.type").String())
	})
	t.Run("upstream failure is 500", func(t *testing.T) {
		gateway, _ := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		})
		resp, body := post(t, gateway.URL+"/v1/chat/completions",
			`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Contains(t, gjson.Get(body, "error.message").String(), "502")
	})
	t.Run("empty anthropic messages is 400", func(t *testing.T) {
		gateway, _ := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})
		resp, _ := post(t, gateway.URL+"/v1/messages", `{"model":"m","max_tokens":1,"messages":[]}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	gateway, _ := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","created":1,"model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`))
	})
	_, _ = post(t, gateway.URL+"/v1/chat/completions",
		`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)

	resp, err := http.Get(gateway.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	// Dotted names may be escaped to underscores in the exposition format.
	require.Contains(t, string(body), "request_duration")
	require.Contains(t, string(body), "token_usage")
}
