// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ljie-PI/ghcp-ollama/internal/apischema/anthropic"
	"github.com/ljie-PI/ghcp-ollama/internal/json"
	"github.com/ljie-PI/ghcp-ollama/internal/sse"
)

func anthropicRequest(t *testing.T, in string) *anthropic.MessagesRequest {
	t.Helper()
	var req anthropic.MessagesRequest
	require.NoError(t, json.Unmarshal([]byte(in), &req))
	return &req
}

func TestAnthropicToOpenAITranslator_RequestBody(t *testing.T) {
	req := anthropicRequest(t, `{
		"model":"claude-sonnet-4","max_tokens":512,"temperature":0.5,"top_p":0.9,"top_k":40,
		"system":"be helpful",
		"stop_sequences":["END"],
		"metadata":{"user_id":"u-1"},
		"messages":[
			{"role":"user","content":[
				{"type":"text","text":"what is in this image?"},
				{"type":"image","source":{"type":"base64","media_type":"image/png","data":"iVBORxyz"}}
			]},
			{"role":"assistant","content":[
				{"type":"text","text":"let me check"},
				{"type":"tool_use","id":"toolu_01","name":"get_weather","input":{"city":"SF"}}
			]},
			{"role":"user","content":[
				{"type":"tool_result","tool_use_id":"toolu_01","content":"sunny"}
			]}
		],
		"tools":[
			{"name":"get_weather","description":"weather lookup","input_schema":{"type":"object","properties":{"city":{"type":"string"}}}},
			{"type":"web_search_20250305","name":"web_search"}
		],
		"tool_choice":{"type":"any"}
	}`)

	body, err := NewAnthropicToOpenAITranslator().RequestBody(req)
	require.NoError(t, err)

	require.Equal(t, "claude-sonnet-4", gjson.GetBytes(body, "model").String())
	require.Equal(t, int64(512), gjson.GetBytes(body, "max_tokens").Int())
	require.Equal(t, int64(40), gjson.GetBytes(body, "top_k").Int())
	require.Equal(t, "END", gjson.GetBytes(body, "stop.0").String())
	require.Equal(t, "u-1", gjson.GetBytes(body, "user").String())
	require.False(t, gjson.GetBytes(body, "stream").Bool())

	msgs := gjson.GetBytes(body, "messages").Array()
	require.Len(t, msgs, 4)
	// System prompt becomes the leading system message.
	require.Equal(t, "system", msgs[0].Get("role").String())
	require.Equal(t, "be helpful", msgs[0].Get("content").String())

	parts := msgs[1].Get("content").Array()
	require.Len(t, parts, 2)
	require.Equal(t, "data:image/png;base64,iVBORxyz", parts[1].Get("image_url.url").String())

	require.Equal(t, "let me check", msgs[2].Get("content").String())
	require.Equal(t, "toolu_01", msgs[2].Get("tool_calls.0.id").String())
	require.JSONEq(t, `{"city":"SF"}`, msgs[2].Get("tool_calls.0.function.arguments").String())

	// The tool_result rides on the converted user message as a
	// tool-call-shaped entry, not as a separate role:tool message.
	require.Equal(t, "user", msgs[3].Get("role").String())
	require.Equal(t, "toolu_01", msgs[3].Get("tool_calls.0.id").String())
	require.Equal(t, "sunny", msgs[3].Get("tool_calls.0.function.arguments").String())

	// Custom tools translate; server tools are dropped.
	tools := gjson.GetBytes(body, "tools").Array()
	require.Len(t, tools, 1)
	require.Equal(t, "get_weather", tools[0].Get("function.name").String())
	require.Equal(t, "object", tools[0].Get("function.parameters.type").String())
	require.Equal(t, "required", gjson.GetBytes(body, "tool_choice").String())
}

func TestAnthropicToOpenAITranslator_StreamRequest(t *testing.T) {
	tr := NewAnthropicToOpenAITranslator()
	body, err := tr.RequestBody(anthropicRequest(t, `{
		"model":"claude-sonnet-4","max_tokens":64,"stream":true,
		"messages":[{"role":"user","content":"hi"}]
	}`))
	require.NoError(t, err)
	require.True(t, tr.Streaming())
	require.True(t, gjson.GetBytes(body, "stream").Bool())
	require.True(t, gjson.GetBytes(body, "stream_options.include_usage").Bool())
}

func TestAnthropicToOpenAITranslator_IsVisionRequest(t *testing.T) {
	tr := NewAnthropicToOpenAITranslator()
	require.True(t, tr.IsVisionRequest(anthropicRequest(t, `{
		"model":"m","messages":[{"role":"user","content":[{"type":"image","source":{"type":"base64","data":"iVBOR"}}]}]
	}`)))
	require.False(t, tr.IsVisionRequest(anthropicRequest(t, `{
		"model":"m","messages":[{"role":"user","content":"hi"}]
	}`)))
}

func TestAnthropicToOpenAITranslator_ResponseBody(t *testing.T) {
	upstream := `{
		"id":"chatcmpl-1","created":1736500000,"model":"gpt-4o",
		"choices":[{"index":0,"message":{"role":"assistant","content":"Sunny today.","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"SF\"}"}}
		]},"finish_reason":"tool_calls"}],
		"usage":{"prompt_tokens":100,"completion_tokens":8,"prompt_tokens_details":{"cached_tokens":80}}
	}`
	tr := NewAnthropicToOpenAITranslator()
	tr.requestModel = "claude-sonnet-4"
	out, err := tr.ResponseBody(strings.NewReader(upstream))
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(gjson.GetBytes(out, "id").String(), "msg_"))
	require.Equal(t, "message", gjson.GetBytes(out, "type").String())
	require.Equal(t, "claude-sonnet-4", gjson.GetBytes(out, "model").String())
	require.Equal(t, "tool_use", gjson.GetBytes(out, "stop_reason").String())

	content := gjson.GetBytes(out, "content").Array()
	require.Len(t, content, 2)
	require.Equal(t, "text", content[0].Get("type").String())
	require.Equal(t, "Sunny today.", content[0].Get("text").String())
	require.Equal(t, "tool_use", content[1].Get("type").String())
	require.Equal(t, "call_1", content[1].Get("id").String())
	require.Equal(t, "SF", content[1].Get("input.city").String())

	// Billable input excludes cache reads.
	require.Equal(t, int64(20), gjson.GetBytes(out, "usage.input_tokens").Int())
	require.Equal(t, int64(80), gjson.GetBytes(out, "usage.cache_read_input_tokens").Int())
	require.Equal(t, int64(8), gjson.GetBytes(out, "usage.output_tokens").Int())
}

// sseEvents parses translated SSE output back into frames.
func sseEvents(t *testing.T, out []byte) []sse.Frame {
	t.Helper()
	var s sse.Splitter
	frames := s.Push(out)
	frames = append(frames, s.Flush()...)
	return frames
}

const anthropicToolUseUpstream = "data: {\"id\":\"c1\",\"created\":1736500000,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"tool_calls\":[{\"index\":0,\"id\":\"call_abc123\",\"function\":{\"name\":\"get_weather\",\"arguments\":\"\"}}]}}]}\n\n" +
	"data: {\"id\":\"c1\",\"created\":1736500000,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"{\\\"loc\"}}]}}]}\n\n" +
	"data: {\"id\":\"c1\",\"created\":1736500000,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"ation\\\":\\\"Beijing\\\"}\"}}]}}]}\n\n" +
	"data: {\"id\":\"c1\",\"created\":1736500000,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"tool_calls\"}],\"usage\":{\"prompt_tokens\":100,\"completion_tokens\":20}}\n\n" +
	"data: [DONE]\n\n"

func TestAnthropicToOpenAITranslator_StreamToolUse(t *testing.T) {
	tr := NewAnthropicToOpenAITranslator()
	tr.requestModel = "claude-sonnet-4"
	out, err := tr.ResponseStreamChunk([]byte(anthropicToolUseUpstream), true)
	require.NoError(t, err)

	events := sseEvents(t, out)
	types := make([]string, len(events))
	for i := range events {
		types[i] = events[i].Event
		require.Equal(t, events[i].Event, gjson.GetBytes(events[i].Data, "type").String())
	}
	require.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, types)

	start := events[1].Data
	require.Equal(t, int64(0), gjson.GetBytes(start, "index").Int())
	require.Equal(t, "tool_use", gjson.GetBytes(start, "content_block.type").String())
	require.Equal(t, "get_weather", gjson.GetBytes(start, "content_block.name").String())
	require.True(t, strings.HasPrefix(gjson.GetBytes(start, "content_block.id").String(), "call_"))
	require.JSONEq(t, `{}`, gjson.GetBytes(start, "content_block.input").Raw)

	// The accumulated arguments flush as a single input_json_delta.
	delta := events[2].Data
	require.Equal(t, "input_json_delta", gjson.GetBytes(delta, "delta.type").String())
	require.Equal(t, `{"location":"Beijing"}`, gjson.GetBytes(delta, "delta.partial_json").String())

	require.Equal(t, int64(0), gjson.GetBytes(events[3].Data, "index").Int())

	md := events[4].Data
	require.Equal(t, "tool_use", gjson.GetBytes(md, "delta.stop_reason").String())
	require.Equal(t, int64(100), gjson.GetBytes(md, "usage.input_tokens").Int())
	require.Equal(t, int64(20), gjson.GetBytes(md, "usage.output_tokens").Int())
	require.Equal(t, int64(0), gjson.GetBytes(md, "usage.cache_read_input_tokens").Int())
	require.Equal(t, int64(0), gjson.GetBytes(md, "usage.cache_creation_input_tokens").Int())
}

func TestAnthropicToOpenAITranslator_StreamTextThenTool(t *testing.T) {
	upstream := "data: {\"id\":\"c1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Checking\"}}]}\n\n" +
		"data: {\"id\":\"c1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"name\":\"get_weather\",\"arguments\":\"{}\"}}]}}]}\n\n" +
		"data: [DONE]\n\n"

	tr := NewAnthropicToOpenAITranslator()
	out, err := tr.ResponseStreamChunk([]byte(upstream), true)
	require.NoError(t, err)

	events := sseEvents(t, out)
	var types []string
	for i := range events {
		types = append(types, events[i].Event)
	}
	// Text block closes before the tool block opens; block indices grow.
	require.Equal(t, []string{
		"message_start",
		"content_block_start", // text, index 0
		"content_block_delta",
		"content_block_stop",
		"content_block_start", // tool_use, index 1
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, types)
	require.Equal(t, int64(0), gjson.GetBytes(events[1].Data, "index").Int())
	require.Equal(t, "text", gjson.GetBytes(events[1].Data, "content_block.type").String())
	require.Equal(t, int64(1), gjson.GetBytes(events[4].Data, "index").Int())
	require.Equal(t, "tool_use", gjson.GetBytes(events[4].Data, "content_block.type").String())
	require.Equal(t, int64(1), gjson.GetBytes(events[6].Data, "index").Int())
}

// Scenario: cached tokens reported on the frame carrying usage.
func TestAnthropicToOpenAITranslator_CachedTokens(t *testing.T) {
	upstream := "data: {\"id\":\"c1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hi\"},\"finish_reason\":null}],\"usage\":{\"prompt_tokens\":100,\"completion_tokens\":8,\"prompt_tokens_details\":{\"cached_tokens\":80}}}\n\n" +
		"data: {\"id\":\"c1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":100,\"completion_tokens\":8,\"prompt_tokens_details\":{\"cached_tokens\":80}}}\n\n" +
		"data: [DONE]\n\n"

	tr := NewAnthropicToOpenAITranslator()
	out, err := tr.ResponseStreamChunk([]byte(upstream), true)
	require.NoError(t, err)

	events := sseEvents(t, out)
	require.Equal(t, "message_start", events[0].Event)
	require.Equal(t, int64(20), gjson.GetBytes(events[0].Data, "message.usage.input_tokens").Int())
	require.Equal(t, int64(80), gjson.GetBytes(events[0].Data, "message.usage.cache_read_input_tokens").Int())

	// message_delta.usage.input_tokens + cache_read == upstream prompt_tokens.
	md := events[len(events)-2].Data
	require.Equal(t, "message_delta", gjson.GetBytes(md, "type").String())
	input := gjson.GetBytes(md, "usage.input_tokens").Int()
	cached := gjson.GetBytes(md, "usage.cache_read_input_tokens").Int()
	require.Equal(t, int64(100), input+cached)
}

func TestAnthropicToOpenAITranslator_RechunkInvariance(t *testing.T) {
	stream := []byte(anthropicToolUseUpstream)

	normalize := func(out []byte) []string {
		events := sseEvents(t, out)
		var got []string
		for i := range events {
			data, err := deleteVolatileIDs(events[i].Data)
			require.NoError(t, err)
			got = append(got, events[i].Event+" "+string(data))
		}
		return got
	}

	whole := NewAnthropicToOpenAITranslator()
	expected, err := whole.ResponseStreamChunk(stream, true)
	require.NoError(t, err)
	expectedNorm := normalize(expected)

	for k := 1; k < len(stream); k++ {
		tr := NewAnthropicToOpenAITranslator()
		part1, err := tr.ResponseStreamChunk(stream[:k], false)
		require.NoError(t, err)
		part2, err := tr.ResponseStreamChunk(stream[k:], true)
		require.NoError(t, err)
		require.Equal(t, expectedNorm, normalize(append(part1, part2...)), "split at %d", k)
	}
}

// No cross-stream leakage: a fresh translator after a completed stream
// starts from a clean state machine.
func TestAnthropicToOpenAITranslator_FreshStateIndependence(t *testing.T) {
	first := NewAnthropicToOpenAITranslator()
	_, err := first.ResponseStreamChunk([]byte(anthropicToolUseUpstream), true)
	require.NoError(t, err)

	second := NewAnthropicToOpenAITranslator()
	out, err := second.ResponseStreamChunk([]byte("data: {\"id\":\"c2\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"fresh\"}}]}\n\ndata: [DONE]\n\n"), true)
	require.NoError(t, err)

	events := sseEvents(t, out)
	require.Equal(t, "message_start", events[0].Event)
	require.Equal(t, int64(0), gjson.GetBytes(events[1].Data, "index").Int())
	require.Equal(t, "fresh", gjson.GetBytes(events[2].Data, "delta.text").String())
}
