// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ljie-PI/ghcp-ollama/internal/apischema/openai"
	"github.com/ljie-PI/ghcp-ollama/internal/json"
)

func TestOpenAIChatTranslator_RequestBodyPassthrough(t *testing.T) {
	// Unknown fields must survive byte for byte.
	in := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"some_future_field":{"a":1}}`)
	out, err := NewOpenAIChatTranslator().RequestBody(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestOpenAIChatTranslator_ResponseBodyPassthrough(t *testing.T) {
	in := `{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi"}}]}`
	out, err := NewOpenAIChatTranslator().ResponseBody(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, in, string(out))
}

func TestIsVisionRequest(t *testing.T) {
	var req openai.ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"model":"gpt-4o",
		"messages":[{"role":"user","content":[
			{"type":"text","text":"what?"},
			{"type":"image_url","image_url":{"url":"data:image/png;base64,iVBOR"}}
		]}]
	}`), &req))
	require.True(t, IsVisionRequest(req.Messages))

	require.NoError(t, json.Unmarshal([]byte(`{
		"model":"gpt-4o",
		"messages":[{"role":"user","content":"plain"}]
	}`), &req))
	require.False(t, IsVisionRequest(req.Messages))
}

func TestOpenAIChatTranslator_ResponseStreamChunk(t *testing.T) {
	upstream := "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}\n\n" +
		"data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
		"data: [DONE]\n\n"

	tr := NewOpenAIChatTranslator()
	out, err := tr.ResponseStreamChunk([]byte(upstream), true)
	require.NoError(t, err)
	// Frames re-emitted as-is, the upstream [DONE] stripped.
	require.Equal(t,
		"data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}\n\n"+
			"data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n",
		string(out))
}

func TestOpenAIChatTranslator_FramesAfterDoneDropped(t *testing.T) {
	tr := NewOpenAIChatTranslator()
	out, err := tr.ResponseStreamChunk([]byte("data: [DONE]\n\ndata: {\"late\":true}\n\n"), true)
	require.NoError(t, err)
	require.Empty(t, out)
}
