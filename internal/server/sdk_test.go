// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"net/http"
	"testing"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"
)

// The official SDK clients are the strictest consumers of the gateway's
// wire output; these tests drive the gateway through them end to end.

func TestSDKRoundTrip_OpenAIChat(t *testing.T) {
	gateway, rec := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1","object":"chat.completion","created":1736500000,"model":"gpt-4o",
			"choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}
		}`))
	})

	client := openaisdk.NewClient(
		openaiopt.WithBaseURL(gateway.URL+"/v1"),
		openaiopt.WithAPIKey("unused"),
	)
	completion, err := client.Chat.Completions.New(t.Context(), openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModelGPT4o,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage("ping"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, "pong", completion.Choices[0].Message.Content)
	require.Equal(t, int64(3), completion.Usage.PromptTokens)

	_, sent := rec.get()
	require.NotEmpty(t, sent)
}

func TestSDKRoundTrip_OpenAIChatStreaming(t *testing.T) {
	gateway, _ := newTestGateway(t, serveSSE(upstreamTextStream))

	client := openaisdk.NewClient(
		openaiopt.WithBaseURL(gateway.URL+"/v1"),
		openaiopt.WithAPIKey("unused"),
	)
	stream := client.Chat.Completions.NewStreaming(t.Context(), openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModelGPT4o,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage("hi"),
		},
	})
	var text string
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			text += chunk.Choices[0].Delta.Content
		}
	}
	require.NoError(t, stream.Err())
	require.Equal(t, "Hello world.", text)
}

func TestSDKRoundTrip_AnthropicMessages(t *testing.T) {
	gateway, rec := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1","created":1736500000,"model":"gpt-4o",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hello back"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":4}
		}`))
	})

	client := anthropicsdk.NewClient(
		anthropicopt.WithBaseURL(gateway.URL),
		anthropicopt.WithAPIKey("unused"),
	)
	message, err := client.Messages.New(t.Context(), anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model("claude-sonnet-4"),
		MaxTokens: 64,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock("hello")),
		},
	})
	require.NoError(t, err)
	require.Len(t, message.Content, 1)
	require.Equal(t, "hello back", message.Content[0].Text)
	require.Equal(t, anthropicsdk.StopReasonEndTurn, message.StopReason)
	require.Equal(t, int64(12), message.Usage.InputTokens)

	_, sent := rec.get()
	// The SDK's model id passes through to the upstream payload.
	require.Contains(t, string(sent), "claude-sonnet-4")
}

func TestSDKRoundTrip_AnthropicMessagesStreaming(t *testing.T) {
	gateway, _ := newTestGateway(t, serveSSE(upstreamTextStream))

	client := anthropicsdk.NewClient(
		anthropicopt.WithBaseURL(gateway.URL),
		anthropicopt.WithAPIKey("unused"),
	)
	stream := client.Messages.NewStreaming(t.Context(), anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model("claude-sonnet-4"),
		MaxTokens: 64,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock("hi")),
		},
	})
	message := anthropicsdk.Message{}
	for stream.Next() {
		require.NoError(t, message.Accumulate(stream.Current()))
	}
	require.NoError(t, stream.Err())
	require.Len(t, message.Content, 1)
	require.Equal(t, "Hello world.", message.Content[0].Text)
	require.Equal(t, anthropicsdk.StopReasonEndTurn, message.StopReason)
}
