// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"cmp"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/sjson"
	"k8s.io/utils/ptr"

	"github.com/ljie-PI/ghcp-ollama/internal/apischema/ollama"
	"github.com/ljie-PI/ghcp-ollama/internal/apischema/openai"
	"github.com/ljie-PI/ghcp-ollama/internal/json"
	"github.com/ljie-PI/ghcp-ollama/internal/sse"
)

// OllamaToOpenAITranslator serves /api/chat: Ollama chat requests are
// converted to the upstream format, and the upstream SSE stream is rendered
// back as Ollama NDJSON frames.
type OllamaToOpenAITranslator struct {
	requestModel string
	stream       bool

	splitter sse.Splitter
	done     bool

	// Tool-call accumulators keyed by function name, in first-seen order.
	// Keying by name mirrors Ollama's one-name = one-accumulator semantics:
	// two parallel calls to the same function overwrite each other. Known
	// limitation, kept for compatibility.
	toolOrder []string
	tools     map[string]*ollamaToolAccumulator

	createdAt  time.Time
	doneReason string
	metrics    ollama.Metrics
}

type ollamaToolAccumulator struct {
	name string
	args string
}

// NewOllamaToOpenAITranslator returns a translator for one request.
func NewOllamaToOpenAITranslator() *OllamaToOpenAITranslator {
	return &OllamaToOpenAITranslator{tools: make(map[string]*ollamaToolAccumulator)}
}

// Streaming reports whether the request asked for a streamed response.
// Ollama defaults to streaming when the field is absent.
func (t *OllamaToOpenAITranslator) Streaming() bool {
	return t.stream
}

// RequestBody converts an Ollama chat request to the upstream wire payload.
// Option keys are spread flat onto the payload after marshaling, so sampling
// parameters the gateway does not model still reach the upstream.
func (t *OllamaToOpenAITranslator) RequestBody(req *ollama.ChatRequest) ([]byte, error) {
	t.requestModel = req.Model
	t.stream = req.Stream == nil || *req.Stream

	out := &openai.ChatCompletionRequest{
		Model:  req.Model,
		Stream: t.stream,
	}
	if t.stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	for i := range req.Messages {
		msg, err := ollamaMessageToOpenAI(&req.Messages[i])
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: cmp.Or(tool.Type, "function"),
			Function: &openai.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	if format, ok := req.Format.(string); ok && format == "json" {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream request: %w", err)
	}
	for key, value := range req.Options {
		if key == "num_predict" {
			key = "max_tokens"
		}
		if body, err = sjson.SetBytes(body, key, value); err != nil {
			return nil, fmt.Errorf("failed to set option %q: %w", key, err)
		}
	}
	return body, nil
}

func ollamaMessageToOpenAI(msg *ollama.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case "system":
		return openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Role:    openai.ChatMessageRoleSystem,
				Content: openai.ContentUnion{Value: msg.Content},
			},
		}, nil
	case "assistant":
		out := &openai.ChatCompletionAssistantMessageParam{
			Role:    openai.ChatMessageRoleAssistant,
			Content: openai.StringOrAssistantRoleContentUnion{Value: msg.Content},
		}
		for _, call := range msg.ToolCalls {
			args, err := json.Marshal(call.Function.Arguments)
			if err != nil {
				return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("failed to marshal tool arguments: %w", err)
			}
			out.ToolCalls = append(out.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   ptr.To(newID(callIDPrefix)),
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      call.Function.Name,
					Arguments: string(args),
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: out}, nil
	case "tool", "function":
		return openai.ChatCompletionMessageParamUnion{
			OfTool: &openai.ChatCompletionToolMessageParam{
				Role:       msg.Role,
				Content:    openai.ContentUnion{Value: msg.Content},
				ToolCallID: msg.ToolCallID,
				Name:       msg.ToolName,
			},
		}, nil
	default: // "user" and anything unrecognized.
		out := &openai.ChatCompletionUserMessageParam{Role: openai.ChatMessageRoleUser}
		if len(msg.Images) == 0 {
			out.Content = openai.StringOrUserRoleContentUnion{Value: msg.Content}
			return openai.ChatCompletionMessageParamUnion{OfUser: out}, nil
		}
		parts := []openai.ChatCompletionContentPartUserUnionParam{{
			TextContent: &openai.ChatCompletionContentPartTextParam{
				Type: openai.ChatCompletionContentPartTypeText,
				Text: msg.Content,
			},
		}}
		for _, img := range msg.Images {
			parts = append(parts, openai.ChatCompletionContentPartUserUnionParam{
				ImageContent: &openai.ChatCompletionContentPartImageParam{
					Type: openai.ChatCompletionContentPartTypeImageURL,
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
						URL: dataURL(detectImageMIME(img), img),
					},
				},
			})
		}
		out.Content = openai.StringOrUserRoleContentUnion{Value: parts}
		return openai.ChatCompletionMessageParamUnion{OfUser: out}, nil
	}
}

// IsVisionRequest reports whether any message carries images.
func (t *OllamaToOpenAITranslator) IsVisionRequest(req *ollama.ChatRequest) bool {
	for i := range req.Messages {
		if len(req.Messages[i].Images) > 0 {
			return true
		}
	}
	return false
}

// ResponseBody translates a unary upstream response into a single Ollama
// chat response.
func (t *OllamaToOpenAITranslator) ResponseBody(body io.Reader) ([]byte, error) {
	var resp openai.ChatCompletionResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}

	out := ollama.ChatResponse{
		Model:     cmp.Or(t.requestModel, resp.Model),
		CreatedAt: time.Time(resp.Created),
		Message:   ollama.Message{Role: "assistant"},
		Done:      true,
		Metrics: ollama.Metrics{
			PromptEvalCount: resp.Usage.PromptTokens,
			EvalCount:       resp.Usage.CompletionTokens,
		},
	}
	for i := range resp.Choices {
		choice := &resp.Choices[i]
		if choice.Message.Content != nil {
			out.Message.Content += *choice.Message.Content
		}
		if choice.Message.ReasoningContent != nil {
			out.Message.Thinking += *choice.Message.ReasoningContent
		}
		for _, call := range choice.Message.ToolCalls {
			out.Message.ToolCalls = append(out.Message.ToolCalls, ollama.ToolCall{
				Function: ollama.ToolCallFunction{
					Name:      call.Function.Name,
					Arguments: decodeToolArguments(call.Function.Arguments),
				},
			})
		}
		if i == 0 {
			out.DoneReason = ollamaDoneReason(choice.FinishReason)
		}
	}
	return json.Marshal(out)
}

// ResponseStreamChunk renders completed upstream frames as NDJSON. Text
// deltas are forwarded immediately; tool-call deltas accumulate until the
// [DONE] sentinel, which flushes one tool_calls frame (done:false) followed
// by the terminal done:true frame carrying the usage counters.
func (t *OllamaToOpenAITranslator) ResponseStreamChunk(chunk []byte, endOfStream bool) ([]byte, error) {
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
			var err error
			if out, err = t.finalize(out); err != nil {
				return nil, err
			}
			continue
		}
		var parsed openai.ChatCompletionResponseChunk
		if err := json.Unmarshal(frames[i].Data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode upstream frame: %w", err)
		}
		var err error
		if out, err = t.handleChunk(out, &parsed); err != nil {
			return nil, err
		}
	}
	if endOfStream && !t.done {
		// The upstream closed without a [DONE] sentinel; flush anyway so the
		// client still observes a terminal frame.
		return t.finalize(out)
	}
	return out, nil
}

func (t *OllamaToOpenAITranslator) handleChunk(out []byte, parsed *openai.ChatCompletionResponseChunk) ([]byte, error) {
	if created := time.Time(parsed.Created); !created.IsZero() {
		t.createdAt = created
	}
	if parsed.Usage != nil {
		t.metrics.PromptEvalCount = parsed.Usage.PromptTokens
		t.metrics.EvalCount = parsed.Usage.CompletionTokens
	}
	for i := range parsed.Choices {
		choice := &parsed.Choices[i]
		if choice.FinishReason != "" {
			t.doneReason = ollamaDoneReason(choice.FinishReason)
		}
		delta := choice.Delta
		if delta == nil {
			continue
		}
		for _, toolDelta := range delta.ToolCalls {
			t.accumulateToolCall(&toolDelta)
		}
		msg := ollama.Message{Role: "assistant"}
		emit := false
		if delta.Content != nil && *delta.Content != "" {
			msg.Content = *delta.Content
			emit = true
		}
		if delta.ReasoningContent != nil && *delta.ReasoningContent != "" {
			msg.Thinking = *delta.ReasoningContent
			emit = true
		}
		if emit {
			var err error
			if out, err = t.appendFrame(out, ollama.ChatResponse{
				Model:     cmp.Or(t.requestModel, parsed.Model),
				CreatedAt: t.createdAt,
				Message:   msg,
			}); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// accumulateToolCall folds one tool-call delta into the name-keyed
// accumulators. A delta carrying a name opens (or replaces) the accumulator
// for that name; argument fragments append to the most recently named call.
func (t *OllamaToOpenAITranslator) accumulateToolCall(toolDelta *openai.ChatCompletionChunkChoiceDeltaToolCall) {
	if name := toolDelta.Function.Name; name != "" {
		if _, ok := t.tools[name]; !ok {
			t.toolOrder = append(t.toolOrder, name)
		}
		t.tools[name] = &ollamaToolAccumulator{name: name}
	}
	if toolDelta.Function.Arguments == "" || len(t.toolOrder) == 0 {
		return
	}
	// Argument fragments arrive without a name; attach to the last opened
	// call. Malformed deltas before any name are skipped.
	last := t.tools[t.toolOrder[len(t.toolOrder)-1]]
	last.args += toolDelta.Function.Arguments
}

// finalize emits the buffered tool calls (done:false) and the terminal frame.
func (t *OllamaToOpenAITranslator) finalize(out []byte) ([]byte, error) {
	t.done = true
	if len(t.toolOrder) > 0 {
		msg := ollama.Message{Role: "assistant"}
		for _, name := range t.toolOrder {
			acc := t.tools[name]
			msg.ToolCalls = append(msg.ToolCalls, ollama.ToolCall{
				Function: ollama.ToolCallFunction{
					Name:      acc.name,
					Arguments: decodeToolArguments(acc.args),
				},
			})
		}
		var err error
		if out, err = t.appendFrame(out, ollama.ChatResponse{
			Model:     t.requestModel,
			CreatedAt: t.createdAt,
			Message:   msg,
		}); err != nil {
			return nil, err
		}
	}
	return t.appendFrame(out, ollama.ChatResponse{
		Model:      t.requestModel,
		CreatedAt:  t.createdAt,
		Message:    ollama.Message{Role: "assistant"},
		Done:       true,
		DoneReason: cmp.Or(t.doneReason, "stop"),
		Metrics:    t.metrics,
	})
}

func (t *OllamaToOpenAITranslator) appendFrame(out []byte, frame ollama.ChatResponse) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	out = append(out, data...)
	return append(out, "\n\n"...), nil
}

func ollamaDoneReason(reason openai.ChatCompletionChoicesFinishReason) string {
	if reason == openai.ChatCompletionChoicesFinishReasonLength {
		return "length"
	}
	return "stop"
}
