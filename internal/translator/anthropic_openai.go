// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"cmp"
	"fmt"
	"io"
	"strings"

	"k8s.io/utils/ptr"

	"github.com/ljie-PI/ghcp-ollama/internal/apischema/anthropic"
	"github.com/ljie-PI/ghcp-ollama/internal/apischema/openai"
	"github.com/ljie-PI/ghcp-ollama/internal/json"
	"github.com/ljie-PI/ghcp-ollama/internal/sse"
)

// AnthropicToOpenAITranslator serves /v1/messages: Anthropic Messages
// requests are converted to the upstream format, and the flat upstream delta
// stream is rebuilt into Anthropic's stateful message/content_block event
// life-cycle.
type AnthropicToOpenAITranslator struct {
	requestModel string
	stream       bool

	splitter sse.Splitter

	// Streaming state machine.
	messageStarted bool
	hasOpenBlock   bool
	blockIndex     int64 // Starts at -1; the index of the open block.
	blockType      string
	closingEmitted bool

	// Tool accumulators keyed by function name, matching the upstream
	// source's semantics: a second call to the same function in one turn
	// reuses the first accumulator. Known limitation.
	activeTools map[string]*anthropicToolAccumulator
	currentTool string

	inputTokens   float64
	outputTokens  float64
	cacheRead     float64
	cacheCreation float64
	stopReason    anthropic.StopReason
	messageID     string
	model         string
}

type anthropicToolAccumulator struct {
	id   string
	name string
	args string
}

// NewAnthropicToOpenAITranslator returns a translator for one request.
func NewAnthropicToOpenAITranslator() *AnthropicToOpenAITranslator {
	return &AnthropicToOpenAITranslator{
		blockIndex:  -1,
		activeTools: make(map[string]*anthropicToolAccumulator),
	}
}

// Streaming reports whether the request asked for a streamed response.
// Absence of the field means unary, unlike Ollama.
func (a *AnthropicToOpenAITranslator) Streaming() bool {
	return a.stream
}

// RequestBody converts an Anthropic Messages request to the upstream wire
// payload.
func (a *AnthropicToOpenAITranslator) RequestBody(req *anthropic.MessagesRequest) ([]byte, error) {
	a.requestModel = req.Model
	a.stream = req.Stream

	out := &openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Stream:      req.Stream,
	}
	if req.Stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if len(req.StopSequences) > 0 {
		out.Stop = req.StopSequences
	}
	if req.Metadata != nil && req.Metadata.UserID != nil {
		out.User = *req.Metadata.UserID
	}

	if system := systemPromptText(req.System); system != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Role:    openai.ChatMessageRoleSystem,
				Content: openai.ContentUnion{Value: system},
			},
		})
	}

	for i := range req.Messages {
		msg, err := anthropicMessageToOpenAI(&req.Messages[i])
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msg)
	}

	for i := range req.Tools {
		tool := req.Tools[i].Tool
		if tool == nil {
			// Server tools (web search, text editors, ...) have no upstream
			// equivalent and are dropped.
			continue
		}
		out.Tools = append(out.Tools, openai.Tool{
			Type: "function",
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	out.ToolChoice = anthropicToolChoiceToOpenAI(req.ToolChoice)

	return json.Marshal(out)
}

func systemPromptText(system *anthropic.SystemPrompt) string {
	if system == nil {
		return ""
	}
	if system.Text != "" {
		return system.Text
	}
	parts := make([]string, 0, len(system.Texts))
	for i := range system.Texts {
		parts = append(parts, system.Texts[i].Text)
	}
	return strings.Join(parts, "\n")
}

func anthropicToolChoiceToOpenAI(choice *anthropic.ToolChoice) any {
	if choice == nil {
		return nil
	}
	switch choice.Type {
	case "auto", "none":
		return choice.Type
	case "any":
		return "required"
	case "tool":
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": choice.Name},
		}
	default:
		return nil
	}
}

func anthropicMessageToOpenAI(msg *anthropic.MessageParam) (openai.ChatCompletionMessageParamUnion, error) {
	if msg.Role == anthropic.MessageRoleAssistant {
		return anthropicAssistantToOpenAI(msg)
	}

	out := &openai.ChatCompletionUserMessageParam{Role: openai.ChatMessageRoleUser}
	if msg.Content.Array == nil {
		out.Content = openai.StringOrUserRoleContentUnion{Value: msg.Content.Text}
		return openai.ChatCompletionMessageParamUnion{OfUser: out}, nil
	}

	var parts []openai.ChatCompletionContentPartUserUnionParam
	for i := range msg.Content.Array {
		block := &msg.Content.Array[i]
		switch {
		case block.Text != nil:
			parts = append(parts, openai.ChatCompletionContentPartUserUnionParam{
				TextContent: &openai.ChatCompletionContentPartTextParam{
					Type: openai.ChatCompletionContentPartTypeText,
					Text: block.Text.Text,
				},
			})
		case block.Image != nil:
			parts = append(parts, openai.ChatCompletionContentPartUserUnionParam{
				ImageContent: &openai.ChatCompletionContentPartImageParam{
					Type:     openai.ChatCompletionContentPartTypeImageURL,
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: anthropicImageURL(&block.Image.Source)},
				},
			})
		case block.ToolResult != nil:
			// Tool results ride along as tool-call-shaped entries on the
			// converted user message rather than as separate role:tool
			// messages, mirroring the upstream source's encoding.
			out.ToolCalls = append(out.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   ptr.To(block.ToolResult.ToolUseID),
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Arguments: toolResultText(block.ToolResult),
				},
			})
		default:
			// Thinking and unknown blocks do not translate; drop silently.
		}
	}
	// A single text part collapses to a plain string.
	if len(parts) == 1 && parts[0].TextContent != nil {
		out.Content = openai.StringOrUserRoleContentUnion{Value: parts[0].TextContent.Text}
	} else if parts != nil {
		out.Content = openai.StringOrUserRoleContentUnion{Value: parts}
	} else {
		out.Content = openai.StringOrUserRoleContentUnion{Value: ""}
	}
	return openai.ChatCompletionMessageParamUnion{OfUser: out}, nil
}

func anthropicAssistantToOpenAI(msg *anthropic.MessageParam) (openai.ChatCompletionMessageParamUnion, error) {
	out := &openai.ChatCompletionAssistantMessageParam{Role: openai.ChatMessageRoleAssistant}
	if msg.Content.Array == nil {
		out.Content = openai.StringOrAssistantRoleContentUnion{Value: msg.Content.Text}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: out}, nil
	}

	var text strings.Builder
	for i := range msg.Content.Array {
		block := &msg.Content.Array[i]
		switch {
		case block.Text != nil:
			text.WriteString(block.Text.Text)
		case block.ToolUse != nil:
			args, err := json.Marshal(block.ToolUse.Input)
			if err != nil {
				return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("failed to marshal tool input: %w", err)
			}
			out.ToolCalls = append(out.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   ptr.To(block.ToolUse.ID),
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      block.ToolUse.Name,
					Arguments: string(args),
				},
			})
		default:
			// Thinking blocks are dropped; the upstream has no slot for them.
		}
	}
	if text.Len() > 0 || len(out.ToolCalls) == 0 {
		out.Content = openai.StringOrAssistantRoleContentUnion{Value: text.String()}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: out}, nil
}

func anthropicImageURL(source *anthropic.ImageSource) string {
	if source.Type == "url" {
		return source.URL
	}
	return dataURL(cmp.Or(source.MediaType, "image/jpeg"), source.Data)
}

// toolResultText flattens tool result content to a plain string; array form
// contributes only its text blocks.
func toolResultText(result *anthropic.ToolResultBlockParam) string {
	if result.Content == nil {
		return ""
	}
	if result.Content.Array == nil {
		return result.Content.Text
	}
	var b strings.Builder
	for i := range result.Content.Array {
		if text := result.Content.Array[i].Text; text != nil {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

// IsVisionRequest reports whether any message carries an image block.
func (a *AnthropicToOpenAITranslator) IsVisionRequest(req *anthropic.MessagesRequest) bool {
	for i := range req.Messages {
		for j := range req.Messages[i].Content.Array {
			if req.Messages[i].Content.Array[j].Image != nil {
				return true
			}
		}
	}
	return false
}

// ResponseBody translates a unary upstream response into an Anthropic
// Messages response.
func (a *AnthropicToOpenAITranslator) ResponseBody(body io.Reader) ([]byte, error) {
	var resp openai.ChatCompletionResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}

	out := anthropic.MessagesResponse{
		ID:      newID(messageIDPrefix),
		Type:    "message",
		Role:    "assistant",
		Content: []anthropic.MessagesContentBlock{},
		Model:   cmp.Or(a.requestModel, resp.Model),
		Usage:   anthropicUsage(&resp.Usage),
	}

	var text strings.Builder
	var toolBlocks []anthropic.MessagesContentBlock
	for i := range resp.Choices {
		choice := &resp.Choices[i]
		if choice.Message.Content != nil {
			text.WriteString(*choice.Message.Content)
		}
		for _, call := range choice.Message.ToolCalls {
			id := newID(callIDPrefix)
			if call.ID != nil {
				id = *call.ID
			}
			toolBlocks = append(toolBlocks, anthropic.MessagesContentBlock{
				Tool: &anthropic.ToolUseBlock{
					Type:  "tool_use",
					ID:    id,
					Name:  call.Function.Name,
					Input: decodeToolArguments(call.Function.Arguments),
				},
			})
		}
		if i == 0 && choice.FinishReason != "" {
			out.StopReason = ptr.To(anthropicStopReason(choice.FinishReason))
		}
	}
	if text.Len() > 0 {
		out.Content = append(out.Content, anthropic.MessagesContentBlock{
			Text: &anthropic.TextBlock{Type: "text", Text: text.String()},
		})
	}
	out.Content = append(out.Content, toolBlocks...)

	return json.Marshal(out)
}

func anthropicUsage(usage *openai.Usage) anthropic.Usage {
	out := anthropic.Usage{
		InputTokens:  float64(usage.PromptTokens),
		OutputTokens: float64(usage.CompletionTokens),
	}
	if details := usage.PromptTokensDetails; details != nil {
		out.CacheReadInputTokens = float64(details.CachedTokens)
		out.InputTokens = float64(usage.PromptTokens - details.CachedTokens)
	}
	return out
}

func anthropicStopReason(reason openai.ChatCompletionChoicesFinishReason) anthropic.StopReason {
	switch reason {
	case openai.ChatCompletionChoicesFinishReasonLength:
		return anthropic.StopReasonMaxTokens
	case openai.ChatCompletionChoicesFinishReasonToolCalls:
		return anthropic.StopReasonToolUse
	case openai.ChatCompletionChoicesFinishReasonContentFilter:
		return anthropic.StopReasonRefusal
	default:
		return anthropic.StopReasonEndTurn
	}
}

// ResponseStreamChunk rebuilds the Anthropic event life-cycle from upstream
// deltas. Text deltas stream through immediately; tool-call arguments buffer
// in their accumulator and flush as a single input_json_delta when the block
// closes, matching the upstream source's behavior.
func (a *AnthropicToOpenAITranslator) ResponseStreamChunk(chunk []byte, endOfStream bool) ([]byte, error) {
	frames := a.splitter.Push(chunk)
	if endOfStream {
		frames = append(frames, a.splitter.Flush()...)
	}
	var out []byte
	var err error
	for i := range frames {
		if a.closingEmitted {
			break
		}
		if frames[i].IsDone() {
			if out, err = a.emitClosing(out); err != nil {
				return nil, err
			}
			continue
		}
		var parsed openai.ChatCompletionResponseChunk
		if err = json.Unmarshal(frames[i].Data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode upstream frame: %w", err)
		}
		if out, err = a.handleChunk(out, &parsed); err != nil {
			return nil, err
		}
	}
	if endOfStream && !a.closingEmitted {
		return a.emitClosing(out)
	}
	return out, nil
}

func (a *AnthropicToOpenAITranslator) handleChunk(out []byte, parsed *openai.ChatCompletionResponseChunk) ([]byte, error) {
	if parsed.Usage != nil {
		a.recordUsage(parsed.Usage)
	}

	var err error
	if !a.messageStarted {
		a.messageStarted = true
		a.messageID = newID(messageIDPrefix)
		a.model = cmp.Or(a.requestModel, parsed.Model)
		if out, err = a.appendEvent(out, anthropic.StreamEventTypeMessageStart, anthropic.MessageStartEvent{
			Type: anthropic.StreamEventTypeMessageStart,
			Message: anthropic.MessagesResponse{
				ID:      a.messageID,
				Type:    "message",
				Role:    "assistant",
				Content: []anthropic.MessagesContentBlock{},
				Model:   a.model,
				Usage:   a.usage(0),
			},
		}); err != nil {
			return nil, err
		}
	}

	for i := range parsed.Choices {
		choice := &parsed.Choices[i]
		if choice.FinishReason != "" {
			a.stopReason = anthropicStopReason(choice.FinishReason)
		}
		delta := choice.Delta
		if delta == nil {
			continue
		}
		if delta.Content != nil && *delta.Content != "" {
			if out, err = a.handleTextDelta(out, *delta.Content); err != nil {
				return nil, err
			}
		}
		for j := range delta.ToolCalls {
			if out, err = a.handleToolDelta(out, &delta.ToolCalls[j]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (a *AnthropicToOpenAITranslator) handleTextDelta(out []byte, text string) ([]byte, error) {
	var err error
	if a.hasOpenBlock && a.blockType != "text" {
		if out, err = a.closeBlock(out); err != nil {
			return nil, err
		}
	}
	if !a.hasOpenBlock {
		a.blockIndex++
		a.hasOpenBlock = true
		a.blockType = "text"
		if out, err = a.appendEvent(out, anthropic.StreamEventTypeContentBlockStart, anthropic.ContentBlockStartEvent{
			Type:         anthropic.StreamEventTypeContentBlockStart,
			Index:        a.blockIndex,
			ContentBlock: anthropic.MessagesContentBlock{Text: &anthropic.TextBlock{Type: "text"}},
		}); err != nil {
			return nil, err
		}
	}
	return a.appendEvent(out, anthropic.StreamEventTypeContentBlockDelta, anthropic.ContentBlockDeltaEvent{
		Type:  anthropic.StreamEventTypeContentBlockDelta,
		Index: a.blockIndex,
		Delta: anthropic.ContentBlockDelta{Type: anthropic.ContentBlockDeltaTypeText, Text: text},
	})
}

func (a *AnthropicToOpenAITranslator) handleToolDelta(out []byte, toolDelta *openai.ChatCompletionChunkChoiceDeltaToolCall) ([]byte, error) {
	var err error
	if name := toolDelta.Function.Name; name != "" {
		if _, exists := a.activeTools[name]; !exists {
			id := newID(callIDPrefix)
			if toolDelta.ID != nil && *toolDelta.ID != "" {
				id = *toolDelta.ID
			}
			a.activeTools[name] = &anthropicToolAccumulator{id: id, name: name}
			if a.hasOpenBlock {
				if out, err = a.closeBlock(out); err != nil {
					return nil, err
				}
			}
			a.blockIndex++
			a.hasOpenBlock = true
			a.blockType = "tool_use"
			if out, err = a.appendEvent(out, anthropic.StreamEventTypeContentBlockStart, anthropic.ContentBlockStartEvent{
				Type:  anthropic.StreamEventTypeContentBlockStart,
				Index: a.blockIndex,
				ContentBlock: anthropic.MessagesContentBlock{
					Tool: &anthropic.ToolUseBlock{Type: "tool_use", ID: id, Name: name, Input: map[string]any{}},
				},
			}); err != nil {
				return nil, err
			}
		}
		a.currentTool = name
	}
	if args := toolDelta.Function.Arguments; args != "" && a.currentTool != "" {
		a.activeTools[a.currentTool].args += args
	}
	// An arguments delta ahead of any name is malformed; skip it rather
	// than failing the stream.
	return out, nil
}

// closeBlock emits the buffered input_json_delta of an open tool block, then
// content_block_stop.
func (a *AnthropicToOpenAITranslator) closeBlock(out []byte) ([]byte, error) {
	var err error
	if a.blockType == "tool_use" && a.currentTool != "" {
		acc := a.activeTools[a.currentTool]
		if out, err = a.appendEvent(out, anthropic.StreamEventTypeContentBlockDelta, anthropic.ContentBlockDeltaEvent{
			Type:  anthropic.StreamEventTypeContentBlockDelta,
			Index: a.blockIndex,
			Delta: anthropic.ContentBlockDelta{Type: anthropic.ContentBlockDeltaTypeInputJSON, PartialJSON: &acc.args},
		}); err != nil {
			return nil, err
		}
	}
	a.hasOpenBlock = false
	return a.appendEvent(out, anthropic.StreamEventTypeContentBlockStop, anthropic.ContentBlockStopEvent{
		Type:  anthropic.StreamEventTypeContentBlockStop,
		Index: a.blockIndex,
	})
}

func (a *AnthropicToOpenAITranslator) emitClosing(out []byte) ([]byte, error) {
	a.closingEmitted = true
	var err error
	if a.hasOpenBlock {
		if out, err = a.closeBlock(out); err != nil {
			return nil, err
		}
	}
	if out, err = a.appendEvent(out, anthropic.StreamEventTypeMessageDelta, anthropic.MessageDeltaEvent{
		Type: anthropic.StreamEventTypeMessageDelta,
		Delta: anthropic.MessageDeltaDelta{
			StopReason:   cmp.Or(a.stopReason, anthropic.StopReasonEndTurn),
			StopSequence: nil,
		},
		Usage: a.usage(a.outputTokens),
	}); err != nil {
		return nil, err
	}
	return a.appendEvent(out, anthropic.StreamEventTypeMessageStop, anthropic.MessageStopEvent{
		Type: anthropic.StreamEventTypeMessageStop,
	})
}

func (a *AnthropicToOpenAITranslator) recordUsage(usage *openai.Usage) {
	a.inputTokens = float64(usage.PromptTokens)
	a.outputTokens = float64(usage.CompletionTokens)
	if details := usage.PromptTokensDetails; details != nil {
		a.cacheRead = float64(details.CachedTokens)
		a.inputTokens = float64(usage.PromptTokens - details.CachedTokens)
	}
}

func (a *AnthropicToOpenAITranslator) usage(outputTokens float64) anthropic.Usage {
	return anthropic.Usage{
		InputTokens:              a.inputTokens,
		OutputTokens:             outputTokens,
		CacheReadInputTokens:     a.cacheRead,
		CacheCreationInputTokens: a.cacheCreation,
	}
}

func (a *AnthropicToOpenAITranslator) appendEvent(out []byte, eventType string, event any) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return sse.AppendEvent(out, eventType, data), nil
}
