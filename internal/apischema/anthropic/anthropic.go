// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package anthropic contains the schema for the Anthropic Messages API as
// exposed on /v1/messages. The request side is decoded for translation to the
// OpenAI format; the response side is built by the gateway, so the stream
// event types here are marshal-oriented.
package anthropic

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ljie-PI/ghcp-ollama/internal/json"
)

// MessagesRequest represents a request to the Anthropic Messages API.
// https://docs.claude.com/en/api/messages
type MessagesRequest struct {
	Model string `json:"model"`

	// Messages is the list of messages in the conversation.
	// https://docs.claude.com/en/api/messages#body-messages
	Messages []MessageParam `json:"messages"`

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens *int64 `json:"max_tokens,omitempty"`

	// System is the system prompt, a plain string or an array of text blocks.
	// https://docs.claude.com/en/api/messages#body-system
	System *SystemPrompt `json:"system,omitempty"`

	// StopSequences is the list of stop sequences.
	StopSequences []string `json:"stop_sequences,omitempty"`

	// Metadata carries an optional user identifier.
	Metadata *MessagesMetadata `json:"metadata,omitempty"`

	// ToolChoice indicates the tool choice for the model.
	// https://docs.claude.com/en/api/messages#body-tool-choice
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`

	// Tools is the list of tools available to the model.
	// https://docs.claude.com/en/api/messages#body-tools
	Tools []ToolUnion `json:"tools,omitempty"`

	// Thinking is the configuration for the model's "thinking" behavior.
	// It has no OpenAI-format equivalent and is dropped in translation.
	Thinking *Thinking `json:"thinking,omitempty"`

	Stream      bool     `json:"stream,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
}

// MessageParam represents a single message in the conversation.
type MessageParam struct {
	// Role is "user" or "assistant".
	Role MessageRole `json:"role"`

	Content MessageContent `json:"content"`
}

// MessageRole represents the role of a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// MessageContent is either a plain string or an array of content blocks.
// https://docs.claude.com/en/api/messages#body-messages-content
type MessageContent struct {
	Text  string              // Non-empty if this is not array content.
	Array []ContentBlockParam // Non-empty if this is array content.
}

func (m *MessageContent) UnmarshalJSON(data []byte) error {
	// Try to unmarshal as string first.
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		m.Text = text
		return nil
	}

	var array []ContentBlockParam
	if err := json.Unmarshal(data, &array); err == nil {
		m.Array = array
		return nil
	}
	return fmt.Errorf("message content must be either text or array")
}

func (m *MessageContent) MarshalJSON() ([]byte, error) {
	if m.Text != "" {
		return json.Marshal(m.Text)
	}
	if len(m.Array) > 0 {
		return json.Marshal(m.Array)
	}
	return nil, fmt.Errorf("message content must have either text or array")
}

type (
	// ContentBlockParam represents an element of the array content in a message.
	// https://docs.claude.com/en/api/messages#body-messages-content
	ContentBlockParam struct {
		Text             *TextBlockParam
		Image            *ImageBlockParam
		Thinking         *ThinkingBlockParam
		RedactedThinking *RedactedThinkingBlockParam
		ToolUse          *ToolUseBlockParam
		ToolResult       *ToolResultBlockParam
	}

	// TextBlockParam represents a text content block.
	TextBlockParam struct {
		Text         string `json:"text"`
		Type         string `json:"type"` // Always "text".
		CacheControl any    `json:"cache_control,omitempty"`
	}

	// ImageBlockParam represents an image content block.
	ImageBlockParam struct {
		Type         string      `json:"type"` // Always "image".
		Source       ImageSource `json:"source"`
		CacheControl any         `json:"cache_control,omitempty"`
	}

	// ImageSource locates image bytes, either inline base64 or a URL.
	ImageSource struct {
		Type string `json:"type"` // "base64" or "url".
		// MediaType and Data are set for base64 sources.
		MediaType string `json:"media_type,omitempty"`
		Data      string `json:"data,omitempty"`
		// URL is set for url sources.
		URL string `json:"url,omitempty"`
	}

	// ThinkingBlockParam represents a thinking content block in a request.
	ThinkingBlockParam struct {
		Type      string `json:"type"` // Always "thinking".
		Thinking  string `json:"thinking"`
		Signature string `json:"signature,omitempty"`
	}

	// RedactedThinkingBlockParam represents a redacted thinking content block.
	RedactedThinkingBlockParam struct {
		Type string `json:"type"` // Always "redacted_thinking".
		Data string `json:"data"`
	}

	// ToolUseBlockParam represents a tool use content block in a request.
	ToolUseBlockParam struct {
		Type         string         `json:"type"` // Always "tool_use".
		ID           string         `json:"id"`
		Name         string         `json:"name"`
		Input        map[string]any `json:"input"`
		CacheControl any            `json:"cache_control,omitempty"`
	}

	// ToolResultBlockParam represents a tool result content block.
	ToolResultBlockParam struct {
		Type         string             `json:"type"` // Always "tool_result".
		ToolUseID    string             `json:"tool_use_id"`
		Content      *ToolResultContent `json:"content,omitempty"`
		IsError      bool               `json:"is_error,omitempty"`
		CacheControl any                `json:"cache_control,omitempty"`
	}

	// ToolResultContent is a string or an array of content blocks; in the
	// array form only text blocks carry translatable content.
	ToolResultContent struct {
		Text  string
		Array []ContentBlockParam
	}
)

func (t *ToolResultContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		t.Text = text
		return nil
	}
	var array []ContentBlockParam
	if err := json.Unmarshal(data, &array); err == nil {
		t.Array = array
		return nil
	}
	return fmt.Errorf("tool result content must be either text or array")
}

func (t *ToolResultContent) MarshalJSON() ([]byte, error) {
	if t.Array != nil {
		return json.Marshal(t.Array)
	}
	return json.Marshal(t.Text)
}

func (m *ContentBlockParam) UnmarshalJSON(data []byte) error {
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return errors.New("missing type field in message content block")
	}
	switch typ.String() {
	case "text":
		var block TextBlockParam
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal text block: %w", err)
		}
		m.Text = &block
	case "image":
		var block ImageBlockParam
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal image block: %w", err)
		}
		m.Image = &block
	case "thinking":
		var block ThinkingBlockParam
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal thinking block: %w", err)
		}
		m.Thinking = &block
	case "redacted_thinking":
		var block RedactedThinkingBlockParam
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal redacted thinking block: %w", err)
		}
		m.RedactedThinking = &block
	case "tool_use":
		var block ToolUseBlockParam
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal tool use block: %w", err)
		}
		m.ToolUse = &block
	case "tool_result":
		var block ToolResultBlockParam
		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("failed to unmarshal tool result block: %w", err)
		}
		m.ToolResult = &block
	default:
		// Ignore unknown types for forward compatibility.
		return nil
	}
	return nil
}

func (m *ContentBlockParam) MarshalJSON() ([]byte, error) {
	if m.Text != nil {
		return json.Marshal(m.Text)
	}
	if m.Image != nil {
		return json.Marshal(m.Image)
	}
	if m.Thinking != nil {
		return json.Marshal(m.Thinking)
	}
	if m.RedactedThinking != nil {
		return json.Marshal(m.RedactedThinking)
	}
	if m.ToolUse != nil {
		return json.Marshal(m.ToolUse)
	}
	if m.ToolResult != nil {
		return json.Marshal(m.ToolResult)
	}
	return nil, fmt.Errorf("content block must have a defined type")
}

// MessagesMetadata represents the metadata for a Messages API request.
type MessagesMetadata struct {
	// UserID is an optional user identifier for tracking purposes.
	UserID *string `json:"user_id,omitempty"`
}

type (
	// ToolUnion represents a tool available to the model. Only custom tools
	// translate to the OpenAI format; server tools are kept opaque so they
	// can be rejected with a useful message instead of a decode error.
	ToolUnion struct {
		Tool *Tool
		// ServerToolType is set when the tool is an Anthropic server tool
		// (web_search_20250305, bash_20250124, text editors, ...).
		ServerToolType string
	}

	// Tool represents a custom tool definition.
	// https://docs.claude.com/en/api/messages#body-tools
	Tool struct {
		// Type is "custom" or absent for custom tools.
		Type         string         `json:"type,omitempty"`
		Name         string         `json:"name"`
		Description  string         `json:"description,omitempty"`
		InputSchema  map[string]any `json:"input_schema"`
		CacheControl any            `json:"cache_control,omitempty"`
	}
)

func (t *ToolUnion) UnmarshalJSON(data []byte) error {
	typ := gjson.GetBytes(data, "type").String()
	switch typ {
	case "", "custom":
		var tool Tool
		if err := json.Unmarshal(data, &tool); err != nil {
			return fmt.Errorf("failed to unmarshal tool: %w", err)
		}
		t.Tool = &tool
	default:
		t.ServerToolType = typ
	}
	return nil
}

func (t *ToolUnion) MarshalJSON() ([]byte, error) {
	if t.Tool != nil {
		return json.Marshal(t.Tool)
	}
	return nil, fmt.Errorf("tool union must have a defined type")
}

// ToolChoice represents the tool choice for the model.
// https://docs.claude.com/en/api/messages#body-tool-choice
type ToolChoice struct {
	// Type is "auto", "any", "tool", or "none".
	Type string `json:"type"`
	// Name is set when Type is "tool".
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse *bool  `json:"disable_parallel_tool_use,omitempty"`
}

// Thinking represents the configuration for the model's "thinking" behavior.
// https://docs.claude.com/en/api/messages#body-thinking
type Thinking struct {
	Type         string `json:"type"` // "enabled" or "disabled".
	BudgetTokens int64  `json:"budget_tokens,omitempty"`
}

// SystemPrompt represents a system prompt, a string or text block array.
// https://docs.claude.com/en/api/messages#body-system
type SystemPrompt struct {
	Text  string
	Texts []TextBlockParam
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		s.Text = text
		return nil
	}

	var texts []TextBlockParam
	if err := json.Unmarshal(data, &texts); err == nil {
		s.Texts = texts
		return nil
	}
	return fmt.Errorf("system prompt must be either string or array of text blocks")
}

func (s *SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.Text != "" {
		return json.Marshal(s.Text)
	}
	if len(s.Texts) > 0 {
		return json.Marshal(s.Texts)
	}
	return nil, fmt.Errorf("system prompt must have either text or texts")
}

// MessagesResponse represents a response from the Anthropic Messages API,
// both the unary body and the "message" payload of a message_start event.
// https://docs.claude.com/en/api/messages
type MessagesResponse struct {
	ID string `json:"id"`
	// Type is always "message".
	Type string `json:"type"`
	// Role is always "assistant".
	Role    string                 `json:"role"`
	Content []MessagesContentBlock `json:"content"`
	Model   string                 `json:"model"`
	// StopReason is null until generation stops.
	StopReason *StopReason `json:"stop_reason"`
	// StopSequence is the stop sequence that was encountered, if any.
	StopSequence *string `json:"stop_sequence"`
	Usage        Usage   `json:"usage"`
}

type (
	// MessagesContentBlock represents a block of content in a response.
	// https://docs.claude.com/en/api/messages#response-content
	MessagesContentBlock struct {
		Text     *TextBlock
		Tool     *ToolUseBlock
		Thinking *ThinkingBlock
	}

	TextBlock struct {
		Type string `json:"type"` // Always "text".
		Text string `json:"text"`
	}

	ToolUseBlock struct {
		Type  string         `json:"type"` // Always "tool_use".
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	}

	ThinkingBlock struct {
		Type      string `json:"type"` // Always "thinking".
		Thinking  string `json:"thinking"`
		Signature string `json:"signature,omitempty"`
	}
)

func (m *MessagesContentBlock) UnmarshalJSON(data []byte) error {
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return errors.New("missing type field in message content block")
	}
	switch typ.String() {
	case "text":
		var textBlock TextBlock
		if err := json.Unmarshal(data, &textBlock); err != nil {
			return fmt.Errorf("failed to unmarshal text block: %w", err)
		}
		m.Text = &textBlock
	case "tool_use":
		var toolUseBlock ToolUseBlock
		if err := json.Unmarshal(data, &toolUseBlock); err != nil {
			return fmt.Errorf("failed to unmarshal tool use block: %w", err)
		}
		m.Tool = &toolUseBlock
	case "thinking":
		var thinkingBlock ThinkingBlock
		if err := json.Unmarshal(data, &thinkingBlock); err != nil {
			return fmt.Errorf("failed to unmarshal thinking block: %w", err)
		}
		m.Thinking = &thinkingBlock
	default:
		// Ignore undefined types.
	}
	return nil
}

func (m MessagesContentBlock) MarshalJSON() ([]byte, error) {
	if m.Text != nil {
		return json.Marshal(m.Text)
	}
	if m.Tool != nil {
		return json.Marshal(m.Tool)
	}
	if m.Thinking != nil {
		return json.Marshal(m.Thinking)
	}
	return nil, fmt.Errorf("content block must have a defined type")
}

// StopReason represents the reason for stopping the generation.
// https://docs.claude.com/en/api/messages#response-stop-reason
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonRefusal      StopReason = "refusal"
)

// Usage represents token usage information for a Messages API response.
// https://docs.claude.com/en/api/messages#response-usage
//
// NOTE: all of them are float64 in the API, although they are always integers
// in practice. The documentation doesn't state the format explicitly, so
// float64 accepts both 1234 and 1234.0 without errors.
type Usage struct {
	// InputTokens is the billable input, excluding cache reads.
	InputTokens float64 `json:"input_tokens"`
	// OutputTokens is cumulative across message_delta events.
	OutputTokens float64 `json:"output_tokens"`
	// CacheCreationInputTokens is the number of input tokens used to create
	// the cache entry.
	CacheCreationInputTokens float64 `json:"cache_creation_input_tokens"`
	// CacheReadInputTokens is the number of input tokens read from the cache.
	CacheReadInputTokens float64 `json:"cache_read_input_tokens"`
}

// Streaming event types produced on /v1/messages.
// / https://docs.claude.com/en/docs/build-with-claude/streaming#event-types
const (
	StreamEventTypeMessageStart      = "message_start"
	StreamEventTypeContentBlockStart = "content_block_start"
	StreamEventTypeContentBlockDelta = "content_block_delta"
	StreamEventTypeContentBlockStop  = "content_block_stop"
	StreamEventTypeMessageDelta      = "message_delta"
	StreamEventTypeMessageStop       = "message_stop"
	StreamEventTypePing              = "ping"
	StreamEventTypeError             = "error"
)

type (
	// MessageStartEvent opens the stream with the response skeleton.
	MessageStartEvent struct {
		Type    string           `json:"type"` // Always "message_start".
		Message MessagesResponse `json:"message"`
	}

	// ContentBlockStartEvent opens content block Index.
	ContentBlockStartEvent struct {
		Type         string               `json:"type"` // Always "content_block_start".
		Index        int64                `json:"index"`
		ContentBlock MessagesContentBlock `json:"content_block"`
	}

	// ContentBlockDeltaEvent carries an incremental update to block Index.
	ContentBlockDeltaEvent struct {
		Type  string            `json:"type"` // Always "content_block_delta".
		Index int64             `json:"index"`
		Delta ContentBlockDelta `json:"delta"`
	}

	// ContentBlockStopEvent closes content block Index.
	ContentBlockStopEvent struct {
		Type  string `json:"type"` // Always "content_block_stop".
		Index int64  `json:"index"`
	}

	// MessageDeltaEvent carries the stop reason and cumulative usage.
	MessageDeltaEvent struct {
		Type  string            `json:"type"` // Always "message_delta".
		Delta MessageDeltaDelta `json:"delta"`
		Usage Usage             `json:"usage"`
	}

	MessageDeltaDelta struct {
		StopReason   StopReason `json:"stop_reason"`
		StopSequence *string    `json:"stop_sequence"`
	}

	// MessageStopEvent terminates the stream.
	MessageStopEvent struct {
		Type string `json:"type"` // Always "message_stop".
	}

	// PingEvent is a keep-alive.
	PingEvent struct {
		Type string `json:"type"` // Always "ping".
	}
)

// ContentBlockDelta is the delta payload of a content_block_delta event:
// text_delta, input_json_delta, thinking_delta, or signature_delta.
type ContentBlockDelta struct {
	Type        string  `json:"type"`
	Text        string  `json:"text,omitempty"`
	PartialJSON *string `json:"partial_json,omitempty"`
	Thinking    string  `json:"thinking,omitempty"`
	Signature   string  `json:"signature,omitempty"`
}

// Content block delta type tags.
const (
	ContentBlockDeltaTypeText      = "text_delta"
	ContentBlockDeltaTypeInputJSON = "input_json_delta"
	ContentBlockDeltaTypeThinking  = "thinking_delta"
	ContentBlockDeltaTypeSignature = "signature_delta"
)

// ErrorResponse represents an error response from the Anthropic API, both as
// an HTTP body and as the payload of an "error" stream event.
// https://docs.claude.com/en/api/errors
type ErrorResponse struct {
	// Type is always "error".
	Type  string               `json:"type"`
	Error ErrorResponseMessage `json:"error"`
}

// ErrorResponseMessage is the inner error corresponding to the HTTP status.
// https://docs.claude.com/en/api/errors#http-errors
type ErrorResponseMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
