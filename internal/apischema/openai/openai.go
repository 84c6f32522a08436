// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package openai contains the schema for the OpenAI Chat Completions API as
// spoken by the upstream Copilot endpoint, plus the Responses API surface.
//
// Only the fields the gateway translates or forwards are modeled; unknown
// inbound fields are intentionally dropped unless a translator passes them
// through explicitly.
package openai

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ljie-PI/ghcp-ollama/internal/json"
)

// ChatMessageRole values for the "role" field of a chat message.
const (
	ChatMessageRoleSystem    = "system"
	ChatMessageRoleDeveloper = "developer"
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleTool      = "tool"
	ChatMessageRoleFunction  = "function"
)

// ChatCompletionRequest is the request to POST <endpoint>/chat/completions.
// https://platform.openai.com/docs/api-reference/chat/create
type ChatCompletionRequest struct {
	Model    string                            `json:"model"`
	Messages []ChatCompletionMessageParamUnion `json:"messages"`

	Tools      []Tool `json:"tools,omitempty"`
	ToolChoice any    `json:"tool_choice,omitempty"`

	MaxTokens           *int64   `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int64   `json:"max_completion_tokens,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
	TopP                *float64 `json:"top_p,omitempty"`
	// TopK is not part of the OpenAI schema but the Copilot upstream tolerates
	// it, so the Anthropic translator forwards it as-is.
	TopK *int   `json:"top_k,omitempty"`
	N    *int   `json:"n,omitempty"`
	Stop any    `json:"stop,omitempty"`
	Seed *int64 `json:"seed,omitempty"`

	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	ReasoningEffort  string                        `json:"reasoning_effort,omitempty"`
	ResponseFormat   *ChatCompletionResponseFormat `json:"response_format,omitempty"`
	WebSearchOptions *WebSearchOptions             `json:"web_search_options,omitempty"`

	FrequencyPenalty  *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty   *float64 `json:"presence_penalty,omitempty"`
	ParallelToolCalls *bool    `json:"parallel_tool_calls,omitempty"`

	// Metadata and User survive translation from the Responses API.
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	User       string          `json:"user,omitempty"`
	Truncation string          `json:"truncation,omitempty"`
}

// StreamOptions controls streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatCompletionResponseFormat constrains the model output format.
type ChatCompletionResponseFormat struct {
	Type       string                                  `json:"type"`
	JSONSchema *ChatCompletionResponseFormatJSONSchema `json:"json_schema,omitempty"`
}

// ChatCompletionResponseFormatJSONSchema is the "json_schema" response format.
type ChatCompletionResponseFormatJSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict bool           `json:"strict,omitempty"`
}

// WebSearchOptions is the side-car carrying web search tool configuration.
type WebSearchOptions struct {
	SearchContextSize string `json:"search_context_size,omitempty"`
	UserLocation      any    `json:"user_location,omitempty"`
}

// Tool is a function tool definition offered to the model.
type Tool struct {
	Type     string              `json:"type"` // Always "function".
	Function *FunctionDefinition `json:"function,omitempty"`
}

// FunctionDefinition describes a callable function and its JSON-schema parameters.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      bool           `json:"strict,omitempty"`
}

// ChatCompletionMessageParamUnion is one element of the "messages" array.
// Exactly one Of* field is set.
type ChatCompletionMessageParamUnion struct {
	OfSystem    *ChatCompletionSystemMessageParam
	OfDeveloper *ChatCompletionDeveloperMessageParam
	OfUser      *ChatCompletionUserMessageParam
	OfAssistant *ChatCompletionAssistantMessageParam
	OfTool      *ChatCompletionToolMessageParam
}

func (c *ChatCompletionMessageParamUnion) UnmarshalJSON(data []byte) error {
	role := gjson.GetBytes(data, "role")
	if !role.Exists() {
		return errors.New("chat message does not have role")
	}
	switch role.String() {
	case ChatMessageRoleSystem:
		c.OfSystem = &ChatCompletionSystemMessageParam{}
		return json.Unmarshal(data, c.OfSystem)
	case ChatMessageRoleDeveloper:
		c.OfDeveloper = &ChatCompletionDeveloperMessageParam{}
		return json.Unmarshal(data, c.OfDeveloper)
	case ChatMessageRoleUser:
		c.OfUser = &ChatCompletionUserMessageParam{}
		return json.Unmarshal(data, c.OfUser)
	case ChatMessageRoleAssistant:
		c.OfAssistant = &ChatCompletionAssistantMessageParam{}
		return json.Unmarshal(data, c.OfAssistant)
	case ChatMessageRoleTool, ChatMessageRoleFunction:
		c.OfTool = &ChatCompletionToolMessageParam{}
		if err := json.Unmarshal(data, c.OfTool); err != nil {
			return err
		}
		c.OfTool.Role = role.String()
		return nil
	default:
		return fmt.Errorf("unknown ChatCompletionMessageParam type: %s", role.String())
	}
}

func (c ChatCompletionMessageParamUnion) MarshalJSON() ([]byte, error) {
	switch {
	case c.OfSystem != nil:
		return json.Marshal(c.OfSystem)
	case c.OfDeveloper != nil:
		return json.Marshal(c.OfDeveloper)
	case c.OfUser != nil:
		return json.Marshal(c.OfUser)
	case c.OfAssistant != nil:
		return json.Marshal(c.OfAssistant)
	case c.OfTool != nil:
		return json.Marshal(c.OfTool)
	default:
		return nil, errors.New("chat message union has no variant set")
	}
}

// ChatCompletionSystemMessageParam is a system role message.
type ChatCompletionSystemMessageParam struct {
	Role    string       `json:"role"`
	Content ContentUnion `json:"content"`
	Name    string       `json:"name,omitempty"`
}

// ChatCompletionDeveloperMessageParam is a developer role message.
type ChatCompletionDeveloperMessageParam struct {
	Role    string       `json:"role"`
	Content ContentUnion `json:"content"`
	Name    string       `json:"name,omitempty"`
}

// ChatCompletionUserMessageParam is a user role message.
type ChatCompletionUserMessageParam struct {
	Role    string                       `json:"role"`
	Content StringOrUserRoleContentUnion `json:"content"`
	Name    string                       `json:"name,omitempty"`
	// ToolCalls is not part of the OpenAI user message schema. The Anthropic
	// translator rides tool_result blocks along on the converted user message
	// as pseudo tool calls because the upstream accepts them there.
	ToolCalls []ChatCompletionMessageToolCallParam `json:"tool_calls,omitempty"`
}

// ChatCompletionAssistantMessageParam is an assistant role message.
type ChatCompletionAssistantMessageParam struct {
	Role      string                               `json:"role"`
	Content   StringOrAssistantRoleContentUnion    `json:"content,omitempty"`
	Name      string                               `json:"name,omitempty"`
	ToolCalls []ChatCompletionMessageToolCallParam `json:"tool_calls,omitempty"`
}

// ChatCompletionToolMessageParam carries a tool result back to the model.
type ChatCompletionToolMessageParam struct {
	Role       string       `json:"role"`
	Content    ContentUnion `json:"content"`
	ToolCallID string       `json:"tool_call_id"`
	Name       string       `json:"name,omitempty"`
}

// ChatCompletionMessageToolCallParam is one tool call on an assistant message.
type ChatCompletionMessageToolCallParam struct {
	ID       *string                                    `json:"id,omitempty"`
	Type     string                                     `json:"type"` // Always "function".
	Function ChatCompletionMessageToolCallFunctionParam `json:"function"`
}

// ChatCompletionMessageToolCallFunctionParam is the function invocation inside
// a tool call. Arguments is always a JSON-encoded string in the upstream
// payload, never an object.
type ChatCompletionMessageToolCallFunctionParam struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ContentUnion is a string or an array of text content parts.
// Value is either string or []ChatCompletionContentPartTextParam.
type ContentUnion struct {
	Value any
}

func (c *ContentUnion) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Value = text
		return nil
	}
	var parts []ChatCompletionContentPartTextParam
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of text parts: %w", err)
	}
	c.Value = parts
	return nil
}

func (c ContentUnion) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value)
}

// StringOrUserRoleContentUnion is a string or an array of user content parts.
// Value is either string or []ChatCompletionContentPartUserUnionParam.
type StringOrUserRoleContentUnion struct {
	Value any
}

func (c *StringOrUserRoleContentUnion) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Value = text
		return nil
	}
	var parts []ChatCompletionContentPartUserUnionParam
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("user content must be a string or an array of parts: %w", err)
	}
	c.Value = parts
	return nil
}

func (c StringOrUserRoleContentUnion) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value)
}

// StringOrAssistantRoleContentUnion is a string or an array of assistant
// content parts. Value is string or []ChatCompletionContentPartTextParam.
type StringOrAssistantRoleContentUnion struct {
	Value any
}

func (c *StringOrAssistantRoleContentUnion) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Value = text
		return nil
	}
	var parts []ChatCompletionContentPartTextParam
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("assistant content must be a string or an array of text parts: %w", err)
	}
	c.Value = parts
	return nil
}

func (c StringOrAssistantRoleContentUnion) MarshalJSON() ([]byte, error) {
	if c.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

// Content part type tags.
const (
	ChatCompletionContentPartTypeText       = "text"
	ChatCompletionContentPartTypeImageURL   = "image_url"
	ChatCompletionContentPartTypeInputAudio = "input_audio"
	ChatCompletionContentPartTypeFile       = "file"
)

// ChatCompletionContentPartUserUnionParam is one element of a user content
// array. Exactly one of the pointers is set.
type ChatCompletionContentPartUserUnionParam struct {
	TextContent       *ChatCompletionContentPartTextParam
	ImageContent      *ChatCompletionContentPartImageParam
	InputAudioContent *ChatCompletionContentPartInputAudioParam
	FileContent       *ChatCompletionContentPartFileParam
}

func (c *ChatCompletionContentPartUserUnionParam) UnmarshalJSON(data []byte) error {
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return errors.New("chat content does not have type")
	}
	switch typ.String() {
	case ChatCompletionContentPartTypeText:
		c.TextContent = &ChatCompletionContentPartTextParam{}
		return json.Unmarshal(data, c.TextContent)
	case ChatCompletionContentPartTypeImageURL:
		c.ImageContent = &ChatCompletionContentPartImageParam{}
		return json.Unmarshal(data, c.ImageContent)
	case ChatCompletionContentPartTypeInputAudio:
		c.InputAudioContent = &ChatCompletionContentPartInputAudioParam{}
		return json.Unmarshal(data, c.InputAudioContent)
	case ChatCompletionContentPartTypeFile:
		c.FileContent = &ChatCompletionContentPartFileParam{}
		return json.Unmarshal(data, c.FileContent)
	default:
		return fmt.Errorf("unknown ChatCompletionContentPartUnionParam type: %s", typ.String())
	}
}

func (c ChatCompletionContentPartUserUnionParam) MarshalJSON() ([]byte, error) {
	switch {
	case c.TextContent != nil:
		return json.Marshal(c.TextContent)
	case c.ImageContent != nil:
		return json.Marshal(c.ImageContent)
	case c.InputAudioContent != nil:
		return json.Marshal(c.InputAudioContent)
	case c.FileContent != nil:
		return json.Marshal(c.FileContent)
	default:
		return nil, errors.New("content part union has no variant set")
	}
}

// ChatCompletionContentPartTextParam is a plain text content part.
type ChatCompletionContentPartTextParam struct {
	Type string `json:"type"` // Always "text".
	Text string `json:"text"`
}

// ChatCompletionContentPartImageParam is an image content part.
type ChatCompletionContentPartImageParam struct {
	Type     string                                      `json:"type"` // Always "image_url".
	ImageURL ChatCompletionContentPartImageImageURLParam `json:"image_url"`
}

// ChatCompletionContentPartImageImageURLParam carries the image location,
// either an https URL or a data URL with a base64 payload.
type ChatCompletionContentPartImageImageURLParam struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ChatCompletionContentPartInputAudioParam is an audio content part.
type ChatCompletionContentPartInputAudioParam struct {
	Type       string `json:"type"` // Always "input_audio".
	InputAudio any    `json:"input_audio"`
}

// ChatCompletionContentPartFileParam is a file content part.
type ChatCompletionContentPartFileParam struct {
	Type string `json:"type"` // Always "file".
	File any    `json:"file"`
}

// ChatCompletionChoicesFinishReason is the "finish_reason" of a choice.
type ChatCompletionChoicesFinishReason string

const (
	ChatCompletionChoicesFinishReasonStop          ChatCompletionChoicesFinishReason = "stop"
	ChatCompletionChoicesFinishReasonLength        ChatCompletionChoicesFinishReason = "length"
	ChatCompletionChoicesFinishReasonToolCalls     ChatCompletionChoicesFinishReason = "tool_calls"
	ChatCompletionChoicesFinishReasonContentFilter ChatCompletionChoicesFinishReason = "content_filter"
	ChatCompletionChoicesFinishReasonFunctionCall  ChatCompletionChoicesFinishReason = "function_call"
)

// ChatCompletionResponse is the unary response body from the upstream.
// https://platform.openai.com/docs/api-reference/chat/object
type ChatCompletionResponse struct {
	ID      string                         `json:"id"`
	Object  string                         `json:"object"`
	Created JSONUNIXTime                   `json:"created"`
	Model   string                         `json:"model"`
	Choices []ChatCompletionResponseChoice `json:"choices"`
	Usage   Usage                          `json:"usage"`
}

// ChatCompletionResponseChoice is one element of "choices".
type ChatCompletionResponseChoice struct {
	Index        int                                 `json:"index"`
	Message      ChatCompletionResponseChoiceMessage `json:"message"`
	FinishReason ChatCompletionChoicesFinishReason   `json:"finish_reason,omitempty"`
}

// ChatCompletionResponseChoiceMessage is the assistant message of a choice.
type ChatCompletionResponseChoiceMessage struct {
	Role             string                               `json:"role,omitempty"`
	Content          *string                              `json:"content,omitempty"`
	ReasoningContent *string                              `json:"reasoning_content,omitempty"`
	ToolCalls        []ChatCompletionMessageToolCallParam `json:"tool_calls,omitempty"`
	Annotations      []Annotation                         `json:"annotations,omitempty"`
}

// Annotation is an inline annotation on assistant output, currently only URL
// citations from web search.
type Annotation struct {
	Type        string       `json:"type"`
	URLCitation *URLCitation `json:"url_citation,omitempty"`
}

// URLCitation locates a cited span inside the message content.
type URLCitation struct {
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
}

// Usage is the token accounting block of a response or final stream chunk.
type Usage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
	Cost                    *float64                 `json:"cost,omitempty"`
}

// PromptTokensDetails itemizes prompt tokens; CachedTokens were served from
// the prompt cache and are not billed as fresh input.
type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
	AudioTokens  int `json:"audio_tokens,omitempty"`
	TextTokens   int `json:"text_tokens,omitempty"`
}

// CompletionTokensDetails itemizes completion tokens.
type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
	TextTokens      int `json:"text_tokens,omitempty"`
	AudioTokens     int `json:"audio_tokens,omitempty"`
}

// ChatCompletionResponseChunk is one decoded SSE frame of a streaming
// response.
// https://platform.openai.com/docs/api-reference/chat/streaming
type ChatCompletionResponseChunk struct {
	ID      string                              `json:"id"`
	Object  string                              `json:"object"`
	Created JSONUNIXTime                        `json:"created"`
	Model   string                              `json:"model"`
	Choices []ChatCompletionResponseChunkChoice `json:"choices"`
	Usage   *Usage                              `json:"usage,omitempty"`
}

// ChatCompletionResponseChunkChoice is one element of a chunk's "choices".
type ChatCompletionResponseChunkChoice struct {
	Index        int                                     `json:"index"`
	Delta        *ChatCompletionResponseChunkChoiceDelta `json:"delta,omitempty"`
	FinishReason ChatCompletionChoicesFinishReason       `json:"finish_reason,omitempty"`
}

// ChatCompletionResponseChunkChoiceDelta is the incremental payload of a
// chunk choice.
type ChatCompletionResponseChunkChoiceDelta struct {
	Role             string                                   `json:"role,omitempty"`
	Content          *string                                  `json:"content,omitempty"`
	ReasoningContent *string                                  `json:"reasoning_content,omitempty"`
	Annotations      []Annotation                             `json:"annotations,omitempty"`
	ToolCalls        []ChatCompletionChunkChoiceDeltaToolCall `json:"tool_calls,omitempty"`
}

// ChatCompletionChunkChoiceDeltaToolCall is a fragment of a tool call. The
// upstream identifies the call by Index; Name arrives once, Arguments arrive
// as appended string fragments.
type ChatCompletionChunkChoiceDeltaToolCall struct {
	Index    int64                                          `json:"index"`
	ID       *string                                        `json:"id,omitempty"`
	Type     string                                         `json:"type,omitempty"`
	Function ChatCompletionChunkChoiceDeltaToolCallFunction `json:"function"`
}

// ChatCompletionChunkChoiceDeltaToolCallFunction is the function fragment of
// a tool call delta.
type ChatCompletionChunkChoiceDeltaToolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Error is the error envelope returned by OpenAI-format backends.
type Error struct {
	Type  string    `json:"type,omitempty"`
	Error ErrorType `json:"error"`
}

// ErrorType is the inner error object.
type ErrorType struct {
	Type    string  `json:"type"`
	Message string  `json:"message"`
	Param   *string `json:"param,omitempty"`
	Code    *string `json:"code,omitempty"`
}

// Model is one entry of the /models listing.
type Model struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	OwnedBy string       `json:"owned_by"`
	Created JSONUNIXTime `json:"created,omitempty"`
}

// ModelList is the /models listing.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// JSONUNIXTime marshals a time.Time as integer UNIX seconds.
type JSONUNIXTime time.Time

func (t JSONUNIXTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(time.Time(t).Unix(), 10)), nil
}

func (t *JSONUNIXTime) UnmarshalJSON(data []byte) error {
	sec, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("failed to parse unix timestamp: %w", err)
	}
	*t = JSONUNIXTime(time.Unix(int64(sec), 0).UTC())
	return nil
}
