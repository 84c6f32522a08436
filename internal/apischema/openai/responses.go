// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openai

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ljie-PI/ghcp-ollama/internal/json"
)

// ResponseRequest is the request to POST /v1/responses.
// https://platform.openai.com/docs/api-reference/responses/create
type ResponseRequest struct {
	Model        string             `json:"model"`
	Input        ResponseInputUnion `json:"input"`
	Instructions string             `json:"instructions,omitempty"`

	// Tools uses raw maps rather than typed structs: Responses tools carry
	// extension keys (cache_control, defer_loading, allowed_callers,
	// input_examples) that must survive into the function definition.
	Tools      []map[string]any `json:"tools,omitempty"`
	ToolChoice any              `json:"tool_choice,omitempty"`

	MaxOutputTokens *int64   `json:"max_output_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`

	Reasoning *ResponseReasoningParam `json:"reasoning,omitempty"`
	Text      *ResponseTextParam      `json:"text,omitempty"`

	Stream            bool            `json:"stream,omitempty"`
	ParallelToolCalls *bool           `json:"parallel_tool_calls,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	User              string          `json:"user,omitempty"`
	Truncation        string          `json:"truncation,omitempty"`

	// Store and PreviousResponseID are accepted and ignored: the gateway is
	// stateless and never persists responses.
	Store              *bool  `json:"store,omitempty"`
	PreviousResponseID string `json:"previous_response_id,omitempty"`
}

// ResponseReasoningParam configures reasoning behavior.
type ResponseReasoningParam struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// ResponseTextParam wraps the output format configuration.
type ResponseTextParam struct {
	Format map[string]any `json:"format,omitempty"`
}

// ResponseInputUnion is the "input" field: either a plain string or an array
// of input items. Exactly one of Text/Items is meaningful; IsText
// distinguishes the empty string from an empty array.
type ResponseInputUnion struct {
	Text   string
	Items  []ResponseInputItemUnion
	IsText bool
}

func (r *ResponseInputUnion) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		r.Text = text
		r.IsText = true
		return nil
	}
	r.IsText = false
	if err := json.Unmarshal(data, &r.Items); err != nil {
		return fmt.Errorf("input must be a string or an array of items: %w", err)
	}
	return nil
}

func (r ResponseInputUnion) MarshalJSON() ([]byte, error) {
	if r.IsText {
		return json.Marshal(r.Text)
	}
	return json.Marshal(r.Items)
}

// Responses input/output item type tags.
const (
	ResponseItemTypeMessage            = "message"
	ResponseItemTypeFunctionCall       = "function_call"
	ResponseItemTypeFunctionCallOutput = "function_call_output"
	ResponseItemTypeReasoning          = "reasoning"
)

// ResponseInputItemUnion is one element of an "input" array. An item without
// a "type" defaults to a message, matching the upstream behavior.
type ResponseInputItemUnion struct {
	OfMessage            *ResponseInputMessage
	OfFunctionCall       *ResponseFunctionCallItem
	OfFunctionCallOutput *ResponseFunctionCallOutputItem
	OfReasoning          *ResponseReasoningItem
}

func (r *ResponseInputItemUnion) UnmarshalJSON(data []byte) error {
	typ := gjson.GetBytes(data, "type")
	switch typ.String() {
	case ResponseItemTypeMessage, "":
		r.OfMessage = &ResponseInputMessage{}
		return json.Unmarshal(data, r.OfMessage)
	case ResponseItemTypeFunctionCall:
		r.OfFunctionCall = &ResponseFunctionCallItem{}
		return json.Unmarshal(data, r.OfFunctionCall)
	case ResponseItemTypeFunctionCallOutput:
		r.OfFunctionCallOutput = &ResponseFunctionCallOutputItem{}
		return json.Unmarshal(data, r.OfFunctionCallOutput)
	case ResponseItemTypeReasoning:
		r.OfReasoning = &ResponseReasoningItem{}
		return json.Unmarshal(data, r.OfReasoning)
	default:
		return fmt.Errorf("unknown response input item type: %s", typ.String())
	}
}

func (r ResponseInputItemUnion) MarshalJSON() ([]byte, error) {
	switch {
	case r.OfMessage != nil:
		return json.Marshal(r.OfMessage)
	case r.OfFunctionCall != nil:
		return json.Marshal(r.OfFunctionCall)
	case r.OfFunctionCallOutput != nil:
		return json.Marshal(r.OfFunctionCallOutput)
	case r.OfReasoning != nil:
		return json.Marshal(r.OfReasoning)
	default:
		return nil, errors.New("response input item union has no variant set")
	}
}

// ResponseInputMessage is a role message input item. Content is either a
// plain string or an array of typed parts (input_text, input_image,
// output_text).
type ResponseInputMessage struct {
	Type    string                      `json:"type,omitempty"`
	Role    string                      `json:"role"`
	Content ResponseMessageContentUnion `json:"content"`
}

// ResponseMessageContentUnion is string-or-parts content of a Responses
// message. Value is either string or []ResponseContentPart.
type ResponseMessageContentUnion struct {
	Value any
}

func (c *ResponseMessageContentUnion) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Value = text
		return nil
	}
	var parts []ResponseContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content must be a string or an array of parts: %w", err)
	}
	c.Value = parts
	return nil
}

func (c ResponseMessageContentUnion) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value)
}

// Responses content part type tags.
const (
	ResponseContentPartTypeInputText   = "input_text"
	ResponseContentPartTypeInputImage  = "input_image"
	ResponseContentPartTypeOutputText  = "output_text"
	ResponseContentPartTypeRefusal     = "refusal"
	ResponseContentPartTypeSummaryText = "summary_text"
)

// ResponseContentPart is one typed content part of a Responses message.
type ResponseContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// ImageURL is set for input_image parts. URL is the alternate key
	// spelling some clients send instead.
	ImageURL string `json:"image_url,omitempty"`
	URL      string `json:"url,omitempty"`
	Detail   string `json:"detail,omitempty"`
	// FileID, FileData and Filename are set for input_file parts.
	FileID   string `json:"file_id,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Filename string `json:"filename,omitempty"`
	// Audio is set for input_audio parts; InputAudio is the alternate key.
	Audio      any `json:"audio,omitempty"`
	InputAudio any `json:"input_audio,omitempty"`
	// Annotations is always present on output_text parts, empty or not.
	// No omitempty: the protocol requires "annotations":[] even when empty.
	Annotations []Annotation `json:"annotations"`
}

// NewOutputTextPart builds an output_text content part. The annotations array
// is always materialized so it serializes as [] rather than disappearing.
func NewOutputTextPart(text string, annotations []Annotation) ResponseContentPart {
	if annotations == nil {
		annotations = []Annotation{}
	}
	return ResponseContentPart{Type: ResponseContentPartTypeOutputText, Text: text, Annotations: annotations}
}

// ResponseFunctionCallItem is a function_call item: either a prior assistant
// tool call replayed as input, or a generated call in the output array.
type ResponseFunctionCallItem struct {
	Type      string `json:"type"` // Always "function_call".
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Status    string `json:"status,omitempty"`
}

// ResponseFunctionCallOutputItem feeds a tool result back to the model.
type ResponseFunctionCallOutputItem struct {
	Type   string                      `json:"type"` // Always "function_call_output".
	CallID string                      `json:"call_id"`
	Output ResponseMessageContentUnion `json:"output"`
	Status string                      `json:"status,omitempty"`
}

// ResponseReasoningItem is a reasoning item with summary parts. On input it
// is dropped; on output it carries accumulated reasoning text.
type ResponseReasoningItem struct {
	Type    string                `json:"type"` // Always "reasoning".
	ID      string                `json:"id,omitempty"`
	Summary []ResponseContentPart `json:"summary"`
	Status  string                `json:"status,omitempty"`
}

// ResponseOutputMessage is a "message" output item.
type ResponseOutputMessage struct {
	Type    string                `json:"type"` // Always "message".
	ID      string                `json:"id,omitempty"`
	Role    string                `json:"role"` // Always "assistant".
	Status  string                `json:"status,omitempty"`
	Content []ResponseContentPart `json:"content"`
}

// ResponseOutputItemUnion is one element of a Response's "output" array.
type ResponseOutputItemUnion struct {
	OfMessage      *ResponseOutputMessage
	OfFunctionCall *ResponseFunctionCallItem
	OfReasoning    *ResponseReasoningItem
}

func (r *ResponseOutputItemUnion) UnmarshalJSON(data []byte) error {
	typ := gjson.GetBytes(data, "type")
	switch typ.String() {
	case ResponseItemTypeMessage:
		r.OfMessage = &ResponseOutputMessage{}
		return json.Unmarshal(data, r.OfMessage)
	case ResponseItemTypeFunctionCall:
		r.OfFunctionCall = &ResponseFunctionCallItem{}
		return json.Unmarshal(data, r.OfFunctionCall)
	case ResponseItemTypeReasoning:
		r.OfReasoning = &ResponseReasoningItem{}
		return json.Unmarshal(data, r.OfReasoning)
	default:
		return fmt.Errorf("unknown response output item type: %s", typ.String())
	}
}

func (r ResponseOutputItemUnion) MarshalJSON() ([]byte, error) {
	switch {
	case r.OfMessage != nil:
		return json.Marshal(r.OfMessage)
	case r.OfFunctionCall != nil:
		return json.Marshal(r.OfFunctionCall)
	case r.OfReasoning != nil:
		return json.Marshal(r.OfReasoning)
	default:
		return nil, errors.New("response output item union has no variant set")
	}
}

// ResponseUsage is the Responses-shaped token accounting block.
type ResponseUsage struct {
	InputTokens         int                          `json:"input_tokens"`
	OutputTokens        int                          `json:"output_tokens"`
	TotalTokens         int                          `json:"total_tokens"`
	InputTokensDetails  *ResponseInputTokensDetails  `json:"input_tokens_details,omitempty"`
	OutputTokensDetails *ResponseOutputTokensDetails `json:"output_tokens_details,omitempty"`
	Cost                *float64                     `json:"cost,omitempty"`
}

// ResponseInputTokensDetails itemizes input tokens.
type ResponseInputTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
	TextTokens   int `json:"text_tokens,omitempty"`
	AudioTokens  int `json:"audio_tokens,omitempty"`
}

// ResponseOutputTokensDetails itemizes output tokens.
type ResponseOutputTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
	TextTokens      int `json:"text_tokens,omitempty"`
}

// ResponseIncompleteDetails explains a non-completed terminal status.
type ResponseIncompleteDetails struct {
	Reason string `json:"reason"`
}

// Response is the /v1/responses envelope, both the unary response body and
// the payload of response.created/response.completed stream events.
// https://platform.openai.com/docs/api-reference/responses/object
type Response struct {
	ID                 string                     `json:"id"`
	Object             string                     `json:"object"` // Always "response".
	CreatedAt          int64                      `json:"created_at"`
	Status             string                     `json:"status"`
	Model              string                     `json:"model"`
	Instructions       *string                    `json:"instructions"`
	Output             []ResponseOutputItemUnion  `json:"output"`
	OutputText         string                     `json:"output_text,omitempty"`
	Usage              *ResponseUsage             `json:"usage,omitempty"`
	IncompleteDetails  *ResponseIncompleteDetails `json:"incomplete_details,omitempty"`
	Error              *ErrorType                 `json:"error,omitempty"`
	Tools              []map[string]any           `json:"tools"`
	ToolChoice         any                        `json:"tool_choice,omitempty"`
	Temperature        *float64                   `json:"temperature,omitempty"`
	TopP               *float64                   `json:"top_p,omitempty"`
	MaxOutputTokens    *int64                     `json:"max_output_tokens,omitempty"`
	ParallelToolCalls  bool                       `json:"parallel_tool_calls"`
	PreviousResponseID *string                    `json:"previous_response_id"`
	Metadata           json.RawMessage            `json:"metadata,omitempty"`
}

// Response status values.
const (
	ResponseStatusInProgress = "in_progress"
	ResponseStatusCompleted  = "completed"
	ResponseStatusIncomplete = "incomplete"
	ResponseStatusFailed     = "failed"
)
