// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openai

// Responses API streaming event type tags.
// https://platform.openai.com/docs/api-reference/responses-streaming
const (
	ResponseEventTypeCreated               = "response.created"
	ResponseEventTypeInProgress            = "response.in_progress"
	ResponseEventTypeOutputItemAdded       = "response.output_item.added"
	ResponseEventTypeContentPartAdded      = "response.content_part.added"
	ResponseEventTypeOutputTextDelta       = "response.output_text.delta"
	ResponseEventTypeAnnotationAdded       = "response.output_text.annotation_added"
	ResponseEventTypeFunctionCallArgsDelta = "response.function_call_arguments.delta"
	ResponseEventTypeContentPartDone       = "response.content_part.done"
	ResponseEventTypeOutputItemDone        = "response.output_item.done"
	ResponseEventTypeOutputTextDone        = "response.output_text.done"
	ResponseEventTypeFunctionCallArgsDone  = "response.function_call_arguments.done"
	ResponseEventTypeCompleted             = "response.completed"
)

// ResponseEnvelopeEvent wraps the response envelope: response.created,
// response.in_progress and response.completed.
type ResponseEnvelopeEvent struct {
	Type     string   `json:"type"`
	Response Response `json:"response"`
}

// ResponseOutputItemEvent is response.output_item.added / .done.
type ResponseOutputItemEvent struct {
	Type        string                  `json:"type"`
	OutputIndex int64                   `json:"output_index"`
	Item        ResponseOutputItemUnion `json:"item"`
}

// ResponseContentPartEvent is response.content_part.added / .done.
type ResponseContentPartEvent struct {
	Type         string              `json:"type"`
	ItemID       string              `json:"item_id"`
	OutputIndex  int64               `json:"output_index"`
	ContentIndex int64               `json:"content_index"`
	Part         ResponseContentPart `json:"part"`
}

// ResponseOutputTextDeltaEvent is response.output_text.delta.
type ResponseOutputTextDeltaEvent struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	OutputIndex  int64  `json:"output_index"`
	ContentIndex int64  `json:"content_index"`
	Delta        string `json:"delta"`
}

// ResponseOutputTextDoneEvent is response.output_text.done.
type ResponseOutputTextDoneEvent struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	OutputIndex  int64  `json:"output_index"`
	ContentIndex int64  `json:"content_index"`
	Text         string `json:"text"`
}

// ResponseAnnotationAddedEvent is response.output_text.annotation_added.
type ResponseAnnotationAddedEvent struct {
	Type            string     `json:"type"`
	ItemID          string     `json:"item_id"`
	OutputIndex     int64      `json:"output_index"`
	ContentIndex    int64      `json:"content_index"`
	AnnotationIndex int64      `json:"annotation_index"`
	Annotation      Annotation `json:"annotation"`
}

// ResponseFunctionCallArgsDeltaEvent is response.function_call_arguments.delta.
type ResponseFunctionCallArgsDeltaEvent struct {
	Type        string `json:"type"`
	ItemID      string `json:"item_id"`
	OutputIndex int64  `json:"output_index"`
	Delta       string `json:"delta"`
}

// ResponseFunctionCallArgsDoneEvent is response.function_call_arguments.done.
type ResponseFunctionCallArgsDoneEvent struct {
	Type        string `json:"type"`
	ItemID      string `json:"item_id"`
	OutputIndex int64  `json:"output_index"`
	Arguments   string `json:"arguments"`
}
