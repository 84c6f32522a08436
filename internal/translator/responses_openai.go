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
	"time"

	"github.com/tidwall/sjson"
	"k8s.io/utils/ptr"

	"github.com/ljie-PI/ghcp-ollama/internal/apischema/openai"
	"github.com/ljie-PI/ghcp-ollama/internal/json"
	"github.com/ljie-PI/ghcp-ollama/internal/sse"
)

// ResponsesToOpenAITranslator serves /v1/response: Responses API requests
// are converted to the upstream Chat Completions format, and upstream deltas
// are rendered as the response.* event family.
type ResponsesToOpenAITranslator struct {
	requestModel string
	stream       bool

	// Request echoes for the response envelope.
	reqTools      []map[string]any
	reqToolChoice any

	splitter sse.Splitter
	done     bool

	// Streaming state machine.
	initialized bool
	responseID  string
	createdAt   int64
	model       string
	outputText  strings.Builder
	usage       *openai.Usage
	finish      openai.ChatCompletionChoicesFinishReason

	started          bool
	itemID           string
	contentPartAdded bool
	annotationsSent  bool
	annotations      []openai.Annotation

	// Tool accumulators keyed by the upstream tool-call index.
	toolOrder []int64
	toolCalls map[int64]*responsesToolAccumulator
}

type responsesToolAccumulator struct {
	// outputIndex is index + 1 when a text part was already open at creation
	// time. It assumes at most one leading message block; reasoning output in
	// the same stream can shift the final unary ordering.
	outputIndex int64
	itemID      string
	name        string
	args        string
}

// NewResponsesToOpenAITranslator returns a translator for one request.
func NewResponsesToOpenAITranslator() *ResponsesToOpenAITranslator {
	return &ResponsesToOpenAITranslator{toolCalls: make(map[int64]*responsesToolAccumulator)}
}

// Streaming reports whether the request asked for a streamed response.
func (r *ResponsesToOpenAITranslator) Streaming() bool {
	return r.stream
}

// RequestBody converts a Responses API request to the upstream wire payload.
// Tools are set on the marshaled payload as raw maps so extension keys
// (cache_control, defer_loading, allowed_callers, input_examples) survive.
func (r *ResponsesToOpenAITranslator) RequestBody(req *openai.ResponseRequest) ([]byte, error) {
	r.requestModel = req.Model
	r.stream = req.Stream
	r.reqTools = req.Tools
	r.reqToolChoice = req.ToolChoice

	out := &openai.ChatCompletionRequest{
		Model:             req.Model,
		MaxTokens:         req.MaxOutputTokens,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		Stream:            req.Stream,
		ParallelToolCalls: req.ParallelToolCalls,
		Metadata:          req.Metadata,
		User:              req.User,
		Truncation:        req.Truncation,
		ToolChoice:        flattenToolChoice(req.ToolChoice),
	}
	if req.Stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if req.Reasoning != nil {
		out.ReasoningEffort = req.Reasoning.Effort
	}
	if req.Text != nil {
		out.ResponseFormat = textFormatToResponseFormat(req.Text.Format)
	}

	if req.Instructions != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Role:    openai.ChatMessageRoleSystem,
				Content: openai.ContentUnion{Value: req.Instructions},
			},
		})
	}
	msgs, err := responsesInputToMessages(&req.Input)
	if err != nil {
		return nil, err
	}
	out.Messages = append(out.Messages, msgs...)

	tools, webSearch := convertResponsesTools(req.Tools)
	out.WebSearchOptions = webSearch

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream request: %w", err)
	}
	if len(tools) > 0 {
		if body, err = sjson.SetBytes(body, "tools", tools); err != nil {
			return nil, fmt.Errorf("failed to set tools: %w", err)
		}
	}
	return body, nil
}

func responsesInputToMessages(input *openai.ResponseInputUnion) ([]openai.ChatCompletionMessageParamUnion, error) {
	if input.IsText {
		return []openai.ChatCompletionMessageParamUnion{{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Role:    openai.ChatMessageRoleUser,
				Content: openai.StringOrUserRoleContentUnion{Value: input.Text},
			},
		}}, nil
	}
	var out []openai.ChatCompletionMessageParamUnion
	for i := range input.Items {
		item := &input.Items[i]
		switch {
		case item.OfMessage != nil:
			out = append(out, responsesMessageToOpenAI(item.OfMessage))
		case item.OfFunctionCall != nil:
			call := item.OfFunctionCall
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role: openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID:   ptr.To(call.CallID),
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      call.Name,
							Arguments: call.Arguments,
						},
					}},
				},
			})
		case item.OfFunctionCallOutput != nil:
			output := item.OfFunctionCallOutput
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: output.CallID,
					Content:    openai.ContentUnion{Value: responsesContentText(&output.Output)},
				},
			})
		default:
			// Reasoning input items have no upstream equivalent.
		}
	}
	return out, nil
}

func responsesMessageToOpenAI(msg *openai.ResponseInputMessage) openai.ChatCompletionMessageParamUnion {
	if msg.Role == "user" {
		return openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Role:    openai.ChatMessageRoleUser,
				Content: responsesUserContent(&msg.Content),
			},
		}
	}
	// Non-user roles carry text only upstream.
	content := openai.ContentUnion{Value: responsesContentText(&msg.Content)}
	switch msg.Role {
	case "system":
		return openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{Role: msg.Role, Content: content},
		}
	case "developer":
		return openai.ChatCompletionMessageParamUnion{
			OfDeveloper: &openai.ChatCompletionDeveloperMessageParam{Role: msg.Role, Content: content},
		}
	default: // assistant
		return openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Role:    openai.ChatMessageRoleAssistant,
				Content: openai.StringOrAssistantRoleContentUnion{Value: responsesContentText(&msg.Content)},
			},
		}
	}
}

// responsesUserContent normalizes Responses content parts to the chat form.
// A result of exactly one text part collapses to a plain string.
func responsesUserContent(content *openai.ResponseMessageContentUnion) openai.StringOrUserRoleContentUnion {
	text, ok := content.Value.(string)
	if ok {
		return openai.StringOrUserRoleContentUnion{Value: text}
	}
	parts, ok := content.Value.([]openai.ResponseContentPart)
	if !ok {
		return openai.StringOrUserRoleContentUnion{Value: ""}
	}
	var converted []openai.ChatCompletionContentPartUserUnionParam
	for i := range parts {
		part := &parts[i]
		switch part.Type {
		case openai.ResponseContentPartTypeInputText, openai.ResponseContentPartTypeOutputText, "tool_result":
			converted = append(converted, openai.ChatCompletionContentPartUserUnionParam{
				TextContent: &openai.ChatCompletionContentPartTextParam{
					Type: openai.ChatCompletionContentPartTypeText,
					Text: part.Text,
				},
			})
		case openai.ResponseContentPartTypeInputImage:
			converted = append(converted, openai.ChatCompletionContentPartUserUnionParam{
				ImageContent: &openai.ChatCompletionContentPartImageParam{
					Type:     openai.ChatCompletionContentPartTypeImageURL,
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: cmp.Or(part.ImageURL, part.URL), Detail: part.Detail},
				},
			})
		case "input_file":
			converted = append(converted, openai.ChatCompletionContentPartUserUnionParam{
				FileContent: &openai.ChatCompletionContentPartFileParam{
					Type: openai.ChatCompletionContentPartTypeFile,
					File: cmp.Or(part.FileID, part.FileData),
				},
			})
		case "input_audio":
			audio := part.Audio
			if audio == nil {
				audio = part.InputAudio
			}
			if audio == nil && part.URL != "" {
				audio = map[string]any{"url": part.URL}
			}
			converted = append(converted, openai.ChatCompletionContentPartUserUnionParam{
				InputAudioContent: &openai.ChatCompletionContentPartInputAudioParam{
					Type:       openai.ChatCompletionContentPartTypeInputAudio,
					InputAudio: audio,
				},
			})
		default:
			// Unknown part types are dropped.
		}
	}
	if len(converted) == 1 && converted[0].TextContent != nil {
		return openai.StringOrUserRoleContentUnion{Value: converted[0].TextContent.Text}
	}
	if converted == nil {
		return openai.StringOrUserRoleContentUnion{Value: ""}
	}
	return openai.StringOrUserRoleContentUnion{Value: converted}
}

// responsesContentText flattens content to plain text.
func responsesContentText(content *openai.ResponseMessageContentUnion) string {
	if text, ok := content.Value.(string); ok {
		return text
	}
	parts, ok := content.Value.([]openai.ResponseContentPart)
	if !ok {
		return ""
	}
	var b strings.Builder
	for i := range parts {
		b.WriteString(parts[i].Text)
	}
	return b.String()
}

// flattenToolChoice maps the Responses tool_choice to the chat form. Object
// forms collapse: auto/none keep their name, required/tool become "required".
func flattenToolChoice(choice any) any {
	obj, ok := choice.(map[string]any)
	if !ok {
		return choice
	}
	switch obj["type"] {
	case "auto", "none":
		return obj["type"]
	case "required", "tool":
		return "required"
	default:
		return nil
	}
}

func textFormatToResponseFormat(format map[string]any) *openai.ChatCompletionResponseFormat {
	switch format["type"] {
	case "json_schema":
		out := &openai.ChatCompletionResponseFormat{Type: "json_schema", JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{}}
		out.JSONSchema.Name, _ = format["name"].(string)
		out.JSONSchema.Schema, _ = format["schema"].(map[string]any)
		out.JSONSchema.Strict, _ = format["strict"].(bool)
		return out
	case "json_object":
		return &openai.ChatCompletionResponseFormat{Type: "json_object"}
	default:
		return nil
	}
}

// convertResponsesTools splits the Responses tools into upstream tool entries
// and the web search side-car. Function tools are rewrapped in the nested
// chat shape with extension keys preserved as siblings; mcp and unknown tool
// types pass through untouched.
func convertResponsesTools(tools []map[string]any) ([]map[string]any, *openai.WebSearchOptions) {
	var out []map[string]any
	var webSearch *openai.WebSearchOptions
	for _, tool := range tools {
		typ, _ := tool["type"].(string)
		switch typ {
		case "web_search", "web_search_preview":
			if webSearch == nil {
				webSearch = &openai.WebSearchOptions{}
			}
			if size, ok := tool["search_context_size"].(string); ok {
				webSearch.SearchContextSize = size
			}
			if loc, ok := tool["user_location"]; ok {
				webSearch.UserLocation = loc
			}
		case "function":
			fn := map[string]any{}
			if name, ok := tool["name"]; ok {
				fn["name"] = name
			}
			if desc, ok := tool["description"]; ok {
				fn["description"] = desc
			}
			params, _ := tool["parameters"].(map[string]any)
			if params != nil {
				if _, ok := params["type"]; !ok {
					params["type"] = "object"
				}
				fn["parameters"] = params
			}
			if strict, ok := tool["strict"]; ok {
				fn["strict"] = strict
			}
			entry := map[string]any{"type": "function", "function": fn}
			for _, ext := range []string{"cache_control", "defer_loading", "allowed_callers", "input_examples"} {
				if v, ok := tool[ext]; ok {
					entry[ext] = v
				}
			}
			out = append(out, entry)
		default:
			// mcp and anything unrecognized pass through.
			out = append(out, tool)
		}
	}
	return out, webSearch
}

// IsVisionRequest reports whether any message item carries an input_image.
func (r *ResponsesToOpenAITranslator) IsVisionRequest(req *openai.ResponseRequest) bool {
	if req.Input.IsText {
		return false
	}
	for i := range req.Input.Items {
		msg := req.Input.Items[i].OfMessage
		if msg == nil {
			continue
		}
		parts, ok := msg.Content.Value.([]openai.ResponseContentPart)
		if !ok {
			continue
		}
		for j := range parts {
			if parts[j].Type == openai.ResponseContentPartTypeInputImage {
				return true
			}
		}
	}
	return false
}

// ResponseBody translates a unary upstream response into a Response
// envelope: reasoning items first, then at most one message item, then one
// function_call item per tool call.
func (r *ResponsesToOpenAITranslator) ResponseBody(body io.Reader) ([]byte, error) {
	var resp openai.ChatCompletionResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}

	r.responseID = newID(responseIDPrefix)
	r.createdAt = time.Time(resp.Created).Unix()
	r.model = cmp.Or(r.requestModel, resp.Model)

	var output []openai.ResponseOutputItemUnion
	var text strings.Builder
	var annotations []openai.Annotation
	var calls []openai.ResponseOutputItemUnion
	for i := range resp.Choices {
		choice := &resp.Choices[i]
		if rc := choice.Message.ReasoningContent; rc != nil && *rc != "" {
			output = append(output, openai.ResponseOutputItemUnion{
				OfReasoning: &openai.ResponseReasoningItem{
					Type: openai.ResponseItemTypeReasoning,
					ID:   newID(reasoningIDPrefix),
					Summary: []openai.ResponseContentPart{{
						Type:        openai.ResponseContentPartTypeSummaryText,
						Text:        *rc,
						Annotations: []openai.Annotation{},
					}},
				},
			})
		}
		if choice.Message.Content != nil {
			text.WriteString(*choice.Message.Content)
		}
		annotations = append(annotations, filterURLCitations(choice.Message.Annotations)...)
		for _, call := range choice.Message.ToolCalls {
			callID := newID(callIDPrefix)
			if call.ID != nil {
				callID = *call.ID
			}
			calls = append(calls, openai.ResponseOutputItemUnion{
				OfFunctionCall: &openai.ResponseFunctionCallItem{
					Type:      openai.ResponseItemTypeFunctionCall,
					ID:        newID(functionCallIDPrefix),
					CallID:    callID,
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
					Status:    "completed",
				},
			})
		}
		if i == 0 {
			r.finish = choice.FinishReason
		}
	}
	if text.Len() > 0 {
		output = append(output, openai.ResponseOutputItemUnion{
			OfMessage: &openai.ResponseOutputMessage{
				Type:    openai.ResponseItemTypeMessage,
				ID:      newID(messageIDPrefix),
				Role:    "assistant",
				Status:  "completed",
				Content: []openai.ResponseContentPart{openai.NewOutputTextPart(text.String(), annotations)},
			},
		})
	}
	output = append(output, calls...)

	status, incomplete := responsesStatus(r.finish)
	envelope := r.envelope(status)
	envelope.Output = output
	envelope.OutputText = text.String()
	envelope.IncompleteDetails = incomplete
	envelope.Usage = responsesUsage(&resp.Usage)
	return json.Marshal(envelope)
}

func filterURLCitations(annotations []openai.Annotation) []openai.Annotation {
	var out []openai.Annotation
	for _, a := range annotations {
		if a.Type == "url_citation" && a.URLCitation != nil {
			out = append(out, a)
		}
	}
	return out
}

func responsesStatus(reason openai.ChatCompletionChoicesFinishReason) (string, *openai.ResponseIncompleteDetails) {
	switch reason {
	case openai.ChatCompletionChoicesFinishReasonLength:
		return openai.ResponseStatusIncomplete, &openai.ResponseIncompleteDetails{Reason: "max_tokens"}
	case openai.ChatCompletionChoicesFinishReasonContentFilter:
		return openai.ResponseStatusIncomplete, &openai.ResponseIncompleteDetails{Reason: "content_filter"}
	default:
		return openai.ResponseStatusCompleted, nil
	}
}

func responsesUsage(usage *openai.Usage) *openai.ResponseUsage {
	if usage == nil {
		return nil
	}
	out := &openai.ResponseUsage{
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		TotalTokens:  usage.TotalTokens,
		Cost:         usage.Cost,
	}
	// Some upstreams omit total_tokens.
	if out.TotalTokens == 0 {
		out.TotalTokens = out.InputTokens + out.OutputTokens
	}
	if details := usage.PromptTokensDetails; details != nil {
		out.InputTokensDetails = &openai.ResponseInputTokensDetails{
			CachedTokens: details.CachedTokens,
			TextTokens:   details.TextTokens,
			AudioTokens:  details.AudioTokens,
		}
	}
	if details := usage.CompletionTokensDetails; details != nil {
		out.OutputTokensDetails = &openai.ResponseOutputTokensDetails{
			ReasoningTokens: details.ReasoningTokens,
			TextTokens:      details.TextTokens,
		}
	}
	return out
}

// envelope builds the response envelope shared by response.created,
// response.in_progress and response.completed.
func (r *ResponsesToOpenAITranslator) envelope(status string) openai.Response {
	tools := r.reqTools
	if tools == nil {
		tools = []map[string]any{}
	}
	return openai.Response{
		ID:                r.responseID,
		Object:            "response",
		CreatedAt:         r.createdAt,
		Status:            status,
		Model:             r.model,
		Instructions:      nil,
		Output:            []openai.ResponseOutputItemUnion{},
		Tools:             tools,
		ToolChoice:        r.reqToolChoice,
		ParallelToolCalls: true,
	}
}

// ResponseStreamChunk renders upstream deltas as response.* events,
// finishing with response.completed. No events follow response.completed.
func (r *ResponsesToOpenAITranslator) ResponseStreamChunk(chunk []byte, endOfStream bool) ([]byte, error) {
	frames := r.splitter.Push(chunk)
	if endOfStream {
		frames = append(frames, r.splitter.Flush()...)
	}
	var out []byte
	var err error
	for i := range frames {
		if r.done {
			break
		}
		if frames[i].IsDone() {
			if out, err = r.finalize(out); err != nil {
				return nil, err
			}
			continue
		}
		var parsed openai.ChatCompletionResponseChunk
		if err = json.Unmarshal(frames[i].Data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode upstream frame: %w", err)
		}
		if out, err = r.handleChunk(out, &parsed); err != nil {
			return nil, err
		}
	}
	if endOfStream && !r.done {
		return r.finalize(out)
	}
	return out, nil
}

func (r *ResponsesToOpenAITranslator) handleChunk(out []byte, parsed *openai.ChatCompletionResponseChunk) ([]byte, error) {
	if parsed.Usage != nil {
		r.usage = parsed.Usage
	}

	var err error
	if !r.initialized {
		r.initialized = true
		r.responseID = newID(responseIDPrefix)
		r.createdAt = time.Time(parsed.Created).Unix()
		r.model = cmp.Or(r.requestModel, parsed.Model)
		for _, typ := range []string{openai.ResponseEventTypeCreated, openai.ResponseEventTypeInProgress} {
			if out, err = r.appendEvent(out, typ, openai.ResponseEnvelopeEvent{
				Type:     typ,
				Response: r.envelope(openai.ResponseStatusInProgress),
			}); err != nil {
				return nil, err
			}
		}
	}

	for i := range parsed.Choices {
		choice := &parsed.Choices[i]
		if choice.FinishReason != "" {
			r.finish = choice.FinishReason
		}
		delta := choice.Delta
		if delta == nil {
			continue
		}
		hasData := (delta.Content != nil && *delta.Content != "") || len(delta.ToolCalls) > 0
		if hasData && !r.started {
			r.started = true
			r.itemID = newID(messageIDPrefix)
			if out, err = r.appendEvent(out, openai.ResponseEventTypeOutputItemAdded, openai.ResponseOutputItemEvent{
				Type:        openai.ResponseEventTypeOutputItemAdded,
				OutputIndex: 0,
				Item: openai.ResponseOutputItemUnion{OfMessage: &openai.ResponseOutputMessage{
					Type:    openai.ResponseItemTypeMessage,
					ID:      r.itemID,
					Role:    "assistant",
					Status:  "in_progress",
					Content: []openai.ResponseContentPart{},
				}},
			}); err != nil {
				return nil, err
			}
		}
		if delta.Content != nil && *delta.Content != "" {
			if out, err = r.handleTextDelta(out, *delta.Content); err != nil {
				return nil, err
			}
		}
		if len(delta.Annotations) > 0 && !r.annotationsSent {
			r.annotationsSent = true
			r.annotations = filterURLCitations(delta.Annotations)
			for j := range r.annotations {
				if out, err = r.appendEvent(out, openai.ResponseEventTypeAnnotationAdded, openai.ResponseAnnotationAddedEvent{
					Type:            openai.ResponseEventTypeAnnotationAdded,
					ItemID:          r.itemID,
					OutputIndex:     0,
					ContentIndex:    0,
					AnnotationIndex: int64(j),
					Annotation:      r.annotations[j],
				}); err != nil {
					return nil, err
				}
			}
		}
		for j := range delta.ToolCalls {
			if out, err = r.handleToolDelta(out, &delta.ToolCalls[j]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (r *ResponsesToOpenAITranslator) handleTextDelta(out []byte, text string) ([]byte, error) {
	var err error
	if !r.contentPartAdded {
		r.contentPartAdded = true
		if out, err = r.appendEvent(out, openai.ResponseEventTypeContentPartAdded, openai.ResponseContentPartEvent{
			Type:         openai.ResponseEventTypeContentPartAdded,
			ItemID:       r.itemID,
			OutputIndex:  0,
			ContentIndex: 0,
			Part:         openai.NewOutputTextPart("", nil),
		}); err != nil {
			return nil, err
		}
	}
	r.outputText.WriteString(text)
	return r.appendEvent(out, openai.ResponseEventTypeOutputTextDelta, openai.ResponseOutputTextDeltaEvent{
		Type:         openai.ResponseEventTypeOutputTextDelta,
		ItemID:       r.itemID,
		OutputIndex:  0,
		ContentIndex: 0,
		Delta:        text,
	})
}

func (r *ResponsesToOpenAITranslator) handleToolDelta(out []byte, toolDelta *openai.ChatCompletionChunkChoiceDeltaToolCall) ([]byte, error) {
	acc, ok := r.toolCalls[toolDelta.Index]
	if !ok {
		itemID := newID(functionCallIDPrefix)
		if toolDelta.ID != nil && *toolDelta.ID != "" {
			itemID = *toolDelta.ID
		}
		outputIndex := toolDelta.Index
		if r.outputText.Len() > 0 {
			outputIndex++
		}
		acc = &responsesToolAccumulator{outputIndex: outputIndex, itemID: itemID}
		r.toolCalls[toolDelta.Index] = acc
		r.toolOrder = append(r.toolOrder, toolDelta.Index)
	}
	if name := toolDelta.Function.Name; name != "" {
		acc.name = name
	}
	if args := toolDelta.Function.Arguments; args != "" {
		acc.args += args
		return r.appendEvent(out, openai.ResponseEventTypeFunctionCallArgsDelta, openai.ResponseFunctionCallArgsDeltaEvent{
			Type:        openai.ResponseEventTypeFunctionCallArgsDelta,
			ItemID:      acc.itemID,
			OutputIndex: acc.outputIndex,
			Delta:       args,
		})
	}
	return out, nil
}

func (r *ResponsesToOpenAITranslator) finalize(out []byte) ([]byte, error) {
	r.done = true
	var err error

	text := r.outputText.String()
	part := openai.NewOutputTextPart(text, r.annotations)
	completedItem := openai.ResponseOutputItemUnion{OfMessage: &openai.ResponseOutputMessage{
		Type:    openai.ResponseItemTypeMessage,
		ID:      r.itemID,
		Role:    "assistant",
		Status:  "completed",
		Content: []openai.ResponseContentPart{part},
	}}

	if r.contentPartAdded {
		if out, err = r.appendEvent(out, openai.ResponseEventTypeContentPartDone, openai.ResponseContentPartEvent{
			Type:         openai.ResponseEventTypeContentPartDone,
			ItemID:       r.itemID,
			OutputIndex:  0,
			ContentIndex: 0,
			Part:         part,
		}); err != nil {
			return nil, err
		}
	}
	if r.started {
		if out, err = r.appendEvent(out, openai.ResponseEventTypeOutputItemDone, openai.ResponseOutputItemEvent{
			Type:        openai.ResponseEventTypeOutputItemDone,
			OutputIndex: 0,
			Item:        completedItem,
		}); err != nil {
			return nil, err
		}
	}
	if text != "" {
		if out, err = r.appendEvent(out, openai.ResponseEventTypeOutputTextDone, openai.ResponseOutputTextDoneEvent{
			Type:         openai.ResponseEventTypeOutputTextDone,
			ItemID:       r.itemID,
			OutputIndex:  0,
			ContentIndex: 0,
			Text:         text,
		}); err != nil {
			return nil, err
		}
	}
	for _, index := range r.toolOrder {
		acc := r.toolCalls[index]
		if out, err = r.appendEvent(out, openai.ResponseEventTypeFunctionCallArgsDone, openai.ResponseFunctionCallArgsDoneEvent{
			Type:        openai.ResponseEventTypeFunctionCallArgsDone,
			ItemID:      acc.itemID,
			OutputIndex: acc.outputIndex,
			Arguments:   acc.args,
		}); err != nil {
			return nil, err
		}
	}

	status, incomplete := responsesStatus(r.finish)
	envelope := r.envelope(status)
	envelope.IncompleteDetails = incomplete
	envelope.OutputText = text
	envelope.Usage = responsesUsage(r.usage)
	if text != "" {
		envelope.Output = append(envelope.Output, completedItem)
	}
	for _, index := range r.toolOrder {
		acc := r.toolCalls[index]
		envelope.Output = append(envelope.Output, openai.ResponseOutputItemUnion{
			OfFunctionCall: &openai.ResponseFunctionCallItem{
				Type:      openai.ResponseItemTypeFunctionCall,
				ID:        acc.itemID,
				CallID:    acc.itemID,
				Name:      acc.name,
				Arguments: acc.args,
				Status:    "completed",
			},
		})
	}
	return r.appendEvent(out, openai.ResponseEventTypeCompleted, openai.ResponseEnvelopeEvent{
		Type:     openai.ResponseEventTypeCompleted,
		Response: envelope,
	})
}

func (r *ResponsesToOpenAITranslator) appendEvent(out []byte, eventType string, event any) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return sse.AppendEvent(out, eventType, data), nil
}
