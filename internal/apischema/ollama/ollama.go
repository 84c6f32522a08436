// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package ollama contains the schema for the Ollama chat API as exposed on
// /api/chat and /api/tags.
// https://github.com/ollama/ollama/blob/main/docs/api.md
package ollama

import "time"

// ChatRequest describes a request to /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	// Stream defaults to true when absent, unlike the OpenAI-format APIs.
	Stream *bool `json:"stream,omitempty"`

	Tools []Tool `json:"tools,omitempty"`

	// Format is "json", or a JSON schema object for structured output.
	Format any `json:"format,omitempty"`

	// Options carries sampling parameters (temperature, top_p, top_k,
	// num_predict, seed, stop, ...).
	Options map[string]any `json:"options,omitempty"`

	// KeepAlive controls model residency on a real Ollama server; the
	// gateway accepts and ignores it.
	KeepAlive any `json:"keep_alive,omitempty"`

	Think *bool `json:"think,omitempty"`
}

// Message represents a single message in a chat.
type Message struct {
	// Role is "system", "user", "assistant", or "tool".
	Role    string `json:"role"`
	Content string `json:"content"`

	// Thinking is the model's reasoning text on assistant messages.
	Thinking string `json:"thinking,omitempty"`

	// Images are base64 encoded image payloads without a data: prefix.
	Images []string `json:"images,omitempty"`

	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolName and ToolCallID identify the call being answered on "tool"
	// role messages.
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Tool is a function tool definition in the Ollama shape, which matches the
// OpenAI shape field for field.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a tool invocation on an assistant message. Unlike the OpenAI
// format, Arguments is a decoded object rather than a JSON string.
type ToolCall struct {
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction is the function invocation inside a tool call.
type ToolCallFunction struct {
	Index     int            `json:"index,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the response from /api/chat, one JSON line per frame when
// streaming.
type ChatResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`

	Done bool `json:"done"`
	// DoneReason is "stop", "length", or "load"; only set when Done.
	DoneReason string `json:"done_reason,omitempty"`

	Metrics
}

// Metrics are the timing and token counters attached to the final frame.
// Durations are nanoseconds.
type Metrics struct {
	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

// ListTagsResponse is the response from /api/tags.
type ListTagsResponse struct {
	Models []ModelResponse `json:"models"`
}

// ModelResponse describes a single model in the /api/tags listing.
type ModelResponse struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails provides more details about a model. The gateway fills
// placeholders since Copilot models have no GGUF metadata.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model,omitempty"`
	Format            string   `json:"format,omitempty"`
	Family            string   `json:"family,omitempty"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     string   `json:"parameter_size,omitempty"`
	QuantizationLevel string   `json:"quantization_level,omitempty"`
}

// VersionResponse is the response from /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}

// ErrorResponse is the standard error format for the Ollama API.
type ErrorResponse struct {
	Error string `json:"error"`
}
