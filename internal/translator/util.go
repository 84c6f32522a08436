// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"strings"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ljie-PI/ghcp-ollama/internal/json"
)

// ID prefixes follow the upstream conventions so SDK clients that pattern
// match on them keep working.
const (
	messageIDPrefix      = "msg_"
	callIDPrefix         = "call_"
	functionCallIDPrefix = "fc_"
	responseIDPrefix     = "resp_"
	reasoningIDPrefix    = "reasoning_"
)

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// detectImageMIME guesses the media type of a base64 payload from its first
// characters. The prefixes are the base64 encodings of the JPEG, PNG, GIF and
// WEBP magic numbers.
func detectImageMIME(b64 string) string {
	switch {
	case strings.HasPrefix(b64, "/9j/"):
		return "image/jpeg"
	case strings.HasPrefix(b64, "iVBOR"):
		return "image/png"
	case strings.HasPrefix(b64, "R0lGO"):
		return "image/gif"
	case strings.HasPrefix(b64, "UklGR"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// dataURL builds a data: URL for an inline base64 image payload.
func dataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

// decodeToolArguments decodes an accumulated tool-call arguments string into
// an object. Truncated JSON (max_tokens cutoffs) is repaired on a best-effort
// basis; when the payload is beyond repair the raw string is preserved under
// an "arguments" key rather than failing the request.
func decodeToolArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}
	if repaired, err := jsonrepair.JSONRepair(raw); err == nil {
		if err := json.Unmarshal([]byte(repaired), &args); err == nil {
			return args
		}
	}
	return map[string]any{"arguments": raw}
}
