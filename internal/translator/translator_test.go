// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/sjson"
)

// deleteVolatileIDs strips freshly minted identifiers so event payloads
// from independent translator runs can be compared structurally.
func deleteVolatileIDs(data []byte) ([]byte, error) {
	out := data
	for _, path := range []string{
		"id",
		"item_id",
		"item.id",
		"item.call_id",
		"message.id",
		"content_block.id",
		"response.id",
		"response.output.0.id",
		"response.output.0.call_id",
		"response.output.1.id",
		"response.output.1.call_id",
		"response.output.2.id",
		"response.output.2.call_id",
	} {
		var err error
		if out, err = sjson.DeleteBytes(out, path); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func TestDetectImageMIME(t *testing.T) {
	for b64, want := range map[string]string{
		"/9j/4AAQ": "image/jpeg",
		"iVBORw0K": "image/png",
		"R0lGODlh": "image/gif",
		"UklGRh4A": "image/webp",
		"AAAAHGZ0": "image/jpeg",
	} {
		require.Equal(t, want, detectImageMIME(b64), b64)
	}
}

func TestDecodeToolArguments(t *testing.T) {
	require.Equal(t, map[string]any{}, decodeToolArguments(""))
	require.Equal(t, map[string]any{"city": "SF"}, decodeToolArguments(`{"city":"SF"}`))
	// Truncated JSON is repaired rather than dropped.
	require.Equal(t, map[string]any{"city": "SF"}, decodeToolArguments(`{"city":"SF`))
	// Non-object input is preserved verbatim under an arguments key.
	require.Equal(t, map[string]any{"arguments": "[1,2,3]"}, decodeToolArguments("[1,2,3]"))
}

func TestNewID(t *testing.T) {
	id := newID(callIDPrefix)
	require.True(t, strings.HasPrefix(id, "call_"))
	require.NotEqual(t, id, newID(callIDPrefix))
	require.NotContains(t, id, "-")
}
