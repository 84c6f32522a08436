// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ljie-PI/ghcp-ollama/internal/sse"
	"github.com/ljie-PI/ghcp-ollama/internal/translator"
)

// stream drives a streaming request: upstream chunks go through the
// translator in arrival order and its output is flushed to the client
// immediately. Errors before the first written byte surface as a full HTTP
// error; errors after it become one final error frame.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, operation, model string, payload []byte, vision bool, tr translator.ResponseStreamTranslator, wire wireProtocol, start time.Time) {
	ctx := r.Context()
	resp, err := s.upstream.Post(ctx, payload, vision, true)
	if err != nil {
		ge := classify(err, kindUpstreamTransport)
		writeError(w, wire, ge)
		s.genAI.RecordRequestDuration(operation, model, string(ge.kind), time.Since(start))
		return
	}
	defer resp.Body.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, wire, newError(kindUpstreamTransport, "response writer does not support streaming", nil))
		return
	}

	if wire == wireOllama {
		w.Header().Set("Content-Type", "application/x-ndjson")
	} else {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
	}

	firstWrite := true
	lastWrite := start
	write := func(out []byte) {
		if len(out) == 0 {
			return
		}
		now := time.Now()
		if firstWrite {
			firstWrite = false
			s.genAI.RecordFirstTokenLatency(operation, model, now.Sub(start))
		} else {
			s.genAI.RecordInterTokenLatency(operation, model, now.Sub(lastWrite))
		}
		lastWrite = now
		_, _ = w.Write(out)
		flusher.Flush()
	}

	// Ollama clients expect a leading newline before the first frame.
	if wire == wireOllama {
		_, _ = w.Write([]byte("\n"))
		flusher.Flush()
	}

	fail := func(ge *gatewayError) {
		s.logger.Error("stream aborted",
			slog.String("operation", operation),
			slog.Any("error", ge))
		if firstWrite && wire != wireOllama {
			// Nothing has reached the client yet, so a full HTTP error is
			// still possible. Ollama streams start with the preamble newline
			// and always fail in-band.
			w.Header().Del("Cache-Control")
			writeError(w, wire, ge)
		} else {
			write(errorFrame(wire, ge))
		}
		s.genAI.RecordRequestDuration(operation, model, string(ge.kind), time.Since(start))
	}

	buf := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			out, terr := tr.ResponseStreamChunk(buf[:n], false)
			if terr != nil {
				fail(classify(terr, kindParse))
				return
			}
			write(out)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				// Client went away; nothing left to tell it.
				s.genAI.RecordRequestDuration(operation, model, "cancelled", time.Since(start))
				return
			}
			fail(newError(kindUpstreamTransport, "upstream read failed", rerr))
			return
		}
	}

	out, terr := tr.ResponseStreamChunk(nil, true)
	if terr != nil {
		fail(classify(terr, kindParse))
		return
	}
	write(out)

	// Chat completions close with the [DONE] sentinel; the Responses stream
	// ends at response.completed with nothing after it.
	if wire == wireOpenAI {
		write(sse.AppendDone(nil))
	}
	s.genAI.RecordRequestDuration(operation, model, "", time.Since(start))
}
