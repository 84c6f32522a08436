// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package sse splits server-sent event streams into frames and serializes
// frames back out. The splitter is byte-boundary agnostic: feeding the same
// stream in different chunkings yields the same frames.
package sse

import "bytes"

// DoneData is the OpenAI end-of-stream sentinel payload.
const DoneData = "[DONE]"

var (
	dataPrefix = []byte("data:")
	evPrefix   = []byte("event:")
)

// Frame is one server-sent event. Data of multi-line events is joined
// with a single newline per the SSE specification.
type Frame struct {
	// Event is the event name, empty when the frame has no event: line.
	Event string
	Data  []byte
}

// IsDone reports whether the frame carries the [DONE] sentinel.
func (f *Frame) IsDone() bool {
	return string(f.Data) == DoneData
}

// Splitter incrementally splits a byte stream into SSE frames. The zero
// value is ready to use. Not safe for concurrent use.
type Splitter struct {
	buf bytes.Buffer // Tail of the stream not yet terminated by a newline.

	event string
	data  [][]byte
}

// Push appends chunk to the internal buffer and returns all frames completed
// by it. Comment-only and empty frames are dropped. Both LF and CRLF line
// endings are accepted.
func (s *Splitter) Push(chunk []byte) []Frame {
	s.buf.Write(chunk)

	var frames []Frame
	for {
		line, rest, found := bytes.Cut(s.buf.Bytes(), []byte("\n"))
		if !found {
			break
		}
		line = append([]byte(nil), line...)
		rest = append([]byte(nil), rest...)
		s.buf.Reset()
		s.buf.Write(rest)

		if f, ok := s.consumeLine(line); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

// Flush completes any frame left unterminated when the stream ends. Call
// once after the final Push.
func (s *Splitter) Flush() []Frame {
	if s.buf.Len() > 0 {
		line := append([]byte(nil), s.buf.Bytes()...)
		s.buf.Reset()
		s.consumeLine(line)
	}
	if f, ok := s.endFrame(); ok {
		return []Frame{f}
	}
	return nil
}

// consumeLine feeds one newline-terminated line to the frame accumulator. A
// blank line completes the pending frame.
func (s *Splitter) consumeLine(line []byte) (Frame, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return s.endFrame()
	}
	switch {
	case bytes.HasPrefix(line, dataPrefix):
		s.data = append(s.data, trimFieldValue(line[len(dataPrefix):]))
	case bytes.HasPrefix(line, evPrefix):
		s.event = string(trimFieldValue(line[len(evPrefix):]))
	default:
		// Comments and unknown fields (id:, retry:) are ignored.
	}
	return Frame{}, false
}

// endFrame returns the accumulated frame, dropping frames with neither an
// event name nor data, such as comment keep-alives.
func (s *Splitter) endFrame() (Frame, bool) {
	event, data := s.event, s.data
	s.event, s.data = "", nil
	if len(data) == 0 && event == "" {
		return Frame{}, false
	}
	return Frame{Event: event, Data: bytes.Join(data, []byte("\n"))}, true
}

// trimFieldValue strips the single optional space after the field colon.
func trimFieldValue(v []byte) []byte {
	if len(v) > 0 && v[0] == ' ' {
		return v[1:]
	}
	return v
}

// AppendEvent appends "event: <event>\ndata: <data>\n\n" to buf and returns
// the extended slice. An empty event name omits the event: line.
func AppendEvent(buf []byte, event string, data []byte) []byte {
	if event != "" {
		buf = append(buf, evPrefix...)
		buf = append(buf, ' ')
		buf = append(buf, event...)
		buf = append(buf, '\n')
	}
	buf = append(buf, dataPrefix...)
	buf = append(buf, ' ')
	buf = append(buf, data...)
	return append(buf, "\n\n"...)
}

// AppendDone appends the [DONE] sentinel frame to buf.
func AppendDone(buf []byte) []byte {
	return AppendEvent(buf, "", []byte(DoneData))
}
