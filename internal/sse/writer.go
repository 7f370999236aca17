// Package sse frames chat deltas as server-sent events and reads them back.
//
// A stream is a sequence of `data: {"text":"..."}` frames terminated by
// `data: [DONE]`. Every frame ends with a blank line.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// DoneMarker is the payload of the terminating frame.
const DoneMarker = "[DONE]"

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Delta is the JSON payload of a text frame.
type Delta struct {
	Text string `json:"text"`
}

// Writer writes frames to an http.ResponseWriter. Headers are committed with
// the first frame, so the handler can still send a normal error response
// until then.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewWriter wraps w. It fails if w does not support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, flusher: f}, nil
}

// Started reports whether any frame has been written.
func (s *Writer) Started() bool {
	return s.started
}

// WriteText writes one text delta frame.
func (s *Writer) WriteText(text string) error {
	payload, err := json.Marshal(Delta{Text: text})
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	return s.writeFrame(payload)
}

// WriteDone writes the terminating frame.
func (s *Writer) WriteDone() error {
	return s.writeFrame([]byte(DoneMarker))
}

func (s *Writer) writeFrame(payload []byte) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
