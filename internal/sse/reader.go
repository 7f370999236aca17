package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const dataPrefix = "data: "

// Frame is one decoded event. Done is set for the terminating frame.
type Frame struct {
	Text string
	Done bool
}

// Reader decodes frames from a stream. bufio reassembles lines that arrive
// across several network reads.
type Reader struct {
	scanner *bufio.Scanner
	done    bool
}

// NewReader reads frames from r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: sc}
}

// Next returns the next text or done frame. Lines without the data prefix,
// payloads that are not JSON and payloads with empty text are skipped.
// It returns io.EOF after the done frame or when the stream ends without one.
func (r *Reader) Next() (Frame, error) {
	if r.done {
		return Frame{}, io.EOF
	}
	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")
		data, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			continue
		}
		if data == DoneMarker {
			r.done = true
			return Frame{Done: true}, nil
		}
		var d Delta
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			continue
		}
		if d.Text == "" {
			continue
		}
		return Frame{Text: d.Text}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

// Each calls fn for every text delta until the done frame or the end of the
// stream. A stream that ends without a done frame is not an error.
func (r *Reader) Each(fn func(text string) error) error {
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if f.Done {
			return nil
		}
		if err := fn(f.Text); err != nil {
			return err
		}
	}
}
