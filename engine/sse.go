package engine

import (
	"encoding/json"
	"fmt"
	"io"
)

// SSEEncoder writes the event stream framing spec.md §6 requires:
// newline-delimited `data: <json>\n\n` records.
type SSEEncoder struct {
	w io.Writer
}

// NewSSEEncoder wraps w (an http.ResponseWriter body, a file, or any sink)
// as an SSE frame writer.
func NewSSEEncoder(w io.Writer) *SSEEncoder {
	return &SSEEncoder{w: w}
}

// Encode writes one event as a single SSE frame.
func (e *SSEEncoder) Encode(evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("sse: marshaling event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("sse: writing frame: %w", err)
	}
	if flusher, ok := e.w.(interface{ Flush() }); ok {
		flusher.Flush()
	}
	return nil
}

// Stream drains events from ch, encoding each as it arrives, until ch
// closes or an encode fails.
func (e *SSEEncoder) Stream(ch <-chan Event) error {
	for evt := range ch {
		if err := e.Encode(evt); err != nil {
			return err
		}
	}
	return nil
}
