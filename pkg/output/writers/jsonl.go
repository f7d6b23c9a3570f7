// Package writers provides output writers for various formats.
//
// This package contains implementations of the dispatcher.Writer interface
// for JSONL event streams, the JSON report, JUnit XML for CI systems, and
// Go templates rendered with Sprig functions.
package writers

import (
	"io"
	"sync"

	"github.com/waftester/mediaprobe/pkg/jsonutil"
	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*JSONLWriter)(nil)

// JSONLWriter writes events as newline-delimited JSON (JSONL).
// Each event is serialized as a complete JSON object on a single line,
// so a run can be followed with jq or tail while it is still going.
type JSONLWriter struct {
	w       io.Writer
	mu      sync.Mutex
	opts    JSONLOptions
	encoder *jsonutil.Encoder
}

// JSONLOptions configures the JSONL writer behavior.
type JSONLOptions struct {
	// OmitPolls skips per-fetch poll events.
	OmitPolls bool

	// OnlyVulnerable writes only flagged probe results and the final
	// summary and complete events.
	OnlyVulnerable bool

	// Pretty enables indented JSON output.
	// Note: This is not JSONL compliant but useful for debugging.
	Pretty bool
}

// NewJSONLWriter creates a new JSONL writer that writes to w.
// The writer is safe for concurrent use.
func NewJSONLWriter(w io.Writer, opts JSONLOptions) *JSONLWriter {
	encoder := jsonutil.NewStreamEncoder(w)
	if opts.Pretty {
		encoder.SetIndent("", "  ")
	}
	return &JSONLWriter{
		w:       w,
		opts:    opts,
		encoder: encoder,
	}
}

// Write writes an event as a single JSON line.
// Returns nil if the event was filtered out by options.
func (jw *JSONLWriter) Write(event events.Event) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.opts.OnlyVulnerable {
		switch e := event.(type) {
		case *events.ProbeEvent:
			if !e.Result.Vulnerable {
				return nil
			}
		case *events.SummaryEvent, *events.CompleteEvent:
		default:
			return nil
		}
	}
	return jw.encoder.Encode(event)
}

// Flush is a no-op; JSONL writes immediately.
func (jw *JSONLWriter) Flush() error {
	return nil
}

// Close closes the underlying writer if it implements io.Closer.
func (jw *JSONLWriter) Close() error {
	if closer, ok := jw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SupportsEvent returns true for every event type except polls when
// OmitPolls is set.
func (jw *JSONLWriter) SupportsEvent(eventType events.EventType) bool {
	return !(jw.opts.OmitPolls && eventType == events.EventTypePoll)
}
