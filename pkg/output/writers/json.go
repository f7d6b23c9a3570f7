package writers

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/jsonutil"
	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*JSONWriter)(nil)

// JSONWriter writes the run report as one JSON document: the summary
// event, with every probe and platform result, written on Close. A poll
// run has no summary, so its completion event is written instead.
// Use JSONLWriter to stream individual events instead.
type JSONWriter struct {
	w        io.Writer
	mu       sync.Mutex
	opts     JSONOptions
	summary  *events.SummaryEvent
	complete *events.CompleteEvent
	errs     []*events.ErrorEvent
}

// JSONOptions configures the JSON writer behavior.
type JSONOptions struct {
	// OmitEvidence drops the evidence maps from probe results.
	OmitEvidence bool

	// Pretty enables indented JSON output.
	Pretty bool

	// IndentSize sets the number of spaces for indentation (default 2).
	IndentSize int
}

// jsonReport is the document written by JSONWriter.
type jsonReport struct {
	*events.SummaryEvent
	Errors []*events.ErrorEvent `json:"errors"`
}

// jsonPollReport is the document written for a single-job poll.
type jsonPollReport struct {
	*events.CompleteEvent
	Errors []*events.ErrorEvent `json:"errors"`
}

// NewJSONWriter creates a new JSON report writer that writes to w.
func NewJSONWriter(w io.Writer, opts JSONOptions) *JSONWriter {
	if opts.IndentSize == 0 {
		opts.IndentSize = 2
	}
	return &JSONWriter{w: w, opts: opts}
}

// Write keeps the summary and any error events for the report.
func (jw *JSONWriter) Write(event events.Event) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	switch e := event.(type) {
	case *events.SummaryEvent:
		jw.summary = e
	case *events.CompleteEvent:
		jw.complete = e
	case *events.ErrorEvent:
		jw.errs = append(jw.errs, e)
	}
	return nil
}

// Flush is a no-op for JSON writer.
// The report is written as a single document on Close.
func (jw *JSONWriter) Flush() error {
	return nil
}

// Close writes the report and closes the writer.
// If the underlying writer implements io.Closer, it will be closed.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	var doc any
	switch {
	case jw.summary != nil:
		summary := jw.summary
		if jw.opts.OmitEvidence {
			summary = withoutEvidence(summary)
		}
		doc = jsonReport{SummaryEvent: summary, Errors: jw.errs}
	case jw.complete != nil && jw.complete.Poll != nil:
		doc = jsonPollReport{CompleteEvent: jw.complete, Errors: jw.errs}
	}

	if doc != nil {
		encoder := jsonutil.NewStreamEncoder(jw.w)
		if jw.opts.Pretty {
			encoder.SetIndent("", strings.Repeat(" ", jw.opts.IndentSize))
		}
		if err := encoder.Encode(doc); err != nil {
			return fmt.Errorf("json: encode: %w", err)
		}
	}

	if closer, ok := jw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SupportsEvent returns true for summary, complete and error events.
func (jw *JSONWriter) SupportsEvent(eventType events.EventType) bool {
	switch eventType {
	case events.EventTypeSummary, events.EventTypeComplete, events.EventTypeError:
		return true
	}
	return false
}

func withoutEvidence(s *events.SummaryEvent) *events.SummaryEvent {
	cp := *s
	cp.Findings = make([]finding.ProbeResult, len(s.Findings))
	for i, f := range s.Findings {
		f.Evidence = nil
		cp.Findings[i] = f
	}
	return &cp
}
