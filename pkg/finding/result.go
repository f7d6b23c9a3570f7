package finding

import (
	"errors"
	"time"

	"github.com/waftester/mediaprobe/pkg/mediaapi"
)

// ProbeResult is the verdict of one security probe in one run.
//
// Vulnerable is only meaningful when Error is empty. Evidence holds the
// raw observations behind the verdict (status codes, header values,
// counts) and is safe to serialize.
type ProbeResult struct {
	Probe       string         `json:"probe"`
	Vulnerable  bool           `json:"vulnerable"`
	Severity    Severity       `json:"severity"`
	Message     string         `json:"message"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	Remediation string         `json:"remediation,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

// NewResult starts a result for the named probe.
func NewResult(probe string) ProbeResult {
	return ProbeResult{
		Probe:    probe,
		Severity: Info,
		Evidence: map[string]any{},
	}
}

// Fail records an error that prevented a verdict. ErrorKind is the
// transport classification (timeout, dns, ...), "protocol" for an
// unexpected HTTP status, or "internal".
func (r *ProbeResult) Fail(err error) {
	r.Vulnerable = false
	r.Severity = Info
	r.Error = err.Error()
	r.ErrorKind = ErrorKind(err)
	if r.Message == "" {
		r.Message = "probe could not complete"
	}
}

// Flag marks the result vulnerable with the given severity and message.
func (r *ProbeResult) Flag(sev Severity, msg string) {
	r.Vulnerable = true
	r.Severity = sev
	r.Message = msg
}

// Finish records the elapsed time since start.
func (r *ProbeResult) Finish(start time.Time) {
	r.DurationMs = time.Since(start).Milliseconds()
}

// Errored reports whether the probe failed to reach a verdict.
func (r ProbeResult) Errored() bool {
	return r.Error != ""
}

// Tally summarizes a set of probe results.
type Tally struct {
	Total      int      `json:"total"`
	Vulnerable int      `json:"vulnerable"`
	Errored    int      `json:"errored"`
	Passed     int      `json:"passed"`
	Worst      Severity `json:"worst_severity"`
}

// Summarize counts results by verdict.
func Summarize(results []ProbeResult) Tally {
	t := Tally{Total: len(results), Worst: Info}
	for _, r := range results {
		switch {
		case r.Errored():
			t.Errored++
		case r.Vulnerable:
			t.Vulnerable++
			t.Worst = Max(t.Worst, r.Severity)
		default:
			t.Passed++
		}
	}
	return t
}

// ErrorKind classifies err into the error taxonomy used in reports.
func ErrorKind(err error) string {
	var te *mediaapi.TransportError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te):
		return te.Kind
	case mediaapi.StatusCode(err) != 0:
		return "protocol"
	default:
		return "internal"
	}
}
