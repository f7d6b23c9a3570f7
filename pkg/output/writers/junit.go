package writers

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
	"github.com/waftester/mediaprobe/pkg/poller"
	"github.com/waftester/mediaprobe/pkg/scenario"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*JUnitWriter)(nil)

// JUnitWriter writes probe and scenario results in JUnit XML format so CI
// systems can show them as test cases. Probes and platforms are two
// separate suites; a single-job poll gets a jobs suite of its own.
// Results are buffered and written on Close.
// The writer is safe for concurrent use.
type JUnitWriter struct {
	w         io.Writer
	mu        sync.Mutex
	opts      JUnitOptions
	probes    []junitTestCase
	scenarios []junitTestCase
	jobs      []junitTestCase
	startTime time.Time
}

// JUnitOptions configures the JUnit XML writer.
type JUnitOptions struct {
	// SuiteName prefixes both suite names (default: "mediaprobe").
	SuiteName string

	// Hostname is the hostname for the test suites.
	Hostname string

	// StillProcessingFails reports a scenario that ran out of demo budget
	// as a failure instead of skipped.
	StillProcessingFails bool
}

// JUnit XML structures.

type junitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	Hostname  string          `xml:"hostname,attr,omitempty"`
	TestCases []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Error     *junitError   `xml:"error,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

type junitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

// NewJUnitWriter creates a new JUnit XML writer that writes to w.
func NewJUnitWriter(w io.Writer, opts JUnitOptions) *JUnitWriter {
	if opts.SuiteName == "" {
		opts.SuiteName = defaults.ToolName
	}
	return &JUnitWriter{
		w:         w,
		opts:      opts,
		startTime: time.Now(),
	}
}

// Write converts probe and final scenario events to test cases.
// Mapping:
//   - vulnerable probe → <failure type="<severity>">
//   - errored probe or failed scenario → <error type="<error kind>">
//   - scenario or polled job still processing → <skipped>
//   - failed polled job → <error type="<terminal status>">
func (jw *JUnitWriter) Write(event events.Event) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	switch e := event.(type) {
	case *events.ProbeEvent:
		jw.probes = append(jw.probes, jw.probeCase(e.Result))
	case *events.ScenarioEvent:
		if e.Final() {
			jw.scenarios = append(jw.scenarios, jw.scenarioCase(e.Result))
		}
	case *events.CompleteEvent:
		if e.Poll != nil {
			jw.jobs = append(jw.jobs, jw.jobCase(e.Poll))
		}
	}
	return nil
}

func (jw *JUnitWriter) jobCase(o *poller.Outcome) junitTestCase {
	tc := junitTestCase{
		Name:      o.JobID,
		ClassName: jw.opts.SuiteName + ".jobs",
		Time:      float64(o.DurationMs) / 1000,
	}
	switch {
	case o.Success:
	case o.Exhausted && !jw.opts.StillProcessingFails:
		tc.Skipped = &junitSkipped{Message: fmt.Sprintf("still processing after %d attempts", o.AttemptsUsed)}
	default:
		kind := string(o.TerminalStatus)
		if kind == "" {
			kind = "poll"
		}
		tc.Error = &junitError{
			Message: o.Error,
			Type:    kind,
			Content: fmt.Sprintf("attempts: %d/%d", o.AttemptsUsed, o.MaxAttempts),
		}
	}
	return tc
}

func (jw *JUnitWriter) probeCase(r finding.ProbeResult) junitTestCase {
	tc := junitTestCase{
		Name:      r.Probe,
		ClassName: jw.opts.SuiteName + ".probes",
		Time:      float64(r.DurationMs) / 1000,
	}
	switch {
	case r.Errored():
		tc.Error = &junitError{Message: r.Error, Type: r.ErrorKind, Content: r.Message}
	case r.Vulnerable:
		tc.Failure = &junitFailure{
			Message: r.Message,
			Type:    string(r.Severity),
			Content: formatEvidence(r),
		}
	}
	return tc
}

func (jw *JUnitWriter) scenarioCase(r *scenario.Result) junitTestCase {
	tc := junitTestCase{
		Name:      r.Platform.Name,
		ClassName: jw.opts.SuiteName + ".scenarios",
		Time:      float64(r.DurationMs) / 1000,
	}
	switch {
	case r.Success:
	case r.StillProcessing() && !jw.opts.StillProcessingFails:
		tc.Skipped = &junitSkipped{Message: "still processing: " + r.JobURL}
	default:
		tc.Error = &junitError{
			Message: r.Error,
			Type:    r.ErrorKind,
			Content: fmt.Sprintf("stage: %s\nurl: %s\njob: %s", r.Stage, r.Platform.URL, r.JobID),
		}
	}
	return tc
}

// formatEvidence renders probe evidence as sorted key: value lines.
func formatEvidence(r finding.ProbeResult) string {
	keys := make([]string, 0, len(r.Evidence))
	for k := range r.Evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "Severity: %s\n", r.Severity)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, r.Evidence[k])
	}
	if r.Remediation != "" {
		fmt.Fprintf(&b, "Remediation: %s\n", r.Remediation)
	}
	return b.String()
}

// Flush is a no-op for JUnit writer.
// All results are written as a single document on Close.
func (jw *JUnitWriter) Flush() error {
	return nil
}

// Close writes all buffered results as a complete JUnit XML document.
// If the underlying writer implements io.Closer, it will be closed.
func (jw *JUnitWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	elapsed := time.Since(jw.startTime).Seconds()
	var doc junitTestSuites
	if len(jw.probes) > 0 || len(jw.jobs) == 0 {
		doc.TestSuites = append(doc.TestSuites, jw.suite(jw.opts.SuiteName+".probes", jw.probes, elapsed))
	}
	if len(jw.scenarios) > 0 {
		doc.TestSuites = append(doc.TestSuites, jw.suite(jw.opts.SuiteName+".scenarios", jw.scenarios, elapsed))
	}
	if len(jw.jobs) > 0 {
		doc.TestSuites = append(doc.TestSuites, jw.suite(jw.opts.SuiteName+".jobs", jw.jobs, elapsed))
	}

	if _, err := jw.w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("junit: write header: %w", err)
	}
	encoder := xml.NewEncoder(jw.w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("junit: encode: %w", err)
	}

	if closer, ok := jw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (jw *JUnitWriter) suite(name string, cases []junitTestCase, elapsed float64) junitTestSuite {
	s := junitTestSuite{
		Name:      name,
		Tests:     len(cases),
		Time:      elapsed,
		Timestamp: jw.startTime.Format(time.RFC3339),
		Hostname:  jw.opts.Hostname,
		TestCases: cases,
	}
	for _, tc := range cases {
		switch {
		case tc.Failure != nil:
			s.Failures++
		case tc.Error != nil:
			s.Errors++
		case tc.Skipped != nil:
			s.Skipped++
		}
	}
	return s
}

// SupportsEvent returns true for probe, scenario and complete events.
func (jw *JUnitWriter) SupportsEvent(eventType events.EventType) bool {
	switch eventType {
	case events.EventTypeProbe, events.EventTypeScenario, events.EventTypeComplete:
		return true
	}
	return false
}
