// Package inputvalidation sends malformed and hostile values in the url
// field of a detect request and records how the API answers.
//
// The verdict is based on the HTTP status alone: 4xx/5xx counts as
// blocked, anything below 400 as handled. A handled payload is not proof
// of exploitation, so this probe never flags a result as vulnerable; it
// reports the counts and marks the run for review when payloads were
// accepted.
package inputvalidation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/waftester/mediaprobe/pkg/attackconfig"
	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/iohelper"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
)

// ProbeName identifies this probe in results and reports.
const ProbeName = "input_validation"

// VerdictBasis is recorded in evidence so readers know how weak the
// check is.
const VerdictBasis = "http_status_only"

// ErrNoRequester is returned when the tester has no API requester.
var ErrNoRequester = errors.New("inputvalidation: no API requester configured")

// VulnerabilityType is the payload family.
type VulnerabilityType string

const (
	JavaScriptURI VulnerabilityType = "javascript_uri"
	SQLInjection  VulnerabilityType = "sql_injection"
	PathTraversal VulnerabilityType = "path_traversal"
	FileScheme    VulnerabilityType = "file_scheme"
	ScriptTag     VulnerabilityType = "script_injection"
)

// Payload is one hostile value.
type Payload struct {
	Type  VulnerabilityType
	Value string
}

// DefaultPayloads returns the five payloads sent by default.
func DefaultPayloads() []Payload {
	return []Payload{
		{JavaScriptURI, "javascript:alert('xss')"},
		{SQLInjection, "'; DROP TABLE videos; --"},
		{PathTraversal, "../../../etc/passwd"},
		{FileScheme, "file:///etc/passwd"},
		{ScriptTag, "<script>alert('xss')</script>"},
	}
}

// PayloadOutcome is how the API answered one payload.
type PayloadOutcome struct {
	Input   string            `json:"input"`
	Type    VulnerabilityType `json:"type"`
	Status  int               `json:"status,omitzero"`
	Blocked bool              `json:"blocked"`
	Handled bool              `json:"handled"`
	Error   string            `json:"error,omitempty"`
}

// TesterConfig configures the probe.
type TesterConfig struct {
	attackconfig.Base
	// Payloads overrides DefaultPayloads.
	Payloads []Payload
}

// Tester runs the input validation probe.
type Tester struct {
	config TesterConfig
}

// NewTester creates an input validation tester.
func NewTester(cfg TesterConfig) *Tester {
	if cfg.Timeout <= 0 {
		cfg.Timeout = duration.RequestQuick
	}
	cfg.Base.Validate()
	if cfg.Payloads == nil {
		cfg.Payloads = DefaultPayloads()
	}
	return &Tester{config: cfg}
}

// Name returns the probe name.
func (t *Tester) Name() string { return ProbeName }

// Run sends every payload once, in order.
func (t *Tester) Run(ctx context.Context) finding.ProbeResult {
	start := time.Now()
	result := finding.NewResult(ProbeName)
	result.Evidence["verdict_basis"] = VerdictBasis
	result.Evidence["endpoint"] = t.config.Endpoint

	if t.config.API == nil {
		result.Fail(ErrNoRequester)
		result.Finish(start)
		return result
	}
	if len(t.config.Payloads) == 0 {
		result.Fail(finding.ErrNoPayloads)
		result.Finish(start)
		return result
	}

	outcomes := make([]PayloadOutcome, 0, len(t.config.Payloads))
	var lastErr error
	for _, p := range t.config.Payloads {
		if ctx.Err() != nil {
			break
		}
		o := PayloadOutcome{
			Input: iohelper.Truncate(p.Value, defaults.InputExcerptLen),
			Type:  p.Type,
		}
		resp, err := t.config.API.Do(ctx, mediaapi.Request{
			Method:  http.MethodPost,
			Path:    t.config.Endpoint,
			Body:    map[string]string{"url": p.Value},
			Timeout: t.config.Timeout,
		})
		if err != nil {
			o.Error = err.Error()
			lastErr = err
		} else {
			o.Status = resp.StatusCode
			o.Blocked = resp.StatusCode >= 400
			o.Handled = !o.Blocked
		}
		outcomes = append(outcomes, o)
	}

	s := Summarize(outcomes)
	result.Evidence["tested"] = s.Tested
	result.Evidence["blocked"] = s.Blocked
	result.Evidence["handled"] = s.Handled
	result.Evidence["errored"] = s.Errored
	result.Evidence["results"] = outcomes
	result.Evidence["needs_review"] = s.Handled > 0

	switch {
	case ctx.Err() != nil:
		result.Fail(fmt.Errorf("interrupted after %d payloads: %w", len(outcomes), ctx.Err()))
	case s.Errored == s.Tested:
		result.Fail(lastErr)
	default:
		result.Message = fmt.Sprintf("%d/%d payloads blocked (status >= 400), %d handled; status-only check, exploitation not verified",
			s.Blocked, s.Tested, s.Handled)
	}

	result.Finish(start)
	return result
}

// Summary counts payload outcomes.
type Summary struct {
	Tested  int
	Blocked int
	Handled int
	Errored int
}

// Summarize counts outcomes by classification.
func Summarize(outcomes []PayloadOutcome) Summary {
	s := Summary{Tested: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Error != "":
			s.Errored++
		case o.Blocked:
			s.Blocked++
		default:
			s.Handled++
		}
	}
	return s
}
