// Package accesscontrol probes whether the API enforces its credential.
//
// The probe sends one request to a protected endpoint without the
// X-API-Key header. Anything other than 401 Unauthorized is flagged: a 2xx
// means the endpoint is open, while 403 or 5xx means the server does not
// signal the missing credential correctly.
package accesscontrol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/waftester/mediaprobe/pkg/attackconfig"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
)

// ProbeName identifies this probe in results and reports.
const ProbeName = "auth_enforcement"

// VulnerabilityType classifies a flagged result.
type VulnerabilityType string

const (
	// MissingAuthentication: the request was served without a credential.
	MissingAuthentication VulnerabilityType = "missing_authentication"
	// WrongAuthStatus: the request was refused, but not with 401.
	WrongAuthStatus VulnerabilityType = "wrong_auth_status"
)

// ErrNoRequester is returned when the tester has no API requester.
var ErrNoRequester = errors.New("accesscontrol: no API requester configured")

// TesterConfig holds configuration for the tester.
type TesterConfig struct {
	attackconfig.Base
	// Method is the HTTP method sent (default POST).
	Method string
}

// Tester runs the authentication probe.
type Tester struct {
	config TesterConfig
}

// NewTester creates a new authentication tester.
func NewTester(cfg TesterConfig) *Tester {
	cfg.Base.Validate()
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	return &Tester{config: cfg}
}

// Name returns the probe name.
func (t *Tester) Name() string { return ProbeName }

// Run sends one unauthenticated request and classifies the status.
func (t *Tester) Run(ctx context.Context) finding.ProbeResult {
	start := time.Now()
	result := finding.NewResult(ProbeName)

	result.Evidence["endpoint"] = t.config.Endpoint
	result.Evidence["method"] = t.config.Method
	result.Evidence["credential_sent"] = false

	if t.config.API == nil {
		result.Fail(ErrNoRequester)
		result.Finish(start)
		return result
	}

	resp, err := t.config.API.Do(ctx, mediaapi.Request{
		Method:  t.config.Method,
		Path:    t.config.Endpoint,
		Body:    map[string]string{"url": t.config.MediaURL},
		NoAuth:  true,
		Timeout: t.config.Timeout,
	})
	if err != nil {
		result.Fail(err)
		result.Finish(start)
		return result
	}

	result.Evidence["status"] = resp.StatusCode
	Classify(&result, resp.StatusCode)
	if result.Vulnerable {
		result.Evidence["body_excerpt"] = resp.Excerpt()
	}

	result.Finish(start)
	t.config.NotifyVulnerabilityFound(result)
	return result
}

// Classify applies the verdict for an unauthenticated request that got
// the given status.
func Classify(r *finding.ProbeResult, status int) {
	switch {
	case status == http.StatusUnauthorized:
		r.Message = "unauthenticated request rejected with 401"
	case status >= 200 && status < 300:
		r.Flag(finding.High, fmt.Sprintf("unauthenticated request accepted with %d", status))
		r.Evidence["vuln_type"] = string(MissingAuthentication)
		r.Remediation = "Require a valid X-API-Key on every /proxy route"
	default:
		sev := finding.Low
		if status >= 500 {
			sev = finding.Medium
		}
		r.Flag(sev, fmt.Sprintf("unauthenticated request answered %d instead of 401", status))
		r.Evidence["vuln_type"] = string(WrongAuthStatus)
		r.Remediation = "Reject missing credentials with 401 Unauthorized before any other processing"
	}
}
