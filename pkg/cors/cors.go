// Package cors probes the API's cross-origin policy.
//
// One authenticated request is sent with a foreign Origin header. The
// result is flagged when Access-Control-Allow-Origin is the wildcard "*".
// A reflected foreign origin and the credentials flag are recorded as
// evidence alongside the verdict.
package cors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/waftester/mediaprobe/pkg/attackconfig"
	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
	"golang.org/x/net/publicsuffix"
)

// ProbeName identifies this probe in results and reports.
const ProbeName = "cors_policy"

// NotSet is recorded when the response carries no ACAO header.
const NotSet = "Not Set"

// fallbackOrigin replaces a configured origin that shares a registrable
// domain with the API, which would not be cross-site.
const fallbackOrigin = "https://mediaprobe-cors-check.example"

// VulnerabilityType classifies a flagged result.
type VulnerabilityType string

const (
	VulnWildcardOrigin      VulnerabilityType = "wildcard_origin"
	VulnWildcardCredentials VulnerabilityType = "wildcard_with_credentials"
)

// ErrNoRequester is returned when the tester has no API requester.
var ErrNoRequester = errors.New("cors: no API requester configured")

// TesterConfig configures the CORS probe.
type TesterConfig struct {
	attackconfig.Base
	// Origin is the foreign origin to send (default https://malicious-site.com).
	Origin string
	// TargetURL is the API base URL, used to make sure Origin is cross-site.
	TargetURL string
}

// Tester runs the CORS probe.
type Tester struct {
	config TesterConfig
	origin string
}

// NewTester creates a CORS tester.
func NewTester(cfg TesterConfig) *Tester {
	cfg.Base.Validate()
	if cfg.Origin == "" {
		cfg.Origin = defaults.ForeignOrigin
	}
	origin := cfg.Origin
	if cfg.TargetURL != "" && SameSite(origin, cfg.TargetURL) {
		origin = fallbackOrigin
	}
	return &Tester{config: cfg, origin: origin}
}

// Name returns the probe name.
func (t *Tester) Name() string { return ProbeName }

// Origin returns the origin the probe will send.
func (t *Tester) Origin() string { return t.origin }

// Run sends the cross-origin request and inspects the CORS headers.
func (t *Tester) Run(ctx context.Context) finding.ProbeResult {
	start := time.Now()
	result := finding.NewResult(ProbeName)
	result.Evidence["tested_origin"] = t.origin
	result.Evidence["endpoint"] = t.config.Endpoint

	if t.config.API == nil {
		result.Fail(ErrNoRequester)
		result.Finish(start)
		return result
	}

	resp, err := t.config.API.Do(ctx, mediaapi.Request{
		Method:  http.MethodPost,
		Path:    t.config.Endpoint,
		Body:    map[string]string{"url": t.config.MediaURL},
		Header:  http.Header{"Origin": []string{t.origin}},
		Timeout: t.config.Timeout,
	})
	if err != nil {
		result.Fail(err)
		result.Finish(start)
		return result
	}

	result.Evidence["status"] = resp.StatusCode
	Analyze(&result, t.origin, resp.Header)

	result.Finish(start)
	t.config.NotifyVulnerabilityFound(result)
	return result
}

// Analyze applies the verdict to the response headers of a request sent
// with the given origin.
func Analyze(r *finding.ProbeResult, origin string, h http.Header) {
	allowOrigin := h.Get("Access-Control-Allow-Origin")
	allowCreds := strings.EqualFold(h.Get("Access-Control-Allow-Credentials"), "true")
	reflected := allowOrigin != "" && allowOrigin == origin

	shown := allowOrigin
	if shown == "" {
		shown = NotSet
	}
	r.Evidence["origin"] = shown
	r.Evidence["credentials"] = allowCreds
	r.Evidence["reflected"] = reflected
	if vary := h.Get("Vary"); vary != "" {
		r.Evidence["vary"] = vary
	}

	switch {
	case allowOrigin == "*" && allowCreds:
		r.Flag(finding.Critical, "wildcard origin with credentials enabled")
		r.Evidence["vuln_type"] = string(VulnWildcardCredentials)
		r.Remediation = remediation(VulnWildcardCredentials)
	case allowOrigin == "*":
		r.Flag(finding.Medium, "any origin may read API responses (Access-Control-Allow-Origin: *)")
		r.Evidence["vuln_type"] = string(VulnWildcardOrigin)
		r.Remediation = remediation(VulnWildcardOrigin)
	case reflected:
		r.Message = "foreign origin reflected in Access-Control-Allow-Origin; review the allow-list"
	case allowOrigin == "":
		r.Message = "no CORS headers returned for foreign origin"
	default:
		r.Message = "CORS restricted to " + allowOrigin
	}
}

func remediation(v VulnerabilityType) string {
	switch v {
	case VulnWildcardCredentials:
		return "Never combine a wildcard origin with credentials. Allow-list specific origins."
	default:
		return "Replace the wildcard with an explicit allow-list of trusted origins."
	}
}

// SameSite reports whether two URLs share a registrable domain
// (eTLD+1), e.g. app.example.co.uk and api.example.co.uk.
func SameSite(a, b string) bool {
	ha, hb := hostOf(a), hostOf(b)
	if ha == "" || hb == "" {
		return false
	}
	return baseDomain(ha) == baseDomain(hb)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func baseDomain(host string) string {
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		parts := strings.Split(host, ".")
		if len(parts) >= 2 {
			return strings.Join(parts[len(parts)-2:], ".")
		}
		return host
	}
	return domain
}
