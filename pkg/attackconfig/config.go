package attackconfig

import (
	"context"
	"time"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
)

// Requester sends one API request. *mediaapi.Client implements it.
type Requester interface {
	Do(ctx context.Context, req mediaapi.Request) (*mediaapi.Response, error)
}

// Base contains configuration fields shared across all probes.
// Embed it in package-specific TesterConfig structs.
type Base struct {
	// API sends the probe's requests.
	API Requester `json:"-"`

	// Timeout bounds each request the probe sends.
	Timeout time.Duration `json:"-"`

	// Endpoint is the API path the probe targets (default /proxy/detect).
	Endpoint string `json:"endpoint,omitempty"`

	// MediaURL is the benign URL sent as request payload.
	MediaURL string `json:"media_url,omitempty"`

	// OnVulnerabilityFound is called when the probe flags a result,
	// before the suite returns.
	OnVulnerabilityFound func(finding.ProbeResult) `json:"-"`
}

// DefaultBase returns a Base with production defaults and no requester.
func DefaultBase() Base {
	return Base{
		Timeout:  duration.RequestProbe,
		Endpoint: defaults.PathDetect,
		MediaURL: defaults.ProbeURL,
	}
}

// Validate fills zero-value fields with defaults.
// Call this in NewTester constructors to ensure sane values.
func (b *Base) Validate() {
	if b.Timeout <= 0 {
		b.Timeout = duration.RequestProbe
	}
	if b.Endpoint == "" {
		b.Endpoint = defaults.PathDetect
	}
	if b.MediaURL == "" {
		b.MediaURL = defaults.ProbeURL
	}
}

// NotifyVulnerabilityFound calls the OnVulnerabilityFound callback if set
// and r is flagged.
func (b *Base) NotifyVulnerabilityFound(r finding.ProbeResult) {
	if r.Vulnerable && b.OnVulnerabilityFound != nil {
		b.OnVulnerabilityFound(r)
	}
}
