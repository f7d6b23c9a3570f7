// Package defaults provides canonical default values for the entire codebase.
// This is the single source of truth for runtime configuration defaults.
//
// Usage:
//
//	req.Header.Set(defaults.HeaderAPIKey, key)
//	cfg.MaxAttempts = defaults.MaxPollAttempts
//
// Do not hardcode these values elsewhere; reference the constant instead.
package defaults

import "fmt"

// Version is the current mediaprobe version.
const Version = "0.3.0"

// ToolName is used in banners, User-Agent headers and metric namespaces.
const ToolName = "mediaprobe"

// ============================================================================
// REMOTE API
// ============================================================================

const (
	// DefaultBaseURL is where the extraction API listens in local setups.
	DefaultBaseURL = "http://localhost:8080"

	// HeaderAPIKey carries the credential on every authenticated request.
	HeaderAPIKey = "X-API-Key"

	// PlaceholderAPIKey is the sample value shipped in docs and .env
	// templates. It is treated the same as no key at all.
	PlaceholderAPIKey = "YOUR_API_KEY_HERE"

	// PathDetect, PathExtract and PathJobs are the API routes under test.
	PathDetect  = "/proxy/detect"
	PathExtract = "/proxy/extract"
	PathJobs    = "/proxy/jobs/"
	PathHealth  = "/health"
)

// ============================================================================
// POLLING / SCENARIOS
// ============================================================================

const (
	// MaxPollAttempts is the poll budget for a single job (60 × 2s = 2min).
	MaxPollAttempts = 60

	// DemoPollAttempts is the smaller budget used by scenario runs.
	DemoPollAttempts = 10

	// ScenarioLimit is how many fixture platforms a run exercises.
	ScenarioLimit = 5
)

// ============================================================================
// PROBES
// ============================================================================

const (
	// BurstSize is the number of requests in the rate-limit burst.
	BurstSize = 20

	// ForeignOrigin is sent by the CORS probe.
	ForeignOrigin = "https://malicious-site.com"

	// ProbeURL is the benign media URL used as request payload by probes.
	ProbeURL = "https://example.com"
)

// ============================================================================
// REPORTING
// ============================================================================

const (
	// BodyExcerptLen caps the response body kept in protocol errors.
	BodyExcerptLen = 200

	// InputExcerptLen caps payload text echoed in probe evidence.
	InputExcerptLen = 30

	// ContentTypeJSON is application/json
	ContentTypeJSON = "application/json"
)

// UserAgent returns the mediaprobe user agent with optional context.
func UserAgent(context string) string {
	if context == "" {
		return ToolName + "/" + Version
	}
	return fmt.Sprintf("%s/%s (%s)", ToolName, Version, context)
}
