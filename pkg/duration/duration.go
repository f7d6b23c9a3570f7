// Package duration provides canonical time constants for the entire codebase.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.RequestStd)
//	Interval: duration.PollInterval,
//
// Do not use hardcoded time.Duration values like `30 * time.Second`;
// reference the appropriate constant from this package.
package duration

import "time"

// ============================================================================
// PER-REQUEST TIMEOUTS
// ============================================================================
//
// Applied as context deadlines around a single API call.
// ============================================================================

const (
	// RequestStd is for detect, extract and job status calls (30s)
	RequestStd = 30 * time.Second

	// RequestProbe is for the auth and CORS probes (10s)
	RequestProbe = 10 * time.Second

	// RequestQuick is for burst and input-validation requests (5s)
	RequestQuick = 5 * time.Second

	// HealthCheck is for the /health preflight (5s)
	HealthCheck = 5 * time.Second

	// HTTPMax bounds any request that somehow carries no deadline (60s)
	HTTPMax = 60 * time.Second
)

// ============================================================================
// PACING
// ============================================================================

const (
	// PollInterval is the wait between job status fetches (2s)
	PollInterval = 2 * time.Second

	// BurstSpacing is the gap between rate-limit burst requests (100ms)
	BurstSpacing = 100 * time.Millisecond

	// HealthRetryInit is the first backoff step while waiting for /health (1s)
	HealthRetryInit = 1 * time.Second

	// HealthRetryMax caps the /health backoff (10s)
	HealthRetryMax = 10 * time.Second
)

// ============================================================================
// NETWORK/TRANSPORT
// ============================================================================

const (
	// DialTimeout is for establishing TCP connections (10s)
	DialTimeout = 10 * time.Second

	// KeepAlive is for TCP keep-alive interval (30s)
	KeepAlive = 30 * time.Second

	// IdleConnTimeout is for idle connection pool timeout (90s)
	IdleConnTimeout = 90 * time.Second

	// TLSHandshake is for TLS handshake timeout (10s)
	TLSHandshake = 10 * time.Second
)

// ============================================================================
// OUTPUT HOOKS
// ============================================================================

const (
	// WebhookTimeout bounds a single webhook delivery (10s)
	WebhookTimeout = 10 * time.Second

	// WebhookRetryInit is the first webhook backoff step (500ms)
	WebhookRetryInit = 500 * time.Millisecond

	// HookShutdown bounds metrics server and tracer shutdown (5s)
	HookShutdown = 5 * time.Second

	// ShutdownGrace is how long a second signal waits before forcing exit (3s)
	ShutdownGrace = 3 * time.Second
)
