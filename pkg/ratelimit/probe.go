package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/waftester/mediaprobe/pkg/attackconfig"
	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
	"github.com/waftester/mediaprobe/pkg/retry"
)

// ProbeName identifies this probe in results and reports.
const ProbeName = "rate_limiting"

// ErrNoRequester is returned when the tester has no API requester.
var ErrNoRequester = errors.New("ratelimit: no API requester configured")

// ErrNoResponses is reported when no burst request got any response.
var ErrNoResponses = errors.New("ratelimit: no request in the burst received a response")

// TesterConfig configures the burst probe.
type TesterConfig struct {
	attackconfig.Base
	// BurstSize is the number of requests sent (default 20).
	BurstSize int
	// Spacing is the pause after each response or transport error before
	// the next request (default 100ms).
	Spacing time.Duration
	// Sleeper replaces the wall clock in tests.
	Sleeper retry.Sleeper
}

// Tester sends a burst of authenticated requests and watches for 429.
type Tester struct {
	config TesterConfig
}

// NewTester creates a burst tester.
func NewTester(cfg TesterConfig) *Tester {
	if cfg.Timeout <= 0 {
		cfg.Timeout = duration.RequestQuick
	}
	cfg.Base.Validate()
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = defaults.BurstSize
	}
	if cfg.Spacing <= 0 {
		cfg.Spacing = duration.BurstSpacing
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = retry.RealSleeper{}
	}
	return &Tester{config: cfg}
}

// Name returns the probe name.
func (t *Tester) Name() string { return ProbeName }

// Run sends up to BurstSize requests, stopping at the first 429.
func (t *Tester) Run(ctx context.Context) finding.ProbeResult {
	start := time.Now()
	result := finding.NewResult(ProbeName)
	result.Evidence["burst_limit"] = t.config.BurstSize
	result.Evidence["spacing_ms"] = t.config.Spacing.Milliseconds()

	if t.config.API == nil {
		result.Fail(ErrNoRequester)
		result.Finish(start)
		return result
	}

	statuses := map[string]int{}
	responses, errs := 0, 0
	blockedAt := 0
	var lastErr error

	for i := 1; i <= t.config.BurstSize; i++ {
		if i > 1 {
			if err := t.config.Sleeper.Sleep(ctx, t.config.Spacing); err != nil {
				lastErr = err
				break
			}
		}

		resp, err := t.config.API.Do(ctx, mediaapi.Request{
			Method:  http.MethodPost,
			Path:    t.config.Endpoint,
			Body:    map[string]string{"url": t.config.MediaURL},
			Timeout: t.config.Timeout,
		})
		if err != nil {
			errs++
			lastErr = err
			continue
		}

		responses++
		statuses[strconv.Itoa(resp.StatusCode)]++
		if resp.StatusCode == http.StatusTooManyRequests {
			blockedAt = i
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				result.Evidence["retry_after"] = ra
			}
			break
		}
	}

	result.Evidence["requests"] = responses
	result.Evidence["errors"] = errs
	result.Evidence["statuses"] = statuses

	switch {
	case blockedAt > 0:
		result.Evidence["blocked_at"] = blockedAt
		result.Message = fmt.Sprintf("rate limited with 429 at request %d", blockedAt)
	case ctx.Err() != nil:
		result.Fail(fmt.Errorf("interrupted after %d responses: %w", responses, ctx.Err()))
	case responses == 0:
		if lastErr != nil {
			result.Fail(fmt.Errorf("%w: %w", ErrNoResponses, lastErr))
		} else {
			result.Fail(ErrNoResponses)
		}
	default:
		result.Flag(finding.Medium, fmt.Sprintf("no 429 within a burst of %d requests", t.config.BurstSize))
		result.Remediation = "Enforce a per-key request rate limit and answer excess requests with 429 and Retry-After"
	}

	result.Finish(start)
	t.config.NotifyVulnerabilityFound(result)
	return result
}
