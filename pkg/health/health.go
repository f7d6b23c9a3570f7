// Package health checks the API's /health endpoint before a run
// and can wait for it to come up.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/waftester/mediaprobe/pkg/attackconfig"
	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/jsonutil"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
	"github.com/waftester/mediaprobe/pkg/retry"
)

// Common errors
var (
	ErrUnhealthy  = errors.New("health: endpoint is unhealthy")
	ErrNoEndpoint = errors.New("health: no API configured")
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	StatusUnknown   Status = "unknown"
)

// Result is one health check.
type Result struct {
	Endpoint   string            `json:"endpoint"`
	Status     Status            `json:"status"`
	StatusCode int               `json:"status_code,omitzero"`
	LatencyMs  int64             `json:"latency_ms"`
	Message    string            `json:"message,omitempty"`
	CheckedAt  time.Time         `json:"checked_at"`
	Attempts   int               `json:"attempts"`
	Checks     map[string]Status `json:"checks,omitempty"`
}

// IsHealthy checks if the result is healthy
func (r *Result) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Checker probes the health endpoint.
type Checker struct {
	api      attackconfig.Requester
	path     string
	timeout  time.Duration
	sleeper  retry.Sleeper
	maxWait  int
	initWait time.Duration
	maxDelay time.Duration
}

// Config configures a Checker.
type Config struct {
	// Path is the endpoint path (default /health).
	Path string
	// Timeout bounds each check (default 5s).
	Timeout time.Duration
	// MaxAttempts bounds Wait (default 5).
	MaxAttempts int
	// InitDelay and MaxDelay shape Wait's exponential backoff.
	InitDelay time.Duration
	MaxDelay  time.Duration
	// Sleeper replaces the wall clock in tests.
	Sleeper retry.Sleeper
}

// NewChecker creates a checker sending requests through api.
func NewChecker(api attackconfig.Requester, cfg Config) *Checker {
	c := &Checker{
		api:      api,
		path:     cfg.Path,
		timeout:  cfg.Timeout,
		sleeper:  cfg.Sleeper,
		maxWait:  cfg.MaxAttempts,
		initWait: cfg.InitDelay,
		maxDelay: cfg.MaxDelay,
	}
	if c.path == "" {
		c.path = defaults.PathHealth
	}
	if c.timeout <= 0 {
		c.timeout = duration.HealthCheck
	}
	if c.sleeper == nil {
		c.sleeper = retry.RealSleeper{}
	}
	if c.maxWait <= 0 {
		c.maxWait = 5
	}
	if c.initWait <= 0 {
		c.initWait = duration.HealthRetryInit
	}
	if c.maxDelay <= 0 {
		c.maxDelay = duration.HealthRetryMax
	}
	return c
}

// Check performs one unauthenticated GET. Failures are reported in the
// result, never as an error.
func (c *Checker) Check(ctx context.Context) *Result {
	start := time.Now()
	result := &Result{Endpoint: c.path, Status: StatusUnknown, CheckedAt: start, Attempts: 1}
	if c.api == nil {
		result.Status = StatusUnhealthy
		result.Message = ErrNoEndpoint.Error()
		return result
	}

	resp, err := c.api.Do(ctx, mediaapi.Request{
		Method:  http.MethodGet,
		Path:    c.path,
		NoAuth:  true,
		Timeout: c.timeout,
	})
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("request failed: %v", err)
		return result
	}
	result.StatusCode = resp.StatusCode

	var body struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	// Plain-text health endpoints are fine; only the status code counts then.
	_ = jsonutil.Unmarshal(resp.Body, &body)
	if len(body.Checks) > 0 {
		result.Checks = make(map[string]Status, len(body.Checks))
		for name, check := range body.Checks {
			s, _ := check["status"].(string)
			result.Checks[name] = Status(s)
		}
	}

	switch {
	case resp.StatusCode != http.StatusOK:
		result.Status = StatusUnhealthy
		if body.Status == string(StatusDegraded) {
			result.Status = StatusDegraded
		}
		result.Message = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	case body.Status == string(StatusDegraded):
		result.Status = StatusDegraded
		result.Message = "service reports degraded"
	default:
		result.Status = StatusHealthy
		result.Message = "OK"
	}
	return result
}

// Wait checks until the endpoint is healthy or the attempt budget is
// spent, backing off exponentially between checks.
func (c *Checker) Wait(ctx context.Context, onAttempt func(*Result)) (*Result, error) {
	var last *Result
	err := retry.DoWithSleeper(ctx, retry.Config{
		MaxAttempts: c.maxWait,
		InitDelay:   c.initWait,
		MaxDelay:    c.maxDelay,
		Strategy:    retry.Exponential,
	}, c.sleeper, func(attempt int) error {
		last = c.Check(ctx)
		last.Attempts = attempt
		if onAttempt != nil {
			onAttempt(last)
		}
		if last.IsHealthy() {
			return nil
		}
		return ErrUnhealthy
	})
	if err != nil {
		if last == nil {
			return nil, err
		}
		return last, fmt.Errorf("%w after %d attempts: %s", ErrUnhealthy, last.Attempts, last.Message)
	}
	return last, nil
}
