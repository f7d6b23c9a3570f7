// Package retry provides the bounded, context-aware loop used by the job
// poller, the health preflight and the webhook hook.
//
// Exponential backoff (1s, 2s, 4s, …) serves the health wait and webhook
// delivery; the poller uses a constant interval.
//
// Usage:
//
//	err := retry.Do(ctx, cfg, func(attempt int) error {
//	    job, err := api.JobStatus(ctx, id)
//	    if err != nil {
//	        return err
//	    }
//	    if job.Status == mediaapi.StatusFailed {
//	        return retry.Stop(errJobFailed)
//	    }
//	    ...
//	})
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Strategy defines the backoff algorithm.
type Strategy int

const (
	// Exponential doubles the delay each attempt: initDelay * 2^attempt.
	Exponential Strategy = iota
	// Constant uses the same delay between every attempt.
	Constant
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Exponential:
		return "exponential"
	case Constant:
		return "constant"
	default:
		return "unknown"
	}
}

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // Total attempts (including the first). 0 means no-op.
	InitDelay   time.Duration // Base delay before first retry.
	MaxDelay    time.Duration // Upper bound on any single delay. 0 means InitDelay.
	Strategy    Strategy      // Backoff algorithm.
}

// StopError wraps an error to signal that retrying should stop immediately.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so that Do returns it without further attempts.
func Stop(err error) error {
	return &StopError{Err: err}
}

// Sleeper waits between attempts. Tests substitute one that records the
// requested delays instead of blocking.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper waits on the wall clock.
type RealSleeper struct{}

// Sleep blocks for d or until ctx is done.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes fn up to cfg.MaxAttempts times, sleeping between failures
// according to the configured strategy. fn receives the 1-based attempt
// number. Do returns nil on the first successful call, or the last error
// if all attempts fail. If ctx is cancelled, ctx.Err() is returned.
//
// If fn returns a StopError, Do returns the wrapped error without retrying.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	return DoWithSleeper(ctx, cfg, RealSleeper{}, fn)
}

// DoWithSleeper is Do with an explicit Sleeper.
func DoWithSleeper(ctx context.Context, cfg Config, s Sleeper, fn func(attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		return nil
	}
	if s == nil {
		s = RealSleeper{}
	}

	var lastErr error
	for attempt := range cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt + 1)
		if lastErr == nil {
			return nil
		}

		var stop *StopError
		if errors.As(lastErr, &stop) {
			return stop.Err
		}

		// No sleep after the final attempt.
		if attempt < cfg.MaxAttempts-1 {
			if err := s.Sleep(ctx, CalcDelay(cfg, attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// CalcDelay computes the sleep duration after a given attempt (0-indexed).
// The result is never negative and never exceeds MaxDelay.
func CalcDelay(cfg Config, attempt int) time.Duration {
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = cfg.InitDelay
	}

	var f float64
	switch cfg.Strategy {
	case Exponential:
		f = float64(cfg.InitDelay) * math.Pow(2, float64(attempt))
	default:
		f = float64(cfg.InitDelay)
	}

	var delay time.Duration
	if math.IsInf(f, 0) || math.IsNaN(f) || f >= float64(maxDelay) {
		delay = maxDelay
	} else {
		delay = time.Duration(f)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
