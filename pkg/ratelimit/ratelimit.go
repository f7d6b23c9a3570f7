// Package ratelimit caps the client's request rate and probes whether the
// API enforces a rate limit of its own.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Config holds pacing configuration.
type Config struct {
	// RequestsPerSecond limits throughput (0 = unlimited).
	RequestsPerSecond float64

	// Burst allows up to N requests back to back (default 1).
	Burst int
}

// Limiter paces requests. It is safe for concurrent use and satisfies
// mediaapi.Pacer.
type Limiter struct {
	lim    *rate.Limiter
	waits  atomic.Int64
	waited atomic.Int64 // nanoseconds spent blocked
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Limiter{lim: rate.NewLimiter(limit, burst)}
}

// Wait blocks until the next request may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	err := l.lim.Wait(ctx)
	l.waits.Add(1)
	l.waited.Add(int64(time.Since(start)))
	return err
}

// Stats is a snapshot of limiter activity.
type Stats struct {
	Waits      int64
	TimeWaited time.Duration
}

// Stats returns the number of Wait calls and the total time blocked.
func (l *Limiter) Stats() Stats {
	return Stats{
		Waits:      l.waits.Load(),
		TimeWaited: time.Duration(l.waited.Load()),
	}
}
