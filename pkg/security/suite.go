// Package security runs the probe suite against one API deployment.
//
// Probes run one after another in the configured order so the burst probe
// never overlaps other traffic. The suite always returns exactly one
// result per probe.
package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/waftester/mediaprobe/pkg/accesscontrol"
	"github.com/waftester/mediaprobe/pkg/attackconfig"
	"github.com/waftester/mediaprobe/pkg/cors"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/inputvalidation"
	"github.com/waftester/mediaprobe/pkg/ratelimit"
	"github.com/waftester/mediaprobe/pkg/retry"
)

// Probe is one security check.
type Probe interface {
	Name() string
	Run(ctx context.Context) finding.ProbeResult
}

// Stats tracks suite progress.
type Stats struct {
	Total      int64
	Completed  int64
	Vulnerable int64
	Errored    int64
	StartTime  time.Time
}

// Suite runs a fixed list of probes.
type Suite struct {
	probes []Probe

	// OnStart is called before each probe runs.
	OnStart func(name string, index, total int)
	// OnResult is called after each probe finishes.
	OnResult func(result finding.ProbeResult, index, total int)

	Stats  Stats
	Logger *slog.Logger
}

// NewSuite creates a suite over probes, run in the given order.
func NewSuite(probes ...Probe) *Suite {
	return &Suite{probes: probes}
}

// Names returns the probe names in run order.
func (s *Suite) Names() []string {
	names := make([]string, len(s.probes))
	for i, p := range s.probes {
		names[i] = p.Name()
	}
	return names
}

// Run executes every probe. A cancelled ctx turns the remaining probes
// into error results rather than dropping them.
func (s *Suite) Run(ctx context.Context) []finding.ProbeResult {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	total := len(s.probes)
	s.Stats = Stats{Total: int64(total), StartTime: time.Now()}

	results := make([]finding.ProbeResult, 0, total)
	for i, p := range s.probes {
		if s.OnStart != nil {
			s.OnStart(p.Name(), i, total)
		}

		var r finding.ProbeResult
		if err := ctx.Err(); err != nil {
			r = finding.NewResult(p.Name())
			r.Fail(fmt.Errorf("skipped: %w", err))
		} else {
			r = runProbe(ctx, p)
		}
		if r.Probe == "" {
			r.Probe = p.Name()
		}

		atomic.AddInt64(&s.Stats.Completed, 1)
		switch {
		case r.Errored():
			atomic.AddInt64(&s.Stats.Errored, 1)
			logger.Debug("probe errored", "probe", r.Probe, "error", r.Error, "kind", r.ErrorKind)
		case r.Vulnerable:
			atomic.AddInt64(&s.Stats.Vulnerable, 1)
		}

		if s.OnResult != nil {
			s.OnResult(r, i, total)
		}
		results = append(results, r)
	}
	return results
}

// runProbe recovers a panicking probe into an error result.
func runProbe(ctx context.Context, p Probe) (r finding.ProbeResult) {
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			r = finding.NewResult(p.Name())
			r.Fail(fmt.Errorf("%w: %v", finding.ErrProbePanic, v))
			r.Finish(start)
		}
	}()
	return p.Run(ctx)
}

// Options configures DefaultProbes.
type Options struct {
	// BaseURL is the API root, used by the CORS probe to pick a
	// cross-site origin.
	BaseURL string
	// Origin overrides the foreign origin sent by the CORS probe.
	Origin string
	// BurstSize and BurstSpacing tune the rate limiting probe.
	BurstSize    int
	BurstSpacing time.Duration
	// Sleeper paces the rate limiting burst; nil sleeps for real.
	Sleeper retry.Sleeper
	// Payloads overrides the input validation payloads.
	Payloads []inputvalidation.Payload
	// OnVulnerabilityFound is wired into every probe.
	OnVulnerabilityFound func(finding.ProbeResult)
}

// DefaultProbes builds the four standard probes: authentication, CORS,
// rate limiting and input validation, in that order.
func DefaultProbes(api attackconfig.Requester, opts Options) []Probe {
	base := func() attackconfig.Base {
		b := attackconfig.DefaultBase()
		b.API = api
		b.OnVulnerabilityFound = opts.OnVulnerabilityFound
		return b
	}
	quick := func() attackconfig.Base {
		b := base()
		b.Timeout = 0 // probe default (5s)
		return b
	}

	return []Probe{
		accesscontrol.NewTester(accesscontrol.TesterConfig{Base: base()}),
		cors.NewTester(cors.TesterConfig{Base: base(), Origin: opts.Origin, TargetURL: opts.BaseURL}),
		ratelimit.NewTester(ratelimit.TesterConfig{Base: quick(), BurstSize: opts.BurstSize, Spacing: opts.BurstSpacing, Sleeper: opts.Sleeper}),
		inputvalidation.NewTester(inputvalidation.TesterConfig{Base: quick(), Payloads: opts.Payloads}),
	}
}
