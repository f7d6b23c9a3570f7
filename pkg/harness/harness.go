// Package harness runs a complete diagnostic session against one
// extraction API: an optional health preflight, the security probe suite
// and the platform scenarios, in that order. Progress is published as
// events through an output dispatcher; the returned summary does not
// depend on any output being configured.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/waftester/mediaprobe/pkg/attackconfig"
	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/health"
	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
	"github.com/waftester/mediaprobe/pkg/poller"
	"github.com/waftester/mediaprobe/pkg/retry"
	"github.com/waftester/mediaprobe/pkg/scenario"
	"github.com/waftester/mediaprobe/pkg/security"
)

// Exit codes reported in the summary.
const (
	ExitOK         = defaults.ExitSuccess
	ExitError      = defaults.ExitFailure
	ExitVulnerable = defaults.ExitVulnerable
)

// Mode selects which stages a run executes.
type Mode string

const (
	ModeRun      Mode = "run"
	ModeProbe    Mode = "probe"
	ModeScenario Mode = "scenario"
	ModePoll     Mode = "poll"
)

// ErrNoAPI is returned by New when no API client is given.
var ErrNoAPI = errors.New("harness: no API client")

// API is everything the harness needs from the remote service.
// *mediaapi.Client implements it.
type API interface {
	attackconfig.Requester
	scenario.API
	BaseURL() string
	HasKey() bool
}

// Config controls a Harness.
type Config struct {
	Mode Mode

	// Preflight runs the health check before anything else.
	Preflight bool
	// WaitHealthy retries the health check with backoff until it passes
	// or Health.MaxAttempts is spent.
	WaitHealthy bool
	Health      health.Config

	Probes security.Options

	// Fixtures lists the scenario platforms and formats. Nil means the
	// embedded defaults.
	Fixtures *scenario.Fixtures
	// AllPlatforms runs every fixture platform instead of the first Limit.
	AllPlatforms bool
	// PollAttempts is the scenario poll budget (default 10).
	PollAttempts int
	// JobPollAttempts is the budget for a single job poll (default 60).
	JobPollAttempts int
	PollInterval    time.Duration
	Sleeper         retry.Sleeper

	// TimeoutSec is reported in the start event only.
	TimeoutSec int
	Logger     *slog.Logger
}

// Harness runs sessions. Each Harness has its own run ID.
type Harness struct {
	api    API
	out    *dispatcher.Dispatcher
	cfg    Config
	runID  string
	logger *slog.Logger

	// platform is the scenario currently running; poll events carry it.
	platform string
}

// New creates a Harness. out may be nil when no output is wanted.
func New(api API, out *dispatcher.Dispatcher, cfg Config) (*Harness, error) {
	if api == nil {
		return nil, ErrNoAPI
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeRun
	}
	if cfg.Fixtures == nil {
		f, err := scenario.DefaultFixtures()
		if err != nil {
			return nil, fmt.Errorf("harness: %w", err)
		}
		cfg.Fixtures = f
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaults.DemoPollAttempts
	}
	if cfg.JobPollAttempts <= 0 {
		cfg.JobPollAttempts = defaults.MaxPollAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = duration.PollInterval
	}
	if cfg.Probes.BaseURL == "" {
		cfg.Probes.BaseURL = api.BaseURL()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{
		api:    api,
		out:    out,
		cfg:    cfg,
		runID:  uuid.NewString(),
		logger: logger,
	}, nil
}

// RunID returns the identifier stamped on every event of this harness.
func (h *Harness) RunID() string { return h.runID }

func (h *Harness) runsProbes() bool {
	return h.cfg.Mode == ModeRun || h.cfg.Mode == ModeProbe
}

func (h *Harness) runsScenarios() bool {
	return h.cfg.Mode == ModeRun || h.cfg.Mode == ModeScenario
}

// Run executes the session and returns its summary. Component failures
// are recorded in the summary; Run itself never fails. A cancelled ctx
// stops the session early and yields ExitError.
func (h *Harness) Run(ctx context.Context) *events.SummaryEvent {
	start := time.Now()
	summary := &events.SummaryEvent{
		Version:   defaults.Version,
		Target:    h.api.BaseURL(),
		Findings:  []finding.ProbeResult{},
		Platforms: []scenario.Result{},
	}

	var suite *security.Suite
	if h.runsProbes() {
		opts := h.cfg.Probes
		if opts.Sleeper == nil {
			opts.Sleeper = h.cfg.Sleeper
		}
		opts.OnVulnerabilityFound = func(r finding.ProbeResult) {
			h.logger.Debug("probe flagged", "probe", r.Probe, "severity", r.Severity)
		}
		suite = security.NewSuite(security.DefaultProbes(h.api, opts)...)
		suite.Logger = h.logger
		suite.OnResult = func(r finding.ProbeResult, index, total int) {
			h.emit(ctx, &events.ProbeEvent{BaseEvent: h.base(events.EventTypeProbe), Index: index, Total: total, Result: r})
		}
	}
	var platforms []scenario.Platform
	if h.runsScenarios() {
		platforms = h.cfg.Fixtures.Selected(h.cfg.AllPlatforms)
	}

	h.emitStart(ctx, suite, platforms)

	if h.cfg.Preflight {
		summary.Health = h.preflight(ctx)
	}
	if suite != nil {
		summary.Findings = suite.Run(ctx)
	}
	if len(platforms) > 0 && ctx.Err() == nil {
		summary.Platforms = h.scenarios(ctx, platforms)
	}

	summary.Probes = finding.Summarize(summary.Findings)
	summary.Scenarios = events.CountScenarios(summary.Platforms)
	summary.ExitCode, summary.ExitReason = exitStatus(ctx, summary)
	summary.Timing = events.SummaryTiming{
		StartedAt:   start,
		CompletedAt: time.Now(),
		DurationMs:  time.Since(start).Milliseconds(),
	}

	h.finish(ctx, summary)
	return summary
}

func (h *Harness) preflight(ctx context.Context) *health.Result {
	checker := health.NewChecker(h.api, h.cfg.Health)
	var res *health.Result
	if h.cfg.WaitHealthy {
		var err error
		res, err = checker.Wait(ctx, func(r *health.Result) {
			h.logger.Debug("health attempt", "attempt", r.Attempts, "status", r.Status)
		})
		if err != nil {
			h.logger.Warn("service did not become healthy", "error", err)
		}
		if res == nil {
			res = &health.Result{Status: health.StatusUnknown, Message: err.Error(), CheckedAt: time.Now()}
		}
	} else {
		res = checker.Check(ctx)
	}

	h.emit(ctx, &events.HealthEvent{BaseEvent: h.base(events.EventTypeHealth), Result: *res})
	if !res.IsHealthy() {
		h.emit(ctx, &events.ErrorEvent{
			BaseEvent: h.base(events.EventTypeError),
			Component: "health",
			ErrorType: string(res.Status),
			Message:   res.Message,
		})
	}
	return res
}

func (h *Harness) scenarios(ctx context.Context, platforms []scenario.Platform) []scenario.Result {
	runner := scenario.NewRunner(h.api, scenario.Config{
		Format:       h.cfg.Fixtures.DefaultFormat(),
		PollAttempts: h.cfg.PollAttempts,
		PollInterval: h.cfg.PollInterval,
		Sleeper:      h.cfg.Sleeper,
		Logger:       h.logger,
		OnStage: func(p scenario.Platform, s scenario.Stage) {
			h.platform = p.Name
			h.emit(ctx, &events.ScenarioEvent{BaseEvent: h.base(events.EventTypeScenario), Platform: p, Stage: s})
		},
		OnProgress: func(pr poller.Progress) { h.emitPoll(ctx, pr) },
	})

	results := make([]scenario.Result, 0, len(platforms))
	for _, p := range platforms {
		if ctx.Err() != nil {
			break
		}
		r := runner.Run(ctx, p)
		results = append(results, r)
		h.emit(ctx, &events.ScenarioEvent{BaseEvent: h.base(events.EventTypeScenario), Platform: p, Stage: r.Stage, Result: &r})
	}
	h.platform = ""
	return results
}

// PollJob polls one existing job with the full budget. The session
// succeeds only when the job completes.
func (h *Harness) PollJob(ctx context.Context, jobID string) (poller.Outcome, int) {
	h.emit(ctx, &events.StartEvent{
		BaseEvent: h.base(events.EventTypeStart),
		Target:    h.api.BaseURL(),
		Version:   defaults.Version,
		Mode:      string(ModePoll),
		Config:    h.runConfig(h.cfg.JobPollAttempts),
	})

	p := poller.New(h.api, poller.Config{
		MaxAttempts: h.cfg.JobPollAttempts,
		Interval:    h.cfg.PollInterval,
		Sleeper:     h.cfg.Sleeper,
		OnProgress:  func(pr poller.Progress) { h.emitPoll(ctx, pr) },
		Logger:      h.logger,
	})
	out := p.Poll(ctx, jobID)

	code, reason := ExitOK, fmt.Sprintf("job %s completed in %d attempts", jobID, out.AttemptsUsed)
	if !out.Success {
		code, reason = ExitError, fmt.Sprintf("job %s: %s", jobID, out.Error)
	}
	h.emit(context.WithoutCancel(ctx), &events.CompleteEvent{
		BaseEvent:  h.base(events.EventTypeComplete),
		Target:     h.api.BaseURL(),
		Success:    out.Success,
		ExitCode:   code,
		ExitReason: reason,
		Poll:       &out,
	})
	return out, code
}

func (h *Harness) emitStart(ctx context.Context, suite *security.Suite, platforms []scenario.Platform) {
	e := &events.StartEvent{
		BaseEvent: h.base(events.EventTypeStart),
		Target:    h.api.BaseURL(),
		Version:   defaults.Version,
		Mode:      string(h.cfg.Mode),
		Config:    h.runConfig(h.cfg.PollAttempts),
	}
	if suite != nil {
		e.Probes = suite.Names()
	}
	for _, p := range platforms {
		e.Platforms = append(e.Platforms, p.Name)
	}
	h.emit(ctx, e)
}

func (h *Harness) runConfig(pollAttempts int) events.RunConfig {
	burst := h.cfg.Probes.BurstSize
	if burst <= 0 {
		burst = defaults.BurstSize
	}
	spacing := h.cfg.Probes.BurstSpacing
	if spacing <= 0 {
		spacing = duration.BurstSpacing
	}
	return events.RunConfig{
		Authenticated:  h.api.HasKey(),
		PollAttempts:   pollAttempts,
		PollIntervalMs: h.cfg.PollInterval.Milliseconds(),
		BurstSize:      burst,
		BurstSpacingMs: spacing.Milliseconds(),
		TimeoutSec:     h.cfg.TimeoutSec,
	}
}

func (h *Harness) emitPoll(ctx context.Context, pr poller.Progress) {
	e := &events.PollEvent{
		BaseEvent:   h.base(events.EventTypePoll),
		Platform:    h.platform,
		JobID:       pr.JobID,
		Attempt:     pr.Attempt,
		MaxAttempts: pr.MaxAttempts,
		Status:      string(pr.Status),
		Percent:     pr.Percent,
		StatusCode:  pr.StatusCode,
	}
	if pr.Err != nil {
		e.Error = pr.Err.Error()
	}
	h.emit(ctx, e)
}

// finish publishes the summary and completion events. Hooks such as the
// history store still need to run after an interrupt, so cancellation
// is detached here.
func (h *Harness) finish(ctx context.Context, summary *events.SummaryEvent) {
	ctx = context.WithoutCancel(ctx)
	summary.BaseEvent = h.base(events.EventTypeSummary)
	h.emit(ctx, summary)
	h.emit(ctx, &events.CompleteEvent{
		BaseEvent:  h.base(events.EventTypeComplete),
		Target:     summary.Target,
		Success:    summary.ExitCode == ExitOK,
		ExitCode:   summary.ExitCode,
		ExitReason: summary.ExitReason,
		Summary:    summary,
	})
}

func (h *Harness) base(t events.EventType) events.BaseEvent {
	return events.NewBase(t, h.runID)
}

func (h *Harness) emit(ctx context.Context, e events.Event) {
	if h.out == nil {
		return
	}
	if err := h.out.Dispatch(ctx, e); err != nil {
		h.logger.Debug("event dropped", "type", e.EventType(), "error", err)
	}
}

// exitStatus maps a finished session to an exit code and reason.
func exitStatus(ctx context.Context, s *events.SummaryEvent) (int, string) {
	switch {
	case ctx.Err() != nil:
		return ExitError, fmt.Sprintf("interrupted: %v", context.Cause(ctx))
	case s.Probes.Vulnerable == 1:
		return ExitVulnerable, "1 probe flagged a vulnerability"
	case s.Probes.Vulnerable > 1:
		return ExitVulnerable, fmt.Sprintf("%d probes flagged a vulnerability", s.Probes.Vulnerable)
	case s.Probes.Total > 0:
		return ExitOK, "no probe flagged a vulnerability"
	default:
		return ExitOK, fmt.Sprintf("%d of %d platforms completed", s.Scenarios.Succeeded, s.Scenarios.Total)
	}
}
