// Package poller drives a submitted job to a terminal status within a
// bounded number of status fetches.
//
// A poll never fetches more than MaxAttempts times and never fetches again
// after observing completed or failed. Non-200 answers and transport
// errors count as spent attempts; the loop keeps going until the budget is
// gone.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
	"github.com/waftester/mediaprobe/pkg/retry"
)

// Error strings reported in Outcome.Error.
const (
	MsgTimeout    = "Timeout after max attempts"
	MsgEmptyJobID = "empty job id"
	MsgJobFailed  = "job failed"
)

var (
	errNotTerminal = errors.New("poller: job not terminal")
	errJobFailed   = errors.New("poller: job failed")
)

// StatusFetcher fetches one job snapshot. *mediaapi.Client implements it.
type StatusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (*mediaapi.Job, error)
}

// Progress is reported after every fetch.
type Progress struct {
	JobID       string
	Attempt     int
	MaxAttempts int
	Status      mediaapi.JobStatus // empty when the fetch failed
	Percent     int
	StatusCode  int // 0 on transport error
	Err         error
}

// Config controls a Poller.
type Config struct {
	// MaxAttempts is the fetch budget. Zero or negative means 60.
	MaxAttempts int
	// Interval is the wait between fetches. Zero means 2s.
	Interval time.Duration
	// Sleeper replaces the wall clock in tests.
	Sleeper retry.Sleeper
	// OnProgress, when set, observes each fetch.
	OnProgress func(Progress)
	Logger     *slog.Logger
}

// Outcome is the result of one Poll.
type Outcome struct {
	JobID          string              `json:"job_id"`
	Success        bool                `json:"success"`
	TerminalStatus mediaapi.JobStatus  `json:"terminal_status,omitempty"`
	AttemptsUsed   int                 `json:"attempts_used"`
	MaxAttempts    int                 `json:"max_attempts"`
	Result         *mediaapi.JobResult `json:"result,omitempty"`
	Error          string              `json:"error,omitempty"`
	// Exhausted is set when the budget ran out without a terminal status.
	Exhausted      bool  `json:"exhausted,omitempty"`
	LastStatusCode int   `json:"last_status_code,omitzero"`
	DurationMs     int64 `json:"duration_ms"`
}

// Poller polls jobs through a StatusFetcher.
type Poller struct {
	fetcher StatusFetcher
	cfg     Config
	logger  *slog.Logger
}

// New creates a Poller, filling defaults for unset config fields.
func New(f StatusFetcher, cfg Config) *Poller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxPollAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = duration.PollInterval
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = retry.RealSleeper{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{fetcher: f, cfg: cfg, logger: logger}
}

// MaxAttempts returns the effective fetch budget.
func (p *Poller) MaxAttempts() int { return p.cfg.MaxAttempts }

// Poll fetches the job status until it is terminal or the budget is spent.
// ctx is expected to be cancelled only when the process is shutting down.
func (p *Poller) Poll(ctx context.Context, jobID string) Outcome {
	start := time.Now()
	out := Outcome{JobID: jobID, MaxAttempts: p.cfg.MaxAttempts}
	if jobID == "" {
		out.Error = MsgEmptyJobID
		return out
	}

	var last *mediaapi.Job
	rcfg := retry.Config{
		MaxAttempts: p.cfg.MaxAttempts,
		InitDelay:   p.cfg.Interval,
		MaxDelay:    p.cfg.Interval,
		Strategy:    retry.Constant,
	}

	err := retry.DoWithSleeper(ctx, rcfg, p.cfg.Sleeper, func(attempt int) error {
		out.AttemptsUsed = attempt

		job, err := p.fetcher.JobStatus(ctx, jobID)
		if err != nil {
			out.LastStatusCode = mediaapi.StatusCode(err)
			if out.LastStatusCode == 0 {
				p.logger.Warn("job status fetch failed",
					"job_id", jobID,
					"attempt", attempt,
					"error", err,
				)
			}
			p.notify(Progress{JobID: jobID, Attempt: attempt, MaxAttempts: p.cfg.MaxAttempts, StatusCode: out.LastStatusCode, Err: err})
			return err
		}

		out.LastStatusCode = http.StatusOK
		last = job
		p.notify(Progress{
			JobID:       jobID,
			Attempt:     attempt,
			MaxAttempts: p.cfg.MaxAttempts,
			Status:      job.Status,
			Percent:     job.Progress,
			StatusCode:  http.StatusOK,
		})

		switch job.Status {
		case mediaapi.StatusCompleted:
			return nil
		case mediaapi.StatusFailed:
			return retry.Stop(errJobFailed)
		}
		return errNotTerminal
	})
	out.DurationMs = time.Since(start).Milliseconds()

	switch {
	case err == nil:
		out.Success = true
		out.TerminalStatus = mediaapi.StatusCompleted
		out.Result = last.Result
	case errors.Is(err, errJobFailed):
		out.TerminalStatus = mediaapi.StatusFailed
		out.Error = last.Error
		if out.Error == "" {
			out.Error = MsgJobFailed
		}
	case ctx.Err() != nil:
		out.Error = fmt.Sprintf("interrupted: %v", ctx.Err())
	default:
		out.Exhausted = true
		if out.LastStatusCode != 0 && out.LastStatusCode != http.StatusOK {
			out.Error = fmt.Sprintf("Status %d", out.LastStatusCode)
		} else {
			out.Error = MsgTimeout
		}
	}
	return out
}

func (p *Poller) notify(pr Progress) {
	if p.cfg.OnProgress != nil {
		p.cfg.OnProgress(pr)
	}
}
