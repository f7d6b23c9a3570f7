// Package scenario runs the end-to-end platform flow: detect the
// platform, submit an extraction, then poll the job on a short demo
// budget.
//
// A failed stage ends that platform's scenario; later platforms still run.
// Nothing is retried.
package scenario

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
	"github.com/waftester/mediaprobe/pkg/poller"
	"github.com/waftester/mediaprobe/pkg/retry"
)

// Stage is how far a scenario got.
type Stage string

const (
	StageDetect  Stage = "detect"
	StageExtract Stage = "extract"
	StagePoll    Stage = "poll"
	StageDone    Stage = "done"
)

// API is the subset of *mediaapi.Client a scenario needs.
type API interface {
	poller.StatusFetcher
	Detect(ctx context.Context, mediaURL string) (*mediaapi.Detection, error)
	Extract(ctx context.Context, req mediaapi.ExtractionRequest) (string, error)
	JobURL(jobID string) string
}

// Result is the record of one platform scenario.
type Result struct {
	Platform  Platform            `json:"platform"`
	Format    FormatSpec          `json:"format"`
	Stage     Stage               `json:"stage"`
	Detection *mediaapi.Detection `json:"detection,omitempty"`
	JobID     string              `json:"job_id,omitempty"`
	// JobURL lets an operator check a job that outlived the demo budget.
	JobURL     string          `json:"job_url,omitempty"`
	Poll       *poller.Outcome `json:"poll,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  string          `json:"error_kind,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// StillProcessing reports whether the job was alive when the demo
// budget ran out.
func (r Result) StillProcessing() bool {
	return r.Poll != nil && r.Poll.Exhausted
}

// Config controls a Runner.
type Config struct {
	// Format is the extraction format (default mp4/720p).
	Format FormatSpec
	// PollAttempts is the demo poll budget (default 10).
	PollAttempts int
	// PollInterval is the wait between polls (default 2s).
	PollInterval time.Duration
	// Sleeper replaces the wall clock in tests.
	Sleeper retry.Sleeper

	// OnStage is called when a platform enters a stage.
	OnStage func(p Platform, stage Stage)
	// OnProgress observes each poll fetch.
	OnProgress func(poller.Progress)
	Logger     *slog.Logger
}

// Runner runs scenarios against one API.
type Runner struct {
	api    API
	cfg    Config
	poller *poller.Poller
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(api API, cfg Config) *Runner {
	if cfg.Format.Format == "" {
		cfg.Format = FormatSpec{Format: mediaapi.FormatMP4, Quality: "720p"}
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaults.DemoPollAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := poller.New(api, poller.Config{
		MaxAttempts: cfg.PollAttempts,
		Interval:    cfg.PollInterval,
		Sleeper:     cfg.Sleeper,
		OnProgress:  cfg.OnProgress,
		Logger:      logger,
	})
	return &Runner{api: api, cfg: cfg, poller: p, logger: logger}
}

// Run executes detect → extract → poll for one platform.
func (r *Runner) Run(ctx context.Context, p Platform) Result {
	start := time.Now()
	res := Result{Platform: p, Format: r.cfg.Format}
	finish := func() Result {
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	r.enter(&res, StageDetect)
	det, err := r.api.Detect(ctx, p.URL)
	if err != nil {
		r.fail(&res, err)
		return finish()
	}
	res.Detection = det

	r.enter(&res, StageExtract)
	jobID, err := r.api.Extract(ctx, mediaapi.ExtractionRequest{
		URL:     p.URL,
		Format:  r.cfg.Format.Format,
		Quality: r.cfg.Format.Quality,
	})
	if err != nil {
		r.fail(&res, err)
		return finish()
	}
	res.JobID = jobID
	res.JobURL = r.api.JobURL(jobID)

	r.enter(&res, StagePoll)
	out := r.poller.Poll(ctx, jobID)
	res.Poll = &out
	if !out.Success {
		res.Error = out.Error
		if out.Exhausted {
			res.ErrorKind = "exhausted"
		} else {
			res.ErrorKind = "job_failed"
		}
		return finish()
	}

	r.enter(&res, StageDone)
	res.Success = true
	return finish()
}

// RunAll runs platforms one after another. Cancellation stops before the
// next platform starts.
func (r *Runner) RunAll(ctx context.Context, platforms []Platform) []Result {
	results := make([]Result, 0, len(platforms))
	for _, p := range platforms {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.Run(ctx, p))
	}
	return results
}

func (r *Runner) enter(res *Result, s Stage) {
	res.Stage = s
	if r.cfg.OnStage != nil {
		r.cfg.OnStage(res.Platform, s)
	}
}

func (r *Runner) fail(res *Result, err error) {
	res.Error = err.Error()
	var te *mediaapi.TransportError
	switch {
	case errors.As(err, &te):
		res.ErrorKind = te.Kind
	case mediaapi.StatusCode(err) != 0:
		res.ErrorKind = "protocol"
	case errors.Is(err, mediaapi.ErrMissingJobID), errors.Is(err, mediaapi.ErrDecode):
		res.ErrorKind = "protocol"
	default:
		res.ErrorKind = "internal"
	}
	r.logger.Debug("scenario stage failed",
		"platform", res.Platform.Name,
		"stage", res.Stage,
		"error", err,
	)
}
