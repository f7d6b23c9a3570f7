package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/waftester/mediaprobe/pkg/cli"
	"github.com/waftester/mediaprobe/pkg/config"
	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/harness"
	"github.com/waftester/mediaprobe/pkg/health"
	"github.com/waftester/mediaprobe/pkg/httpclient"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
	"github.com/waftester/mediaprobe/pkg/poller"
	"github.com/waftester/mediaprobe/pkg/ratelimit"
	"github.com/waftester/mediaprobe/pkg/scenario"
	"github.com/waftester/mediaprobe/pkg/security"
	"github.com/waftester/mediaprobe/pkg/ui"
)

// parseOrExit parses the flags of command. -h exits 0, anything else
// invalid exits 1.
func parseOrExit(command string, args []string) *config.Config {
	cfg, err := config.Parse(command, args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(defaults.ExitSuccess)
	}
	if err != nil {
		exitWithError("%v", err)
	}
	ui.SetNoColor(cfg.NoColor || !ui.IsTerminal(os.Stdout))
	ui.SetSilent(cfg.Silent)
	return cfg
}

// newLogger logs to stderr at Warn, Debug with -v, nothing with -silent.
func newLogger(cfg *config.Config) *slog.Logger {
	var w io.Writer = os.Stderr
	level := slog.LevelWarn
	switch {
	case cfg.Silent:
		w = io.Discard
	case cfg.Verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newAPI(cfg *config.Config, logger *slog.Logger) (*mediaapi.Client, error) {
	hcfg := httpclient.DefaultConfig()
	hcfg.Timeout = cfg.Timeout
	hcfg.Proxy = cfg.Proxy
	hcfg.InsecureSkipVerify = cfg.SkipVerify
	hcfg.UserAgent = defaults.UserAgent("")
	hc, err := httpclient.New(hcfg)
	if err != nil {
		return nil, err
	}
	mcfg := mediaapi.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		HTTPClient: hc,
		Logger:     logger,
	}
	if cfg.RateLimit > 0 {
		mcfg.Pacer = ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.RateLimit, Burst: 1})
	}
	return mediaapi.New(mcfg)
}

func configOptions(cfg *config.Config, mode harness.Mode) []ui.Option {
	key := "not set"
	if cfg.Authenticated() {
		key = "set"
	}
	opts := []ui.Option{
		{Name: "Command", Value: string(mode)},
		{Name: "Base URL", Value: cfg.BaseURL},
		{Name: "API key", Value: key},
		{Name: "Proxy", Value: cfg.Proxy},
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, ui.Option{Name: "Rate limit", Value: strconv.FormatFloat(cfg.RateLimit, 'g', -1, 64) + " req/s"})
	}
	switch mode {
	case harness.ModePoll:
		opts = append(opts,
			ui.Option{Name: "Job", Value: cfg.JobID},
			ui.Option{Name: "Poll budget", Value: strconv.Itoa(defaults.MaxPollAttempts)},
		)
	default:
		opts = append(opts,
			ui.Option{Name: "Poll budget", Value: strconv.Itoa(cfg.PollAttempts)},
			ui.Option{Name: "Report", Value: cfg.OutputFile},
			ui.Option{Name: "History", Value: cfg.HistoryPath},
		)
	}
	return opts
}

func harnessConfig(cfg *config.Config, mode harness.Mode, logger *slog.Logger) (harness.Config, error) {
	hc := harness.Config{
		Mode:        mode,
		Preflight:   !cfg.SkipHealth && mode != harness.ModePoll,
		WaitHealthy: cfg.WaitHealthy,
		Health: health.Config{
			InitDelay: duration.HealthRetryInit,
			MaxDelay:  duration.HealthRetryMax,
		},
		Probes: security.Options{
			BaseURL:   cfg.BaseURL,
			Origin:    cfg.Origin,
			BurstSize: cfg.BurstSize,
		},
		AllPlatforms: cfg.AllPlatforms,
		PollAttempts: cfg.PollAttempts,
		TimeoutSec:   int(cfg.Timeout.Seconds()),
		Logger:       logger,
	}
	if cfg.FixturesPath != "" {
		f, err := scenario.LoadFixtures(cfg.FixturesPath)
		if err != nil {
			return hc, err
		}
		hc.Fixtures = f
	}
	return hc, nil
}

// runSession runs one of the run, probe, scenario or poll commands and
// returns the process exit code.
func runSession(mode harness.Mode, args []string) int {
	cfg := parseOrExit(string(mode), args)
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ui.PrintBanner(os.Stderr)
	ui.PrintConfig(os.Stderr, configOptions(cfg, mode))

	if cfg.NeedsConfirmation() {
		ok, err := ui.Confirm(os.Stdin, os.Stderr, "No API key configured. Continue unauthenticated?")
		if err != nil {
			exitWithError("%v", err)
		}
		if !ok {
			printError("aborted: set %s or pass -key", config.EnvAPIKey)
			return defaults.ExitFailure
		}
	}

	api, err := newAPI(cfg, logger)
	if err != nil {
		exitWithError("%v", err)
	}
	hcfg, err := harnessConfig(cfg, mode, logger)
	if err != nil {
		exitWithError("%v", err)
	}

	out, err := newOutputs(cfg, mode, logger)
	if err != nil {
		exitWithError("%v", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			printError("closing outputs: %v", err)
		}
	}()

	h, err := harness.New(api, out.dispatcher, hcfg)
	if err != nil {
		printError("%v", err)
		return defaults.ExitFailure
	}

	ctx, cancel := cli.SignalContext(context.Background(), duration.ShutdownGrace, os.Stderr)
	defer cancel()

	if mode == harness.ModePoll {
		outcome, code := h.PollJob(ctx, cfg.JobID)
		printOutcome(out.printer, outcome)
		return code
	}

	summary := h.Run(ctx)
	out.report(summary)
	return summary.ExitCode
}

func printOutcome(p *ui.Printer, o poller.Outcome) {
	p.Section("Job " + o.JobID)
	switch {
	case o.Success:
		p.Pass("completed in %d of %d attempts", o.AttemptsUsed, o.MaxAttempts)
		if o.Result != nil {
			p.Detail("File", o.Result.Filename)
			p.Detail("Size", fmt.Sprintf("%d bytes", o.Result.Size()))
			if o.Result.DownloadURL != "" {
				p.Detail("Download", ui.URLStyle.Render(o.Result.DownloadURL))
			}
		}
	case o.TerminalStatus == mediaapi.StatusFailed:
		p.Fail("job failed: %s", o.Error)
	default:
		p.Fail("%s (%d attempts)", o.Error, o.AttemptsUsed)
	}
}
