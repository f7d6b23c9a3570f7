package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/waftester/mediaprobe/pkg/config"
	"github.com/waftester/mediaprobe/pkg/harness"
	"github.com/waftester/mediaprobe/pkg/history"
	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
	"github.com/waftester/mediaprobe/pkg/output/hooks"
	"github.com/waftester/mediaprobe/pkg/output/writers"
	"github.com/waftester/mediaprobe/pkg/ui"
)

// outputs owns the dispatcher and everything registered on it.
type outputs struct {
	dispatcher *dispatcher.Dispatcher
	printer    *ui.Printer
	metrics    *hooks.PrometheusHook
	history    *hooks.HistoryHook
	file       *os.File
}

// reportsToStdout reports whether the machine-readable report replaces the
// console narration on stdout.
func reportsToStdout(cfg *config.Config) bool {
	return cfg.OutputFile == "" && cfg.OutputFormat != "text"
}

func newOutputs(cfg *config.Config, mode harness.Mode, logger *slog.Logger) (_ *outputs, err error) {
	o := &outputs{
		dispatcher: dispatcher.New(dispatcher.Config{Logger: logger}),
		printer:    ui.NewPrinter(os.Stdout),
	}
	defer func() {
		if err != nil {
			o.Close()
		}
	}()

	if reportsToStdout(cfg) {
		o.printer = ui.NewPrinter(os.Stderr)
	}
	console := hooks.NewConsoleHook(o.printer)
	console.ShowPolls = cfg.Verbose || mode == harness.ModePoll
	o.dispatcher.RegisterHook(console)

	if w, err := o.reportWriter(cfg); err != nil {
		return nil, err
	} else if w != nil {
		o.dispatcher.RegisterWriter(w)
	}

	if cfg.MetricsPort > 0 {
		o.metrics, err = hooks.NewPrometheusHook(hooks.PrometheusOptions{
			Addr:   fmt.Sprintf(":%d", cfg.MetricsPort),
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		o.dispatcher.RegisterHook(o.metrics)
	}

	if cfg.OTelEndpoint != "" {
		otel, err := hooks.NewOTelHook(hooks.OTelOptions{
			Endpoint: cfg.OTelEndpoint,
			Insecure: cfg.OTelInsecure,
		})
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		o.dispatcher.RegisterHook(otel)
	}

	if cfg.WebhookURL != "" {
		wh, err := hooks.NewWebhookHook(cfg.WebhookURL, hooks.WebhookOptions{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
		o.dispatcher.RegisterHook(wh)
	}

	if cfg.HistoryPath != "" && mode != harness.ModePoll {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, err
		}
		o.history = hooks.NewHistoryHook(store, logger)
		o.dispatcher.RegisterHook(o.history)
	}
	return o, nil
}

// unowned hides Close from writers so stdout stays open and the report
// file is closed once, by outputs.Close.
type unowned struct{ io.Writer }

// reportWriter opens the -o file and builds the writer for -format. It
// returns nil for text narration without a report file.
func (o *outputs) reportWriter(cfg *config.Config) (dispatcher.Writer, error) {
	if reportsToStdout(cfg) {
		return newWriter(unowned{os.Stdout}, cfg)
	}
	if cfg.OutputFile == "" {
		return nil, nil
	}
	f, err := os.Create(cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	o.file = f
	return newWriter(unowned{f}, cfg)
}

// newWriter maps a -format value to its writer.
func newWriter(w io.Writer, cfg *config.Config) (dispatcher.Writer, error) {
	switch cfg.OutputFormat {
	case "json":
		return writers.NewJSONWriter(w, writers.JSONOptions{Pretty: true}), nil
	case "jsonl":
		return writers.NewJSONLWriter(w, writers.JSONLOptions{OmitPolls: !cfg.Verbose}), nil
	case "junit":
		var host string
		if u, err := url.Parse(cfg.BaseURL); err == nil {
			host = u.Host
		}
		return writers.NewJUnitWriter(w, writers.JUnitOptions{Hostname: host}), nil
	case "markdown", "csv":
		return writers.NewTemplateWriter(w, writers.TemplateConfig{BuiltIn: cfg.OutputFormat})
	case "template":
		return writers.NewTemplateWriter(w, writers.TemplateConfig{TemplatePath: cfg.TemplatePath})
	case "text", "":
		return writers.NewTemplateWriter(w, writers.TemplateConfig{BuiltIn: "text-summary"})
	}
	return nil, fmt.Errorf("%w: unknown format %q", config.ErrInvalidConfig, cfg.OutputFormat)
}

// report prints what the run left behind: the report file, the metrics
// endpoint and the comparison with the previous recorded run.
func (o *outputs) report(summary *events.SummaryEvent) {
	if o.file != nil {
		o.printer.Note("report written to %s", o.file.Name())
	}
	if o.metrics != nil {
		o.printer.Note("metrics endpoint %s stops on exit", o.metrics.MetricsAddr())
	}
	if o.history == nil {
		return
	}
	c := o.history.Comparison()
	switch {
	case c == nil:
		o.printer.Note("first recorded run for %s", summary.Target)
	case c.Regressed:
		o.printer.Fail("regression since run %s: %d more vulnerable probe(s) %v", c.BaseID, c.VulnerableDelta, c.NewlyVulnerable)
	case len(c.Fixed) > 0:
		o.printer.Pass("fixed since run %s: %v", c.BaseID, c.Fixed)
	default:
		o.printer.Note("no change since run %s", c.BaseID)
	}
}

// Close flushes and closes every writer and hook, then the report file.
func (o *outputs) Close() error {
	err := o.dispatcher.Close()
	if o.file != nil {
		err = errors.Join(err, o.file.Close())
	}
	return err
}
