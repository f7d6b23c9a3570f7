// Package hooks provides event hooks for real-time integrations: console
// narration, Prometheus metrics, OpenTelemetry traces, webhooks and the
// run history database.
package hooks

import (
	"context"
	"fmt"

	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
	"github.com/waftester/mediaprobe/pkg/scenario"
	"github.com/waftester/mediaprobe/pkg/ui"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*ConsoleHook)(nil)

// ConsoleHook narrates the run on a terminal.
type ConsoleHook struct {
	p *ui.Printer
	// ShowPolls prints every poll fetch instead of only the failures.
	ShowPolls bool
}

// NewConsoleHook creates a console hook printing through p.
func NewConsoleHook(p *ui.Printer) *ConsoleHook {
	return &ConsoleHook{p: p, ShowPolls: true}
}

// EventTypes returns nil to receive all events.
func (h *ConsoleHook) EventTypes() []events.EventType { return nil }

// OnEvent prints the event.
func (h *ConsoleHook) OnEvent(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.StartEvent:
		h.p.Section(fmt.Sprintf("mediaprobe %s against %s", e.Version, e.Target))
		if !e.Config.Authenticated {
			h.p.Warn("no API key configured; authenticated requests will be rejected")
		}
	case *events.HealthEvent:
		r := e.Result
		if r.IsHealthy() {
			h.p.Pass("health: %s (%s, %dms)", r.Status, ui.Status(r.StatusCode), r.LatencyMs)
		} else {
			h.p.Warn("health: %s: %s", r.Status, r.Message)
		}
	case *events.ProbeEvent:
		if e.Index == 0 {
			h.p.Section("Security probes")
		}
		h.p.Probe(e.Result)
	case *events.PollEvent:
		h.poll(e)
	case *events.ScenarioEvent:
		h.scenario(e)
	case *events.ErrorEvent:
		h.p.Fail("%s: %s", e.Component, e.Message)
	case *events.SummaryEvent:
		h.summary(e)
	}
	return nil
}

func (h *ConsoleHook) poll(e *events.PollEvent) {
	if e.Error != "" {
		h.p.Note("attempt %d/%d: %s", e.Attempt, e.MaxAttempts, e.Error)
		return
	}
	if h.ShowPolls {
		h.p.Note("attempt %d/%d: %s %d%%", e.Attempt, e.MaxAttempts, e.Status, e.Percent)
	}
}

func (h *ConsoleHook) scenario(e *events.ScenarioEvent) {
	if !e.Final() {
		switch e.Stage {
		case scenario.StageDetect:
			h.p.Section("Testing: " + e.Platform.Name)
			h.p.Detail("URL", e.Platform.URL)
		case scenario.StageExtract:
			h.p.Note("submitting extraction...")
		case scenario.StagePoll:
			h.p.Note("waiting for processing (short poll)...")
		}
		return
	}

	r := e.Result
	if r.Detection != nil {
		h.p.Pass("platform detected: %s", r.Detection.Platform)
		if r.Detection.Title != "" {
			h.p.Detail("Title", r.Detection.Title)
		}
	}
	switch {
	case r.Success:
		h.p.Pass("completed in %d attempts", r.Poll.AttemptsUsed)
		if res := r.Poll.Result; res != nil {
			h.p.Detail("File", res.Filename)
			h.p.Detail("Size", fmt.Sprintf("%d bytes", res.Size()))
		}
	case r.StillProcessing():
		h.p.Pending("still processing after %d attempts", r.Poll.AttemptsUsed)
		h.p.Note("check the job later: %s", ui.URLStyle.Render(r.JobURL))
	case r.Stage == scenario.StageDetect:
		h.p.Fail("detection failed: %s", r.Error)
	case r.Stage == scenario.StageExtract:
		h.p.Fail("extraction failed: %s", r.Error)
	default:
		h.p.Fail("job failed: %s", r.Error)
	}
}

func (h *ConsoleHook) summary(e *events.SummaryEvent) {
	h.p.Section("Summary")
	h.p.Detail("Probes", fmt.Sprintf("%d run, %d vulnerable, %d errored", e.Probes.Total, e.Probes.Vulnerable, e.Probes.Errored))
	if e.Scenarios.Total > 0 {
		h.p.Detail("Platforms", fmt.Sprintf("%d tested, %d completed, %d still processing, %d failed",
			e.Scenarios.Total, e.Scenarios.Succeeded, e.Scenarios.StillProcessing, e.Scenarios.Failed))
	}
	h.p.Detail("Duration", fmt.Sprintf("%dms", e.Timing.DurationMs))
	if e.Vulnerable() {
		h.p.Warn("%s", e.ExitReason)
	} else {
		h.p.Pass("%s", e.ExitReason)
	}
}
