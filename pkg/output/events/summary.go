package events

import (
	"time"

	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/health"
	"github.com/waftester/mediaprobe/pkg/scenario"
)

// SummaryEvent represents the final run summary.
type SummaryEvent struct {
	BaseEvent
	Version   string                `json:"version"`
	Target    string                `json:"target"`
	Health    *health.Result        `json:"health,omitempty"`
	Probes    finding.Tally         `json:"probes"`
	Findings  []finding.ProbeResult `json:"findings"`
	Scenarios ScenarioTotals        `json:"scenarios"`
	Platforms []scenario.Result     `json:"platforms"`
	Timing    SummaryTiming         `json:"timing"`
	ExitCode  int                   `json:"exit_code"`
	// ExitReason is a one-line human explanation of ExitCode.
	ExitReason string `json:"exit_reason"`
}

// ScenarioTotals counts scenario outcomes.
type ScenarioTotals struct {
	Total           int `json:"total"`
	Succeeded       int `json:"succeeded"`
	StillProcessing int `json:"still_processing"`
	Failed          int `json:"failed"`
}

// CountScenarios tallies scenario results.
func CountScenarios(results []scenario.Result) ScenarioTotals {
	t := ScenarioTotals{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Success:
			t.Succeeded++
		case r.StillProcessing():
			t.StillProcessing++
		default:
			t.Failed++
		}
	}
	return t
}

// SummaryTiming contains run timing information.
type SummaryTiming struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// Vulnerable reports whether any probe was flagged.
func (s *SummaryEvent) Vulnerable() bool { return s.Probes.Vulnerable > 0 }
