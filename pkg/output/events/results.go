package events

import (
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/health"
	"github.com/waftester/mediaprobe/pkg/scenario"
)

// HealthEvent carries the preflight check.
type HealthEvent struct {
	BaseEvent
	Result health.Result `json:"result"`
}

// ProbeEvent carries one finished security probe.
type ProbeEvent struct {
	BaseEvent
	Index  int                 `json:"index"`
	Total  int                 `json:"total"`
	Result finding.ProbeResult `json:"result"`
}

// PollEvent reports one job status fetch.
type PollEvent struct {
	BaseEvent
	Platform    string `json:"platform,omitempty"`
	JobID       string `json:"job_id"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Status      string `json:"status,omitempty"`
	Percent     int    `json:"percent"`
	StatusCode  int    `json:"status_code,omitzero"`
	Error       string `json:"error,omitempty"`
}

// ScenarioEvent is emitted when a platform enters a stage, and once more
// with Result set when it finishes.
type ScenarioEvent struct {
	BaseEvent
	Platform scenario.Platform `json:"platform"`
	Stage    scenario.Stage    `json:"stage"`
	Result   *scenario.Result  `json:"result,omitempty"`
}

// Final reports whether the event carries a finished scenario.
func (e *ScenarioEvent) Final() bool { return e.Result != nil }
