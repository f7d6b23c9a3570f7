package events

import "github.com/waftester/mediaprobe/pkg/poller"

// CompleteEvent is emitted when a run finishes. A full run carries its
// Summary; a single-job poll carries the poll Outcome instead.
type CompleteEvent struct {
	BaseEvent
	Target     string          `json:"target,omitempty"`
	Success    bool            `json:"success"`
	ExitCode   int             `json:"exit_code"`
	ExitReason string          `json:"exit_reason"`
	Summary    *SummaryEvent   `json:"summary,omitempty"`
	Poll       *poller.Outcome `json:"poll,omitempty"`
}
