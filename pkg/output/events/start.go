package events

// StartEvent is emitted when a run begins.
type StartEvent struct {
	BaseEvent
	Target    string    `json:"target"`
	Version   string    `json:"version"`
	Mode      string    `json:"mode"`
	Config    RunConfig `json:"config"`
	Probes    []string  `json:"probes,omitempty"`
	Platforms []string  `json:"platforms,omitempty"`
}

// RunConfig is the subset of configuration worth reporting.
type RunConfig struct {
	Authenticated  bool  `json:"authenticated"`
	PollAttempts   int   `json:"poll_attempts"`
	PollIntervalMs int64 `json:"poll_interval_ms"`
	BurstSize      int   `json:"burst_limit"`
	BurstSpacingMs int64 `json:"burst_spacing_ms"`
	TimeoutSec     int   `json:"timeout_sec"`
}
