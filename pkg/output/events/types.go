// Package events defines the event types emitted during a mediaprobe run.
// All events are designed for JSON serialization and CI/CD integration.
//
// BaseEvent is embedded in every concrete event type.
package events

import (
	"time"
)

// EventType represents the type of output event.
type EventType string

const (
	// EventTypeStart indicates a run has started.
	EventTypeStart EventType = "start"
	// EventTypeHealth carries the preflight health check.
	EventTypeHealth EventType = "health"
	// EventTypeProbe carries one security probe result.
	EventTypeProbe EventType = "probe"
	// EventTypePoll reports one job status fetch.
	EventTypePoll EventType = "poll"
	// EventTypeScenario reports a scenario stage change or final result.
	EventTypeScenario EventType = "scenario"
	// EventTypeError indicates an error occurred.
	EventTypeError EventType = "error"
	// EventTypeSummary indicates a summary of results.
	EventTypeSummary EventType = "summary"
	// EventTypeComplete indicates a run has completed.
	EventTypeComplete EventType = "complete"
)

// AllTypes lists every event type in emission order.
func AllTypes() []EventType {
	return []EventType{
		EventTypeStart, EventTypeHealth, EventTypeProbe, EventTypePoll,
		EventTypeScenario, EventTypeError, EventTypeSummary, EventTypeComplete,
	}
}

// Event is the base interface for all events.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	RunID() string
}

// BaseEvent contains common fields for all events.
// It is designed to be embedded in specific event types.
type BaseEvent struct {
	Type EventType `json:"type"`
	Time time.Time `json:"timestamp"`
	Run  string    `json:"run_id"`
}

// NewBase stamps a BaseEvent with the current time.
func NewBase(t EventType, runID string) BaseEvent {
	return BaseEvent{Type: t, Time: time.Now(), Run: runID}
}

// EventType returns the type of this event.
func (e BaseEvent) EventType() EventType { return e.Type }

// Timestamp returns when this event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// RunID returns the unique identifier for the run that produced this event.
func (e BaseEvent) RunID() string { return e.Run }
