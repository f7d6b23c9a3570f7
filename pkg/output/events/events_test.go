package events

import (
	"strings"
	"testing"
	"time"

	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/jsonutil"
	"github.com/waftester/mediaprobe/pkg/poller"
	"github.com/waftester/mediaprobe/pkg/scenario"
)

// TestEventInterface verifies BaseEvent implements Event interface
func TestEventInterface(t *testing.T) {
	base := NewBase(EventTypeProbe, "run-123")

	var _ Event = base

	if base.EventType() != EventTypeProbe {
		t.Errorf("expected EventTypeProbe, got %v", base.EventType())
	}
	if base.RunID() != "run-123" {
		t.Errorf("expected run-123, got %v", base.RunID())
	}
	if base.Timestamp().IsZero() {
		t.Error("expected non-zero timestamp")
	}
}

func TestAllTypes(t *testing.T) {
	types := AllTypes()
	if len(types) != 8 || types[0] != EventTypeStart || types[len(types)-1] != EventTypeComplete {
		t.Errorf("AllTypes() = %v", types)
	}
}

func TestProbeEventJSON(t *testing.T) {
	r := finding.NewResult("cors_policy")
	r.Flag(finding.Medium, "wildcard")
	r.Evidence["origin"] = "*"
	ev := &ProbeEvent{BaseEvent: NewBase(EventTypeProbe, "r1"), Index: 1, Total: 4, Result: r}

	data, err := jsonutil.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	js := string(data)
	for _, field := range []string{`"type":"probe"`, `"run_id":"r1"`, `"vulnerable":true`, `"origin":"*"`} {
		if !strings.Contains(js, field) {
			t.Errorf("missing %s in %s", field, js)
		}
	}
}

func TestCountScenarios(t *testing.T) {
	got := CountScenarios([]scenario.Result{
		{Success: true},
		{Poll: &poller.Outcome{Exhausted: true}},
		{Error: "Status 400"},
	})
	want := ScenarioTotals{Total: 3, Succeeded: 1, StillProcessing: 1, Failed: 1}
	if got != want {
		t.Errorf("CountScenarios() = %+v, want %+v", got, want)
	}
}

func TestSummaryEventJSON(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &SummaryEvent{
		BaseEvent: BaseEvent{Type: EventTypeSummary, Time: now, Run: "r1"},
		Target:    "http://localhost:8080",
		Probes:    finding.Tally{Total: 4, Vulnerable: 1, Passed: 3, Worst: finding.Medium},
		Timing:    SummaryTiming{StartedAt: now, CompletedAt: now.Add(time.Second), DurationMs: 1000},
		ExitCode:  2,
	}
	if !s.Vulnerable() {
		t.Error("Vulnerable() should be true")
	}

	data, err := jsonutil.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	js := string(data)
	if !strings.Contains(js, `"findings":[]`) || !strings.Contains(js, `"platforms":[]`) {
		t.Errorf("empty lists should encode as []: %s", js)
	}
	if strings.Contains(js, `"health"`) {
		t.Errorf("nil health should be omitted: %s", js)
	}
}

func TestScenarioEventFinal(t *testing.T) {
	ev := &ScenarioEvent{Stage: scenario.StageDetect}
	if ev.Final() {
		t.Error("stage event is not final")
	}
	ev.Result = &scenario.Result{}
	if !ev.Final() {
		t.Error("event with result is final")
	}
}
