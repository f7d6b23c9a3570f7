package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/waftester/mediaprobe/pkg/output/events"
)

type recordingWriter struct {
	mu       sync.Mutex
	got      []events.EventType
	accepts  []events.EventType
	writeErr error
	closed   bool
}

func (w *recordingWriter) Write(e events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.got = append(w.got, e.EventType())
	return w.writeErr
}
func (w *recordingWriter) Flush() error { return nil }
func (w *recordingWriter) Close() error { w.closed = true; return nil }
func (w *recordingWriter) SupportsEvent(t events.EventType) bool {
	if len(w.accepts) == 0 {
		return true
	}
	for _, a := range w.accepts {
		if a == t {
			return true
		}
	}
	return false
}

type countingHook struct {
	types  []events.EventType
	calls  atomic.Int64
	delay  time.Duration
	err    error
	closed atomic.Bool
}

func (h *countingHook) OnEvent(ctx context.Context, e events.Event) error {
	time.Sleep(h.delay)
	h.calls.Add(1)
	return h.err
}
func (h *countingHook) EventTypes() []events.EventType { return h.types }
func (h *countingHook) Close() error                   { h.closed.Store(true); return nil }

func probeEvent() events.Event {
	return &events.ProbeEvent{BaseEvent: events.NewBase(events.EventTypeProbe, "r")}
}

func summaryEvent() events.Event {
	return &events.SummaryEvent{BaseEvent: events.NewBase(events.EventTypeSummary, "r")}
}

func TestDispatch_FiltersByType(t *testing.T) {
	d := New(Config{})
	all := &recordingWriter{}
	summaryOnly := &recordingWriter{accepts: []events.EventType{events.EventTypeSummary}}
	hook := &countingHook{types: []events.EventType{events.EventTypeProbe}}
	d.RegisterWriter(all)
	d.RegisterWriter(summaryOnly)
	d.RegisterHook(hook)

	ctx := context.Background()
	_ = d.Dispatch(ctx, probeEvent())
	_ = d.Dispatch(ctx, summaryEvent())

	if len(all.got) != 2 {
		t.Errorf("all writer got %v", all.got)
	}
	if len(summaryOnly.got) != 1 || summaryOnly.got[0] != events.EventTypeSummary {
		t.Errorf("summary writer got %v", summaryOnly.got)
	}
	if hook.calls.Load() != 1 {
		t.Errorf("hook calls = %d", hook.calls.Load())
	}
}

func TestDispatch_FailuresDoNotStopOthers(t *testing.T) {
	d := New(Config{})
	bad := &recordingWriter{writeErr: errors.New("disk full")}
	good := &recordingWriter{}
	badHook := &countingHook{err: errors.New("503")}
	goodHook := &countingHook{}
	d.RegisterWriter(bad)
	d.RegisterWriter(good)
	d.RegisterHook(badHook)
	d.RegisterHook(goodHook)

	if err := d.Dispatch(context.Background(), probeEvent()); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if len(good.got) != 1 || goodHook.calls.Load() != 1 {
		t.Error("healthy consumers should still receive the event")
	}
}

func TestClose_WaitsForAsyncHooks(t *testing.T) {
	d := New(Config{Async: true})
	hook := &countingHook{delay: 20 * time.Millisecond}
	w := &recordingWriter{}
	d.RegisterHook(hook)
	d.RegisterWriter(w)

	for range 5 {
		_ = d.Dispatch(context.Background(), probeEvent())
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if hook.calls.Load() != 5 {
		t.Errorf("hook calls after Close = %d, want 5", hook.calls.Load())
	}
	if !w.closed || !hook.closed.Load() {
		t.Error("Close should close writers and closable hooks")
	}
	if err := d.Dispatch(context.Background(), probeEvent()); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch after Close = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
