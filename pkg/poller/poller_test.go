package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/waftester/mediaprobe/pkg/mediaapi"
)

// fakeSleeper records delays without actually sleeping.
type fakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.delays = append(f.delays, d)
	f.mu.Unlock()
	return nil
}

// scriptedFetcher replays a fixed sequence of snapshots; the last entry
// repeats forever.
type scriptedFetcher struct {
	steps []step
	calls int
}

type step struct {
	job *mediaapi.Job
	err error
}

func (s *scriptedFetcher) JobStatus(ctx context.Context, id string) (*mediaapi.Job, error) {
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	st := s.steps[i]
	if st.err != nil {
		return nil, st.err
	}
	j := *st.job
	j.ID = id
	return &j, nil
}

func status(s mediaapi.JobStatus, pct int) step {
	return step{job: &mediaapi.Job{Status: s, Progress: pct}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPoller(f StatusFetcher, max int, s *fakeSleeper) *Poller {
	return New(f, Config{MaxAttempts: max, Interval: 2 * time.Second, Sleeper: s, Logger: quietLogger()})
}

func TestPollCompletesAfterProcessing(t *testing.T) {
	done := step{job: &mediaapi.Job{
		Status:   mediaapi.StatusCompleted,
		Progress: 100,
		Result:   &mediaapi.JobResult{Filename: "clip.mp4", Filesize: 1024},
	}}
	f := &scriptedFetcher{steps: []step{
		status(mediaapi.StatusProcessing, 10),
		status(mediaapi.StatusProcessing, 40),
		status(mediaapi.StatusProcessing, 80),
		done,
	}}
	s := &fakeSleeper{}

	out := newPoller(f, 10, s).Poll(context.Background(), "job-1")

	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.AttemptsUsed != 4 {
		t.Errorf("AttemptsUsed = %d, want 4", out.AttemptsUsed)
	}
	if out.TerminalStatus != mediaapi.StatusCompleted {
		t.Errorf("TerminalStatus = %q", out.TerminalStatus)
	}
	if out.Result == nil || out.Result.Filename != "clip.mp4" {
		t.Errorf("Result = %+v", out.Result)
	}
	if f.calls != 4 {
		t.Errorf("fetches = %d, want 4 (none after terminal)", f.calls)
	}
	if len(s.delays) != 3 {
		t.Errorf("sleeps = %d, want 3", len(s.delays))
	}
	for _, d := range s.delays {
		if d != 2*time.Second {
			t.Errorf("delay = %v, want 2s", d)
		}
	}
}

func TestPollTimesOut(t *testing.T) {
	f := &scriptedFetcher{steps: []step{status(mediaapi.StatusProcessing, 50)}}
	s := &fakeSleeper{}

	out := newPoller(f, 5, s).Poll(context.Background(), "job-2")

	if out.Success {
		t.Fatal("expected failure")
	}
	if out.Error != "Timeout after max attempts" {
		t.Errorf("Error = %q", out.Error)
	}
	if out.AttemptsUsed != 5 || f.calls != 5 {
		t.Errorf("AttemptsUsed = %d, fetches = %d, want 5", out.AttemptsUsed, f.calls)
	}
	if !out.Exhausted {
		t.Error("Exhausted = false")
	}
	if out.TerminalStatus != "" {
		t.Errorf("TerminalStatus = %q, want none", out.TerminalStatus)
	}
	if len(s.delays) != 4 {
		t.Errorf("sleeps = %d, want 4 (no sleep after last fetch)", len(s.delays))
	}
}

func TestPollJobFailed(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		status(mediaapi.StatusPending, 0),
		{job: &mediaapi.Job{Status: mediaapi.StatusFailed, Error: "unsupported codec"}},
	}}

	out := newPoller(f, 10, &fakeSleeper{}).Poll(context.Background(), "job-3")

	if out.Success {
		t.Fatal("expected failure")
	}
	if out.TerminalStatus != mediaapi.StatusFailed {
		t.Errorf("TerminalStatus = %q", out.TerminalStatus)
	}
	if out.Error != "unsupported codec" {
		t.Errorf("Error = %q", out.Error)
	}
	if out.Exhausted {
		t.Error("server-reported failure must not be marked exhausted")
	}
	if f.calls != 2 {
		t.Errorf("fetches = %d, want 2", f.calls)
	}
}

func TestPollNon200Continues(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{err: &mediaapi.StatusError{StatusCode: 503}},
		{err: &mediaapi.StatusError{StatusCode: 503}},
		status(mediaapi.StatusCompleted, 100),
	}}

	out := newPoller(f, 10, &fakeSleeper{}).Poll(context.Background(), "job-4")

	if !out.Success || out.AttemptsUsed != 3 {
		t.Errorf("outcome = %+v, want success after 3 attempts", out)
	}
}

func TestPollNon200OnLastAttempt(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		status(mediaapi.StatusProcessing, 10),
		{err: &mediaapi.StatusError{StatusCode: 404, Body: "not found"}},
	}}

	out := newPoller(f, 3, &fakeSleeper{}).Poll(context.Background(), "job-5")

	if out.Error != "Status 404" {
		t.Errorf("Error = %q, want Status 404", out.Error)
	}
	if out.LastStatusCode != 404 || !out.Exhausted {
		t.Errorf("outcome = %+v", out)
	}
}

func TestPollTransportErrorsContinue(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{err: &mediaapi.TransportError{Op: "GET /proxy/jobs/x", Kind: "timeout", Err: context.DeadlineExceeded}},
		status(mediaapi.StatusCompleted, 100),
	}}

	out := newPoller(f, 5, &fakeSleeper{}).Poll(context.Background(), "job-6")

	if !out.Success || out.AttemptsUsed != 2 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestPollTransportErrorsExhaust(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{err: &mediaapi.TransportError{Op: "GET", Kind: "connection_refused", Err: errors.New("refused")}},
	}}

	out := newPoller(f, 3, &fakeSleeper{}).Poll(context.Background(), "job-7")

	if out.Error != MsgTimeout || out.AttemptsUsed != 3 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestPollIdempotentOnTerminalJob(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{job: &mediaapi.Job{
		Status: mediaapi.StatusCompleted,
		Result: &mediaapi.JobResult{Filename: "a.mp3"},
	}}}}
	p := newPoller(f, 10, &fakeSleeper{})

	first := p.Poll(context.Background(), "job-8")
	second := p.Poll(context.Background(), "job-8")

	first.DurationMs, second.DurationMs = 0, 0
	if first.Success != second.Success || first.AttemptsUsed != second.AttemptsUsed ||
		first.TerminalStatus != second.TerminalStatus || first.Result.Filename != second.Result.Filename {
		t.Errorf("outcomes differ: %+v vs %+v", first, second)
	}
	if first.AttemptsUsed != 1 {
		t.Errorf("AttemptsUsed = %d, want 1", first.AttemptsUsed)
	}
}

func TestPollNeverExceedsBudget(t *testing.T) {
	for _, max := range []int{1, 2, 7, 60} {
		f := &scriptedFetcher{steps: []step{status(mediaapi.StatusQueued, 0)}}
		out := newPoller(f, max, &fakeSleeper{}).Poll(context.Background(), "job")
		if f.calls != max || out.AttemptsUsed != max {
			t.Errorf("max=%d: fetches=%d attempts=%d", max, f.calls, out.AttemptsUsed)
		}
	}
}

func TestPollEmptyJobID(t *testing.T) {
	f := &scriptedFetcher{steps: []step{status(mediaapi.StatusCompleted, 100)}}
	out := newPoller(f, 5, &fakeSleeper{}).Poll(context.Background(), "")
	if out.Success || out.AttemptsUsed != 0 || out.Error != MsgEmptyJobID {
		t.Errorf("outcome = %+v", out)
	}
	if f.calls != 0 {
		t.Errorf("fetches = %d, want 0", f.calls)
	}
}

func TestPollDefaults(t *testing.T) {
	p := New(&scriptedFetcher{}, Config{})
	if p.MaxAttempts() != 60 {
		t.Errorf("MaxAttempts = %d, want 60", p.MaxAttempts())
	}
	if p.cfg.Interval != 2*time.Second {
		t.Errorf("Interval = %v, want 2s", p.cfg.Interval)
	}
}

func TestPollInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &scriptedFetcher{steps: []step{status(mediaapi.StatusProcessing, 5)}}
	p := New(f, Config{
		MaxAttempts: 10,
		Sleeper:     &fakeSleeper{},
		Logger:      quietLogger(),
		OnProgress: func(pr Progress) {
			if pr.Attempt == 2 {
				cancel()
			}
		},
	})

	out := p.Poll(ctx, "job-9")

	if out.Success || out.Exhausted {
		t.Errorf("outcome = %+v", out)
	}
	if out.AttemptsUsed != 2 {
		t.Errorf("AttemptsUsed = %d, want 2", out.AttemptsUsed)
	}
	if out.Error != "interrupted: context canceled" {
		t.Errorf("Error = %q", out.Error)
	}
}

func TestPollReportsProgress(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		status(mediaapi.StatusProcessing, 30),
		{err: &mediaapi.StatusError{StatusCode: 500}},
		status(mediaapi.StatusCompleted, 100),
	}}
	var seen []Progress
	p := New(f, Config{
		MaxAttempts: 5,
		Sleeper:     &fakeSleeper{},
		Logger:      quietLogger(),
		OnProgress:  func(pr Progress) { seen = append(seen, pr) },
	})

	p.Poll(context.Background(), "job-10")

	if len(seen) != 3 {
		t.Fatalf("progress events = %d, want 3", len(seen))
	}
	if seen[0].Percent != 30 || seen[0].Status != mediaapi.StatusProcessing {
		t.Errorf("first = %+v", seen[0])
	}
	if seen[1].StatusCode != 500 || seen[1].Err == nil {
		t.Errorf("second = %+v", seen[1])
	}
	if seen[2].Attempt != 3 || seen[2].MaxAttempts != 5 {
		t.Errorf("third = %+v", seen[2])
	}
}

// End to end through the real API client and an httptest server.
func TestPollAgainstServer(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n < 3 {
			io.WriteString(w, `{"status":"processing","progress":50}`)
			return
		}
		io.WriteString(w, `{"status":"completed","progress":100,"result":{"filename":"v.webm","filesize":99}}`)
	}))
	defer srv.Close()

	api, err := mediaapi.New(mediaapi.Config{BaseURL: srv.URL, APIKey: "k", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	out := newPoller(api, 10, &fakeSleeper{}).Poll(context.Background(), "abc")

	if !out.Success || out.AttemptsUsed != 3 || out.Result.Size() != 99 {
		t.Errorf("outcome = %+v", out)
	}
	if hits != 3 {
		t.Errorf("server hits = %d, want 3", hits)
	}
}
