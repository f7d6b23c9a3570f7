package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/waftester/mediaprobe/pkg/attackconfig"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
)

// recordingSleeper records pauses without blocking.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newProbe(t *testing.T, handler http.HandlerFunc) *Tester {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	api, err := mediaapi.New(mediaapi.Config{BaseURL: server.URL, APIKey: "key", HTTPClient: server.Client()})
	if err != nil {
		t.Fatal(err)
	}
	return NewTester(TesterConfig{
		Base:    attackconfig.Base{API: api},
		Spacing: time.Millisecond,
		Sleeper: &recordingSleeper{},
	})
}

func TestProbe_429OnSeventhRequest(t *testing.T) {
	var hits atomic.Int32
	tester := newProbe(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "key" {
			t.Error("burst requests must be authenticated")
		}
		if hits.Add(1) >= 7 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	result := tester.Run(context.Background())

	if result.Vulnerable {
		t.Errorf("429 within burst should not be vulnerable: %+v", result)
	}
	if result.Evidence["blocked_at"] != 7 {
		t.Errorf("blocked_at = %v, want 7", result.Evidence["blocked_at"])
	}
	if result.Evidence["retry_after"] != "30" {
		t.Errorf("retry_after = %v", result.Evidence["retry_after"])
	}
	if got := hits.Load(); got != 7 {
		t.Errorf("server saw %d requests, want 7 (stop at first 429)", got)
	}
}

func TestProbe_NoLimitIsVulnerable(t *testing.T) {
	var hits atomic.Int32
	tester := newProbe(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	result := tester.Run(context.Background())

	if !result.Vulnerable || result.Severity != finding.Medium {
		t.Errorf("no 429 should be vulnerable: %+v", result)
	}
	if hits.Load() != 20 {
		t.Errorf("server saw %d requests, want 20", hits.Load())
	}
	if result.Evidence["requests"] != 20 {
		t.Errorf("requests = %v", result.Evidence["requests"])
	}
	if _, ok := result.Evidence["blocked_at"]; ok {
		t.Error("blocked_at should be absent")
	}
}

func TestProbe_CustomBurstSize(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()
	api, _ := mediaapi.New(mediaapi.Config{BaseURL: server.URL, HTTPClient: server.Client()})

	NewTester(TesterConfig{Base: attackconfig.Base{API: api}, BurstSize: 4, Spacing: time.Millisecond}).Run(context.Background())

	if hits.Load() != 4 {
		t.Errorf("hits = %d, want 4", hits.Load())
	}
}

func TestProbe_AllTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	api, _ := mediaapi.New(mediaapi.Config{BaseURL: server.URL, HTTPClient: server.Client()})
	server.Close()

	result := NewTester(TesterConfig{Base: attackconfig.Base{API: api}, BurstSize: 3, Spacing: time.Millisecond}).Run(context.Background())

	if !result.Errored() || result.Vulnerable {
		t.Errorf("expected error result, got %+v", result)
	}
	if result.Evidence["errors"] != 3 {
		t.Errorf("errors = %v, want 3", result.Evidence["errors"])
	}
}

func TestProbe_Defaults(t *testing.T) {
	tester := NewTester(TesterConfig{})
	if tester.config.BurstSize != 20 {
		t.Errorf("BurstSize = %d", tester.config.BurstSize)
	}
	if tester.config.Spacing != 100*time.Millisecond {
		t.Errorf("Spacing = %v", tester.config.Spacing)
	}
	if tester.config.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", tester.config.Timeout)
	}
}

func TestProbe_FixedPauseBetweenRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
	}))
	defer server.Close()
	api, _ := mediaapi.New(mediaapi.Config{BaseURL: server.URL, HTTPClient: server.Client()})

	sleeper := &recordingSleeper{}
	result := NewTester(TesterConfig{
		Base:      attackconfig.Base{API: api},
		BurstSize: 5,
		Spacing:   100 * time.Millisecond,
		Sleeper:   sleeper,
	}).Run(context.Background())

	if len(sleeper.delays) != 4 {
		t.Fatalf("pauses = %d, want 4 (none after the last request)", len(sleeper.delays))
	}
	for i, d := range sleeper.delays {
		if d != 100*time.Millisecond {
			t.Errorf("pause %d = %v, want the full spacing regardless of response time", i, d)
		}
	}
	if result.Evidence["burst_limit"] != 5 {
		t.Errorf("burst_limit = %v", result.Evidence["burst_limit"])
	}
}

func TestProbe_NoPauseAfter429(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 3 {
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer server.Close()
	api, _ := mediaapi.New(mediaapi.Config{BaseURL: server.URL, HTTPClient: server.Client()})

	sleeper := &recordingSleeper{}
	NewTester(TesterConfig{Base: attackconfig.Base{API: api}, BurstSize: 10, Sleeper: sleeper}).Run(context.Background())

	if len(sleeper.delays) != 2 {
		t.Errorf("pauses = %d, want 2 (between requests 1-2 and 2-3 only)", len(sleeper.delays))
	}
}

func TestProbe_PausesAfterTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	api, _ := mediaapi.New(mediaapi.Config{BaseURL: server.URL, HTTPClient: server.Client()})
	server.Close()

	sleeper := &recordingSleeper{}
	NewTester(TesterConfig{Base: attackconfig.Base{API: api}, BurstSize: 3, Sleeper: sleeper}).Run(context.Background())

	if len(sleeper.delays) != 2 {
		t.Errorf("pauses = %d, want 2", len(sleeper.delays))
	}
}
