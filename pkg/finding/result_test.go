package finding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/waftester/mediaprobe/pkg/mediaapi"
)

func TestNewResult(t *testing.T) {
	t.Parallel()
	r := NewResult("cors_policy")
	if r.Probe != "cors_policy" || r.Severity != Info || r.Evidence == nil {
		t.Errorf("NewResult() = %+v", r)
	}
	if r.Vulnerable || r.Errored() {
		t.Error("new result should be clean")
	}
}

func TestFailAndFlag(t *testing.T) {
	t.Parallel()
	r := NewResult("auth_enforcement")
	r.Flag(High, "accepted unauthenticated request")
	if !r.Vulnerable || r.Severity != High {
		t.Errorf("after Flag: %+v", r)
	}

	r.Fail(&mediaapi.TransportError{Op: "POST /proxy/detect", Kind: "timeout", Err: context.DeadlineExceeded})
	if r.Vulnerable {
		t.Error("Fail should clear Vulnerable")
	}
	if r.ErrorKind != "timeout" || !r.Errored() {
		t.Errorf("after Fail: %+v", r)
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&mediaapi.TransportError{Kind: "dns", Err: errors.New("no such host")}, "dns"},
		{&mediaapi.StatusError{StatusCode: 500}, "protocol"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestFinish(t *testing.T) {
	t.Parallel()
	r := NewResult("x")
	r.Finish(time.Now().Add(-1500 * time.Millisecond))
	if r.DurationMs < 1500 {
		t.Errorf("DurationMs = %d", r.DurationMs)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	ok := NewResult("a")
	vuln := NewResult("b")
	vuln.Flag(Medium, "wildcard")
	vuln2 := NewResult("c")
	vuln2.Flag(High, "no auth")
	broken := NewResult("d")
	broken.Fail(errors.New("boom"))

	got := Summarize([]ProbeResult{ok, vuln, vuln2, broken})
	want := Tally{Total: 4, Vulnerable: 2, Errored: 1, Passed: 1, Worst: High}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}

	if empty := Summarize(nil); empty.Total != 0 || empty.Worst != Info {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}
