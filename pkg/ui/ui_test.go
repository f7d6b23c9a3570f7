package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/waftester/mediaprobe/pkg/finding"
)

func TestLabel(t *testing.T) {
	tests := map[string]string{
		"rate_limiting":    "Rate Limiting",
		"cors_policy":      "Cors Policy",
		"auth_enforcement": "Auth Enforcement",
		"":                 "",
	}
	for in, want := range tests {
		if got := Label(in); got != want {
			t.Errorf("Label(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes ", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := Confirm(strings.NewReader(tt.input), &out, "Continue without API key?")
		if err != nil {
			t.Fatalf("Confirm(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Continue without API key?") {
			t.Errorf("question not printed: %q", out.String())
		}
	}
}

func TestPrinterProbe(t *testing.T) {
	SetNoColor(true)
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	ok := finding.NewResult("auth_enforcement")
	ok.Message = "unauthenticated request rejected with 401"
	p.Probe(ok)

	vuln := finding.NewResult("cors_policy")
	vuln.Flag(finding.Medium, "any origin may read API responses")
	vuln.Remediation = "restrict origins"
	p.Probe(vuln)

	broken := finding.NewResult("rate_limiting")
	broken.Fail(errTest("connection refused"))
	p.Probe(broken)

	out := buf.String()
	for _, want := range []string{"Auth Enforcement", "401", "Cors Policy", "medium", "restrict origins", "Rate Limiting", "connection refused"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSilentSuppressesOutput(t *testing.T) {
	SetSilent(true)
	defer SetSilent(false)

	var buf bytes.Buffer
	NewPrinter(&buf).Pass("hidden")
	PrintBanner(&buf)
	if buf.Len() != 0 {
		t.Errorf("silent mode wrote %q", buf.String())
	}
}

func TestStripSymbols(t *testing.T) {
	if got := stripSymbols("✅ done é"); got != " done é" {
		t.Errorf("stripSymbols() = %q", got)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
