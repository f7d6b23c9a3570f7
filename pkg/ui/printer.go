package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/waftester/mediaprobe/pkg/finding"
)

// Label turns an identifier such as "rate_limiting" into "Rate Limiting".
func Label(id string) string {
	// A Caser keeps state and must not be shared across goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(id, "_", " "))
}

// Printer writes narration lines. It is safe for concurrent use.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }

func (p *Printer) line(format string, args ...any) {
	if IsSilent() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	Fprintf(p.w, format+"\n", args...)
}

// Section prints a section header.
func (p *Printer) Section(title string) {
	if IsSilent() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	PrintSection(p.w, title)
}

// Pass prints a success line.
func (p *Printer) Pass(format string, args ...any) {
	p.line("%s %s", PassStyle.Render(Icon("✅", "[+]")), fmt.Sprintf(format, args...))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.line("%s %s", WarnStyle.Render(Icon("⚠️", "[!]")), fmt.Sprintf(format, args...))
}

// Fail prints a failure line.
func (p *Printer) Fail(format string, args ...any) {
	p.line("%s %s", FailStyle.Render(Icon("❌", "[x]")), fmt.Sprintf(format, args...))
}

// Pending prints an in-progress line.
func (p *Printer) Pending(format string, args ...any) {
	p.line("%s %s", WarnStyle.Render(Icon("⏳", "[~]")), fmt.Sprintf(format, args...))
}

// Detail prints an indented key/value line.
func (p *Printer) Detail(key string, value any) {
	p.line("   %s %v", StatLabelStyle.Render(key+":"), value)
}

// Note prints an indented muted line.
func (p *Printer) Note(format string, args ...any) {
	p.line("   %s", HelpStyle.Render(fmt.Sprintf(format, args...)))
}

// Probe prints one probe verdict.
func (p *Printer) Probe(r finding.ProbeResult) {
	name := Label(r.Probe)
	switch {
	case r.Errored():
		p.Fail("%s: %s (%s)", name, r.Error, r.ErrorKind)
	case r.Vulnerable:
		p.Warn("%s %s: %s", SeverityStyle(r.Severity).Render(string(r.Severity)), name, r.Message)
		if r.Remediation != "" {
			p.Note("fix: %s", r.Remediation)
		}
	default:
		p.Pass("%s: %s", name, r.Message)
	}
}

// Status renders an HTTP status code in its class color.
func Status(code int) string {
	if code == 0 {
		return StatLabelStyle.Render("-")
	}
	return StatusCodeStyle(code).Render(fmt.Sprint(code))
}
