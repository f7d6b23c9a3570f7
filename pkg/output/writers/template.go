package writers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/jsonutil"
	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
	"github.com/waftester/mediaprobe/pkg/poller"
	"github.com/waftester/mediaprobe/pkg/scenario"
	"github.com/waftester/mediaprobe/pkg/ui"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*TemplateWriter)(nil)

// ErrNoTemplate is returned when a TemplateConfig names no template.
var ErrNoTemplate = errors.New("writers: no template specified")

// TemplateConfig configures the template writer.
type TemplateConfig struct {
	// TemplatePath is the path to a custom template file.
	TemplatePath string

	// TemplateString is an inline template string (alternative to TemplatePath).
	TemplateString string

	// BuiltIn is the name of a built-in template: "text-summary", "markdown" or "csv".
	BuiltIn string
}

// builtInTemplates contains pre-defined report templates.
var builtInTemplates = map[string]string{
	"text-summary": `mediaprobe run summary
======================
Target:    {{ .Target }}
Run:       {{ .RunID }}
Generated: {{ .Timestamp }}
Duration:  {{ printf "%.2f" .Duration }}s
{{ with .Health }}Health:    {{ .Status }}{{ if .StatusCode }} ({{ .StatusCode }}){{ end }}
{{ end }}
{{- with .Poll }}
Job:       {{ .JobID }}
Outcome:   {{ pollText . }}
{{ else }}
Security probes: {{ .Probes.Total }} run, {{ .Probes.Vulnerable }} vulnerable, {{ .Probes.Errored }} errored
{{- range .Findings }}
  {{ verdictIcon . }} {{ label .Probe }}: {{ if .Error }}{{ .Error }}{{ else }}{{ .Message }}{{ end }}
{{- end }}
{{ if .Platforms }}
Platforms: {{ .Scenarios.Succeeded }}/{{ .Scenarios.Total }} completed, {{ .Scenarios.StillProcessing }} still processing, {{ .Scenarios.Failed }} failed
{{- range .Platforms }}
  {{ scenarioIcon . }} {{ .Platform.Name }}: {{ scenarioText . }}
{{- end }}
{{ end }}
{{- end }}
Exit: {{ .ExitCode }} ({{ .ExitReason }})
`,

	"markdown": `# mediaprobe report

| | |
|---|---|
| Target | ` + "`{{ .Target }}`" + ` |
| Run | {{ .RunID }} |
| Generated | {{ .Timestamp }} |
| Duration | {{ printf "%.2f" .Duration }}s |
| Exit code | {{ .ExitCode }} |
{{ with .Poll }}
## Job

| Job | Outcome | Attempts | Details |
|---|---|---|---|
| {{ .JobID }} | {{ pollVerdict . }} | {{ .AttemptsUsed }}/{{ .MaxAttempts }} | {{ pollText . }} |
{{ else }}
## Security probes

| Probe | Verdict | Severity | Details |
|---|---|---|---|
{{- range .Findings }}
| {{ label .Probe }} | {{ verdict . }} | {{ severityIcon (toString .Severity) }} {{ .Severity }} | {{ if .Error }}{{ .Error }}{{ else }}{{ .Message }}{{ end }} |
{{- end }}
{{ if .Platforms }}
## Platforms

| Platform | Outcome | Stage | Job | Details |
|---|---|---|---|---|
{{- range .Platforms }}
| {{ .Platform.Name }} | {{ scenarioIcon . }} | {{ .Stage }} | {{ .JobID | default "-" }} | {{ scenarioText . }} |
{{- end }}
{{ end }}
{{- end }}
{{- if .Errors }}
## Errors
{{ range .Errors }}
- **{{ .Component }}**: {{ .Message }}
{{- end }}
{{ end }}
> {{ .ExitReason }}
`,

	"csv": `kind,name,verdict,severity,error_kind,message
{{- range .Findings }}
probe,{{ .Probe }},{{ verdict . }},{{ .Severity }},{{ .ErrorKind }},{{ escapeCSV (.Error | default .Message) }}
{{- end }}
{{- range .Platforms }}
scenario,{{ escapeCSV .Platform.Name }},{{ scenarioVerdict . }},,{{ .ErrorKind }},{{ escapeCSV (scenarioText .) }}
{{- end }}
{{- with .Poll }}
job,{{ escapeCSV .JobID }},{{ pollVerdict . }},,{{ .TerminalStatus }},{{ escapeCSV (pollText .) }}
{{- end }}
`,
}

// BuiltInNames lists the built-in template names.
func BuiltInNames() []string {
	names := make([]string, 0, len(builtInTemplates))
	for name := range builtInTemplates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// TemplateWriter renders the run report using Go templates.
// It keeps the summary, completion and error events and renders the
// template on Close.
// Sprig functions and report helpers are available in templates.
type TemplateWriter struct {
	w       io.Writer
	mu      sync.Mutex
	tmpl    *template.Template
	summary  *events.SummaryEvent
	complete *events.CompleteEvent
	errs     []*events.ErrorEvent
	runID    string
}

// NewTemplateWriter creates a new template writer.
// It parses the template immediately and returns an error if the template is invalid.
func NewTemplateWriter(w io.Writer, config TemplateConfig) (*TemplateWriter, error) {
	tmpl, err := parseTemplate(config)
	if err != nil {
		return nil, fmt.Errorf("template parse error: %w", err)
	}
	return &TemplateWriter{w: w, tmpl: tmpl}, nil
}

// parseTemplate parses the template from config (path, string, or built-in).
func parseTemplate(config TemplateConfig) (*template.Template, error) {
	var content string
	switch {
	case config.TemplatePath != "":
		b, err := os.ReadFile(config.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read template file: %w", err)
		}
		content = string(b)
	case config.TemplateString != "":
		content = config.TemplateString
	case config.BuiltIn != "":
		c, ok := builtInTemplates[config.BuiltIn]
		if !ok {
			return nil, fmt.Errorf("unknown built-in template: %s (available: %s)", config.BuiltIn, strings.Join(BuiltInNames(), ", "))
		}
		content = c
	default:
		return nil, ErrNoTemplate
	}

	funcMap := sprig.TxtFuncMap()
	funcMap["escapeCSV"] = tmplEscapeCSV
	funcMap["severityIcon"] = tmplSeverityIcon
	funcMap["json"] = tmplToJSON
	funcMap["prettyJSON"] = tmplPrettyJSON
	funcMap["label"] = ui.Label
	funcMap["verdict"] = tmplVerdict
	funcMap["verdictIcon"] = tmplVerdictIcon
	funcMap["scenarioVerdict"] = tmplScenarioVerdict
	funcMap["scenarioIcon"] = tmplScenarioIcon
	funcMap["scenarioText"] = tmplScenarioText
	funcMap["pollVerdict"] = tmplPollVerdict
	funcMap["pollText"] = tmplPollText

	return template.New(defaults.ToolName).Funcs(funcMap).Parse(content)
}

// Write keeps the summary, completion and error events for rendering.
func (tw *TemplateWriter) Write(event events.Event) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.runID == "" {
		tw.runID = event.RunID()
	}
	switch e := event.(type) {
	case *events.SummaryEvent:
		tw.summary = e
	case *events.CompleteEvent:
		tw.complete = e
	case *events.ErrorEvent:
		tw.errs = append(tw.errs, e)
	}
	return nil
}

// Flush is a no-op for template writer.
// The report is rendered as a single document on Close.
func (tw *TemplateWriter) Flush() error {
	return nil
}

// Close renders the template and writes to the output.
func (tw *TemplateWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	var buf bytes.Buffer
	if err := tw.tmpl.Execute(&buf, tw.buildTemplateData()); err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}
	if _, err := tw.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write error: %w", err)
	}

	if closer, ok := tw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SupportsEvent returns true for summary, complete and error events.
func (tw *TemplateWriter) SupportsEvent(eventType events.EventType) bool {
	switch eventType {
	case events.EventTypeSummary, events.EventTypeComplete, events.EventTypeError:
		return true
	}
	return false
}

// tmplData holds all data available to templates. The summary fields are
// promoted, so templates use .Target, .Findings, .Platforms and so on.
// Poll is set only for a single-job poll, which has no summary.
type tmplData struct {
	*events.SummaryEvent
	RunID     string
	Timestamp string
	Duration  float64
	Poll      *poller.Outcome
	Errors    []*events.ErrorEvent
}

func (tw *TemplateWriter) buildTemplateData() *tmplData {
	data := &tmplData{
		SummaryEvent: tw.summary,
		RunID:        tw.runID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Errors:       tw.errs,
	}
	switch {
	case tw.summary != nil:
		data.Duration = float64(tw.summary.Timing.DurationMs) / 1000
	case tw.complete != nil && tw.complete.Poll != nil:
		data.SummaryEvent = &events.SummaryEvent{
			Target:     tw.complete.Target,
			ExitCode:   tw.complete.ExitCode,
			ExitReason: tw.complete.ExitReason,
		}
		data.Poll = tw.complete.Poll
		data.Duration = float64(tw.complete.Poll.DurationMs) / 1000
	default:
		data.SummaryEvent = &events.SummaryEvent{ExitReason: "run did not complete"}
	}
	return data
}

// Template helper functions

// tmplEscapeCSV escapes a string for CSV output.
// It wraps the value in quotes if it contains commas, quotes, or newlines.
func tmplEscapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}

// tmplSeverityIcon returns an emoji icon for a severity level.
func tmplSeverityIcon(severity string) string {
	switch finding.Severity(strings.ToLower(severity)) {
	case finding.Critical:
		return "🔴"
	case finding.High:
		return "🟠"
	case finding.Medium:
		return "🟡"
	case finding.Low:
		return "🟢"
	case finding.Info:
		return "🔵"
	default:
		return "⚪"
	}
}

func tmplVerdict(r finding.ProbeResult) string {
	switch {
	case r.Errored():
		return "error"
	case r.Vulnerable:
		return "vulnerable"
	default:
		return "pass"
	}
}

func tmplVerdictIcon(r finding.ProbeResult) string {
	switch tmplVerdict(r) {
	case "error":
		return "[x]"
	case "vulnerable":
		return "[!]"
	default:
		return "[+]"
	}
}

func tmplScenarioVerdict(r scenario.Result) string {
	switch {
	case r.Success:
		return "completed"
	case r.StillProcessing():
		return "still_processing"
	default:
		return "failed"
	}
}

func tmplScenarioIcon(r scenario.Result) string {
	switch tmplScenarioVerdict(r) {
	case "completed":
		return "[+]"
	case "still_processing":
		return "[~]"
	default:
		return "[x]"
	}
}

func tmplScenarioText(r scenario.Result) string {
	switch {
	case r.Success && r.Poll != nil && r.Poll.Result != nil:
		return fmt.Sprintf("completed in %d attempts (%s)", r.Poll.AttemptsUsed, r.Poll.Result.Filename)
	case r.Success && r.Poll != nil:
		return fmt.Sprintf("completed in %d attempts", r.Poll.AttemptsUsed)
	case r.StillProcessing():
		return "still processing at " + r.JobURL
	default:
		return fmt.Sprintf("%s failed: %s", r.Stage, r.Error)
	}
}

func tmplPollVerdict(o *poller.Outcome) string {
	switch {
	case o.Success:
		return "completed"
	case o.Exhausted:
		return "still_processing"
	default:
		return "failed"
	}
}

func tmplPollText(o *poller.Outcome) string {
	switch {
	case o.Success && o.Result != nil:
		return fmt.Sprintf("completed in %d attempts (%s)", o.AttemptsUsed, o.Result.Filename)
	case o.Success:
		return fmt.Sprintf("completed in %d attempts", o.AttemptsUsed)
	case o.Exhausted:
		return fmt.Sprintf("still processing after %d/%d attempts", o.AttemptsUsed, o.MaxAttempts)
	default:
		return "failed: " + o.Error
	}
}

// tmplToJSON converts a value to a JSON string.
func tmplToJSON(v any) string {
	b, err := jsonutil.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(b)
}

// tmplPrettyJSON converts a value to a formatted JSON string.
func tmplPrettyJSON(v any) string {
	b, err := jsonutil.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(b)
}
