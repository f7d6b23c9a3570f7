package hooks

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*OTelHook)(nil)

// OTelHook exports run telemetry to an OpenTelemetry collector. The run
// is one root span; each probe and each platform scenario is a child
// span, and poll fetches are span events on the scenario span.
type OTelHook struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	mu        sync.Mutex
	rootSpan  trace.Span
	rootCtx   context.Context
	scenarios map[string]trace.Span
	closed    bool
}

// OTelOptions configures the OpenTelemetry hook behavior.
type OTelOptions struct {
	// Endpoint is the OTLP gRPC endpoint (default "localhost:4317").
	Endpoint string

	// ServiceName is the service name for traces (default: "mediaprobe").
	ServiceName string

	// Insecure uses a plaintext connection.
	Insecure bool

	// Headers contains additional headers for the OTLP exporter.
	Headers map[string]string

	// ShutdownTimeout bounds the final flush (default: 5s).
	ShutdownTimeout time.Duration

	// ConnectionTimeout bounds exporter setup (default: 10s).
	ConnectionTimeout time.Duration

	// Exporter replaces the OTLP exporter, mainly for tests.
	Exporter sdktrace.SpanExporter
}

// NewOTelHook creates the hook. The exporter connects lazily; an
// unreachable collector never blocks the run.
func NewOTelHook(opts OTelOptions) (*OTelHook, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ToolName
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4317"
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = duration.HookShutdown
	}
	if opts.ConnectionTimeout == 0 {
		opts.ConnectionTimeout = duration.WebhookTimeout
	}

	exporter := opts.Exporter
	if exporter == nil {
		exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
		if opts.Insecure {
			exporterOpts = append(exporterOpts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		if len(opts.Headers) > 0 {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
		}

		ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectionTimeout)
		defer cancel()
		exp, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, err
		}
		exporter = exp
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return &OTelHook{
		opts:           opts,
		tracerProvider: tp,
		tracer:         tp.Tracer("mediaprobe/harness"),
		scenarios:      make(map[string]trace.Span),
	}, nil
}

// OnEvent turns run events into spans.
func (h *OTelHook) OnEvent(ctx context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.StartEvent:
		h.rootCtx, h.rootSpan = h.tracer.Start(ctx, "mediaprobe.run",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithTimestamp(e.Timestamp()),
			trace.WithAttributes(
				attribute.String("run_id", e.RunID()),
				attribute.String("target", e.Target),
				attribute.String("mode", e.Mode),
				attribute.Bool("authenticated", e.Config.Authenticated),
				attribute.StringSlice("probes", e.Probes),
				attribute.StringSlice("platforms", e.Platforms),
			),
		)
	case *events.HealthEvent:
		if h.rootSpan != nil {
			h.rootSpan.AddEvent("health_check", trace.WithAttributes(
				attribute.String("status", string(e.Result.Status)),
				attribute.Int("status_code", e.Result.StatusCode),
				attribute.Int64("latency_ms", e.Result.LatencyMs),
			))
		}
	case *events.ProbeEvent:
		h.handleProbe(e)
	case *events.ScenarioEvent:
		h.handleScenario(e)
	case *events.PollEvent:
		if span, ok := h.scenarios[e.Platform]; ok {
			span.AddEvent("poll", trace.WithAttributes(
				attribute.String("job_id", e.JobID),
				attribute.Int("attempt", e.Attempt),
				attribute.String("status", e.Status),
				attribute.Int("percent", e.Percent),
				attribute.String("error", e.Error),
			))
		}
	case *events.ErrorEvent:
		if h.rootSpan != nil {
			h.rootSpan.AddEvent("error", trace.WithAttributes(
				attribute.String("component", e.Component),
				attribute.String("error_type", e.ErrorType),
				attribute.String("message", e.Message),
			))
		}
	case *events.SummaryEvent:
		if h.rootSpan != nil {
			h.rootSpan.SetAttributes(
				attribute.Int("probes.vulnerable", e.Probes.Vulnerable),
				attribute.Int("probes.errored", e.Probes.Errored),
				attribute.Int("scenarios.succeeded", e.Scenarios.Succeeded),
				attribute.Int("scenarios.failed", e.Scenarios.Failed),
			)
			if e.Vulnerable() {
				h.rootSpan.SetStatus(codes.Error, e.ExitReason)
			}
		}
	case *events.CompleteEvent:
		for name, span := range h.scenarios {
			span.End()
			delete(h.scenarios, name)
		}
		if h.rootSpan != nil {
			h.rootSpan.SetAttributes(attribute.Int("exit_code", e.ExitCode))
			h.rootSpan.End(trace.WithTimestamp(e.Timestamp()))
			h.rootSpan = nil
		}
	}
	return nil
}

func (h *OTelHook) parent() context.Context {
	if h.rootCtx != nil {
		return h.rootCtx
	}
	return context.Background()
}

func (h *OTelHook) handleProbe(e *events.ProbeEvent) {
	r := e.Result
	end := e.Timestamp()
	start := end.Add(-time.Duration(r.DurationMs) * time.Millisecond)
	_, span := h.tracer.Start(h.parent(), "probe."+r.Probe,
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String("probe", r.Probe),
			attribute.Bool("vulnerable", r.Vulnerable),
			attribute.String("severity", string(r.Severity)),
			attribute.String("message", r.Message),
		),
	)
	if r.Errored() {
		span.SetStatus(codes.Error, r.Error)
		span.SetAttributes(attribute.String("error_kind", r.ErrorKind))
	}
	span.End(trace.WithTimestamp(end))
}

func (h *OTelHook) handleScenario(e *events.ScenarioEvent) {
	name := e.Platform.Name
	span, ok := h.scenarios[name]
	if !ok {
		_, span = h.tracer.Start(h.parent(), "scenario",
			trace.WithTimestamp(e.Timestamp()),
			trace.WithAttributes(
				attribute.String("platform", name),
				attribute.String("url", e.Platform.URL),
			),
		)
		h.scenarios[name] = span
	}
	if !e.Final() {
		span.AddEvent("stage", trace.WithAttributes(attribute.String("stage", string(e.Stage))))
		return
	}

	r := e.Result
	span.SetAttributes(
		attribute.String("stage", string(r.Stage)),
		attribute.String("job_id", r.JobID),
		attribute.Bool("success", r.Success),
	)
	if !r.Success && !r.StillProcessing() {
		span.SetStatus(codes.Error, r.Error)
	}
	span.End(trace.WithTimestamp(e.Timestamp()))
	delete(h.scenarios, name)
}

// EventTypes returns nil to receive all events.
func (h *OTelHook) EventTypes() []events.EventType { return nil }

// Close ends any open spans and flushes the exporter.
func (h *OTelHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for _, span := range h.scenarios {
		span.End()
	}
	if h.rootSpan != nil {
		h.rootSpan.End()
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
	defer cancel()
	return h.tracerProvider.Shutdown(ctx)
}
