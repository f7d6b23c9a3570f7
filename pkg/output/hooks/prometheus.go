package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*PrometheusHook)(nil)

// PrometheusHook exposes run metrics for Prometheus scraping.
type PrometheusHook struct {
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry
	opts     PrometheusOptions
	logger   *slog.Logger

	probesTotal     *prometheus.CounterVec
	probeDuration   *prometheus.HistogramVec
	pollFetches     *prometheus.CounterVec
	scenariosTotal  *prometheus.CounterVec
	vulnerableGauge *prometheus.GaugeVec
	healthUp        *prometheus.GaugeVec
	runDuration     *prometheus.GaugeVec

	target string
	mu     sync.Mutex
	closed bool
}

// PrometheusOptions configures the Prometheus hook behavior.
type PrometheusOptions struct {
	// Addr is the listen address, e.g. ":9090". Empty disables the
	// server; use Handler to mount the metrics elsewhere.
	Addr string

	// Path for the metrics endpoint (default: "/metrics").
	Path string

	// ReadTimeout for the HTTP server (default: 5s).
	ReadTimeout time.Duration

	// WriteTimeout for the HTTP server (default: 10s).
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// NewPrometheusHook creates the hook and, when Addr is set, starts the
// metrics server. The server runs until Close is called.
func NewPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	if opts.Path == "" {
		opts.Path = "/metrics"
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = duration.HookShutdown
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = duration.WebhookTimeout
	}

	h := &PrometheusHook{
		registry: prometheus.NewRegistry(),
		opts:     opts,
		logger:   orDefault(opts.Logger),
	}
	if err := h.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if opts.Addr != "" {
		if err := h.startServer(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}
	return h, nil
}

func (h *PrometheusHook) initMetrics() error {
	h.probesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaprobe_probes_total",
		Help: "Security probes run, by verdict (passed, vulnerable, errored)",
	}, []string{"target", "probe", "verdict"})

	h.probeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediaprobe_probe_duration_seconds",
		Help:    "Security probe duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"target", "probe"})

	h.pollFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaprobe_poll_fetches_total",
		Help: "Job status fetches, by reported job status or error",
	}, []string{"target", "status"})

	h.scenariosTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaprobe_scenarios_total",
		Help: "Platform scenarios finished, by outcome",
	}, []string{"target", "outcome"})

	h.vulnerableGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mediaprobe_vulnerable_probes",
		Help: "Number of probes flagged vulnerable in the last run",
	}, []string{"target"})

	h.healthUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mediaprobe_health_up",
		Help: "1 if the last health check was healthy",
	}, []string{"target"})

	h.runDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mediaprobe_run_duration_seconds",
		Help: "Duration of the last run in seconds",
	}, []string{"target"})

	for _, c := range []prometheus.Collector{
		h.probesTotal, h.probeDuration, h.pollFetches, h.scenariosTotal,
		h.vulnerableGauge, h.healthUp, h.runDuration,
	} {
		if err := h.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the hook's registry.
func (h *PrometheusHook) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (h *PrometheusHook) startServer() error {
	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return err
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.Handle(h.opts.Path, h.Handler())
	h.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  h.opts.ReadTimeout,
		WriteTimeout: h.opts.WriteTimeout,
	}
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Warn("prometheus: metrics server error", "error", err)
		}
	}()
	return nil
}

// OnEvent updates metrics from run events.
func (h *PrometheusHook) OnEvent(_ context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.StartEvent:
		h.target = extractHost(e.Target)
	case *events.HealthEvent:
		up := 0.0
		if e.Result.IsHealthy() {
			up = 1
		}
		h.healthUp.WithLabelValues(h.target).Set(up)
	case *events.ProbeEvent:
		r := e.Result
		verdict := "passed"
		switch {
		case r.Errored():
			verdict = "errored"
		case r.Vulnerable:
			verdict = "vulnerable"
		}
		h.probesTotal.WithLabelValues(h.target, r.Probe, verdict).Inc()
		h.probeDuration.WithLabelValues(h.target, r.Probe).Observe(float64(r.DurationMs) / 1000)
	case *events.PollEvent:
		status := e.Status
		if e.Error != "" {
			status = "error"
		}
		h.pollFetches.WithLabelValues(h.target, status).Inc()
	case *events.ScenarioEvent:
		if !e.Final() {
			return nil
		}
		outcome := "failed"
		switch {
		case e.Result.Success:
			outcome = "completed"
		case e.Result.StillProcessing():
			outcome = "still_processing"
		}
		h.scenariosTotal.WithLabelValues(h.target, outcome).Inc()
	case *events.SummaryEvent:
		h.vulnerableGauge.WithLabelValues(h.target).Set(float64(e.Probes.Vulnerable))
		h.runDuration.WithLabelValues(h.target).Set(float64(e.Timing.DurationMs) / 1000)
	}
	return nil
}

// EventTypes returns the event types this hook handles.
func (h *PrometheusHook) EventTypes() []events.EventType {
	return []events.EventType{
		events.EventTypeStart,
		events.EventTypeHealth,
		events.EventTypeProbe,
		events.EventTypePoll,
		events.EventTypeScenario,
		events.EventTypeSummary,
	}
}

// Close shuts down the metrics server.
func (h *PrometheusHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), duration.HookShutdown)
		defer cancel()
		return h.server.Shutdown(ctx)
	}
	return nil
}

// MetricsAddr returns the URL where metrics are served, or "" when the
// hook runs without a server.
func (h *PrometheusHook) MetricsAddr() string {
	if h.listener == nil {
		return ""
	}
	return "http://" + h.listener.Addr().String() + h.opts.Path
}

// extractHost returns the host of rawURL for use as a metric label.
func extractHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
