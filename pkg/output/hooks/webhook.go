package hooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/finding"
	"github.com/waftester/mediaprobe/pkg/httpclient"
	"github.com/waftester/mediaprobe/pkg/jsonutil"
	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
	"github.com/waftester/mediaprobe/pkg/retry"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*WebhookHook)(nil)

// HeaderEventType names the event carried by a webhook delivery.
const HeaderEventType = "X-Mediaprobe-Event-Type"

// WebhookHook sends events to an HTTP endpoint.
// It supports retries with exponential backoff, custom headers,
// and filtering by verdict or severity.
type WebhookHook struct {
	endpoint string
	client   *http.Client
	opts     WebhookOptions
	logger   *slog.Logger
}

// WebhookOptions configures the webhook hook behavior.
type WebhookOptions struct {
	// Headers to include in requests.
	Headers map[string]string

	// Timeout for HTTP requests (default: 10s).
	Timeout time.Duration

	// RetryCount is the number of delivery attempts (default: 3).
	RetryCount int

	// OnlyVulnerable sends only flagged probe results and the summary.
	OnlyVulnerable bool

	// MinSeverity drops probe events below this severity.
	MinSeverity finding.Severity

	// Client replaces the default HTTP client.
	Client *http.Client

	// Sleeper replaces the wall clock between retries.
	Sleeper retry.Sleeper

	Logger *slog.Logger
}

// NewWebhookHook creates a new webhook hook that sends events to the given endpoint.
// The hook is safe for concurrent use.
func NewWebhookHook(endpoint string, opts WebhookOptions) (*WebhookHook, error) {
	if opts.Timeout == 0 {
		opts.Timeout = duration.WebhookTimeout
	}
	if opts.RetryCount == 0 {
		opts.RetryCount = 3
	}
	if opts.Sleeper == nil {
		opts.Sleeper = retry.RealSleeper{}
	}
	client := opts.Client
	if client == nil {
		c, err := httpclient.New(httpclient.Config{
			Timeout:   opts.Timeout,
			UserAgent: defaults.UserAgent("webhook"),
		})
		if err != nil {
			return nil, fmt.Errorf("webhook client: %w", err)
		}
		client = c
	}
	return &WebhookHook{
		endpoint: endpoint,
		client:   client,
		opts:     opts,
		logger:   orDefault(opts.Logger),
	}, nil
}

// OnEvent sends the event to the configured webhook endpoint.
// Delivery failures are logged and never block the run.
func (h *WebhookHook) OnEvent(ctx context.Context, event events.Event) error {
	if !h.wants(event) {
		return nil
	}

	body, err := jsonutil.Marshal(event)
	if err != nil {
		h.logger.Warn("webhook: failed to marshal event", "type", event.EventType(), "error", err)
		return nil
	}

	if err := h.send(ctx, event.EventType(), body); err != nil {
		h.logger.Warn("webhook: delivery failed", "endpoint", h.endpoint, "type", event.EventType(), "error", err)
	}
	return nil
}

// EventTypes limits delivery to probe results and the run summary.
func (h *WebhookHook) EventTypes() []events.EventType {
	return []events.EventType{events.EventTypeProbe, events.EventTypeSummary, events.EventTypeComplete}
}

func (h *WebhookHook) wants(event events.Event) bool {
	switch e := event.(type) {
	case *events.ProbeEvent:
		if h.opts.OnlyVulnerable && !e.Result.Vulnerable {
			return false
		}
		if h.opts.MinSeverity != "" && e.Result.Severity.Score() < h.opts.MinSeverity.Score() {
			return false
		}
		return true
	case *events.SummaryEvent:
		return true
	case *events.CompleteEvent:
		return !h.opts.OnlyVulnerable
	default:
		return false
	}
}

func (h *WebhookHook) send(ctx context.Context, eventType events.EventType, body []byte) error {
	cfg := retry.Config{
		MaxAttempts: h.opts.RetryCount,
		InitDelay:   duration.WebhookRetryInit,
		MaxDelay:    duration.WebhookTimeout,
		Strategy:    retry.Exponential,
	}
	return retry.DoWithSleeper(ctx, cfg, h.opts.Sleeper, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
		if err != nil {
			return retry.Stop(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", defaults.ContentTypeJSON)
		req.Header.Set("User-Agent", defaults.UserAgent("webhook"))
		req.Header.Set(HeaderEventType, string(eventType))
		for key, value := range h.opts.Headers {
			req.Header.Set(key, value)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("server error: %d", resp.StatusCode)
		default:
			return retry.Stop(fmt.Errorf("client error: %d", resp.StatusCode))
		}
	})
}
