// Package mediaapi is the HTTP client wrapper for the media-extraction API.
//
// Every call is sent exactly once with its own deadline; there is no retry
// at this layer. Transport failures come back as *TransportError and
// unexpected statuses as *StatusError, so callers can record them as data.
package mediaapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/duration"
	"github.com/waftester/mediaprobe/pkg/httpclient"
	"github.com/waftester/mediaprobe/pkg/iohelper"
	"github.com/waftester/mediaprobe/pkg/jsonutil"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8080.
	BaseURL string
	// APIKey is sent as X-API-Key. Empty means unauthenticated.
	APIKey string
	// HTTPClient is shared by all callers; see httpclient.New.
	HTTPClient *http.Client
	// Timeout is the default per-request deadline (30s when zero).
	Timeout time.Duration
	// Pacer, when set, is waited on before every request. A
	// *ratelimit.Limiter implements it.
	Pacer  Pacer
	Logger *slog.Logger
}

// Pacer caps the outgoing request rate.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Client talks to one API deployment.
type Client struct {
	base    *url.URL
	key     string
	http    *http.Client
	timeout time.Duration
	pacer   Pacer
	logger  *slog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBaseURL, u.Scheme)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = duration.RequestStd
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: u, key: cfg.APIKey, http: hc, timeout: timeout, pacer: cfg.Pacer, logger: logger}, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.base.String() }

// HasKey reports whether requests carry a credential.
func (c *Client) HasKey() bool { return c.key != "" }

// Request describes a single API call.
type Request struct {
	Method string
	Path   string
	// Body is JSON-encoded when non-nil.
	Body   any
	Header http.Header
	// NoAuth omits the X-API-Key header.
	NoAuth bool
	// Timeout overrides the client's default deadline.
	Timeout time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Latency    time.Duration
}

// Excerpt returns the body truncated to 200 characters.
func (r *Response) Excerpt() string {
	return iohelper.Truncate(string(r.Body), defaults.BodyExcerptLen)
}

// Do sends req once. Any HTTP status is a successful Do; only failures to
// obtain a response are returned as errors (*TransportError).
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	op := req.Method + " " + req.Path

	// The pacer wait does not count against the request deadline.
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, &TransportError{Op: op, Kind: httpclient.Kind(err), Err: err}
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		data, err := jsonutil.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, c.base.String()+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if req.Body != nil {
		hreq.Header.Set("Content-Type", defaults.ContentTypeJSON)
	}
	hreq.Header.Set("Accept", defaults.ContentTypeJSON)
	if !req.NoAuth && c.key != "" {
		hreq.Header.Set(defaults.HeaderAPIKey, c.key)
	}

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		te := &TransportError{Op: op, Kind: httpclient.Kind(err), Err: err}
		c.logger.Debug("api request failed", "op", op, "kind", te.Kind, "error", err)
		return nil, te
	}
	data := iohelper.ReadBodyOrLog(resp.Body, c.logger)
	iohelper.DrainAndClose(resp.Body)
	latency := time.Since(start)

	c.logger.Debug("api request",
		"op", op,
		"status", resp.StatusCode,
		"latency_ms", latency.Milliseconds(),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Latency:    latency,
	}, nil
}

// Detect asks the API which platform a media URL belongs to.
func (c *Client) Detect(ctx context.Context, mediaURL string) (*Detection, error) {
	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   defaults.PathDetect,
		Body:   map[string]string{"url": mediaURL},
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp.StatusCode, resp.Body)
	}

	var raw map[string]any
	if err := jsonutil.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	d := &Detection{Raw: raw}
	d.Platform, _ = raw["platform"].(string)
	d.Title, _ = raw["title"].(string)
	return d, nil
}

// Extract submits an extraction job and returns its id.
func (c *Client) Extract(ctx context.Context, req ExtractionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   defaults.PathExtract,
		Body:   req,
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", newStatusError(resp.StatusCode, resp.Body)
	}

	var out struct {
		JobID string `json:"job_id"`
	}
	if err := jsonutil.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if out.JobID == "" {
		return "", ErrMissingJobID
	}
	return out.JobID, nil
}

// JobStatus fetches one snapshot of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, ErrEmptyJobID
	}
	resp, err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   defaults.PathJobs + url.PathEscape(jobID),
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp.StatusCode, resp.Body)
	}

	var w jobWire
	if err := jsonutil.Unmarshal(resp.Body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	id := w.ID
	if id == "" {
		id = jobID
	}
	return &Job{
		ID:       id,
		Status:   w.Status,
		Progress: clampProgress(w.Progress),
		Result:   w.Result,
		Error:    w.Error,
	}, nil
}

// JobURL is the status URL for a job, as shown to operators.
func (c *Client) JobURL(jobID string) string {
	return c.base.String() + defaults.PathJobs + url.PathEscape(jobID)
}

func clampProgress(p float64) int {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(math.Round(p))
}
