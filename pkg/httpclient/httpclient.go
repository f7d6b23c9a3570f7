// Package httpclient builds the single pooled *http.Client shared by the
// API client, the job poller and every security probe.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/waftester/mediaprobe/pkg/duration"
)

// Config holds HTTP client configuration options.
type Config struct {
	// Timeout is an upper bound for a whole request. Per-request deadlines
	// set by callers through the request context are normally shorter.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate checks (staging hosts).
	InsecureSkipVerify bool

	// Proxy is an optional http, https, socks4, socks5 or socks5h proxy URL.
	Proxy string

	// UserAgent is sent on every request when non-empty.
	UserAgent string

	MaxIdleConns        int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
}

// DefaultConfig returns defaults for a single-threaded diagnostic run.
func DefaultConfig() Config {
	return Config{
		Timeout:             duration.HTTPMax,
		MaxIdleConns:        10,
		MaxConnsPerHost:     4,
		IdleConnTimeout:     duration.IdleConnTimeout,
		DialTimeout:         duration.DialTimeout,
		TLSHandshakeTimeout: duration.TLSHandshake,
	}
}

// New creates an HTTP client with the given configuration.
//
// The client never follows redirects: a probe must see the status the API
// actually returned. It also never retries; every request is sent once.
func New(cfg Config) (*http.Client, error) {
	def := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.TLSHandshakeTimeout == 0 {
		cfg.TLSHandshakeTimeout = def.TLSHandshakeTimeout
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: duration.KeepAlive,
	}

	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		DialContext:           dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	pc, err := ParseProxyURL(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	if pc != nil {
		if pc.IsSOCKS {
			d, err := CreateSOCKSDialer(pc, cfg.DialTimeout)
			if err != nil {
				return nil, err
			}
			transport.DialContext = d.DialContext
		} else {
			transport.Proxy = http.ProxyURL(pc.URL)
		}
	}

	var rt http.RoundTripper = transport
	if cfg.UserAgent != "" {
		rt = &middlewareTransport{base: transport, userAgent: cfg.UserAgent}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}
