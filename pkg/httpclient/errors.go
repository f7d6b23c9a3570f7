package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Sentinel errors for transport failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrProxyConnect indicates the client failed to connect through
	// the configured proxy (SOCKS4/5, HTTP).
	ErrProxyConnect = errors.New("httpclient: proxy connection failed")

	// ErrDNS indicates a DNS resolution failure for the target host.
	ErrDNS = errors.New("httpclient: DNS resolution failed")

	// ErrTLS indicates a TLS handshake or certificate verification failure.
	ErrTLS = errors.New("httpclient: TLS handshake failed")

	// ErrTimeout indicates the request deadline expired.
	ErrTimeout = errors.New("httpclient: request timed out")

	// ErrConnRefused indicates nothing is listening on the target port.
	ErrConnRefused = errors.New("httpclient: connection refused")

	// ErrTransport is the catch-all for other network failures.
	ErrTransport = errors.New("httpclient: transport error")
)

// Classify maps a transport error from http.Client.Do onto one of the
// sentinel errors above. It returns nil for a nil error.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProxyConnect) {
		return ErrProxyConnect
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrDNS
	}

	var certErr *tls.CertificateVerificationError
	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	var recErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) ||
		errors.As(err, &authErr) || errors.As(err, &recErr) {
		return ErrTLS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnRefused
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	msg := err.Error()
	if strings.Contains(msg, "proxyconnect") || strings.Contains(msg, "socks") {
		return ErrProxyConnect
	}

	return ErrTransport
}

// Kind returns a short label for a transport error, used in reports.
func Kind(err error) string {
	switch Classify(err) {
	case nil:
		return ""
	case ErrDNS:
		return "dns"
	case ErrTLS:
		return "tls"
	case ErrConnRefused:
		return "connection_refused"
	case ErrTimeout:
		return "timeout"
	case ErrProxyConnect:
		return "proxy"
	default:
		return "transport"
	}
}
