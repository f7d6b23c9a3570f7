package httpclient

import "net/http"

// middlewareTransport stamps a fixed User-Agent on outgoing requests.
// Credentials are deliberately not injected here: the auth probe must be
// able to send a request without them, so mediaapi sets X-API-Key per call.
type middlewareTransport struct {
	base      http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (m *middlewareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return m.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", m.userAgent)
	return m.base.RoundTrip(r)
}
