package mediaapi

import (
	"errors"
	"fmt"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/httpclient"
	"github.com/waftester/mediaprobe/pkg/iohelper"
)

// Sentinel errors.
var (
	ErrInvalidBaseURL = errors.New("mediaapi: invalid base URL")
	ErrInvalidRequest = errors.New("mediaapi: invalid extraction request")
	ErrEmptyJobID     = errors.New("mediaapi: empty job id")
	ErrMissingJobID   = errors.New("mediaapi: response carried no job_id")
	ErrDecode         = errors.New("mediaapi: undecodable response body")
)

// StatusError is a protocol error: the server answered with a status the
// operation does not accept.
type StatusError struct {
	StatusCode int
	// Body is the response body truncated to 200 characters.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Status %d", e.StatusCode)
}

func newStatusError(code int, body []byte) *StatusError {
	return &StatusError{
		StatusCode: code,
		Body:       iohelper.Truncate(string(body), defaults.BodyExcerptLen),
	}
}

// TransportError is a request that produced no HTTP response at all.
type TransportError struct {
	Op   string // "POST /proxy/detect"
	Kind string // see httpclient.Kind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{e.Err, httpclient.Classify(e.Err)}
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode extracts the HTTP status of a protocol error, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
