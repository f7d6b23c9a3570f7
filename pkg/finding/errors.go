package finding

import "errors"

// Sentinel errors for common probe failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrTimeout indicates the API did not respond within the
	// configured deadline.
	ErrTimeout = errors.New("finding: timeout")

	// ErrTargetUnreachable indicates the API host could not be
	// reached (DNS failure, connection refused, etc.).
	ErrTargetUnreachable = errors.New("finding: target unreachable")

	// ErrNoPayloads indicates a probe was configured with an empty
	// payload list.
	ErrNoPayloads = errors.New("finding: no payloads available")

	// ErrProbePanic indicates a probe panicked; the suite recovered it.
	ErrProbePanic = errors.New("finding: probe panicked")
)
