package config

import "errors"

// Sentinel errors for configuration failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrInvalidConfig indicates a flag or environment value failed
	// validation (malformed URL, out-of-range number, unknown format).
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingRequired indicates a required value was not provided,
	// such as -job for the poll command.
	ErrMissingRequired = errors.New("config: missing required field")
)
