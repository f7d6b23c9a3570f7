// Package iohelper provides helper functions for reading HTTP response
// bodies with size limits and for producing bounded text excerpts.
package iohelper

import (
	"io"
	"log/slog"
	"unicode/utf8"
)

// Standard body size limits
const (
	// SmallMaxBodySize is for error pages and status responses (8KB)
	SmallMaxBodySize int64 = 8 * 1024

	// DefaultMaxBodySize is for API responses (1MB)
	DefaultMaxBodySize int64 = 1024 * 1024
)

// ReadBody reads from r up to maxSize bytes.
// If r is nil, it returns an empty slice and no error.
func ReadBody(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadBodyDefault reads from r with the default 1MB limit.
func ReadBodyDefault(r io.Reader) ([]byte, error) {
	return ReadBody(r, DefaultMaxBodySize)
}

// ReadBodyOrLog reads with ReadBodyDefault and logs any error.
// It returns whatever was read before the error.
func ReadBodyOrLog(r io.Reader, logger *slog.Logger) []byte {
	data, err := ReadBodyDefault(r)
	if err != nil && logger != nil {
		logger.Warn("body read failed", slog.String("error", err.Error()))
	}
	return data
}

// DrainAndClose reads any remaining data from r and closes it if it's a
// ReadCloser, so the connection can be reused. Always returns nil to
// allow use in defer.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	if rc, ok := r.(io.ReadCloser); ok {
		rc.Close()
	}
	return nil
}

// Truncate returns at most n characters of s. It never splits a
// multi-byte rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
