// Package cli holds process-level helpers shared by the command-line
// entry points.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/waftester/mediaprobe/pkg/defaults"
)

// ErrInterrupted is the context cause after SIGINT or SIGTERM.
var ErrInterrupted = errors.New("interrupted by signal")

// SignalContext returns a context cancelled on SIGINT/SIGTERM, with
// context.Cause reporting ErrInterrupted and the signal name. If a second
// signal arrives during gracePeriod, the process exits with
// defaults.ExitInterrupted.
//
// Usage:
//
//	ctx, cancel := cli.SignalContext(context.Background(), duration.ShutdownGrace, os.Stderr)
//	defer cancel()
func SignalContext(parent context.Context, gracePeriod time.Duration, out io.Writer) (context.Context, context.CancelFunc) {
	return signalContextWithNotifier(parent, gracePeriod, out, nil, nil)
}

// signalContextWithNotifier is the internal implementation for testing.
// sigChan, if non-nil, overrides the real signal channel.
// exitFn, if non-nil, overrides os.Exit for testing.
func signalContextWithNotifier(
	parent context.Context,
	gracePeriod time.Duration,
	out io.Writer,
	sigChan chan os.Signal,
	exitFn func(int),
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	ownChannel := sigChan == nil
	if ownChannel {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}
	if exitFn == nil {
		exitFn = os.Exit
	}
	if out == nil {
		out = io.Discard
	}

	go func() {
		defer func() {
			if ownChannel {
				signal.Stop(sigChan)
			}
		}()
		select {
		case sig := <-sigChan:
			fmt.Fprintf(out, "\n%s received, finishing the current step (again to force quit)...\n", sig)
			cancel(fmt.Errorf("%w: %s", ErrInterrupted, sig))

			select {
			case <-sigChan:
				exitFn(defaults.ExitInterrupted)
			case <-time.After(gracePeriod):
			}
		case <-ctx.Done():
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}
