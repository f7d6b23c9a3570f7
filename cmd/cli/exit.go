package main

import (
	"fmt"
	"os"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/ui"
)

// printError writes a styled error line to stderr. Errors are printed even
// in silent mode.
func printError(format string, args ...any) {
	ui.Fprintf(os.Stderr, "%s %s\n", ui.FailStyle.Render(ui.Icon("❌", "[x]")), fmt.Sprintf(format, args...))
}

// exitWithError prints a formatted error message and exits with code 1.
func exitWithError(format string, args ...any) {
	printError(format, args...)
	os.Exit(defaults.ExitFailure)
}

// exitWithUsage prints an error message followed by a usage hint, then exits.
func exitWithUsage(msg, usage string) {
	printError("%s", msg)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage:", usage)
	os.Exit(defaults.ExitFailure)
}
