package defaults

// Exit codes for the CLI.
const (
	ExitSuccess     = 0   // Run finished, no probe flagged
	ExitFailure     = 1   // Fatal error, bad configuration or interrupted run
	ExitVulnerable  = 2   // At least one probe reported vulnerable
	ExitInterrupted = 130 // Second SIGINT/SIGTERM during shutdown
)
