package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/harness"
	"github.com/waftester/mediaprobe/pkg/ui"
)

func printUsage() {
	ui.PrintBanner(os.Stderr)

	fmt.Println(ui.SectionStyle.Render("COMMANDS"))
	fmt.Println()
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("run     "), "Health preflight, security probes and platform scenarios (default)")
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("probe   "), "Security probes only: auth, CORS, rate limiting, input validation")
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("scenario"), "Detect, extract and poll for each fixture platform")
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("poll    "), "Poll one existing job with the full budget (-job <id>)")
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("history "), "List recorded runs for the target (-history <db>)")
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("version "), "Print the version")
	fmt.Println()

	fmt.Println(ui.SectionStyle.Render("EXAMPLES"))
	fmt.Println()
	fmt.Printf("    %s\n", ui.ConfigValueStyle.Render("mediaprobe -u http://localhost:8080 -key $API_KEY"))
	fmt.Printf("    %s\n", ui.ConfigValueStyle.Render("mediaprobe probe -u https://api.example.com -format junit -o probes.xml"))
	fmt.Printf("    %s\n", ui.ConfigValueStyle.Render("mediaprobe poll -job 3f2a9c -u https://api.example.com"))
	fmt.Printf("    %s\n", ui.ConfigValueStyle.Render("mediaprobe history -history runs.db -n 5"))
	fmt.Println()

	fmt.Println(ui.SectionStyle.Render("EXIT CODES"))
	fmt.Println()
	fmt.Printf("    %d  no probe flagged a vulnerability\n", defaults.ExitSuccess)
	fmt.Printf("    %d  fatal error, bad configuration or interrupted run\n", defaults.ExitFailure)
	fmt.Printf("    %d  at least one probe flagged a vulnerability\n", defaults.ExitVulnerable)
	fmt.Println()
	fmt.Println("  Run 'mediaprobe <command> -h' for the flags of a command.")
}

// splitCommand separates the subcommand from its flags. A leading flag
// means the default run command.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "run", nil
	}
	switch args[0] {
	case "-h", "--help", "-help":
		return "help", args[1:]
	case "-version", "--version":
		return "version", args[1:]
	}
	if strings.HasPrefix(args[0], "-") {
		return "run", args
	}
	return args[0], args[1:]
}

func main() {
	command, args := splitCommand(os.Args[1:])

	switch command {
	case "run", "probe", "scenario", "poll":
		os.Exit(runSession(harness.Mode(command), args))
	case "history":
		os.Exit(runHistory(args))
	case "help":
		printUsage()
		os.Exit(defaults.ExitSuccess)
	case "version":
		fmt.Println(defaults.UserAgent(""))
		os.Exit(defaults.ExitSuccess)
	default:
		exitWithUsage(fmt.Sprintf("unknown command %q", command), "mediaprobe [run|probe|scenario|poll|history|version] [flags]")
	}
}
