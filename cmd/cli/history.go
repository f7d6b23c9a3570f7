package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/history"
	"github.com/waftester/mediaprobe/pkg/ui"
)

// runHistory lists recorded runs for the target, newest first, and
// compares the two most recent.
func runHistory(args []string) int {
	cfg := parseOrExit("history", args)
	if cfg.HistoryPath == "" {
		exitWithUsage("history needs -history <db>", "mediaprobe history -history runs.db [-u url] [-n 10]")
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		exitWithError("%v", err)
	}
	defer store.Close()

	records, err := store.List(context.Background(), cfg.BaseURL, cfg.HistoryLimit)
	if err != nil {
		printError("%v", err)
		return defaults.ExitFailure
	}

	p := ui.NewPrinter(os.Stdout)
	p.Section("Run history for " + cfg.BaseURL)
	if len(records) == 0 {
		p.Note("no recorded runs")
		return defaults.ExitSuccess
	}
	printRecords(p, records)

	if len(records) > 1 {
		c := history.Compare(&records[1], &records[0])
		switch {
		case c.Regressed:
			p.Fail("latest run regressed: %d more vulnerable, newly vulnerable %v", c.VulnerableDelta, c.NewlyVulnerable)
		case len(c.Fixed) > 0:
			p.Pass("latest run fixed %v", c.Fixed)
		default:
			p.Pass("no regression in the latest run")
		}
	}
	return defaults.ExitSuccess
}

func printRecords(p *ui.Printer, records []history.Record) {
	if ui.IsSilent() {
		return
	}
	tw := tabwriter.NewWriter(p.Writer(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tEXIT\tVULNERABLE\tERRORED\tWORST\tSCENARIOS\tID")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d\t%d/%d\t%d\t%s\t%d/%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.ExitCode,
			r.Probes.Vulnerable, r.Probes.Total,
			r.Probes.Errored,
			r.Probes.Worst,
			r.ScenariosSucceeded, r.ScenariosTotal,
			r.ID,
		)
	}
	tw.Flush()
}
