package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/shellmux/internal/registry"
)

func runHistory(args []string) int {
	fs := newFlagSet("history")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	slot := fs.String("slot", "", "Only show jobs served by this slot")
	limit := fs.Int("limit", 20, "Maximum number of jobs to show")
	jsonOut := fs.Bool("json", false, "Output records as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	store, closeJournal, err := openJournal(ctx, cfg)
	defer closeJournal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	recs, err := store.Recent(ctx, *slot, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read journal: %v\n", err)
		return 1
	}

	if *jsonOut {
		if recs == nil {
			recs = []registry.Record{}
		}
		data, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(recs) == 0 {
		fmt.Println("No jobs recorded.")
		return 0
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSLOT\tCODE\tDURATION\tRETRIED\tINPUT")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%t\t%s\n",
			rec.StartedAt.Local().Format(time.DateTime),
			rec.Slot,
			rec.Code,
			rec.Duration.Round(time.Millisecond),
			rec.Retried,
			summarize(rec.Input, 60),
		)
	}
	_ = tw.Flush()
	return 0
}

func summarize(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", "; ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
