package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"

	"github.com/BrettMayson/arma-bench/internal/store"
)

// runHistory prints the most recent job records.
func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to armabench.yaml")
	envPath := fs.String("env", ".env", "path to a .env file")
	n := fs.Int("n", 20, "number of jobs to show")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	st, err := store.New(cfg.DBPath, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return 1
	}
	defer st.Close()

	jobs, err := st.ListJobs(*n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list jobs: %v\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tBRANCH\tSTATUS\tSTARTED\tTOOK\tERROR")
	now := time.Now()
	for _, j := range jobs {
		took := "-"
		if j.DurationMs > 0 {
			took = (time.Duration(j.DurationMs) * time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s ago\t%s\t%s\n",
			j.ID, j.Kind, j.Branch, j.Status,
			units.HumanDuration(now.Sub(j.StartedAt)), took, j.Error)
	}
	tw.Flush()
	return 0
}
