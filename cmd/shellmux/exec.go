package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattjoyce/shellmux/internal/log"
	"github.com/mattjoyce/shellmux/internal/registry"
	"github.com/mattjoyce/shellmux/internal/shell"
)

func runExec(args []string) int {
	fs := newFlagSet("exec")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	slot := fs.String("slot", "main", "Slot to run on")
	stdin := fs.Bool("stdin", false, "Append standard input to the job")
	logLevel := fs.String("log-level", "warn", "Log level for this run")
	noJournal := fs.Bool("no-journal", false, "Do not record the job in the journal")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	command := strings.Join(fs.Args(), " ")
	if command == "" && !*stdin {
		fmt.Fprintln(os.Stderr, "Usage: shellmux exec [--slot s] [--stdin] -- cmd...")
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(*logLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("exec")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := registry.FromConfig(cfg, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure slots: %v\n", err)
		return 1
	}
	defer reg.Close()

	if !*noJournal {
		store, closeJournal, err := openJournal(ctx, cfg)
		if err != nil {
			logger.Warn("job will not be journaled", "error", err)
		} else {
			defer closeJournal()
			reg.AddRecorder(store)
		}
	}

	var out, errLines []string
	job := reg.NewJob(*slot).ToStreams(&out, &errLines)
	if command != "" {
		job.Add(command)
	}
	if *stdin {
		job.AddReader(os.Stdin)
	}

	res, err := job.Exec(ctx)
	for _, l := range res.Out() {
		fmt.Fprintln(os.Stdout, l)
	}
	for _, l := range res.Err() {
		fmt.Fprintln(os.Stderr, l)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "shellmux: %v\n", err)
		return exitNotExecuted
	}
	return exitCode(res)
}

func exitCode(res shell.Result) int {
	if res.Died() {
		fmt.Fprintln(os.Stderr, "shellmux: shell died during job")
	}
	if !res.Executed() || res.Code() < 0 {
		return exitNotExecuted
	}
	return res.Code()
}
