package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/shellmux/internal/events"
	"github.com/mattjoyce/shellmux/internal/log"
	"github.com/mattjoyce/shellmux/internal/registry"
	"github.com/mattjoyce/shellmux/internal/tui"
)

func runConsole(args []string) int {
	fs := newFlagSet("console")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	slot := fs.String("slot", "main", "Slot to run commands on")
	apiURL := fs.String("url", "", "Drive a running server at this URL instead of local shells")
	apiKey := fs.String("api-key", os.Getenv("SHELLMUX_API_KEY"), "API bearer token for --url")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		runner tui.Runner
		evs    <-chan events.Event
	)
	if *apiURL != "" {
		if *apiKey == "" {
			fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or SHELLMUX_API_KEY env var.")
			return 1
		}
		remote := tui.RemoteRunner{BaseURL: *apiURL, APIKey: *apiKey}
		ch := make(chan events.Event, 100)
		go func() {
			_ = remote.StreamEvents(ctx, ch)
		}()
		runner, evs = remote, ch
	} else {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		// The TUI owns the terminal; keep logs quiet.
		log.Setup("error", cfg.Service.LogFormat)

		hub := events.NewHub(100)
		reg, err := registry.FromConfig(cfg, hub, log.WithComponent("registry"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to configure slots: %v\n", err)
			return 1
		}
		defer reg.Close()

		if store, closeJournal, err := openJournal(ctx, cfg); err == nil {
			defer closeJournal()
			reg.AddRecorder(store)
		}

		ch, unsubscribe := hub.Subscribe()
		defer unsubscribe()
		runner, evs = tui.LocalRunner{Registry: reg}, ch
	}

	p := tea.NewProgram(tui.NewConsole(runner, *slot, evs), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
