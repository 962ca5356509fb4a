package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/shellmux/internal/config"
	"github.com/mattjoyce/shellmux/internal/journal"
	"github.com/mattjoyce/shellmux/internal/storage"
)

const configEnv = "SHELLMUX_CONFIG"

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// loadConfig loads path, falling back to $SHELLMUX_CONFIG and then to the
// built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

// openJournal opens the job journal at cfg.State.Path. The returned close
// function is never nil.
func openJournal(ctx context.Context, cfg *config.Config) (*journal.Store, func(), error) {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open journal %s: %w", cfg.State.Path, err)
	}
	return journal.New(db), func() { _ = db.Close() }, nil
}
