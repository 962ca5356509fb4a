package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/shellmux/internal/api"
	"github.com/mattjoyce/shellmux/internal/config"
	"github.com/mattjoyce/shellmux/internal/events"
	"github.com/mattjoyce/shellmux/internal/journal"
	"github.com/mattjoyce/shellmux/internal/lock"
	"github.com/mattjoyce/shellmux/internal/log"
	"github.com/mattjoyce/shellmux/internal/registry"
	"github.com/mattjoyce/shellmux/internal/shell"
	"github.com/mattjoyce/shellmux/internal/telemetry"
)

const maintenanceInterval = time.Hour

func runServe(args []string) int {
	fs := newFlagSet("serve")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	warm := fs.String("warm", "", "Create this slot's shell at startup")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("shellmux starting", "version", version, "config", cfg.SourcePath, "fingerprint", cfg.Fingerprint)

	pidLock, err := lock.AcquirePIDLock(cfg.Service.PIDFile)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Service.PIDFile, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeJournal, err := openJournal(ctx, cfg)
	if err != nil {
		logger.Error("failed to open journal", "error", err)
		return 1
	}
	defer closeJournal()
	logger.Info("journal opened", "path", cfg.State.Path)

	hub := events.NewHub(256)
	reg, err := registry.FromConfig(cfg, hub, log.WithComponent("registry"))
	if err != nil {
		logger.Error("failed to configure slots", "error", err)
		return 1
	}
	reg.AddRecorder(store)

	shutdownTelemetry := func(context.Context) error { return nil }
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err = telemetry.Setup(ctx,
			telemetry.WithVersion(version),
			telemetry.WithInstanceID(fmt.Sprintf("%s-%d", cfg.Service.Name, os.Getpid())),
			telemetry.WithInterval(cfg.Telemetry.MetricInterval),
		)
		if err != nil {
			logger.Error("failed to set up telemetry", "error", err)
			return 1
		}
		metrics, err := telemetry.NewMetrics(nil)
		if err != nil {
			logger.Error("failed to create job metrics", "error", err)
			return 1
		}
		reg.AddRecorder(metrics)
		logger.Info("telemetry enabled", "metric_interval", cfg.Telemetry.MetricInterval)
	}

	if *warm != "" {
		reg.GetAsync(*warm, func(_ *shell.Session, err error) {
			if err != nil {
				logger.Warn("warm-up failed", "slot", *warm, "error", err)
			}
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.API.Enabled {
		srv := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
		}, reg, store, hub, log.WithComponent("api"))
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
	} else {
		logger.Info("API disabled; serving slots to in-process callers only")
	}
	g.Go(func() error {
		maintain(gctx, cfg, store, logger)
		return nil
	})

	logger.Info("shellmux running (press Ctrl+C to stop)")
	runErr := g.Wait()

	logger.Info("shutting down")
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	if err := reg.Close(); err != nil {
		logger.Warn("closing shells", "error", err)
	}
	if err := shutdownTelemetry(closeCtx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}

	if runErr != nil {
		logger.Error("component failed", "error", runErr)
		return 1
	}
	logger.Info("shellmux stopped")
	return 0
}

// maintain prunes the journal past its retention and warns when the config
// file changes underneath the running server.
func maintain(ctx context.Context, cfg *config.Config, store *journal.Store, logger *slog.Logger) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		prune(ctx, cfg, store, logger)
		if cfg.SourcePath != "" {
			if err := config.VerifyFingerprint(cfg); err != nil {
				logger.Warn("config changed on disk; restart to apply", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func prune(ctx context.Context, cfg *config.Config, store *journal.Store, logger *slog.Logger) {
	if cfg.State.Retention <= 0 {
		return
	}
	n, err := store.Prune(ctx, time.Now().Add(-cfg.State.Retention))
	switch {
	case err != nil && ctx.Err() == nil:
		logger.Warn("journal prune failed", "error", err)
	case n > 0:
		logger.Info("journal pruned", "removed", n, "retention", cfg.State.Retention)
	}
}
