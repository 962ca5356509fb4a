package registry

import (
	"log/slog"
	"sort"

	"github.com/mattjoyce/shellmux/internal/config"
)

// FromConfig builds a Registry with one slot per configured slot.
func FromConfig(cfg *config.Config, hub Publisher, logger *slog.Logger) (*Registry, error) {
	r := New(hub, logger)

	names := make([]string, 0, len(cfg.Slots))
	for name := range cfg.Slots {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sc := cfg.Slots[name]
		b := BuilderFromConfig(sc, r.logger.With("slot", name))
		if err := r.Register(name, SlotConfig{
			Factory:     b.Factory(),
			Fallback:    sc.Fallback,
			RequireRoot: sc.RequireRoot,
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// BuilderFromConfig maps a slot's configuration onto a Builder.
func BuilderFromConfig(sc config.SlotConfig, logger *slog.Logger) Builder {
	b := Builder{
		Candidates:     sc.Candidates,
		Timeout:        sc.Timeout,
		RedirectStderr: sc.RedirectStderr,
		NonRoot:        sc.NonRoot,
		MountMaster:    sc.MountMaster,
		Logger:         logger,
	}
	if len(sc.Init) > 0 {
		b.Initializers = append(b.Initializers, CommandInitializer(sc.Init...))
	}
	return b
}
