package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mattjoyce/shellmux/internal/shell"
)

// ErrNoShell is returned when every candidate command failed.
var ErrNoShell = errors.New("no usable shell")

// Initializer prepares a freshly created session. A failure discards it.
type Initializer func(ctx context.Context, s *shell.Session) error

// DefaultCandidates tries a mount-master root shell, then plain root, then sh.
func DefaultCandidates() [][]string {
	return [][]string{
		{"su", "--mount-master"},
		{"su"},
		{"sh"},
	}
}

// Builder creates sessions by trying candidate commands in order.
type Builder struct {
	Candidates     [][]string
	Timeout        time.Duration
	RedirectStderr bool
	// NonRoot skips su candidates.
	NonRoot bool
	// MountMaster keeps candidates asking for --mount-master.
	MountMaster  bool
	Initializers []Initializer
	Logger       *slog.Logger
}

// Factory adapts the builder for Registry.Register.
func (b Builder) Factory() Factory {
	return b.Build
}

// Build returns the first candidate session that passes its handshake and
// every initializer. A su candidate that does not come up as root is
// rejected.
func (b Builder) Build(ctx context.Context) (*shell.Session, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	candidates := b.candidates()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidate commands", ErrNoShell)
	}

	var errs []error
	for _, argv := range candidates {
		cmd := strings.Join(argv, " ")
		s, err := shell.New(ctx, shell.Options{
			Command:        argv,
			Timeout:        b.Timeout,
			RedirectStderr: b.RedirectStderr,
			Logger:         logger,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cmd, err))
			continue
		}
		if isSu(argv) && !s.IsRoot() {
			_ = s.Close()
			errs = append(errs, fmt.Errorf("%s: %w", cmd, ErrNotRoot))
			continue
		}

		for _, initialize := range b.Initializers {
			if err := initialize(ctx, s); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("initialize %s: %w", cmd, err)
			}
		}
		logger.Debug("shell candidate accepted", "command", cmd, "status", s.Status().String())
		return s, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoShell, errors.Join(errs...))
}

func (b Builder) candidates() [][]string {
	src := b.Candidates
	if len(src) == 0 {
		src = DefaultCandidates()
	}
	out := make([][]string, 0, len(src))
	for _, argv := range src {
		if len(argv) == 0 {
			continue
		}
		if b.NonRoot && isSu(argv) {
			continue
		}
		if !b.MountMaster && slices.Contains(argv, "--mount-master") {
			continue
		}
		out = append(out, argv)
	}
	return out
}

func isSu(argv []string) bool {
	return filepath.Base(argv[0]) == "su"
}

// CommandInitializer runs cmds in the new session and requires exit status 0.
func CommandInitializer(cmds ...string) Initializer {
	return func(_ context.Context, s *shell.Session) error {
		var errOut []string
		res := s.NewJob().Add(cmds...).ToStreams(nil, &errOut).Exec()
		if !res.IsSuccess() {
			return fmt.Errorf("init commands exited with %d: %s", res.Code(), strings.Join(errOut, "; "))
		}
		return nil
	}
}
