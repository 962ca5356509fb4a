package registry

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/shellmux/internal/config"
	"github.com/mattjoyce/shellmux/internal/shell"
)

func TestBuilderCandidates(t *testing.T) {
	tests := []struct {
		name string
		b    Builder
		want [][]string
	}{
		{
			name: "defaults drop mount master unless asked",
			b:    Builder{},
			want: [][]string{{"su"}, {"sh"}},
		},
		{
			name: "mount master kept",
			b:    Builder{MountMaster: true},
			want: [][]string{{"su", "--mount-master"}, {"su"}, {"sh"}},
		},
		{
			name: "non root skips su",
			b:    Builder{NonRoot: true, MountMaster: true},
			want: [][]string{{"sh"}},
		},
		{
			name: "explicit candidates with absolute su",
			b:    Builder{NonRoot: true, Candidates: [][]string{{"/system/bin/su"}, {}, {"/bin/sh", "-i"}}},
			want: [][]string{{"/bin/sh", "-i"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.b.candidates())
		})
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestBuilderFallsThroughFailedCandidates(t *testing.T) {
	requireShell(t)
	b := Builder{
		Candidates: [][]string{{"/nonexistent/shell"}, {"sh"}},
		Timeout:    5 * time.Second,
	}
	s, err := b.Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.True(t, s.IsAlive())
}

func TestBuilderRejectsNonRootSu(t *testing.T) {
	requireShell(t)
	if os.Geteuid() == 0 {
		t.Skip("running as root")
	}
	shPath, err := exec.LookPath("sh")
	require.NoError(t, err)
	if real, err := filepath.EvalSymlinks(shPath); err == nil && filepath.Base(real) == "busybox" {
		t.Skip("busybox dispatches on argv[0]")
	}
	// An "su" that is really an unprivileged sh.
	fakeSu := filepath.Join(t.TempDir(), "su")
	require.NoError(t, os.Symlink(shPath, fakeSu))

	b := Builder{Candidates: [][]string{{fakeSu}}, Timeout: 5 * time.Second}
	_, err = b.Build(context.Background())
	assert.ErrorIs(t, err, ErrNoShell)
	assert.ErrorIs(t, err, ErrNotRoot)

	b.Candidates = append(b.Candidates, []string{"sh"})
	s, err := b.Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.False(t, s.IsRoot())
}

func TestBuilderAllCandidatesFail(t *testing.T) {
	b := Builder{Candidates: [][]string{{"/nonexistent/a"}, {"/nonexistent/b"}}, Timeout: time.Second}
	_, err := b.Build(context.Background())
	assert.ErrorIs(t, err, ErrNoShell)
	assert.ErrorIs(t, err, shell.ErrCreationIO)
}

func TestBuilderRunsInitializers(t *testing.T) {
	requireShell(t)
	var order []string
	b := Builder{
		Candidates: [][]string{{"sh"}},
		Timeout:    5 * time.Second,
		Initializers: []Initializer{
			func(context.Context, *shell.Session) error {
				order = append(order, "first")
				return nil
			},
			CommandInitializer("GREETING=hi"),
			func(context.Context, *shell.Session) error {
				order = append(order, "last")
				return nil
			},
		},
	}
	s, err := b.Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, []string{"first", "last"}, order)
	assert.Equal(t, "hi", shell.FastCmd(s, "echo $GREETING"))
}

func TestBuilderInitializerFailureDiscardsSession(t *testing.T) {
	requireShell(t)
	var created *shell.Session
	boom := errors.New("boom")
	b := Builder{
		Candidates: [][]string{{"sh"}},
		Timeout:    5 * time.Second,
		Initializers: []Initializer{func(_ context.Context, s *shell.Session) error {
			created = s
			return boom
		}},
	}
	_, err := b.Build(context.Background())
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, created)
	assert.False(t, created.IsAlive())
}

func TestCommandInitializerFailure(t *testing.T) {
	requireShell(t)
	b := Builder{Candidates: [][]string{{"sh"}}, Timeout: 5 * time.Second, Initializers: []Initializer{CommandInitializer("false")}}
	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with 1")
}

func TestFromConfig(t *testing.T) {
	requireShell(t)
	cfg := &config.Config{Slots: map[string]config.SlotConfig{
		"main": {
			Candidates: [][]string{{"/nonexistent/su"}},
			Timeout:    time.Second,
			Fallback:   "plain",
		},
		"plain": {
			Candidates: [][]string{{"sh"}},
			Timeout:    5 * time.Second,
			NonRoot:    true,
			Init:       []string{"MARKER=from-init"},
		},
	}}

	r, err := FromConfig(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	res, err := r.NewJob("main").Add("echo $MARKER").Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"from-init"}, res.Out())
	assert.Nil(t, r.Cached("main"))
	assert.NotNil(t, r.Cached("plain"))
}
