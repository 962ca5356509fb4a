package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/shellmux/internal/registry"
	"github.com/mattjoyce/shellmux/internal/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestRecordAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)

	rec := registry.Record{
		ID:        "job-1",
		Slot:      "main",
		Input:     "echo hi",
		Code:      0,
		Out:       []string{"hi", ""},
		Err:       nil,
		Retried:   true,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}
	require.NoError(t, s.RecordJob(ctx, rec))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "main", got.Slot)
	assert.Equal(t, "echo hi", got.Input)
	assert.Equal(t, []string{"hi", ""}, got.Out)
	assert.Equal(t, []string{}, got.Err)
	assert.True(t, got.Retried)
	assert.Empty(t, got.Error)
	assert.True(t, started.Equal(got.StartedAt), "started_at = %v", got.StartedAt)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordRejectsEmptyID(t *testing.T) {
	s := openStore(t)
	require.Error(t, s.RecordJob(context.Background(), registry.Record{Slot: "main"}))
}

func TestRecentOrderAndFilter(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, slot := range []string{"main", "plain", "main", "main"} {
		require.NoError(t, s.RecordJob(ctx, registry.Record{
			ID:        string(rune('a' + i)),
			Slot:      slot,
			Input:     "true",
			Code:      -1,
			Error:     "shell died",
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID)
	assert.Equal(t, "a", all[3].ID)
	assert.Equal(t, "shell died", all[0].Error)
	assert.Equal(t, -1, all[0].Code)

	main, err := s.Recent(ctx, "main", 2)
	require.NoError(t, err)
	require.Len(t, main, 2)
	assert.Equal(t, "d", main[0].ID)
	assert.Equal(t, "c", main[1].ID)
}

func TestPrune(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.RecordJob(ctx, registry.Record{ID: "old", Slot: "main", StartedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.RecordJob(ctx, registry.Record{ID: "new", Slot: "main", StartedAt: now}))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.Get(ctx, "old")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "new")
	require.NoError(t, err)
}
