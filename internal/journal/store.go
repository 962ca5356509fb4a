// Package journal persists finished slot jobs to SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/shellmux/internal/registry"
)

// ErrNotFound is returned by Get for an unknown job ID.
var ErrNotFound = errors.New("job not found")

// Fixed-width so that TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store records jobs in the job_journal table. It implements
// registry.Recorder.
type Store struct {
	db *sql.DB
}

// New returns a Store over db. The job_journal table must already exist;
// storage.OpenSQLite creates it.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ registry.Recorder = (*Store)(nil)

// RecordJob inserts rec. Recording the same ID twice replaces the row.
func (s *Store) RecordJob(ctx context.Context, rec registry.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is empty")
	}
	out, err := encodeLines(rec.Out)
	if err != nil {
		return fmt.Errorf("encode stdout: %w", err)
	}
	errLines, err := encodeLines(rec.Err)
	if err != nil {
		return fmt.Errorf("encode stderr: %w", err)
	}

	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}

	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO job_journal(
  id, slot, input, code, out, err, retried, error, started_at, duration_ms
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, rec.ID, rec.Slot, rec.Input, rec.Code, out, errLines, boolToInt(rec.Retried), errText,
		rec.StartedAt.UTC().Format(timeLayout), rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. An empty slot matches
// every slot.
func (s *Store) Recent(ctx context.Context, slot string, limit int) ([]registry.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, slot, input, code, out, err, retried, error, started_at, duration_ms
FROM job_journal
WHERE (? = '' OR slot = ?)
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, slot, slot, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []registry.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id string) (registry.Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, slot, input, code, out, err, retried, error, started_at, duration_ms
FROM job_journal
WHERE id = ?;
`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Prune deletes records that started before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_journal WHERE started_at < ?;`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (registry.Record, error) {
	var (
		rec        registry.Record
		out, errs  string
		retried    int
		errText    sql.NullString
		startedAtS string
		durationMS int64
	)
	err := row.Scan(&rec.ID, &rec.Slot, &rec.Input, &rec.Code, &out, &errs, &retried, &errText, &startedAtS, &durationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan journal entry: %w", err)
	}

	if rec.Out, err = decodeLines(out); err != nil {
		return rec, fmt.Errorf("decode stdout of %s: %w", rec.ID, err)
	}
	if rec.Err, err = decodeLines(errs); err != nil {
		return rec, fmt.Errorf("decode stderr of %s: %w", rec.ID, err)
	}
	rec.Retried = retried != 0
	if errText.Valid {
		rec.Error = errText.String
	}
	if t, err := time.Parse(timeLayout, startedAtS); err == nil {
		rec.StartedAt = t
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}

func encodeLines(lines []string) (string, error) {
	if lines == nil {
		lines = []string{}
	}
	b, err := json.Marshal(lines)
	return string(b), err
}

func decodeLines(s string) ([]string, error) {
	lines := []string{}
	if s == "" {
		return lines, nil
	}
	err := json.Unmarshal([]byte(s), &lines)
	return lines, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
