// Package store implements the per-store metadata database (spec.md
// §4.14): a small SQLite-backed key/value table plus a run-log of pipeline
// runs, scoped one database per store directory.
// Grounded on the teacher's internal/store.MetadataStore GetState/SetState
// key-value surface and its SaveIndexCheckpoint/LoadIndexCheckpoint
// run-history pattern, generalized here to log whole-pipeline runs
// instead of chunk-level checkpoints (checkpointing itself is superseded
// by the segment+manifest model, which is crash-consistent by
// construction).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"
)

// RunKind identifies which pipeline wrote a run-log row.
type RunKind string

const (
	RunSync       RunKind = "sync"
	RunCompaction RunKind = "compaction"
	RunGC         RunKind = "gc"
)

// RunRecord is one row of the run_log table.
type RunRecord struct {
	Kind       RunKind
	StartedAt  time.Time
	FinishedAt time.Time
	DurationMs int64
	Succeeded  bool
	Detail     string
}

// Metadata is the per-store metadata database.
type Metadata struct {
	db *sql.DB
}

// Open opens (creating if absent) the metadata database at
// <storeDir>/metadata.db, per spec.md §4.14.
func Open(storeDir string) (*Metadata, error) {
	path := filepath.Join(storeDir, "metadata.db")
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	detail      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS run_log_kind ON run_log(kind, finished_at DESC);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create metadata schema: %w", err)
	}
	return &Metadata{db: db}, nil
}

// GetState returns a previously set key's value.
func (m *Metadata) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %q: %w", key, err)
	}
	return value, true, nil
}

// SetState upserts one key/value pair.
func (m *Metadata) SetState(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// RecordRun appends one run-log entry. The daemon records each sync run
// and each completed background compaction (spec.md §4.4 step 10, §4.6
// step 5); no caller records a RunGC entry, and neither the health
// response nor `doctor` reads the run log.
func (m *Metadata) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO run_log (kind, started_at, finished_at, duration_ms, succeeded, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(r.Kind), r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(), r.DurationMs, boolToInt(r.Succeeded), r.Detail)
	if err != nil {
		return fmt.Errorf("record run %q: %w", r.Kind, err)
	}
	return nil
}

// LastRun returns the most recent run-log entry of the given kind, or nil
// if none has been recorded yet.
func (m *Metadata) LastRun(ctx context.Context, kind RunKind) (*RunRecord, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT started_at, finished_at, duration_ms, succeeded, detail
		 FROM run_log WHERE kind = ? ORDER BY finished_at DESC LIMIT 1`, string(kind))

	var startedMs, finishedMs, durationMs int64
	var succeeded int
	var detail string
	err := row.Scan(&startedMs, &finishedMs, &durationMs, &succeeded, &detail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run %q: %w", kind, err)
	}
	return &RunRecord{
		Kind:       kind,
		StartedAt:  time.UnixMilli(startedMs),
		FinishedAt: time.UnixMilli(finishedMs),
		DurationMs: durationMs,
		Succeeded:  succeeded != 0,
		Detail:     detail,
	}, nil
}

// Close releases the underlying database handle.
func (m *Metadata) Close() error {
	return m.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
