// Package journal keeps an SQLite audit log of how tracked jobs ended.
// The notification store itself stays in memory; the journal only records
// terminal outcomes for the history command.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Entry is one terminal job outcome.
type Entry struct {
	ID         int64
	JobID      string
	JobType    string
	Outcome    string
	Message    string
	Polls      int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the job was tracked.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

type row struct {
	ID         int64  `db:"id"`
	JobID      string `db:"job_id"`
	JobType    string `db:"job_type"`
	Outcome    string `db:"outcome"`
	Message    string `db:"message"`
	Polls      int    `db:"polls"`
	StartedAt  int64  `db:"started_at"`
	FinishedAt int64  `db:"finished_at"`
}

func (r row) entry() Entry {
	return Entry{
		ID:         r.ID,
		JobID:      r.JobID,
		JobType:    r.JobType,
		Outcome:    r.Outcome,
		Message:    r.Message,
		Polls:      r.Polls,
		StartedAt:  time.UnixMilli(r.StartedAt).UTC(),
		FinishedAt: time.UnixMilli(r.FinishedAt).UTC(),
	}
}

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS job_outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id      TEXT    NOT NULL,
	job_type    TEXT    NOT NULL DEFAULT '',
	outcome     TEXT    NOT NULL,
	message     TEXT    NOT NULL DEFAULT '',
	polls       INTEGER NOT NULL DEFAULT 0,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_outcomes_finished_at ON job_outcomes(finished_at);
CREATE INDEX IF NOT EXISTS idx_job_outcomes_job_type ON job_outcomes(job_type);
INSERT INTO schema_version (version) VALUES (1);`,
	},
}

// Journal is the SQLite-backed outcome log.
type Journal struct {
	db *sqlx.DB
}

// Open opens (or creates) the journal at path and applies migrations.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	current := 0
	var tables int
	if err := j.db.Get(&tables, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'"); err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := j.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := j.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an entry and returns its id.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if e.JobID == "" {
		return 0, fmt.Errorf("recording outcome: job id is required")
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	res, err := j.db.NamedExecContext(ctx, `
		INSERT INTO job_outcomes (job_id, job_type, outcome, message, polls, started_at, finished_at)
		VALUES (:job_id, :job_type, :outcome, :message, :polls, :started_at, :finished_at)`,
		row{
			JobID:      e.JobID,
			JobType:    e.JobType,
			Outcome:    e.Outcome,
			Message:    e.Message,
			Polls:      e.Polls,
			StartedAt:  e.StartedAt.UnixMilli(),
			FinishedAt: e.FinishedAt.UnixMilli(),
		})
	if err != nil {
		return 0, fmt.Errorf("recording outcome: %w", err)
	}
	return res.LastInsertId()
}

// ListOptions filters List.
type ListOptions struct {
	Limit   int
	JobType string
}

// List returns entries, newest first.
func (j *Journal) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	query := "SELECT id, job_id, job_type, outcome, message, polls, started_at, finished_at FROM job_outcomes"
	var args []interface{}
	if opts.JobType != "" {
		query += " WHERE job_type = ?"
		args = append(args, opts.JobType)
	}
	query += " ORDER BY finished_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var rows []row
	if err := j.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing outcomes: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

// Prune deletes entries that finished before cutoff and returns how many went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, "DELETE FROM job_outcomes WHERE finished_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning outcomes: %w", err)
	}
	return res.RowsAffected()
}
