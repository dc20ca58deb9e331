// Package journal records every pack ingest run in a SQLite database so
// operators can see what each pack was built from and when. The cache
// itself lives in memory; the journal is an audit trail, not a source of
// truth, and is never read back to rebuild packs.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Run is one ingest run for one pack.
type Run struct {
	// ID is assigned by the journal on Record.
	ID int64 `json:"id"`
	// PackKey identifies the pack.
	PackKey string `json:"packKey"`
	// Phase is "sync" or "enrich".
	Phase string `json:"phase"`
	// Documents is the number of documents upserted.
	Documents int `json:"documents"`
	// URLs are the pages ingested by this run.
	URLs []string `json:"urls"`
	// Error holds the joined ingest error, empty on success.
	Error string `json:"error,omitempty"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"startedAt"`
	// Duration is how long the run took.
	Duration time.Duration `json:"durationNs"`
}

// Journal persists ingest runs. Implementations must be safe for
// concurrent use.
type Journal interface {
	// Record stores run.
	Record(ctx context.Context, run Run) error
	// Runs returns up to n runs for key, newest first.
	Runs(ctx context.Context, key string, n int) ([]Run, error)
	// Close releases any resources held by the journal.
	Close() error
}

// SQLiteJournal is a Journal backed by a local SQLite database.
type SQLiteJournal struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default journal location, ~/.docpack/journal.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("journal: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docpack")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("journal: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "journal.db"), nil
}

// Open opens (or creates) a SQLiteJournal at path and applies the schema.
// Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteJournal, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// One connection: writers serialise and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// migrate creates the schema if it does not already exist.
func (j *SQLiteJournal) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS ingest_runs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    pack_key     TEXT    NOT NULL,
    phase        TEXT    NOT NULL CHECK(phase IN ('sync','enrich')),
    documents    INTEGER NOT NULL,
    urls         TEXT    NOT NULL,  -- JSON array
    error        TEXT    NOT NULL DEFAULT '',
    started_at   INTEGER NOT NULL,  -- Unix timestamp (milliseconds)
    duration_ms  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_pack_started
    ON ingest_runs (pack_key, started_at);
`
	if _, err := j.db.Exec(ddl); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Record implements Journal.
func (j *SQLiteJournal) Record(ctx context.Context, run Run) error {
	urls := run.URLs
	if urls == nil {
		urls = []string{}
	}
	encoded, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("journal: encode urls: %w", err)
	}

	const q = `INSERT INTO ingest_runs (pack_key, phase, documents, urls, error, started_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := j.db.ExecContext(ctx, q,
		run.PackKey, run.Phase, run.Documents, string(encoded), run.Error,
		run.StartedAt.UnixMilli(), run.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Runs implements Journal.
func (j *SQLiteJournal) Runs(ctx context.Context, key string, n int) ([]Run, error) {
	const q = `
SELECT id, pack_key, phase, documents, urls, error, started_at, duration_ms
FROM   ingest_runs
WHERE  pack_key = ?
ORDER  BY started_at DESC, id DESC
LIMIT  ?`

	rows, err := j.db.QueryContext(ctx, q, key, n)
	if err != nil {
		return nil, fmt.Errorf("journal: runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r          Run
			urls       string
			startedMs  int64
			durationMs int64
		)
		if err := rows.Scan(&r.ID, &r.PackKey, &r.Phase, &r.Documents, &urls, &r.Error, &startedMs, &durationMs); err != nil {
			return nil, fmt.Errorf("journal: runs scan: %w", err)
		}
		if err := json.Unmarshal([]byte(urls), &r.URLs); err != nil {
			return nil, fmt.Errorf("journal: decode urls: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: runs rows: %w", err)
	}
	return runs, nil
}

// Close releases the database connection pool.
func (j *SQLiteJournal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("journal: close: %w", err)
	}
	return nil
}
