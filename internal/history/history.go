// Package history keeps an audit trail of sync runs. By default runs land
// in a local SQLite file under the user's home directory; a libsql:// URL
// in authplane.toml sends them to a shared remote store instead.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	target      TEXT NOT NULL,
	state       TEXT NOT NULL,
	success     INTEGER NOT NULL,
	workspace   TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
`

// Entry is one recorded run.
type Entry struct {
	RunID      string
	Source     string
	Target     string
	State      string
	Success    bool
	Workspace  string
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Store persists run entries.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the local history database location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".authplane", "history.db"), nil
}

// Open connects to the history store. An empty url means the default local
// file; libsql:// and wss:// URLs use the libsql driver, anything else is
// treated as a local SQLite path.
func Open(ctx context.Context, url string) (*Store, error) {
	driver := "sqlite"
	dsn := url

	switch {
	case url == "":
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		dsn = path
	case strings.HasPrefix(url, "libsql://"), strings.HasPrefix(url, "wss://"), strings.HasPrefix(url, "ws://"):
		driver = "libsql"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history store: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one run.
func (s *Store) Record(ctx context.Context, e Entry) error {
	success := 0
	if e.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, source, target, state, success, workspace, started_at, finished_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Source, e.Target, e.State, success, e.Workspace,
		e.StartedAt.UTC().Format(time.RFC3339), e.FinishedAt.UTC().Format(time.RFC3339), e.Error)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, source, target, state, success, workspace, started_at, finished_at, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var success int
		var started, finished string
		if err := rows.Scan(&e.RunID, &e.Source, &e.Target, &e.State, &success, &e.Workspace, &started, &finished, &e.Error); err != nil {
			return nil, err
		}
		e.Success = success == 1
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			e.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339, finished); err == nil {
			e.FinishedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
