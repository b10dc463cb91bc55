// Package ledger is the durable store of parking sessions.
//
// Every successful open/close is committed to SQLite before the call
// returns, so a concurrent reporting process always sees either the pre-
// or post-mutation row, never a partial one (WAL mode). An in-memory
// active index mirrors the set of open rows for O(1) open/close and is
// rebuilt from the database on startup.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on sessions.entry_time
const currentSchemaVersion = 1

// Ledger provides durable storage for parking sessions.
// Uses SQLite with WAL mode so the reporting API can read while the
// engine writes.
type Ledger struct {
	db *sql.DB

	// active mirrors the open rows: identity key -> entry time.
	// Guarded by mu so reporting reads don't race the writer.
	mu     sync.Mutex
	active map[string]time.Time
}

// Open creates or opens the ledger database at the given path and rebuilds
// the active index from any rows left open by a previous run.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	l := &Ledger{db: db, active: make(map[string]time.Time)}
	if err := l.rebuildActiveIndex(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to rebuild active index: %w", err)
	}

	return l, nil
}

// Shutdown closes the database connection. Named so because Close is the
// session-closing operation on this type.
func (l *Ledger) Shutdown() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer Ledger methods when available.
func (l *Ledger) DB() *sql.DB {
	return l.db
}

// rebuildActiveIndex loads the open rows into the in-memory index.
// Called once on Open so the index survives process restarts.
func (l *Ledger) rebuildActiveIndex() error {
	rows, err := l.db.Query(`
		SELECT identity, entry_time
		FROM sessions
		WHERE exit_time IS NULL
	`)
	if err != nil {
		return fmt.Errorf("query open sessions: %w", err)
	}
	defer rows.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	for rows.Next() {
		var key, entry string
		if err := rows.Scan(&key, &entry); err != nil {
			return fmt.Errorf("scan open session: %w", err)
		}
		t, err := parseTime(entry)
		if err != nil {
			return fmt.Errorf("open session for %s: %w", key, err)
		}
		l.active[key] = t
	}
	return rows.Err()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the entry_time index for databases created before the
// schema carried it. New databases get it from schema.sql.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sessions_entry_time
		ON sessions(entry_time)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// timeLayout is the stored timestamp format. UTC, lexicographically
// sortable, and readable by the tools that consume the database directly.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (l *Ledger) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := l.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// Query executes a read-only query against the ledger database.
// Callers are responsible for closing the returned rows.
func (l *Ledger) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return l.db.QueryContext(ctx, query, args...)
}
