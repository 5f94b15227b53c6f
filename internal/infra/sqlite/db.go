// Package sqlite persists quest runs and historical return series.
// It uses the pure-Go modernc.org/sqlite driver, so no CGO is required.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "finquest.db"

// DB wraps the SQLite connection.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database in dir and applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dir, FileName)
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	db := &DB{db: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close closes the connection.
func (db *DB) Close() error { return db.db.Close() }

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Quest runs: only the chosen batches are stored, steps are replayed
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			quest_id     TEXT NOT NULL,
			batches_json TEXT NOT NULL DEFAULT '[]',
			cursor       INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_quest ON runs(quest_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_updated ON runs(updated_at)`,

		// Annual return series by category
		`CREATE TABLE IF NOT EXISTS return_series (
			category     TEXT PRIMARY KEY,
			start_year   INTEGER NOT NULL,
			returns_json TEXT NOT NULL,
			updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}
