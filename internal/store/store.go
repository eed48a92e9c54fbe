// Package store persists orders, snapshots, schedules, captures, and
// spectrum-management lists in a local sqlite database. The daemon is the
// only writer; a single connection with WAL journaling keeps readers from
// blocking it.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
	sf singleflight.Group
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL,
	created_by    TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	completed_at  TEXT,
	params        TEXT NOT NULL DEFAULT '{}',
	error_code    TEXT,
	error_message TEXT,
	request_file  TEXT NOT NULL DEFAULT '',
	response_file TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_orders_state ON orders(state);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

CREATE TABLE IF NOT EXISTS snapshots (
	order_id TEXT PRIMARY KEY,
	kind     TEXT NOT NULL,
	taken_at TEXT NOT NULL,
	body     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots(taken_at);

CREATE TABLE IF NOT EXISTS measurements (
	order_id  TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	frequency REAL NOT NULL,
	level     REAL,
	bearing   REAL,
	timestamp TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (order_id, seq)
);

CREATE TABLE IF NOT EXISTS frequency_lists (
	order_id   TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	entries    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transmitter_lists (
	order_id   TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	entries    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS amm_configurations (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	body       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS amm_executions (
	id         TEXT PRIMARY KEY,
	config_id  TEXT NOT NULL,
	started_at TEXT NOT NULL,
	body       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_amm_executions_config ON amm_executions(config_id, started_at);

CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	received_at TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL,
	size_bytes  INTEGER NOT NULL,
	raw_file    TEXT NOT NULL,
	parsed      INTEGER NOT NULL,
	order_id    TEXT NOT NULL DEFAULT '',
	body        TEXT
);
CREATE INDEX IF NOT EXISTS idx_captures_received_at ON captures(received_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeLayout is RFC3339 with fixed-width nanoseconds. Unlike RFC3339Nano it
// never trims trailing zeros, so lexicographic ordering of the TEXT column
// matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullString maps empty strings to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
