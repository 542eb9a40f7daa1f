package database

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the global database instance
var DB *sql.DB

// ErrNotFound is returned when a monitor does not exist
var ErrNotFound = errors.New("not found")

// tsLayout is the on-disk timestamp format; UTC keeps lexical order equal
// to chronological order.
const tsLayout = time.RFC3339

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

// Init initializes the database connection and creates schema
func Init(dbPath string) error {
	var err error
	DB, err = sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	// :memory: databases are per connection
	DB.SetMaxOpenConns(1)

	return EnsureSchema()
}

// EnsureSchema creates all necessary database tables
func EnsureSchema() error {
	_, err := DB.Exec(`
CREATE TABLE IF NOT EXISTS monitors (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  url TEXT NOT NULL,
  interval_sec INTEGER NOT NULL DEFAULT 60,
  timeout_sec INTEGER NOT NULL DEFAULT 5,
  expected_min INTEGER NOT NULL DEFAULT 200,
  expected_max INTEGER NOT NULL DEFAULT 399,
  is_paused INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  maintenance INTEGER NOT NULL DEFAULT 0,
  tags TEXT NOT NULL DEFAULT '',
  sla_target_pct REAL NOT NULL DEFAULT 99.9,
  created_at TEXT NOT NULL,
  updated_at TEXT
);

CREATE TABLE IF NOT EXISTS samples (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  monitor_id INTEGER NOT NULL,
  taken_at TEXT NOT NULL,
  ok INTEGER NOT NULL,
  http_status INTEGER,
  latency_ms INTEGER,
  error TEXT
);
CREATE INDEX IF NOT EXISTS idx_samples_monitor_taken ON samples(monitor_id, taken_at);
CREATE INDEX IF NOT EXISTS idx_samples_taken ON samples(taken_at);

CREATE TABLE IF NOT EXISTS events (
  id TEXT PRIMARY KEY,
  monitor_id INTEGER NOT NULL,
  kind TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_monitor_created ON events(monitor_id, created_at);
`)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
