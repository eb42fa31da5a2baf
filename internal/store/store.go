// Package store persists sessions, iterations, and knowledge-graph nodes in
// SQLite. The session JSONL files under internal/session remain the source
// of truth for live tailing; the database serves queries and statistics.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store owns the SQLite connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path, creating parent directories as
// needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	// modernc's driver takes pragmas in _pragma=name(value) form; the
	// mattn-style _journal_mode params are silently ignored by it.
	return open(path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
}

// OpenInMemory opens a private in-memory database, used by tests.
func OpenInMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc's driver is not safe for concurrent writes on one connection
	// pool without busy handling; a single connection sidesteps that.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: dsn}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the DSN the store was opened with.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	schema := `
	-- One row per loop run.
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		prompt TEXT NOT NULL,
		working_dir TEXT NOT NULL,
		actor_agent TEXT NOT NULL,
		critic_agent TEXT NOT NULL,
		actor_model TEXT,
		critic_model TEXT,
		max_iterations INTEGER,
		outcome TEXT,
		iteration_count INTEGER,
		summary TEXT,
		confidence REAL,
		duration_secs REAL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(outcome);

	-- One row per actor/critic cycle.
	CREATE TABLE IF NOT EXISTS iterations (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		iteration_number INTEGER NOT NULL,
		actor_output TEXT NOT NULL,
		actor_stderr TEXT NOT NULL,
		actor_exit_code INTEGER NOT NULL,
		actor_duration_secs REAL NOT NULL,
		git_diff TEXT NOT NULL,
		git_files_changed INTEGER NOT NULL,
		critic_decision TEXT NOT NULL,
		feedback TEXT,
		timestamp DATETIME NOT NULL,
		PRIMARY KEY (session_id, iteration_number)
	);
	CREATE INDEX IF NOT EXISTS idx_iterations_session ON iterations(session_id);

	-- Knowledge-graph nodes, one graph per session.
	CREATE TABLE IF NOT EXISTS graph_nodes (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		node_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		thought TEXT NOT NULL,
		role TEXT NOT NULL,
		verdict TEXT,
		verdict_reason TEXT,
		verdict_references_json TEXT,
		target TEXT,
		parents_json TEXT,
		children_json TEXT,
		needs_more INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		branch_label TEXT,
		tags_json TEXT,
		artifacts_json TEXT,
		PRIMARY KEY (session_id, node_id)
	);
	CREATE INDEX IF NOT EXISTS idx_graph_nodes_session ON graph_nodes(session_id);
	`
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	_, err := s.db.Exec(schema)
	return err
}
