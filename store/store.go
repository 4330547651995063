// Package store provides durable storage for sessions, messages, progress
// entries, locks and snapshots in a single embedded SQLite database with
// write-ahead logging enabled for reader/writer concurrency.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Options configures the SQLite store.
type Options struct {
	QueryTimeout      time.Duration // Timeout for schema setup queries
	PragmaJournalMode string        // WAL mode for better concurrent performance
	PragmaSyncMode    string        // Synchronization mode
	MaxConnections    int           // Maximum number of connections in pool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		QueryTimeout:      30 * time.Second,
		PragmaJournalMode: "WAL",
		PragmaSyncMode:    "NORMAL",
		MaxConnections:    10,
	}
}

// Store is the SQLite-backed persistence store. All write operations are
// single statements or explicit transactions; on I/O failure the error is
// propagated and the caller must treat the higher-level operation as failed.
type Store struct {
	db     *sql.DB
	dbPath string
	mutex  sync.Mutex
}

// New opens (creating if necessary) the database at dbPath and ensures the
// schema exists.
func New(dbPath string, options Options) (*Store, error) {
	if options.QueryTimeout == 0 {
		options = DefaultOptions()
	}
	dsn := fmt.Sprintf("%s?_journal_mode=%s&_sync=%s&_foreign_keys=1&_busy_timeout=5000",
		dbPath, options.PragmaJournalMode, options.PragmaSyncMode)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(options.MaxConnections)
	db.SetMaxIdleConns(options.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), options.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		project_path TEXT NOT NULL,
		project_name TEXT,
		workspace_root TEXT,
		metadata JSON,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_path);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		tool_call_id TEXT,
		tool_call JSON,
		tool_result JSON,
		step_index INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session_step ON messages(session_id, step_index);
	CREATE INDEX IF NOT EXISTS idx_messages_tool_call ON messages(tool_call_id) WHERE tool_call_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS progress (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		step TEXT NOT NULL,
		status TEXT NOT NULL,
		details TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_progress_session ON progress(session_id);

	CREATE TABLE IF NOT EXISTS locks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		kind TEXT NOT NULL,
		acquired_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_locks_path ON locks(file_path);
	CREATE INDEX IF NOT EXISTS idx_locks_session ON locks(session_id);

	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		operation TEXT NOT NULL,
		before_content TEXT,
		after_content TEXT,
		status TEXT NOT NULL,
		step_index INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_session_step ON snapshots(session_id, step_index);
	CREATE INDEX IF NOT EXISTS idx_snapshots_path ON snapshots(file_path);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close checkpoints the write-ahead log and closes the database.
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Helper functions for nullable database values.

func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullableStringPtr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullableBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
