// Package store persists analysis batches to SQLite. It is the
// graph-storage collaborator downstream of the merge step.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both
// contexts.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store wraps a SQLite connection holding snapshots.
type Store struct {
	db     *sql.DB
	q      Querier // active querier: db or tx
	dbPath string
}

// OpenPath opens a SQLite database at the given path, creating parent
// directories and the schema as needed.
func OpenPath(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory SQLite database (for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	s := &Store{db: db, dbPath: ":memory:"}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// WithTransaction executes fn within a single SQLite transaction. The
// callback receives a transaction-scoped Store; the receiver's q field is
// never mutated, so concurrent readers on s.q == s.db are unaffected.
func (s *Store) WithTransaction(fn func(txStore *Store) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, dbPath: s.dbPath}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying sql.DB (for advanced queries).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		revision TEXT NOT NULL,
		created_at TEXT NOT NULL,
		stats TEXT DEFAULT '{}',
		UNIQUE(repository, revision, created_at)
	);

	CREATE TABLE IF NOT EXISTS entities (
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		qualified_name TEXT NOT NULL,
		file_path TEXT DEFAULT '',
		start_line INTEGER DEFAULT 0,
		end_line INTEGER DEFAULT 0,
		canonical INTEGER NOT NULL DEFAULT 1,
		attributes TEXT DEFAULT '{}',
		PRIMARY KEY (snapshot_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(snapshot_id, kind);
	CREATE INDEX IF NOT EXISTS idx_entities_qn ON entities(snapshot_id, qualified_name);
	CREATE INDEX IF NOT EXISTS idx_entities_file ON entities(snapshot_id, file_path);

	CREATE TABLE IF NOT EXISTS relationships (
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		type TEXT NOT NULL,
		UNIQUE(snapshot_id, source_id, target_id, type)
	);

	CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(snapshot_id, source_id, type);
	CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships(snapshot_id, target_id, type);

	CREATE TABLE IF NOT EXISTS diagnostics (
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		severity TEXT NOT NULL,
		category TEXT NOT NULL,
		file_path TEXT DEFAULT '',
		line INTEGER DEFAULT 0,
		message TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_diag_severity ON diagnostics(snapshot_id, severity);
	`
	_, err := s.db.Exec(schema)
	return err
}

// marshalAttrs serializes attributes to JSON.
func marshalAttrs(attrs map[string]any) string {
	if attrs == nil {
		return "{}"
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalAttrs(data string) map[string]any {
	if data == "" || data == "{}" {
		return nil
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(data), &attrs); err != nil {
		return nil
	}
	return attrs
}
