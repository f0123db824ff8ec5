// Package store provides the durable local store for the sync core.
//
// It persists JSON collection values (users, areas, reports, sync history
// and stats) plus the durable sync queue in a single embedded SQLite
// database, so all locally captured state survives process restarts.
//
// The database runs in embedded mode using the ncruces/go-sqlite3 driver
// (WASM-based, no cgo) with WAL for concurrent readers during writes.
//
// Layout:
//   - collections: one JSON document per logical collection key
//   - sync_queue: one row per queued mutation, updated atomically per item
//
// The store performs no network I/O.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrQuotaExceeded is returned by Put when the underlying medium rejects
// the write because it is full. Callers surface it as a user-visible
// warning and continue in-memory for the cycle; it is never fatal.
var ErrQuotaExceeded = errors.New("local storage quota exceeded")

// Store wraps the SQLite connection backing the local store.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a store at the specified path, creating the parent
// directory and schema as needed.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(".fieldsync/local.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := st.conn.Exec(pragma); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := st.initSchema(); err != nil {
		_ = st.Close()
		return nil, err
	}

	return st, nil
}

// Close closes the store, checkpointing the WAL so all changes persist.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates tables and indexes. Idempotent.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		enqueued_at TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		last_error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_queue_status ON sync_queue(status);
	CREATE INDEX IF NOT EXISTS idx_queue_next ON sync_queue(status, next_attempt_at);
	`

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return nil
}

// Get returns the raw JSON value for a collection. The second return is
// false when the collection is absent or unreadable; callers fall back to
// their documented empty default in that case. Get never fails hard.
func (s *Store) Get(collection string) ([]byte, bool) {
	return s.GetContext(context.Background(), collection)
}

// GetContext is Get with context support.
func (s *Store) GetContext(ctx context.Context, collection string) ([]byte, bool) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		"SELECT value FROM collections WHERE name = ?", collection).Scan(&value)
	if err != nil {
		return nil, false
	}
	return []byte(value), true
}

// Put writes the raw JSON value for a collection, replacing any previous
// value. Returns ErrQuotaExceeded when the medium is full.
func (s *Store) Put(collection string, value []byte) error {
	return s.PutContext(context.Background(), collection, value)
}

// PutContext is Put with context support.
func (s *Store) PutContext(ctx context.Context, collection string, value []byte) error {
	query := `
	INSERT INTO collections (name, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	_, err := s.conn.ExecContext(ctx, query,
		collection, string(value), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isFullError(err) {
			return fmt.Errorf("put %s: %w", collection, ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to put collection %s: %w", collection, err)
	}
	return nil
}

// Remove deletes a collection. Removing an absent collection is a no-op.
func (s *Store) Remove(collection string) error {
	return s.RemoveContext(context.Background(), collection)
}

// RemoveContext is Remove with context support.
func (s *Store) RemoveContext(ctx context.Context, collection string) error {
	_, err := s.conn.ExecContext(ctx,
		"DELETE FROM collections WHERE name = ?", collection)
	if err != nil {
		return fmt.Errorf("failed to remove collection %s: %w", collection, err)
	}
	return nil
}

// isFullError reports whether err indicates the storage medium is full
// (SQLITE_FULL or the filesystem running out of space).
func isFullError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "no space left on device")
}
