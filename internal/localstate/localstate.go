// Package localstate is the per-installation store: the stable client id
// sent with every draft envelope and the raw bytes of locally kept drafts.
package localstate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const clientIDKey = "client_id"

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS drafts (
	key TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store is a SQLite-backed key/value store for installation state
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	clientID string
}

// Open opens (or creates) the database at path. ":memory:" is accepted for
// tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("localstate: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstate: open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstate: create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ClientID returns the installation's stable identifier, generating and
// persisting one on first use.
func (s *Store) ClientID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clientID != "" {
		return s.clientID, nil
	}

	id, err := s.GetSetting(ctx, clientIDKey)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
		if err := s.SetSetting(ctx, clientIDKey, id); err != nil {
			return "", err
		}
	}
	s.clientID = id
	return id, nil
}

// GetSetting returns the value for key, or "" if unset
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("localstate: get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting stores value under key
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("localstate: set setting %q: %w", key, err)
	}
	return nil
}

// GetDraft returns the stored payload for key, or nil if absent
func (s *Store) GetDraft(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM drafts WHERE key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("localstate: get draft %q: %w", key, err)
	}
	return payload, nil
}

// PutDraft stores payload under key
func (s *Store) PutDraft(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("localstate: put draft %q: %w", key, err)
	}
	return nil
}

// DeleteDraft removes key; deleting a missing key is not an error
func (s *Store) DeleteDraft(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("localstate: delete draft %q: %w", key, err)
	}
	return nil
}
