// Package blobstore is a small SQLite-backed key/value store for published
// artifacts such as handshake QR images.
//
// SQLite access uses github.com/mattn/go-sqlite3 (CGO required).
package blobstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("blobstore: key not found")

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	key          TEXT PRIMARY KEY,
	content_type TEXT NOT NULL,
	data         BLOB NOT NULL,
	updated_at   INTEGER NOT NULL
);`

// Record is one stored blob.
type Record struct {
	Key         string
	ContentType string
	Data        []byte
	UpdatedAt   time.Time
}

// Store is a SQLite blob store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("blobstore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("blobstore: creating directory for %s failed: %w", path, err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", strings.ReplaceAll(path, " ", "%20"))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("blobstore: opening sqlite database failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("blobstore: connecting to sqlite database failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("blobstore: creating schema failed: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores data under key, replacing any previous value.
func (s *Store) Put(key string, contentType string, data []byte) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("blobstore: key is required")
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.Exec(`
INSERT INTO blobs (key, content_type, data, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	content_type = excluded.content_type,
	data = excluded.data,
	updated_at = excluded.updated_at;`,
		key, contentType, data, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("blobstore: writing %q failed: %w", key, err)
	}
	return nil
}

// Get returns the blob stored under key.
func (s *Store) Get(key string) (Record, error) {
	var (
		rec     Record
		updated int64
	)
	err := s.db.QueryRow(`SELECT key, content_type, data, updated_at FROM blobs WHERE key = ?`, key).
		Scan(&rec.Key, &rec.ContentType, &rec.Data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("blobstore: reading %q failed: %w", key, err)
	}
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return rec, nil
}

// Delete removes key. Unknown keys are ignored.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("blobstore: deleting %q failed: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in order.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM blobs ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("blobstore: listing keys failed: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("blobstore: scanning key failed: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("blobstore: iterating keys failed: %w", err)
	}
	return keys, nil
}
