package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteStore is the local document cache. It enforces a per-document byte
// quota so one oversized payload (usually an embedded image) cannot bloat
// the cache; writes above the quota fail with ErrQuotaExceeded.
type SQLiteStore struct {
	db       *sql.DB
	maxBytes int
}

// NewSQLiteStore wraps an open SQLite handle whose schema is already in
// place (see database.NewSQLite). maxBytes <= 0 disables the quota.
func NewSQLiteStore(db *sql.DB, maxBytes int) *SQLiteStore {
	return &SQLiteStore{db: db, maxBytes: maxBytes}
}

// Get returns the cached document.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ValidateKey(collection, id); err != nil {
		return nil, err
	}
	var (
		data      []byte
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading local %s/%s: %w", collection, id, err)
	}
	return &Document{
		ID:         id,
		Collection: collection,
		Data:       json.RawMessage(data),
		UpdatedAt:  fromMillis(updatedAt),
	}, nil
}

// List returns every cached document in collection ordered by id.
func (s *SQLiteStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data, updated_at FROM documents WHERE collection = ? ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("listing local %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc       Document
			data      []byte
			updatedAt int64
		)
		if err := rows.Scan(&doc.ID, &data, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning local %s: %w", collection, err)
		}
		doc.Collection = collection
		doc.Data = json.RawMessage(data)
		doc.UpdatedAt = fromMillis(updatedAt)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Upsert writes data, replacing any existing row.
func (s *SQLiteStore) Upsert(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := ValidateKey(collection, id); err != nil {
		return err
	}
	if err := validatePayload(data); err != nil {
		return err
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return fmt.Errorf("%s/%s is %d bytes, limit %d: %w", collection, id, len(data), s.maxBytes, ErrQuotaExceeded)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, []byte(data), toMillis(time.Now()),
	)
	if err != nil {
		if isDiskFull(err) {
			return fmt.Errorf("writing local %s/%s: %w", collection, id, ErrQuotaExceeded)
		}
		return fmt.Errorf("writing local %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes the cached row if present.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if err := ValidateKey(collection, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id,
	); err != nil {
		return fmt.Errorf("deleting local %s/%s: %w", collection, id, err)
	}
	return nil
}

// Clear removes every cached document in collection. Used by backup import.
func (s *SQLiteStore) Clear(ctx context.Context, collection string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("clearing local %s: %w", collection, err)
	}
	return nil
}

func isDiskFull(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_FULL
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

var _ Store = (*SQLiteStore)(nil)
