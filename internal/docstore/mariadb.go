package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MariaDBStore is the remote document store: one shared `documents` table
// created by db/migrations.
type MariaDBStore struct {
	db *sql.DB
}

// NewMariaDBStore wraps an open, migrated MariaDB pool.
func NewMariaDBStore(db *sql.DB) *MariaDBStore {
	return &MariaDBStore{db: db}
}

// Get reads one document.
func (s *MariaDBStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ValidateKey(collection, id); err != nil {
		return nil, err
	}
	doc := &Document{ID: id, Collection: collection}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading remote %s/%s: %w", collection, id, err)
	}
	doc.Data = json.RawMessage(data)
	return doc, nil
}

// List reads every document in collection ordered by id.
func (s *MariaDBStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data, updated_at FROM documents WHERE collection = ? ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("listing remote %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc  = Document{Collection: collection}
			data []byte
		)
		if err := rows.Scan(&doc.ID, &data, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning remote %s: %w", collection, err)
		}
		doc.Data = json.RawMessage(data)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Upsert overwrites or creates a document in a single statement, so each
// publish is atomic at the store layer.
func (s *MariaDBStore) Upsert(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := ValidateKey(collection, id); err != nil {
		return err
	}
	if err := validatePayload(data); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE data = VALUES(data), updated_at = VALUES(updated_at)`,
		collection, id, []byte(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing remote %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes a document if present.
func (s *MariaDBStore) Delete(ctx context.Context, collection, id string) error {
	if err := ValidateKey(collection, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id,
	); err != nil {
		return fmt.Errorf("deleting remote %s/%s: %w", collection, id, err)
	}
	return nil
}

// Ping checks the connection.
func (s *MariaDBStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *MariaDBStore) Close() error {
	return s.db.Close()
}

var _ Store = (*MariaDBStore)(nil)
