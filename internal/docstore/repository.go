package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Repository is a typed view of one collection. Every entity type (agents,
// users, campaign, library links) goes through it, so the read/write policy
// of the underlying Store is applied uniformly.
type Repository[T any] struct {
	store      Store
	collection string
}

// Defaulter is implemented by entity types whose zero value is not a valid
// starting point. SetDefaults runs before a document is decoded, so fields
// missing from older documents keep their defaults.
type Defaulter interface {
	SetDefaults()
}

// NewRepository creates a repository for collection backed by store.
func NewRepository[T any](store Store, collection string) *Repository[T] {
	return &Repository[T]{store: store, collection: collection}
}

// Collection returns the collection name.
func (r *Repository[T]) Collection() string {
	return r.collection
}

// Get loads and decodes one entity. Returns ErrNotFound when absent.
func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := r.store.Get(ctx, r.collection, id)
	if err != nil {
		return nil, err
	}
	return r.decode(doc)
}

// List loads every entity in the collection. Documents that fail to decode
// are skipped and logged rather than failing the whole list.
func (r *Repository[T]) List(ctx context.Context) ([]T, error) {
	docs, err := r.store.List(ctx, r.collection)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for i := range docs {
		v, err := r.decode(&docs[i])
		if err != nil {
			slog.Warn("skipping undecodable document",
				slog.String("collection", r.collection),
				slog.String("id", docs[i].ID),
				slog.Any("error", err),
			)
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (r *Repository[T]) decode(doc *Document) (*T, error) {
	v := new(T)
	if d, ok := any(v).(Defaulter); ok {
		d.SetDefaults()
	}
	if err := doc.Decode(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Save encodes v and upserts it under id.
func (r *Repository[T]) Save(ctx context.Context, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", r.collection, id, err)
	}
	return r.store.Upsert(ctx, r.collection, id, data)
}

// Delete removes the entity under id.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.collection, id)
}
