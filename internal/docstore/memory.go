package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps documents in process memory. Used in offline mode and
// as the fake store in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]Document),
		now:  time.Now,
	}
}

// Get returns a copy of the stored document.
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateKey(collection, id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	doc.Data = cloneRaw(doc.Data)
	return &doc, nil
}

// List returns every document in collection ordered by id.
func (m *MemoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0, len(m.docs[collection]))
	for _, doc := range m.docs[collection] {
		doc.Data = cloneRaw(doc.Data)
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert stores a copy of data.
func (m *MemoryStore) Upsert(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(collection, id); err != nil {
		return err
	}
	if err := validatePayload(data); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]Document)
	}
	m.docs[collection][id] = Document{
		ID:         id,
		Collection: collection,
		Data:       cloneRaw(data),
		UpdatedAt:  m.now().UTC(),
	}
	return nil
}

// Delete removes the document if present.
func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[collection], id)
	return nil
}

func cloneRaw(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}

var _ Store = (*MemoryStore)(nil)
