// Package docstore is the document store every feature persists through.
// Documents are opaque JSON blobs addressed by (collection, id). A Store may
// be the local SQLite cache, the remote MariaDB store, an in-memory store, or
// an HTTP client of another server; Service layers the remote-first,
// local-fallback policy over a pair of them and Repository gives each
// entity type a typed view.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Collections used by the application.
const (
	// CollectionCampaignState holds the shared map view state, keyed by the
	// campaign singleton id.
	CollectionCampaignState = "campaign_state"

	// CollectionCampaign holds the active campaign and its roster.
	CollectionCampaign = "campaign_active"

	// CollectionAgents holds character sheets keyed by agent id.
	CollectionAgents = "agents"

	// CollectionUsers holds user accounts keyed by user id.
	CollectionUsers = "users"

	// CollectionLibrary holds shared reference links.
	CollectionLibrary = "library"

	// CollectionSettings holds server settings. Kept in the local cache only.
	CollectionSettings = "settings"
)

// Sentinel errors returned by stores. Callers match them with errors.Is.
var (
	ErrNotFound      = errors.New("document not found")
	ErrQuotaExceeded = errors.New("local storage quota exceeded")
	ErrOffline       = errors.New("remote store not connected")
	ErrInvalidKey    = errors.New("invalid collection or id")
)

// maxKeyLength matches the VARCHAR widths of the remote documents table.
const (
	maxCollectionLength = 64
	maxIDLength         = 128
)

// Document is one stored JSON blob.
type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Decode unmarshals the document payload into v.
func (d *Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Store is the document store contract. Upsert overwrites or creates; Get
// returns ErrNotFound when the document is absent; Delete of a missing
// document is not an error.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Upsert(ctx context.Context, collection, id string, data json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
}

// ChangeOp identifies the kind of write that produced a Change.
type ChangeOp string

const (
	OpUpsert ChangeOp = "upsert"
	OpDelete ChangeOp = "delete"
)

// Change is a notification that a document was written or removed. It
// carries no payload; receivers pull the document themselves.
type Change struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Op         ChangeOp  `json:"op"`
	At         time.Time `json:"at"`
}

// Subscriber is the optional change-notification capability of a Store.
// Subscribe delivers a Change every time the document with the given id is
// written. The returned cancel func releases the subscription and closes the
// channel. Code consuming a Store must tolerate this capability's absence.
type Subscriber interface {
	Subscribe(ctx context.Context, id string) (<-chan Change, func(), error)
}

// ValidateKey rejects empty or oversized collection names and ids.
func ValidateKey(collection, id string) error {
	if strings.TrimSpace(collection) == "" || len(collection) > maxCollectionLength {
		return fmt.Errorf("%w: collection %q", ErrInvalidKey, collection)
	}
	if strings.TrimSpace(id) == "" || len(id) > maxIDLength {
		return fmt.Errorf("%w: id %q", ErrInvalidKey, id)
	}
	return nil
}

func validateCollection(collection string) error {
	if strings.TrimSpace(collection) == "" || len(collection) > maxCollectionLength {
		return fmt.Errorf("%w: collection %q", ErrInvalidKey, collection)
	}
	return nil
}

// validatePayload requires data to be a well-formed JSON value.
func validatePayload(data json.RawMessage) error {
	if len(data) == 0 || !json.Valid(data) {
		return fmt.Errorf("document payload is not valid JSON")
	}
	return nil
}
