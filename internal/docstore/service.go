package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// RemoteStore is a Store reached over the network with its own lifecycle.
type RemoteStore interface {
	Store
	Ping(ctx context.Context) error
	Close() error
}

// RemoteConfig carries the connection details an admin supplies.
type RemoteConfig struct {
	DSN string `json:"dsn"`
}

// Connector opens a RemoteStore. The app wires one that dials MariaDB and
// applies migrations; tests wire fakes.
type Connector func(ctx context.Context, cfg RemoteConfig) (RemoteStore, error)

// ErrInvalidConfig is returned by Connect for unusable connection details.
var ErrInvalidConfig = errors.New("invalid remote store configuration")

// Status describes the remote connection for the settings screen.
type Status struct {
	Online      bool       `json:"online"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// ServiceConfig tunes the local cache behaviour.
type ServiceConfig struct {
	// MaxImageBytes is the embedded image size stripped from a payload when
	// the local cache rejects it for quota.
	MaxImageBytes int
}

// Service is the document store the rest of the application talks to. It
// owns the local cache, the optional remote store and the change bus, and
// implements the one read/write policy:
//
//   - reads go to the remote store first and fall back to the local cache
//     when the remote is offline or failing; successful remote reads
//     refresh the cache
//   - writes go to the local cache first, then to the remote store; a
//     remote failure is returned to the caller
//   - a local write rejected for quota is retried once with oversized
//     embedded images stripped
//
// Service is safe for concurrent use.
type Service struct {
	mu          sync.RWMutex
	local       Store
	remote      RemoteStore
	connect     Connector
	bus         Bus
	cfg         ServiceConfig
	connectedAt time.Time
	lastErr     string
}

// NewService creates a document service over the given local cache. bus may
// be nil, in which case an in-process bus is used.
func NewService(local Store, bus Bus, connect Connector, cfg ServiceConfig) *Service {
	if bus == nil {
		bus = NewLocalBus()
	}
	return &Service{local: local, bus: bus, connect: connect, cfg: cfg}
}

// Connect opens the remote store described by cfg, replacing any current
// connection. Config problems return ErrInvalidConfig; connectivity
// problems are returned wrapped so the caller can show them.
func (s *Service) Connect(ctx context.Context, cfg RemoteConfig) error {
	if strings.TrimSpace(cfg.DSN) == "" {
		return fmt.Errorf("%w: connection string is required", ErrInvalidConfig)
	}
	if s.connect == nil {
		return fmt.Errorf("%w: no remote connector configured", ErrInvalidConfig)
	}

	remote, err := s.connect(ctx, cfg)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("connecting remote store: %w", err)
	}
	s.Attach(remote)
	slog.Info("remote document store connected")
	return nil
}

// Attach installs an already opened remote store, closing the previous one.
func (s *Service) Attach(remote RemoteStore) {
	s.mu.Lock()
	prev := s.remote
	s.remote = remote
	s.connectedAt = time.Now().UTC()
	s.lastErr = ""
	s.mu.Unlock()

	if prev != nil && prev != remote {
		if err := prev.Close(); err != nil {
			slog.Warn("closing previous remote store", slog.Any("error", err))
		}
	}
}

// Disconnect closes the remote store. The service keeps serving from the
// local cache.
func (s *Service) Disconnect() error {
	s.mu.Lock()
	remote := s.remote
	s.remote = nil
	s.mu.Unlock()

	if remote == nil {
		return nil
	}
	slog.Info("remote document store disconnected")
	return remote.Close()
}

// Online reports whether a remote store is attached.
func (s *Service) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote != nil
}

// Status reports connection state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{Online: s.remote != nil, LastError: s.lastErr}
	if s.remote != nil {
		at := s.connectedAt
		st.ConnectedAt = &at
	}
	return st
}

// Ping checks the remote store. Returns ErrOffline when none is attached.
func (s *Service) Ping(ctx context.Context) error {
	remote := s.currentRemote()
	if remote == nil {
		return ErrOffline
	}
	if err := remote.Ping(ctx); err != nil {
		return fmt.Errorf("pinging remote store: %w", err)
	}
	return nil
}

// Local returns the local cache.
func (s *Service) Local() Store {
	return s.local
}

func (s *Service) currentRemote() RemoteStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote
}

// Get reads remote-first with local fallback.
func (s *Service) Get(ctx context.Context, collection, id string) (*Document, error) {
	if remote := s.currentRemote(); remote != nil {
		doc, err := remote.Get(ctx, collection, id)
		switch {
		case err == nil:
			s.cache(ctx, collection, id, doc.Data)
			return doc, nil
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidKey):
			return nil, err
		default:
			slog.Warn("remote read failed, using local cache",
				slog.String("collection", collection),
				slog.String("id", id),
				slog.Any("error", err),
			)
		}
	}
	return s.local.Get(ctx, collection, id)
}

// List reads remote-first with local fallback.
func (s *Service) List(ctx context.Context, collection string) ([]Document, error) {
	if remote := s.currentRemote(); remote != nil {
		docs, err := remote.List(ctx, collection)
		if err == nil {
			for _, doc := range docs {
				s.cache(ctx, collection, doc.ID, doc.Data)
			}
			return docs, nil
		}
		if errors.Is(err, ErrInvalidKey) {
			return nil, err
		}
		slog.Warn("remote list failed, using local cache",
			slog.String("collection", collection),
			slog.Any("error", err),
		)
	}
	return s.local.List(ctx, collection)
}

// Upsert writes local-first, then remote, then announces the change.
func (s *Service) Upsert(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := ValidateKey(collection, id); err != nil {
		return err
	}
	if err := validatePayload(data); err != nil {
		return err
	}

	localErr := s.writeLocal(ctx, collection, id, data)

	remote := s.currentRemote()
	if remote == nil {
		if localErr != nil {
			return localErr
		}
		s.announce(ctx, collection, id, OpUpsert)
		return nil
	}
	if localErr != nil {
		slog.Warn("local cache write failed",
			slog.String("collection", collection),
			slog.String("id", id),
			slog.Any("error", localErr),
		)
	}

	if err := remote.Upsert(ctx, collection, id, data); err != nil {
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	s.announce(ctx, collection, id, OpUpsert)
	return nil
}

// Delete removes the document locally and remotely, then announces it.
func (s *Service) Delete(ctx context.Context, collection, id string) error {
	if err := s.local.Delete(ctx, collection, id); err != nil {
		return err
	}
	if remote := s.currentRemote(); remote != nil {
		if err := remote.Delete(ctx, collection, id); err != nil {
			return fmt.Errorf("%w: %w", ErrOffline, err)
		}
	}
	s.announce(ctx, collection, id, OpDelete)
	return nil
}

// Subscribe delivers a Change each time the document id is written through
// this service.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan Change, func(), error) {
	return s.bus.Subscribe(ctx, id)
}

// Clear removes every document of collection, locally and remotely.
func (s *Service) Clear(ctx context.Context, collection string) error {
	docs, err := s.local.List(ctx, collection)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		seen[doc.ID] = true
		if err := s.Delete(ctx, collection, doc.ID); err != nil {
			return err
		}
	}
	if remote := s.currentRemote(); remote != nil {
		remoteDocs, err := remote.List(ctx, collection)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOffline, err)
		}
		for _, doc := range remoteDocs {
			if seen[doc.ID] {
				continue
			}
			if err := s.Delete(ctx, collection, doc.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeLocal writes to the cache, stripping oversized embedded images and
// retrying once when the cache reports a quota error.
func (s *Service) writeLocal(ctx context.Context, collection, id string, data json.RawMessage) error {
	err := s.local.Upsert(ctx, collection, id, data)
	if err == nil || !errors.Is(err, ErrQuotaExceeded) {
		return err
	}

	stripped, n, stripErr := StripEmbeddedImages(data, s.cfg.MaxImageBytes)
	if stripErr != nil || n == 0 {
		return err
	}
	slog.Warn("local quota exceeded, stored document without embedded images",
		slog.String("collection", collection),
		slog.String("id", id),
		slog.Int("images_stripped", n),
		slog.Int("original_bytes", len(data)),
		slog.Int("stored_bytes", len(stripped)),
	)
	return s.local.Upsert(ctx, collection, id, stripped)
}

// cache refreshes the local copy after a remote read. Failures only log.
func (s *Service) cache(ctx context.Context, collection, id string, data json.RawMessage) {
	if err := s.writeLocal(ctx, collection, id, data); err != nil {
		slog.Debug("local cache refresh failed",
			slog.String("collection", collection),
			slog.String("id", id),
			slog.Any("error", err),
		)
	}
}

func (s *Service) announce(ctx context.Context, collection, id string, op ChangeOp) {
	change := Change{Collection: collection, ID: id, Op: op, At: time.Now().UTC()}
	if err := s.bus.Publish(ctx, change); err != nil {
		slog.Warn("change notification failed",
			slog.String("collection", collection),
			slog.String("id", id),
			slog.Any("error", err),
		)
	}
}

var (
	_ Store      = (*Service)(nil)
	_ Subscriber = (*Service)(nil)
)
