package settings

import (
	"context"
	"errors"

	"github.com/keyxmakerx/tabletop/internal/docstore"
)

// SettingsRepository persists the remote store connection.
type SettingsRepository interface {
	// Get returns the saved connection, or nil if none is saved.
	Get(ctx context.Context) (*StoreSettings, error)
	Save(ctx context.Context, s *StoreSettings) error
	Clear(ctx context.Context) error
}

type settingsRepository struct {
	repo *docstore.Repository[StoreSettings]
}

// NewSettingsRepository stores settings in local. Pass the local cache, not
// the document service, so the connection string never leaves the server.
func NewSettingsRepository(local docstore.Store) SettingsRepository {
	return &settingsRepository{repo: docstore.NewRepository[StoreSettings](local, docstore.CollectionSettings)}
}

func (r *settingsRepository) Get(ctx context.Context) (*StoreSettings, error) {
	s, err := r.repo.Get(ctx, remoteStoreID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	return s, err
}

func (r *settingsRepository) Save(ctx context.Context, s *StoreSettings) error {
	return r.repo.Save(ctx, remoteStoreID, s)
}

func (r *settingsRepository) Clear(ctx context.Context) error {
	return r.repo.Delete(ctx, remoteStoreID)
}
