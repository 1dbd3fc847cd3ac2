package library

import (
	"context"
	"sort"

	"github.com/keyxmakerx/tabletop/internal/docstore"
)

// Store is a document store that can empty a collection.
type Store interface {
	docstore.Store
	Clear(ctx context.Context, collection string) error
}

// LinkRepository persists shelf links.
type LinkRepository interface {
	List(ctx context.Context) ([]Link, error)
	Save(ctx context.Context, l *Link) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

type linkRepository struct {
	store Store
	docs  *docstore.Repository[Link]
}

// NewLinkRepository stores links in the library collection.
func NewLinkRepository(store Store) LinkRepository {
	return &linkRepository{
		store: store,
		docs:  docstore.NewRepository[Link](store, docstore.CollectionLibrary),
	}
}

// List returns links oldest first.
func (r *linkRepository) List(ctx context.Context) ([]Link, error) {
	links, err := r.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].Date != links[j].Date {
			return links[i].Date < links[j].Date
		}
		return links[i].ID < links[j].ID
	})
	return links, nil
}

func (r *linkRepository) Save(ctx context.Context, l *Link) error {
	return r.docs.Save(ctx, l.ID, l)
}

func (r *linkRepository) Delete(ctx context.Context, id string) error {
	return r.docs.Delete(ctx, id)
}

func (r *linkRepository) Clear(ctx context.Context) error {
	return r.store.Clear(ctx, docstore.CollectionLibrary)
}
