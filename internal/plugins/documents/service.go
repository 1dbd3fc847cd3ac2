// Package documents serves the document store over HTTP so viewers running
// outside the server can use it as their store: plain JSON reads and writes
// per (collection, id), and a websocket that pushes a change notice each
// time a document id is written.
package documents

import (
	"context"
	"encoding/json"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

// access is the per-collection permission set.
type access struct {
	read  tabletop.Role
	write tabletop.Role

	// readOnly collections change only through their own plugin, which
	// checks ownership and validates the body.
	readOnly bool
}

// policies lists the collections exposed over the API. Accounts are not:
// they carry password hashes and only change through the auth plugin.
var policies = map[string]access{
	docstore.CollectionCampaignState: {read: tabletop.RolePlayer, write: tabletop.RoleMaster},
	docstore.CollectionCampaign:      {read: tabletop.RolePlayer, write: tabletop.RoleMaster},
	docstore.CollectionAgents:        {read: tabletop.RolePlayer, readOnly: true},
	docstore.CollectionLibrary:       {read: tabletop.RolePlayer, write: tabletop.RoleMaster},
}

// DocumentService applies the access policy over a document store.
type DocumentService interface {
	List(ctx context.Context, actor tabletop.Actor, collection string) ([]docstore.Document, error)
	Get(ctx context.Context, actor tabletop.Actor, collection, id string) (*docstore.Document, error)
	Put(ctx context.Context, actor tabletop.Actor, collection, id string, data json.RawMessage) error
	Delete(ctx context.Context, actor tabletop.Actor, collection, id string) error

	// Watch subscribes to change notices for id.
	Watch(ctx context.Context, actor tabletop.Actor, id string) (<-chan docstore.Change, func(), error)
}

type documentService struct {
	store docstore.Store
}

// NewDocumentService creates a document service over store.
func NewDocumentService(store docstore.Store) DocumentService {
	return &documentService{store: store}
}

func (s *documentService) List(ctx context.Context, actor tabletop.Actor, collection string) ([]docstore.Document, error) {
	if err := authorize(actor, collection, false); err != nil {
		return nil, err
	}
	docs, err := s.store.List(ctx, collection)
	if err != nil {
		return nil, docstore.AsAppError(err)
	}
	return docs, nil
}

func (s *documentService) Get(ctx context.Context, actor tabletop.Actor, collection, id string) (*docstore.Document, error) {
	if err := authorize(actor, collection, false); err != nil {
		return nil, err
	}
	doc, err := s.store.Get(ctx, collection, id)
	if err != nil {
		return nil, docstore.AsAppError(err)
	}
	return doc, nil
}

// Put upserts a document. The view state is the game master's alone to
// publish, so the campaign-state collection requires CanPublishMap.
func (s *documentService) Put(ctx context.Context, actor tabletop.Actor, collection, id string, data json.RawMessage) error {
	if err := authorize(actor, collection, true); err != nil {
		return err
	}
	if len(data) == 0 || !json.Valid(data) {
		return apperror.NewValidation("document body must be valid JSON")
	}
	return docstore.AsAppError(s.store.Upsert(ctx, collection, id, data))
}

func (s *documentService) Delete(ctx context.Context, actor tabletop.Actor, collection, id string) error {
	if err := authorize(actor, collection, true); err != nil {
		return err
	}
	return docstore.AsAppError(s.store.Delete(ctx, collection, id))
}

func (s *documentService) Watch(ctx context.Context, actor tabletop.Actor, id string) (<-chan docstore.Change, func(), error) {
	if actor.Role < tabletop.RolePlayer {
		return nil, nil, apperror.NewForbidden("you are not at this table")
	}
	sub, ok := s.store.(docstore.Subscriber)
	if !ok {
		return nil, nil, apperror.NewUnavailable("change notifications are not available", tabletop.ErrNoSubscription)
	}
	return sub.Subscribe(ctx, id)
}

func authorize(actor tabletop.Actor, collection string, write bool) error {
	p, ok := policies[collection]
	if !ok {
		return apperror.NewNotFound("unknown collection")
	}
	if write && p.readOnly {
		return apperror.NewForbidden("this collection is changed through its own endpoints")
	}
	if write && collection == docstore.CollectionCampaignState && !tabletop.CanPublishMap(actor) {
		return apperror.NewForbidden(tabletop.ErrNotPrivileged.Error())
	}
	need := p.read
	if write {
		need = p.write
	}
	if actor.Role < need {
		return apperror.NewForbidden("you cannot change this collection")
	}
	return nil
}
