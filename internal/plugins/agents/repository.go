package agents

import (
	"context"
	"errors"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
)

// AgentRepository persists character sheets.
type AgentRepository interface {
	List(ctx context.Context) ([]Agent, error)
	Get(ctx context.Context, id string) (*Agent, error)
	Save(ctx context.Context, a *Agent) error
	Delete(ctx context.Context, id string) error
}

type agentRepository struct {
	docs *docstore.Repository[Agent]
}

// NewAgentRepository stores sheets in the agents collection of store.
func NewAgentRepository(store docstore.Store) AgentRepository {
	return &agentRepository{docs: docstore.NewRepository[Agent](store, docstore.CollectionAgents)}
}

func (r *agentRepository) List(ctx context.Context) ([]Agent, error) {
	return r.docs.List(ctx)
}

// Get returns the sheet, or a NotFound AppError.
func (r *agentRepository) Get(ctx context.Context, id string) (*Agent, error) {
	a, err := r.docs.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperror.NewNotFound("agent not found")
	}
	if err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = id
	}
	return a, nil
}

func (r *agentRepository) Save(ctx context.Context, a *Agent) error {
	return r.docs.Save(ctx, a.ID, a)
}

func (r *agentRepository) Delete(ctx context.Context, id string) error {
	return r.docs.Delete(ctx, id)
}
