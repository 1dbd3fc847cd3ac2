package campaigns

import (
	"context"
	"errors"
	"fmt"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
)

// CampaignRepository persists the singleton campaign.
type CampaignRepository interface {
	Get(ctx context.Context) (*Campaign, error)
	Save(ctx context.Context, c *Campaign) error
	Delete(ctx context.Context) error
}

type campaignRepository struct {
	docs *docstore.Repository[Campaign]
	key  string
}

// NewCampaignRepository stores the campaign under key in the campaign
// collection.
func NewCampaignRepository(store docstore.Store, key string) CampaignRepository {
	return &campaignRepository{
		docs: docstore.NewRepository[Campaign](store, docstore.CollectionCampaign),
		key:  key,
	}
}

// Get returns the campaign, or a NotFound AppError when none is running.
func (r *campaignRepository) Get(ctx context.Context) (*Campaign, error) {
	c, err := r.docs.Get(ctx, r.key)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperror.NewNotFound("no campaign is running")
	}
	if err != nil {
		return nil, fmt.Errorf("loading campaign: %w", err)
	}
	return c, nil
}

func (r *campaignRepository) Save(ctx context.Context, c *Campaign) error {
	return r.docs.Save(ctx, r.key, c)
}

func (r *campaignRepository) Delete(ctx context.Context) error {
	return r.docs.Delete(ctx, r.key)
}
