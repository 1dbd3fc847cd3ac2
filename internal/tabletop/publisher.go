package tabletop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/keyxmakerx/tabletop/internal/docstore"
)

// Publisher writes full view-state snapshots to the campaign singleton
// document. Publishes are serialized: one upsert is in flight at a time, and
// a snapshot older than the last one written is skipped, so the store never
// moves backwards even when callers race.
type Publisher struct {
	store      docstore.Store
	campaignID string

	mu        sync.Mutex
	published int64
}

// NewPublisher creates a publisher for campaignID.
func NewPublisher(store docstore.Store, campaignID string) *Publisher {
	return &Publisher{store: store, campaignID: campaignID}
}

// Publish upserts state under the campaign key. Returns nil without writing
// when a newer revision has already been published.
func (p *Publisher) Publish(ctx context.Context, state ViewState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state.Revision <= p.published {
		slog.Debug("skipping superseded publish",
			slog.String("campaign_id", p.campaignID),
			slog.Int64("revision", state.Revision),
			slog.Int64("published", p.published),
		)
		return nil
	}

	if state.Tokens == nil {
		state.Tokens = []Token{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding view state: %w", err)
	}
	if err := p.store.Upsert(ctx, docstore.CollectionCampaignState, p.campaignID, data); err != nil {
		return fmt.Errorf("publishing view state: %w", err)
	}
	p.published = state.Revision
	return nil
}

// Published returns the last revision written.
func (p *Publisher) Published() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}
