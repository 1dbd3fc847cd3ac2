// Package backup exports the agents, the campaign and the user accounts as
// one JSON document and restores them from it.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
	"github.com/keyxmakerx/tabletop/internal/plugins/agents"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
	"github.com/keyxmakerx/tabletop/internal/plugins/campaigns"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

// Backup is the export format. Campaign is null when no campaign runs.
type Backup struct {
	Agents   []json.RawMessage `json:"agents"`
	Campaign json.RawMessage   `json:"campaign"`
	Users    []json.RawMessage `json:"users"`
}

// Summary reports what an import restored.
type Summary struct {
	Agents   int  `json:"agents"`
	Users    int  `json:"users"`
	Campaign bool `json:"campaign"`
}

// DocumentStore is the part of the document service backups use.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*docstore.Document, error)
	List(ctx context.Context, collection string) ([]docstore.Document, error)
	Upsert(ctx context.Context, collection, id string, data json.RawMessage) error
	Clear(ctx context.Context, collection string) error
}

// Flusher writes pending edits, so exports include them and imports are not
// overwritten by them.
type Flusher interface {
	Flush(ctx context.Context) error
}

// BackupService exports and imports the whole data set.
type BackupService interface {
	Export(ctx context.Context, actor tabletop.Actor) (*Backup, error)

	// Import validates data completely, then clears the agents, campaign and
	// users and writes the backup's contents. A key missing from data
	// leaves that part empty.
	Import(ctx context.Context, actor tabletop.Actor, data json.RawMessage) (*Summary, error)
}

type backupService struct {
	store       DocumentStore
	pending     Flusher
	campaignKey string
}

// NewBackupService creates a backup service. pending may be nil.
func NewBackupService(store DocumentStore, pending Flusher, campaignKey string) BackupService {
	return &backupService{store: store, pending: pending, campaignKey: campaignKey}
}

func (s *backupService) Export(ctx context.Context, actor tabletop.Actor) (*Backup, error) {
	if !tabletop.CanPublishMap(actor) {
		return nil, apperror.NewForbidden("only the game master can export backups")
	}
	s.flush(ctx)

	out := &Backup{Campaign: json.RawMessage("null")}
	var err error
	if out.Agents, err = s.payloads(ctx, docstore.CollectionAgents); err != nil {
		return nil, err
	}
	if out.Users, err = s.payloads(ctx, docstore.CollectionUsers); err != nil {
		return nil, err
	}

	doc, err := s.store.Get(ctx, docstore.CollectionCampaign, s.campaignKey)
	switch {
	case err == nil:
		out.Campaign = doc.Data
	case errors.Is(err, docstore.ErrNotFound):
	default:
		return nil, docstore.AsAppError(err)
	}
	return out, nil
}

func (s *backupService) Import(ctx context.Context, actor tabletop.Actor, data json.RawMessage) (*Summary, error) {
	if !tabletop.CanPublishMap(actor) {
		return nil, apperror.NewForbidden("only the game master can import backups")
	}
	plan, err := parse(data)
	if err != nil {
		return nil, err
	}

	s.flush(ctx)
	for _, collection := range []string{docstore.CollectionAgents, docstore.CollectionUsers, docstore.CollectionCampaign} {
		if err := s.store.Clear(ctx, collection); err != nil {
			return nil, docstore.AsAppError(fmt.Errorf("clearing %s: %w", collection, err))
		}
	}

	for _, a := range plan.agents {
		if err := s.put(ctx, docstore.CollectionAgents, a.ID, a); err != nil {
			return nil, err
		}
	}
	for _, u := range plan.users {
		if err := s.put(ctx, docstore.CollectionUsers, u.ID, u); err != nil {
			return nil, err
		}
	}
	if plan.campaign != nil {
		if err := s.put(ctx, docstore.CollectionCampaign, s.campaignKey, plan.campaign); err != nil {
			return nil, err
		}
	}

	summary := &Summary{Agents: len(plan.agents), Users: len(plan.users), Campaign: plan.campaign != nil}
	slog.Info("backup imported",
		slog.String("by", actor.UserID),
		slog.Int("agents", summary.Agents),
		slog.Int("users", summary.Users),
		slog.Bool("campaign", summary.Campaign),
	)
	return summary, nil
}

// importPlan is a fully validated backup.
type importPlan struct {
	agents   []*agents.Agent
	users    []*auth.User
	campaign *campaigns.Campaign
}

func parse(data json.RawMessage) (*importPlan, error) {
	var raw struct {
		Agents   []json.RawMessage `json:"agents"`
		Campaign json.RawMessage   `json:"campaign"`
		Users    []json.RawMessage `json:"users"`
	}
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, apperror.NewValidation("invalid backup file")
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperror.NewValidation("invalid backup file")
	}

	plan := &importPlan{}
	seen := make(map[string]bool)
	for i, item := range raw.Agents {
		a, err := agents.Normalize(item)
		if err != nil || strings.TrimSpace(a.ID) == "" {
			return nil, apperror.NewValidation(fmt.Sprintf("invalid backup file: agent %d has no id", i+1))
		}
		if seen[a.ID] {
			return nil, apperror.NewValidation(fmt.Sprintf("invalid backup file: duplicate agent id %q", a.ID))
		}
		seen[a.ID] = true
		plan.agents = append(plan.agents, a)
	}

	usernames := make(map[string]bool)
	for i, item := range raw.Users {
		var u auth.User
		if err := json.Unmarshal(item, &u); err != nil || u.ID == "" || u.Username == "" {
			return nil, apperror.NewValidation(fmt.Sprintf("invalid backup file: user %d needs an id and a username", i+1))
		}
		key := strings.ToLower(u.Username)
		if usernames[key] {
			return nil, apperror.NewValidation(fmt.Sprintf("invalid backup file: duplicate username %q", u.Username))
		}
		usernames[key] = true
		if u.Role != auth.RoleAdmin {
			u.Role = auth.RolePlayer
		}
		plan.users = append(plan.users, &u)
	}

	if c := strings.TrimSpace(string(raw.Campaign)); c != "" && c != "null" {
		var camp campaigns.Campaign
		if err := json.Unmarshal(raw.Campaign, &camp); err != nil || camp.Name == "" {
			return nil, apperror.NewValidation("invalid backup file: campaign needs a name")
		}
		if camp.Players == nil {
			camp.Players = []campaigns.Player{}
		}
		plan.campaign = &camp
	}
	return plan, nil
}

func (s *backupService) payloads(ctx context.Context, collection string) ([]json.RawMessage, error) {
	docs, err := s.store.List(ctx, collection)
	if err != nil {
		return nil, docstore.AsAppError(err)
	}
	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Data)
	}
	return out, nil
}

func (s *backupService) put(ctx context.Context, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("encoding %s/%s: %w", collection, id, err))
	}
	if err := s.store.Upsert(ctx, collection, id, data); err != nil {
		return docstore.AsAppError(err)
	}
	return nil
}

func (s *backupService) flush(ctx context.Context) {
	if s.pending == nil {
		return
	}
	if err := s.pending.Flush(ctx); err != nil {
		slog.Warn("flushing pending edits before backup", slog.Any("error", err))
	}
}
