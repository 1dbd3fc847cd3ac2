package maps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
	"github.com/keyxmakerx/tabletop/internal/sanitize"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

// maxTokenSize bounds token diameters in map units.
const maxTokenSize = 500

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// MapService defines the authoring operations on the shared map.
type MapService interface {
	// View returns the current shared view state.
	View(ctx context.Context) (tabletop.ViewState, error)

	CreateToken(ctx context.Context, actor tabletop.Actor, spec tabletop.TokenSpec) (*tabletop.Token, error)
	UpdateToken(ctx context.Context, actor tabletop.Actor, id string, patch tabletop.TokenPatch) (*tabletop.Token, error)
	DeleteToken(ctx context.Context, actor tabletop.Actor, id string) error
	SetBackground(ctx context.Context, actor tabletop.Actor, image *string) (tabletop.ViewState, error)
	Presets() []Preset

	// ResetView and ClearView follow the campaign lifecycle.
	ResetView(ctx context.Context, actor tabletop.Actor) error
	ClearView(ctx context.Context, actor tabletop.Actor) error
}

// mapService owns the game-master table. Requests are serialized so each
// one pulls, mutates and publishes without interleaving.
type mapService struct {
	store      docstore.Store
	campaignID string

	mu    sync.Mutex
	table *tabletop.Table
}

// NewMapService creates a map service publishing to store under
// cfg.CampaignID.
func NewMapService(store docstore.Store, cfg tabletop.Config) MapService {
	authority := tabletop.Actor{UserID: "server", Name: "server", Role: tabletop.RoleMaster}
	return &mapService{
		store:      store,
		campaignID: cfg.CampaignID,
		table:      tabletop.NewTable(cfg, authority, store, nil),
	}
}

// View pulls and returns the shared view state.
func (s *mapService) View(ctx context.Context) (tabletop.ViewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table.Pull(ctx); err != nil {
		return tabletop.ViewState{}, mapError(err)
	}
	if s.table.Unpublished() {
		// An edit saved while the store was failing; try again now.
		if err := s.table.Publish(ctx); err != nil {
			slog.Warn("republishing view state", slog.Any("error", err))
		} else {
			slog.Info("republished view state", slog.String("campaign_id", s.campaignID))
		}
	}
	return s.table.State(), nil
}

// CreateToken validates spec and adds a token to the map.
func (s *mapService) CreateToken(ctx context.Context, actor tabletop.Actor, spec tabletop.TokenSpec) (*tabletop.Token, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	spec.Label = sanitize.Text(spec.Label)
	image, err := validateImage(spec.Image)
	if err != nil {
		return nil, err
	}
	spec.Image = image
	if err := validateColor(spec.Color); err != nil {
		return nil, err
	}
	if err := validateSize(spec.Size); err != nil {
		return nil, err
	}
	if spec.Position != nil && !finite(spec.Position.X, spec.Position.Y) {
		return nil, apperror.NewValidation("token position must be a finite number")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table.Pull(ctx); err != nil {
		return nil, mapError(err)
	}
	tok, err := s.table.CreateToken(ctx, spec)
	if err != nil {
		return nil, mapError(err)
	}

	slog.Info("token created",
		slog.String("token_id", tok.ID),
		slog.String("label", tok.Label),
		slog.String("by", actor.UserID),
	)
	return &tok, nil
}

// UpdateToken merges patch into the token with id.
func (s *mapService) UpdateToken(ctx context.Context, actor tabletop.Actor, id string, patch tabletop.TokenPatch) (*tabletop.Token, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	if patch.Label != nil {
		label := sanitize.Text(*patch.Label)
		patch.Label = &label
	}
	if patch.Image != nil {
		image, err := validateImage(*patch.Image)
		if err != nil {
			return nil, err
		}
		patch.Image = &image
	}
	if patch.Color != nil {
		if err := validateColor(*patch.Color); err != nil {
			return nil, err
		}
	}
	if patch.Size != nil {
		if err := validateSize(*patch.Size); err != nil {
			return nil, err
		}
	}
	if (patch.X != nil && !finite(*patch.X)) || (patch.Y != nil && !finite(*patch.Y)) {
		return nil, apperror.NewValidation("token position must be a finite number")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table.Pull(ctx); err != nil {
		return nil, mapError(err)
	}
	found, err := s.table.UpdateToken(ctx, id, patch)
	if !found && err == nil {
		return nil, apperror.NewNotFound("token not found")
	}
	if err != nil {
		return nil, mapError(err)
	}
	tok, _ := s.table.State().Token(id)
	return &tok, nil
}

// DeleteToken removes the token with id.
func (s *mapService) DeleteToken(ctx context.Context, actor tabletop.Actor, id string) error {
	if err := authorize(actor); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table.Pull(ctx); err != nil {
		return mapError(err)
	}
	found, err := s.table.DeleteToken(ctx, id)
	if err != nil {
		return mapError(err)
	}
	if !found {
		return apperror.NewNotFound("token not found")
	}
	slog.Info("token deleted", slog.String("token_id", id), slog.String("by", actor.UserID))
	return nil
}

// SetBackground replaces the background image. Nil or empty clears it.
func (s *mapService) SetBackground(ctx context.Context, actor tabletop.Actor, image *string) (tabletop.ViewState, error) {
	if err := authorize(actor); err != nil {
		return tabletop.ViewState{}, err
	}
	if image != nil {
		clean, err := validateImage(*image)
		if err != nil {
			return tabletop.ViewState{}, err
		}
		if clean == "" {
			image = nil
		} else {
			image = &clean
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table.Pull(ctx); err != nil {
		return tabletop.ViewState{}, mapError(err)
	}
	if err := s.table.SetBackground(ctx, image); err != nil {
		return tabletop.ViewState{}, mapError(err)
	}
	return s.table.State(), nil
}

// Presets returns the stock backgrounds.
func (s *mapService) Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// ResetView publishes an empty map for a new campaign.
func (s *mapService) ResetView(ctx context.Context, actor tabletop.Actor) error {
	if err := authorize(actor); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table.Reset(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// ClearView deletes the view-state document. Viewers pulling afterwards
// see an empty table.
func (s *mapService) ClearView(ctx context.Context, actor tabletop.Actor) error {
	if err := authorize(actor); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, docstore.CollectionCampaignState, s.campaignID); err != nil {
		return mapError(fmt.Errorf("clearing view state: %w", err))
	}
	s.table.Discard()
	if err := s.table.Pull(ctx); err != nil {
		slog.Warn("reloading cleared map", slog.Any("error", err))
	}
	return nil
}

func authorize(actor tabletop.Actor) error {
	if !tabletop.CanPublishMap(actor) {
		return apperror.NewForbidden("only the game master can change the map")
	}
	return nil
}

// mapError converts table and store errors to API errors.
func mapError(err error) error {
	if errors.Is(err, tabletop.ErrNotPrivileged) {
		return apperror.NewForbidden(err.Error())
	}
	return docstore.AsAppError(err)
}

// validateImage accepts "", http(s) links and embedded images.
func validateImage(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	clean := sanitize.URL(raw)
	if clean == "" {
		return "", apperror.NewValidation("image must be an http(s) URL or an embedded image")
	}
	return clean, nil
}

func validateColor(color string) error {
	if color != "" && !colorPattern.MatchString(color) {
		return apperror.NewValidation("color must be a hex value like #ef4444")
	}
	return nil
}

func validateSize(size float64) error {
	if size < 0 || size > maxTokenSize || !finite(size) {
		return apperror.NewValidation(fmt.Sprintf("size must be between 0 and %d", maxTokenSize))
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
