package campaigns

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
	"github.com/keyxmakerx/tabletop/internal/sanitize"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 5000
)

// accessCodeAlphabet avoids characters that are easy to misread aloud.
const accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ViewResetter starts and clears the shared map view alongside the campaign.
type ViewResetter interface {
	ResetView(ctx context.Context, actor tabletop.Actor) error
	ClearView(ctx context.Context, actor tabletop.Actor) error
}

// CampaignService handles the campaign lifecycle and roster.
type CampaignService interface {
	Get(ctx context.Context) (*Campaign, error)
	Start(ctx context.Context, actor tabletop.Actor, req StartRequest) (*Campaign, error)
	Update(ctx context.Context, actor tabletop.Actor, req UpdateRequest) (*Campaign, error)
	End(ctx context.Context, actor tabletop.Actor) error
	Join(ctx context.Context, actor tabletop.Actor, req JoinRequest) (*Campaign, error)
	Leave(ctx context.Context, actor tabletop.Actor) (*Campaign, error)

	// Restore replaces the campaign wholesale, used by backup import.
	Restore(ctx context.Context, c *Campaign) error
}

type campaignService struct {
	repo CampaignRepository
	view ViewResetter
	now  func() time.Time

	// mu serializes every read-modify-write of the campaign document.
	mu sync.Mutex
}

// NewCampaignService creates a campaign service. view may be nil when the
// map is managed elsewhere.
func NewCampaignService(repo CampaignRepository, view ViewResetter) CampaignService {
	return &campaignService{repo: repo, view: view, now: time.Now}
}

// Get returns the running campaign.
func (s *campaignService) Get(ctx context.Context) (*Campaign, error) {
	c, err := s.repo.Get(ctx)
	if err != nil {
		return nil, docstore.AsAppError(err)
	}
	return c, nil
}

// Start opens a new campaign with the game master on the roster and an
// empty map. Only one campaign runs at a time.
func (s *campaignService) Start(ctx context.Context, actor tabletop.Actor, req StartRequest) (*Campaign, error) {
	if !tabletop.CanPublishMap(actor) {
		return nil, apperror.NewForbidden("only the game master can start a campaign")
	}
	name := sanitize.Text(req.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	desc := sanitize.Text(req.Description)
	if utf8.RuneCountInString(desc) > maxDescriptionLength {
		return nil, apperror.NewValidation(fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.repo.Get(ctx); err == nil {
		return nil, apperror.NewConflict("a campaign is already running; end it first")
	} else if !apperror.Is(err, http.StatusNotFound) {
		return nil, docstore.AsAppError(err)
	}

	code, err := generateAccessCode()
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating access code: %w", err))
	}
	c := &Campaign{
		ID:          code,
		Name:        name,
		Description: desc,
		Master:      actor.Name,
		Players: []Player{{
			ID:       actor.UserID,
			Name:     actor.Name,
			IsMaster: true,
			Status:   StatusOnline,
		}},
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, docstore.AsAppError(err)
	}
	if s.view != nil {
		if err := s.view.ResetView(ctx, actor); err != nil {
			return nil, err
		}
	}

	slog.Info("campaign started",
		slog.String("campaign_code", c.ID),
		slog.String("master", c.Master),
	)
	return c, nil
}

// Update edits the campaign's name, description or cover image.
func (s *campaignService) Update(ctx context.Context, actor tabletop.Actor, req UpdateRequest) (*Campaign, error) {
	if !tabletop.CanPublishMap(actor) {
		return nil, apperror.NewForbidden("only the game master can edit the campaign")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := sanitize.Text(*req.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		c.Name = name
	}
	if req.Description != nil {
		desc := sanitize.Text(*req.Description)
		if utf8.RuneCountInString(desc) > maxDescriptionLength {
			return nil, apperror.NewValidation(fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
		}
		c.Description = desc
	}
	if req.CampaignImage != nil {
		img := strings.TrimSpace(*req.CampaignImage)
		if img != "" && sanitize.URL(img) == "" {
			return nil, apperror.NewValidation("campaign image must be an http(s) or data:image URL")
		}
		c.CampaignImage = sanitize.URL(img)
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, docstore.AsAppError(err)
	}
	return c, nil
}

// End deletes the campaign and its map.
func (s *campaignService) End(ctx context.Context, actor tabletop.Actor) error {
	if !tabletop.CanPublishMap(actor) {
		return apperror.NewForbidden("only the game master can end the campaign")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Delete(ctx); err != nil {
		return docstore.AsAppError(err)
	}
	if s.view != nil {
		if err := s.view.ClearView(ctx, actor); err != nil {
			return err
		}
	}
	slog.Info("campaign ended", slog.String("by", actor.UserID))
	return nil
}

// Join puts the caller on the roster (or back online). Joining is
// idempotent per user.
func (s *campaignService) Join(ctx context.Context, actor tabletop.Actor, req JoinRequest) (*Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(req.AccessCode))
	if code != "" && code != c.ID {
		return nil, apperror.NewForbidden("wrong access code")
	}

	entry := Player{
		ID:       actor.UserID,
		Name:     actor.Name,
		Class:    sanitize.Text(req.Class),
		IsMaster: tabletop.CanPublishMap(actor),
		Status:   StatusOnline,
	}
	if i, ok := c.player(actor.UserID); ok {
		if entry.Class == "" {
			entry.Class = c.Players[i].Class
		}
		c.Players[i] = entry
	} else {
		c.Players = append(c.Players, entry)
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, docstore.AsAppError(err)
	}
	return c, nil
}

// Leave marks the caller offline.
func (s *campaignService) Leave(ctx context.Context, actor tabletop.Actor) (*Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := c.player(actor.UserID)
	if !ok {
		return c, nil
	}
	c.Players[i].Status = StatusOffline
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, docstore.AsAppError(err)
	}
	return c, nil
}

// Restore replaces the stored campaign. A nil campaign deletes it.
func (s *campaignService) Restore(ctx context.Context, c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		return docstore.AsAppError(s.repo.Delete(ctx))
	}
	if c.Players == nil {
		c.Players = []Player{}
	}
	return docstore.AsAppError(s.repo.Save(ctx, c))
}

func validateName(name string) error {
	if name == "" {
		return apperror.NewValidation("campaign name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return apperror.NewValidation(fmt.Sprintf("campaign name must be at most %d characters", maxNameLength))
	}
	return nil
}

// generateAccessCode returns a code like "OP-7X21".
func generateAccessCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = accessCodeAlphabet[int(b[i])%len(accessCodeAlphabet)]
	}
	return "OP-" + string(b), nil
}
