package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
	"github.com/keyxmakerx/tabletop/internal/sanitize"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

const (
	maxNameLength = 100
	maxNEX        = 99
)

// TokenSpawner places tokens on the shared map. Implemented by the maps
// plugin.
type TokenSpawner interface {
	CreateToken(ctx context.Context, actor tabletop.Actor, spec tabletop.TokenSpec) (*tabletop.Token, error)
}

// Drafter produces a generated, possibly partial sheet. Implemented by the
// assistant plugin.
type Drafter interface {
	DraftCharacter(ctx context.Context, actor tabletop.Actor) (json.RawMessage, error)
}

// AgentService handles character sheets.
type AgentService interface {
	List(ctx context.Context) ([]Agent, error)
	Get(ctx context.Context, id string) (*Agent, error)
	Create(ctx context.Context, actor tabletop.Actor, data json.RawMessage) (*Agent, error)
	Replace(ctx context.Context, actor tabletop.Actor, id string, data json.RawMessage) (*Agent, error)

	// Patch merges a partial edit and schedules a debounced save.
	Patch(ctx context.Context, actor tabletop.Actor, id string, data json.RawMessage) (*Agent, error)

	Delete(ctx context.Context, actor tabletop.Actor, id string) error

	// DeleteByName deletes the sheet whose name matches exactly, ignoring
	// case.
	DeleteByName(ctx context.Context, actor tabletop.Actor, name string) (*Agent, error)

	// SpawnToken puts a token for the sheet on the map.
	SpawnToken(ctx context.Context, actor tabletop.Actor, id string) (*tabletop.Token, error)

	// Draft creates a sheet from a generated draft.
	Draft(ctx context.Context, actor tabletop.Actor) (*Agent, error)

	// Flush writes every pending autosave now.
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

type agentService struct {
	repo     AgentRepository
	autosave *Autosaver
	tokens   TokenSpawner
	drafter  Drafter
}

// NewAgentService creates an agent service. Edits through Patch are saved
// after autosaveDelay of inactivity. tokens and drafter may be nil.
func NewAgentService(repo AgentRepository, autosaveDelay time.Duration, tokens TokenSpawner, drafter Drafter) AgentService {
	return &agentService{
		repo:     repo,
		autosave: NewAutosaver(autosaveDelay, repo.Save),
		tokens:   tokens,
		drafter:  drafter,
	}
}

// List returns every sheet, with unsaved edits applied.
func (s *agentService) List(ctx context.Context) ([]Agent, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, docstore.AsAppError(err)
	}
	for i := range list {
		if p, ok := s.autosave.Pending(list[i].ID); ok {
			list[i] = *p
		}
	}
	return list, nil
}

// Get returns one sheet, preferring an unsaved edit.
func (s *agentService) Get(ctx context.Context, id string) (*Agent, error) {
	if p, ok := s.autosave.Pending(id); ok {
		return p, nil
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, docstore.AsAppError(err)
	}
	return a, nil
}

// Create stores a new sheet built from the template and data. The caller
// owns it unless the game master names another owner.
func (s *agentService) Create(ctx context.Context, actor tabletop.Actor, data json.RawMessage) (*Agent, error) {
	if actor.Role < tabletop.RolePlayer {
		return nil, apperror.NewForbidden("you are not at this table")
	}
	a := NewDefaultAgent("")
	if len(data) > 0 {
		if err := a.Merge(data); err != nil {
			return nil, apperror.NewValidation("invalid agent sheet")
		}
	}
	a.ID = uuid.NewString()
	if a.OwnerID == "" || !tabletop.CanPublishMap(actor) {
		a.OwnerID = actor.UserID
	}
	if err := clean(a); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return nil, docstore.AsAppError(err)
	}

	slog.Info("agent created",
		slog.String("agent_id", a.ID),
		slog.String("name", a.Name),
		slog.String("owner_id", a.OwnerID),
	)
	return a, nil
}

// Replace overwrites a sheet. Missing blocks take template values.
func (s *agentService) Replace(ctx context.Context, actor tabletop.Actor, id string, data json.RawMessage) (*Agent, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, existing); err != nil {
		return nil, err
	}
	a, err := Normalize(data)
	if err != nil {
		return nil, apperror.NewValidation("invalid agent sheet")
	}
	a.ID = existing.ID
	a.OwnerID = existing.OwnerID
	if err := clean(a); err != nil {
		return nil, err
	}

	err = s.autosave.Supersede(ctx, id, func(ctx context.Context) error {
		return s.repo.Save(ctx, a)
	})
	if err != nil {
		return nil, docstore.AsAppError(err)
	}
	return a, nil
}

// Patch merges data into the latest version of the sheet and queues it for
// saving.
func (s *agentService) Patch(ctx context.Context, actor tabletop.Actor, id string, data json.RawMessage) (*Agent, error) {
	base, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, base); err != nil {
		return nil, err
	}
	a := base.Clone()
	if err := a.Merge(data); err != nil {
		return nil, apperror.NewValidation("invalid agent sheet")
	}
	a.ID = base.ID
	a.OwnerID = base.OwnerID
	if err := clean(a); err != nil {
		return nil, err
	}
	if err := s.autosave.Schedule(ctx, a); err != nil {
		return nil, docstore.AsAppError(err)
	}
	return a, nil
}

// Delete removes a sheet and drops its unsaved edits.
func (s *agentService) Delete(ctx context.Context, actor tabletop.Actor, id string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(actor, a); err != nil {
		return err
	}
	err = s.autosave.Supersede(ctx, id, func(ctx context.Context) error {
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return docstore.AsAppError(err)
	}
	slog.Info("agent deleted",
		slog.String("agent_id", id),
		slog.String("by", actor.UserID),
	)
	return nil
}

// DeleteByName deletes the first sheet named name that actor may delete,
// compared case-insensitively after trimming. A name that only matches
// other players' sheets is Forbidden.
func (s *agentService) DeleteByName(ctx context.Context, actor tabletop.Actor, name string) (*Agent, error) {
	target := strings.TrimSpace(name)
	if target == "" {
		return nil, apperror.NewValidation("agent name is required")
	}
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var denied error
	for i := range list {
		if !strings.EqualFold(strings.TrimSpace(list[i].Name), target) {
			continue
		}
		if err := authorize(actor, &list[i]); err != nil {
			denied = err
			continue
		}
		if err := s.Delete(ctx, actor, list[i].ID); err != nil {
			return nil, err
		}
		return &list[i], nil
	}
	if denied != nil {
		return nil, denied
	}
	return nil, apperror.NewNotFound(fmt.Sprintf("no agent named %q", target))
}

// SpawnToken creates a map token labelled with the sheet's name, showing
// its portrait and colored by class.
func (s *agentService) SpawnToken(ctx context.Context, actor tabletop.Actor, id string) (*tabletop.Token, error) {
	if s.tokens == nil {
		return nil, apperror.NewUnavailable("the map is not available", nil)
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.tokens.CreateToken(ctx, actor, tabletop.TokenSpec{
		Label: a.TokenLabel(),
		Image: a.Image,
		Color: ClassColor(a.Class),
	})
}

// Draft asks the assistant for a sheet and stores it.
func (s *agentService) Draft(ctx context.Context, actor tabletop.Actor) (*Agent, error) {
	if s.drafter == nil {
		return nil, apperror.NewUnavailable("the assistant is not configured", nil)
	}
	data, err := s.drafter.DraftCharacter(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, actor, data)
}

func (s *agentService) Flush(ctx context.Context) error {
	return s.autosave.Flush(ctx)
}

func (s *agentService) Close(ctx context.Context) error {
	return s.autosave.Close(ctx)
}

// authorize lets the game master edit any sheet and players their own.
func authorize(actor tabletop.Actor, a *Agent) error {
	if tabletop.CanPublishMap(actor) {
		return nil
	}
	if actor.Role >= tabletop.RolePlayer && a.OwnerID != "" && a.OwnerID == actor.UserID {
		return nil
	}
	return apperror.NewForbidden("you can only edit your own agents")
}

// clean sanitizes free text and validates the sheet.
func clean(a *Agent) error {
	a.Name = sanitize.Text(a.Name)
	a.Origin = sanitize.Text(a.Origin)
	a.Trail = sanitize.Text(a.Trail)
	a.Rank = sanitize.Text(a.Rank)
	a.Protection = sanitize.Text(a.Protection)
	a.Movement = sanitize.Text(a.Movement)
	a.Inventory = sanitize.Text(a.Inventory)
	a.Details = sanitize.Text(a.Details)

	if a.Name == "" {
		return apperror.NewValidation("agent name is required")
	}
	if utf8.RuneCountInString(a.Name) > maxNameLength {
		return apperror.NewValidation(fmt.Sprintf("agent name must be at most %d characters", maxNameLength))
	}
	if !ValidClass(a.Class) {
		return apperror.NewValidation("class must be Combatente, Especialista or Ocultista")
	}
	if a.NEX < 0 || a.NEX > maxNEX {
		return apperror.NewValidation(fmt.Sprintf("NEX must be between 0 and %d", maxNEX))
	}
	if img := strings.TrimSpace(a.Image); img != "" {
		a.Image = sanitize.URL(img)
		if a.Image == "" {
			return apperror.NewValidation("portrait must be an http(s) URL or an embedded image")
		}
	}
	return nil
}
