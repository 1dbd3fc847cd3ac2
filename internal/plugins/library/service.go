package library

import (
	"context"
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

const maxTitleLength = 200

// LibraryService manages the reference shelf.
type LibraryService interface {
	List(ctx context.Context) ([]Link, error)
	Add(ctx context.Context, actor tabletop.Actor, req AddLinkRequest) (*Link, error)
	Delete(ctx context.Context, actor tabletop.Actor, id string) error
	Clear(ctx context.Context, actor tabletop.Actor) error
}

type libraryService struct {
	repo LinkRepository
	now  func() time.Time
}

// NewLibraryService creates a new library service.
func NewLibraryService(repo LinkRepository) LibraryService {
	return &libraryService{repo: repo, now: time.Now}
}

func (s *libraryService) List(ctx context.Context) ([]Link, error) {
	links, err := s.repo.List(ctx)
	if err != nil {
		return nil, docstore.AsAppError(err)
	}
	return links, nil
}

// Add shelves a link. The URL must be http(s).
func (s *libraryService) Add(ctx context.Context, actor tabletop.Actor, req AddLinkRequest) (*Link, error) {
	if !tabletop.CanPublishMap(actor) {
		return nil, apperror.NewForbidden("only the game master can change the library")
	}
	title := sanitize.Text(req.Title)
	if title == "" {
		return nil, apperror.NewValidation("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, apperror.NewValidation(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	u := sanitize.URL(req.URL)
	if u == "" || !isHTTP(u) {
		return nil, apperror.NewValidation("url must be an http(s) link")
	}

	addedBy := actor.Name
	if addedBy == "" {
		addedBy = "Desconhecido"
	}
	l := &Link{
		ID:      uuid.NewString(),
		Title:   title,
		URL:     u,
		AddedBy: addedBy,
		Date:    s.now().UnixMilli(),
	}
	if err := s.repo.Save(ctx, l); err != nil {
		return nil, docstore.AsAppError(err)
	}
	slog.Info("library link added",
		slog.String("link_id", l.ID),
		slog.String("title", l.Title),
	)
	return l, nil
}

func (s *libraryService) Delete(ctx context.Context, actor tabletop.Actor, id string) error {
	if !tabletop.CanPublishMap(actor) {
		return apperror.NewForbidden("only the game master can change the library")
	}
	return docstore.AsAppError(s.repo.Delete(ctx, id))
}

// Clear removes every link, locally and remotely.
func (s *libraryService) Clear(ctx context.Context, actor tabletop.Actor) error {
	if !tabletop.CanPublishMap(actor) {
		return apperror.NewForbidden("only the game master can change the library")
	}
	if err := s.repo.Clear(ctx); err != nil {
		return docstore.AsAppError(err)
	}
	slog.Info("library cleared", slog.String("by", actor.UserID))
	return nil
}

func isHTTP(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
