package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/docstore"
)

// StoreConnector is the connection lifecycle of the document service.
type StoreConnector interface {
	Connect(ctx context.Context, cfg docstore.RemoteConfig) error
	Disconnect() error
	Status() docstore.Status
}

// SettingsService manages the remote store connection.
type SettingsService interface {
	Status(ctx context.Context) (*StoreStatus, error)

	// Connect validates dsn, connects and remembers it. Invalid strings are
	// validation errors; unreachable stores are unavailable errors.
	Connect(ctx context.Context, dsn string) (*StoreStatus, error)

	// Disconnect drops the remote store and forgets it.
	Disconnect(ctx context.Context) (*StoreStatus, error)

	// Restore reconnects using the saved connection, if any. Used at startup.
	Restore(ctx context.Context) error
}

type settingsService struct {
	repo  SettingsRepository
	store StoreConnector
}

// NewSettingsService creates a new settings service.
func NewSettingsService(repo SettingsRepository, store StoreConnector) SettingsService {
	return &settingsService{repo: repo, store: store}
}

func (s *settingsService) Status(ctx context.Context) (*StoreStatus, error) {
	saved, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading store settings: %w", err))
	}
	st := s.status()
	if saved != nil {
		cfg, _ := mysql.ParseDSN(saved.DSN)
		describe(st, cfg)
	}
	return st, nil
}

func (s *settingsService) Connect(ctx context.Context, dsn string) (*StoreStatus, error) {
	dsn = strings.TrimSpace(dsn)
	cfg, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if err := s.store.Connect(ctx, docstore.RemoteConfig{DSN: dsn}); err != nil {
		if errors.Is(err, docstore.ErrInvalidConfig) {
			return nil, apperror.NewValidation(err.Error())
		}
		slog.Warn("remote store connection failed",
			slog.String("address", cfg.Addr),
			slog.Any("error", err),
		)
		return nil, apperror.NewUnavailable("could not connect to the store: "+rootCause(err), err)
	}

	if err := s.repo.Save(ctx, &StoreSettings{DSN: dsn, SavedAt: time.Now().UTC()}); err != nil {
		slog.Warn("could not remember store connection", slog.Any("error", err))
	}
	slog.Info("remote store connected",
		slog.String("address", cfg.Addr),
		slog.String("database", cfg.DBName),
	)

	st := s.status()
	describe(st, cfg)
	return st, nil
}

func (s *settingsService) Disconnect(ctx context.Context) (*StoreStatus, error) {
	if err := s.store.Disconnect(); err != nil {
		slog.Warn("closing remote store", slog.Any("error", err))
	}
	if err := s.repo.Clear(ctx); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("clearing store settings: %w", err))
	}
	return s.status(), nil
}

func (s *settingsService) Restore(ctx context.Context) error {
	saved, err := s.repo.Get(ctx)
	if err != nil {
		return fmt.Errorf("loading store settings: %w", err)
	}
	if saved == nil || saved.DSN == "" {
		return nil
	}
	if err := s.store.Connect(ctx, docstore.RemoteConfig{DSN: saved.DSN}); err != nil {
		return fmt.Errorf("reconnecting saved store: %w", err)
	}
	return nil
}

func (s *settingsService) status() *StoreStatus {
	ds := s.store.Status()
	return &StoreStatus{
		Online:      ds.Online,
		ConnectedAt: ds.ConnectedAt,
		LastError:   ds.LastError,
	}
}

// parseDSN checks a go-sql-driver/mysql connection string.
func parseDSN(dsn string) (*mysql.Config, error) {
	if dsn == "" {
		return nil, apperror.NewValidation("connection string is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, apperror.NewValidation("invalid connection string: " + err.Error())
	}
	if cfg.DBName == "" {
		return nil, apperror.NewValidation("connection string must name a database")
	}
	return cfg, nil
}

// rootCause returns the innermost error message.
func rootCause(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
