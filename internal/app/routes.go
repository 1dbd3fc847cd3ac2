package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/tabletop/internal/docstore"
	"github.com/keyxmakerx/tabletop/internal/plugins/agents"
	"github.com/keyxmakerx/tabletop/internal/plugins/assistant"
	"github.com/keyxmakerx/tabletop/internal/plugins/auth"
	"github.com/keyxmakerx/tabletop/internal/plugins/backup"
	"github.com/keyxmakerx/tabletop/internal/plugins/campaigns"
	"github.com/keyxmakerx/tabletop/internal/plugins/dice"
	"github.com/keyxmakerx/tabletop/internal/plugins/documents"
	"github.com/keyxmakerx/tabletop/internal/plugins/library"
	"github.com/keyxmakerx/tabletop/internal/plugins/maps"
	"github.com/keyxmakerx/tabletop/internal/plugins/settings"
	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

// RegisterRoutes builds every plugin and registers its routes. This is the
// single place where plugins are wired to each other and to the shared
// infrastructure.
func (a *App) RegisterRoutes() {
	e := a.Echo
	cfg := a.Config

	// Health check endpoint for Docker health monitoring.
	e.GET("/healthz", a.health)

	api := e.Group("/api/v1")

	// --- auth plugin ---
	var sessions auth.SessionStore
	if a.Redis != nil {
		sessions = auth.NewRedisSessionStore(a.Redis)
	} else {
		sessions = auth.NewMemorySessionStore()
	}
	authService := auth.NewAuthService(auth.NewUserRepository(a.Docs), sessions, cfg.Auth.SessionTTL, cfg.Auth.AdminKey)
	authed := api.Group("", auth.RequireAuth(authService))
	auth.RegisterRoutes(api, auth.NewHandler(authService), authed)

	// --- maps plugin ---
	mapService := maps.NewMapService(a.Docs, tabletop.Config{
		CampaignID: cfg.Map.CampaignID,
		Viewport: tabletop.ViewportConfig{
			MinScale:        cfg.Map.MinScale,
			MaxScale:        cfg.Map.MaxScale,
			ZoomSensitivity: cfg.Map.ZoomSensitivity,
			ZoomAroundPivot: cfg.Map.ZoomAroundPivot,
		},
		TokenSize:  cfg.Map.TokenSize,
		TokenColor: cfg.Map.TokenColor,
	})
	maps.RegisterRoutes(authed, maps.NewHandler(mapService))

	// --- campaigns plugin ---
	campaignService := campaigns.NewCampaignService(campaigns.NewCampaignRepository(a.Docs, cfg.Map.CampaignID), mapService)
	campaigns.RegisterRoutes(authed, campaigns.NewHandler(campaignService), campaignService)

	// --- dice plugin ---
	var history dice.History
	if a.Redis != nil {
		history = dice.NewRedisHistory(a.Redis, cfg.Dice.HistoryCap)
	} else {
		history = dice.NewMemoryHistory(cfg.Dice.HistoryCap)
	}
	dice.RegisterRoutes(authed, dice.NewHandler(dice.NewDiceService(history, nil)))

	// --- documents plugin ---
	documents.RegisterRoutes(authed, documents.NewHandler(documents.NewDocumentService(a.Docs)))

	// --- assistant and agents plugins ---
	// The assistant drafts sheets for the agents plugin and deletes them
	// through it, so it is built first and handed the agents service after.
	var client assistant.Client
	if cfg.Assistant.Enabled() {
		client = assistant.NewHTTPClient(assistant.HTTPClientConfig{
			BaseURL:    cfg.Assistant.BaseURL,
			APIKey:     cfg.Assistant.APIKey,
			Model:      cfg.Assistant.Model,
			ImageModel: cfg.Assistant.ImageModel,
			Timeout:    cfg.Assistant.Timeout,
		})
	} else {
		slog.Info("assistant backend not configured")
	}
	assistantService := assistant.NewAssistantService(client, assistant.Config{
		RatePerMinute: cfg.Assistant.RatePerMinute,
	})
	agentService := agents.NewAgentService(agents.NewAgentRepository(a.Docs), cfg.Autosave.Delay, mapService, assistantService)
	assistantService.SetAgents(agentService)
	agents.RegisterRoutes(authed, agents.NewHandler(agentService))
	assistant.RegisterRoutes(authed, assistant.NewHandler(assistantService))
	a.agents = agentService

	// --- settings plugin ---
	settingsService := settings.NewSettingsService(settings.NewSettingsRepository(a.Docs.Local()), a.Docs)
	settings.RegisterRoutes(authed, settings.NewHandler(settingsService))
	a.settings = settingsService

	// --- backup plugin ---
	backupService := backup.NewBackupService(a.Docs, agentService, cfg.Map.CampaignID)
	backup.RegisterRoutes(authed, backup.NewHandler(backupService))

	// --- library plugin ---
	library.RegisterRoutes(authed, library.NewHandler(library.NewLibraryService(library.NewLinkRepository(a.Docs))))
}

// healthResponse is the /healthz body.
type healthResponse struct {
	Status string `json:"status"`
	Remote string `json:"remote"`
	Redis  string `json:"redis,omitempty"`
}

// health reports liveness. Running on the local cache alone is healthy; an
// attached remote store or Redis that stops answering is not.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Remote: "connected"}
	code := http.StatusOK

	if err := a.Docs.Ping(ctx); err != nil {
		if errors.Is(err, docstore.ErrOffline) {
			resp.Remote = "offline"
		} else {
			resp.Remote = "unreachable"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if a.Redis != nil {
		resp.Redis = "connected"
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			resp.Redis = "unreachable"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, resp)
}
