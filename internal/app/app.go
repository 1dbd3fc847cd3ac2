// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (document service, Redis client, Echo
// instance) and wires the plugins together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/tabletop/internal/apperror"
	"github.com/keyxmakerx/tabletop/internal/config"
	"github.com/keyxmakerx/tabletop/internal/docstore"
	"github.com/keyxmakerx/tabletop/internal/middleware"
	"github.com/keyxmakerx/tabletop/internal/plugins/agents"
	"github.com/keyxmakerx/tabletop/internal/plugins/settings"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// Docs is the document service: local cache plus optional remote store.
	Docs *docstore.Service

	// Redis is the optional Redis client for sessions, change notifications
	// and dice history. Nil when Redis is disabled.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Set by RegisterRoutes.
	agents   agents.AgentService
	settings settings.SettingsService
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, docs *docstore.Service, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() must return the client behind the reverse proxy; rate
	// limits key on it.
	if err := middleware.TrustedProxies(e, cfg.TrustedProxies); err != nil {
		slog.Warn("ignoring trusted proxies", slog.Any("error", err))
	}

	app := &App{
		Config: cfg,
		Docs:   docs,
		Redis:  rdb,
		Echo:   e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	a.Echo.Use(middleware.SecurityHeaders(strings.HasPrefix(a.Config.BaseURL, "https://")))

	// The table client is served from its own origin and sends the session
	// cookie with every call.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.Config.CORSOrigins,
		AllowCredentials: true,
	}))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) and Echo's own HTTP errors to JSON responses. Causes of
// internal errors are logged, never returned to the client.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "an unexpected error occurred"

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		// Router errors (404, 405) and binder errors.
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = defaultErrorMessage(code)
		}
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{
		"error":   http.StatusText(code),
		"message": message,
	})
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "the request was invalid or cannot be processed"
	case http.StatusUnauthorized:
		return "you need to log in"
	case http.StatusForbidden:
		return "you don't have permission to access this resource"
	case http.StatusNotFound:
		return "not found"
	case http.StatusMethodNotAllowed:
		return "this action is not allowed"
	case http.StatusRequestEntityTooLarge:
		return "the request body is too large"
	case http.StatusTooManyRequests:
		return "too many requests, please slow down"
	case http.StatusServiceUnavailable:
		return "the service is temporarily unavailable"
	default:
		return "an unexpected error occurred"
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting tabletop server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.Bool("remote_store", a.Docs.Online()),
	)
	return a.Echo.Start(addr)
}

// RestoreStore reconnects the remote store an admin connected in an earlier
// run. Does nothing before RegisterRoutes.
func (a *App) RestoreStore(ctx context.Context) error {
	if a.settings == nil {
		return nil
	}
	return a.settings.Restore(ctx)
}

// Shutdown stops accepting requests, waits for in-flight ones and then
// writes pending character sheet edits.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Echo.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping http server: %w", err))
	}
	if a.agents != nil {
		if err := a.agents.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing pending edits: %w", err))
		}
	}
	return errors.Join(errs...)
}
