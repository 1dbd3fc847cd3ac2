// Package main is the entry point for the tabletop server. It loads
// configuration, opens the local cache and the optional remote store and
// Redis, wires the plugins together, and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/tabletop/internal/app"
	"github.com/keyxmakerx/tabletop/internal/config"
	"github.com/keyxmakerx/tabletop/internal/database"
	"github.com/keyxmakerx/tabletop/internal/docstore"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	slog.Info("starting tabletop",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// --- Open the local cache ---
	// Always available; the server keeps working on it when the remote
	// store is absent or down.
	localDB, err := database.NewSQLite(ctx, cfg.Local.Path)
	if err != nil {
		slog.Error("failed to open local cache", slog.Any("error", err))
		os.Exit(1)
	}
	defer localDB.Close()
	slog.Info("opened local cache", slog.String("path", cfg.Local.Path))

	// --- Connect to Redis ---
	// Optional: without it sessions, change notifications and dice history
	// stay in process.
	var rdb *redis.Client
	var bus docstore.Bus
	if cfg.Redis.Enabled {
		rdb, err = database.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, continuing without it", slog.Any("error", err))
			rdb = nil
		} else {
			defer rdb.Close()
			bus = docstore.NewRedisBus(rdb)
			slog.Info("connected to Redis")
		}
	}

	docs := docstore.NewService(
		docstore.NewSQLiteStore(localDB, cfg.Local.MaxDocumentBytes),
		bus,
		database.RemoteConnector(cfg.Database),
		docstore.ServiceConfig{MaxImageBytes: cfg.Local.MaxImageBytes},
	)
	defer func() {
		if err := docs.Disconnect(); err != nil {
			slog.Warn("closing remote store", slog.Any("error", err))
		}
	}()

	// --- Create Application ---
	application := app.New(cfg, docs, rdb)
	application.RegisterRoutes()

	// --- Connect to MariaDB ---
	// A configured database is retried with backoff while it starts up.
	// Otherwise the connection an admin saved from the settings screen is
	// restored. Either way a failure leaves the server on the local cache.
	if cfg.Database.Enabled {
		remote, err := database.OpenRemoteStore(ctx, cfg.Database)
		if err != nil {
			slog.Warn("remote store unavailable, serving from local cache", slog.Any("error", err))
		} else {
			docs.Attach(remote)
			slog.Info("connected to MariaDB")
		}
	} else if err := application.RestoreStore(ctx); err != nil {
		slog.Warn("could not restore saved remote store", slog.Any("error", err))
	}

	// --- Start Server ---
	// Interrupt/term signals drain connections cleanly and write pending
	// sheet edits before the stores close.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	if err := serve(application, quit); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		_ = docs.Disconnect()
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// serve runs the HTTP server until a signal arrives on quit or the listener
// fails. A listener failure (port in use, bad bind) is returned after the
// pending edits are flushed; a graceful shutdown returns nil.
func serve(application *app.App, quit <-chan os.Signal) error {
	started := make(chan error, 1)
	go func() { started <- application.Start() }()

	var failed error
	select {
	case err := <-started:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		failed = err
	case <-quit:
		slog.Info("shutting down server...")
	}

	// Give in-flight requests 10 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		slog.Error("unclean shutdown", slog.Any("error", err))
	}
	if failed != nil {
		return failed
	}
	<-started
	return nil
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation. LOG_LEVEL overrides the default level.
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(handler))
}
