// Package main is a terminal viewer for a running tabletop server. It signs
// in with TABLETOP_TOKEN or TABLETOP_USER/TABLETOP_PASSWORD, follows the
// shared map and reads pointer and viewport commands from stdin.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/keyxmakerx/tabletop/internal/config"
	"github.com/keyxmakerx/tabletop/internal/viewer"
)

func main() {
	// Logs go to stderr so they do not interleave with the table on stdout.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg, err := config.LoadViewer()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := viewer.Open(ctx, cfg, os.Stdout)
	if err != nil {
		slog.Error("failed to connect", slog.String("server", cfg.ServerURL), slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Fprintln(os.Stdout, `connected; type "help" for commands`)

	if err := session.Run(ctx, os.Stdin); err != nil {
		slog.Error("viewer stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
