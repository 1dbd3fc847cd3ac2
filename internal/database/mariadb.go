// Package database opens the connections the document service runs on: the
// local SQLite cache, the optional MariaDB remote store and Redis.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Registers the "mysql" driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/tabletop/internal/config"
)

const (
	pingTimeout = 5 * time.Second
	maxBackoff  = 30 * time.Second
)

// NewMariaDB opens a pool for the remote store and waits until it answers a
// ping. ctx bounds the whole wait.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := waitForPing(ctx, db, max(cfg.ConnectRetries, 1)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// waitForPing pings db up to attempts times, doubling the pause between
// tries. The server container may still be starting when we come up.
func waitForPing(ctx context.Context, db *sql.DB, attempts int) error {
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt >= attempts {
			return fmt.Errorf("pinging mariadb after %d attempts: %w", attempt, err)
		}

		slog.Warn("mariadb not ready",
			slog.Int("attempt", attempt),
			slog.Int("attempts", attempts),
			slog.Duration("retry_in", backoff),
			slog.Any("error", err),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("pinging mariadb: %w", ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
