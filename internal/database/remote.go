package database

import (
	"context"
	"strings"

	"github.com/keyxmakerx/tabletop/internal/config"
	"github.com/keyxmakerx/tabletop/internal/docstore"
)

// OpenRemoteStore connects to MariaDB with cfg, applies the migrations and
// returns the remote document store.
func OpenRemoteStore(ctx context.Context, cfg config.DatabaseConfig) (*docstore.MariaDBStore, error) {
	db, err := NewMariaDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := RunMigrations(db, cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, err
	}
	return docstore.NewMariaDBStore(db), nil
}

// RemoteConnector returns the docstore.Connector used when an admin connects
// a store at runtime. Pool settings come from base; the DSN from the request.
// A single ping is attempted so an unreachable store fails fast.
func RemoteConnector(base config.DatabaseConfig) docstore.Connector {
	return func(ctx context.Context, rc docstore.RemoteConfig) (docstore.RemoteStore, error) {
		cfg := base.WithDSN(strings.TrimSpace(rc.DSN))
		cfg.ConnectRetries = 1
		remote, err := OpenRemoteStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return remote, nil
	}
}
