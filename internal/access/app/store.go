package app

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store/drivers/postgres"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store/drivers/sqlite"
)

// OpenStore connects to the configured database without migrating it.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		st, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return st, nil
	case "sqlite", "":
		st, err := sqlite.NewStore("file:" + cfg.DatabaseFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// OpenMigratedStore opens the store and applies pending migrations.
func OpenMigratedStore(ctx context.Context, cfg Config) (store.Store, error) {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return st, nil
}
