package db

import (
	"context"
	"fmt"

	"github.com/cozy-creator/image-ingest/internal/config"
	"github.com/cozy-creator/image-ingest/internal/db/drivers"

	"github.com/uptrace/bun/extra/bundebug"
)

func NewConnection(ctx context.Context, cfg *config.Config) (drivers.Driver, error) {
	var (
		driver drivers.Driver
		err    error
	)

	switch cfg.DB.Driver {
	case config.DBDriverSQLite:
		driver, err = drivers.NewSQLiteDriver(ctx, cfg.DB.DSN)
	case config.DBDriverPG:
		driver, err = drivers.NewPGDriver(ctx, cfg.DB.DSN)
	default:
		return nil, fmt.Errorf("invalid database driver: %s", cfg.DB.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.DB.Driver, err)
	}

	driver.GetDB().AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(cfg.Environment == "dev"),
		bundebug.FromEnv("BUNDEBUG"),
	))

	return driver, nil
}
