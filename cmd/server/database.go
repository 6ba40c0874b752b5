package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/platform/memory"
	"github.com/phrazzld/genqueue/internal/platform/sqlstore"
	"github.com/phrazzld/genqueue/internal/store"
)

const memoryDriver = "memory"

// openJobStore builds the job store for the configured driver. The returned
// *sql.DB is nil for the memory driver.
func openJobStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (store.JobStore, *sql.DB, error) {
	if cfg.Driver == memoryDriver {
		logger.Info("Using in-memory job store; jobs do not survive a restart")
		return memory.NewJobStore(), nil, nil
	}

	dialect, err := sqlstore.DialectFor(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}

	db, err := sqlstore.Open(ctx, dialect, cfg.URL)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Database connection established", "driver", dialect.Name)
	return sqlstore.NewJobStore(db, dialect), db, nil
}

// runMigrations applies a goose command to the configured database.
func runMigrations(ctx context.Context, cfg config.DatabaseConfig, command string) error {
	if cfg.Driver == memoryDriver {
		return errors.New("migrations require a postgres or sqlite database driver")
	}

	dialect, err := sqlstore.DialectFor(cfg.Driver)
	if err != nil {
		return err
	}

	db, err := sqlstore.Open(ctx, dialect, cfg.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := sqlstore.Migrate(ctx, db, dialect, command); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}
