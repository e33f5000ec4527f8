package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mastdeals10/sapj/internal/config"
	"github.com/mastdeals10/sapj/internal/infrastructure/persistence/sqlite"
	"github.com/mastdeals10/sapj/migrations"
	"github.com/mastdeals10/sapj/pkg/database"
	"github.com/mastdeals10/sapj/pkg/utils"
)

// app holds what every subcommand needs: configuration, logger and a
// migrated database
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
	reader *database.DB
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(cfg.LoggerOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(cfg.DatabaseOptions(), logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(db, logger).RunMigrations(ctx, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Database ready", zap.String("path", cfg.Database.Path), zap.Int("migrations_applied", applied))

	reader, err := database.NewReader(cfg.DatabaseOptions(), logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}

	return &app{cfg: cfg, logger: logger, db: db, reader: reader}, nil
}

// store wraps both pools for the repositories and the invoice service
func (a *app) store() *sqlite.DB {
	return sqlite.NewDB(a.db.DB, a.logger, sqlite.WithReader(a.reader.DB))
}

func (a *app) Close() {
	if err := a.reader.Close(); err != nil {
		a.logger.Error("Failed to close read pool", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
