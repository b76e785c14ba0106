package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/persistence"
	"github.com/spec-kit/orderdesk/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	ctx := cmd.Context()

	if cfg.Postgres.DSN == "" {
		db, err := persistence.NewSQLite(cfg.SQLite, repository.GormModels(), logger)
		if err != nil {
			return err
		}
		logger.Info("sqlite schema up to date", zap.String("path", cfg.SQLite.Path))
		return db.Close()
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()
	if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("postgres migrations applied")
	return nil
}
