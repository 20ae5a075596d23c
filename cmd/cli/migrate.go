package cli

import (
	"context"
	"fmt"

	"boardflow/internal/automation"
	"boardflow/internal/config"
	"boardflow/internal/database"
	"boardflow/internal/repository"
	"boardflow/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	migrateSeed      bool
	migratePurgeDays int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := config.InitLogger(cfg)
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.Database, database.Options{Logger: logger})
		if err != nil {
			return err
		}
		defer database.Close(db)
		return migrate(cmd.Context(), db, logger, migrateSeed, migratePurgeDays)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "seed the automation trigger/action catalog")
	migrateCmd.Flags().IntVar(&migratePurgeDays, "purge-logs-older-than", 0, "delete automation logs older than N days")
	rootCmd.AddCommand(migrateCmd)
}

// migrate runs the schema migration and the optional maintenance steps.
func migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger, seed bool, purgeDays int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("Starting database migration...")
	if err := database.Migrate(db); err != nil {
		return err
	}
	logger.Info("Database migration completed")

	if seed {
		// the catalog only lists codes that have a handler; deps are unused here
		registry := automation.NewDefaultRegistry(automation.Deps{Logger: logger})
		if err := services.NewCatalogService(db, registry, logger).Seed(ctx); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}
	if purgeDays > 0 {
		n, err := services.NewRuleService(repository.NewRuleRepository(db), nil, nil, logger).PurgeLogs(ctx, purgeDays)
		if err != nil {
			return err
		}
		logger.Infof("Purged %d automation logs", n)
	}
	return nil
}
