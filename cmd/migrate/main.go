package main

import (
	"context"
	"flag"
	"log"

	"boardflow/internal/automation"
	"boardflow/internal/config"
	"boardflow/internal/database"
	"boardflow/internal/services"

	"github.com/spf13/viper"
)

// Standalone schema migration for deploy pipelines that do not ship the
// full CLI.
func main() {
	cfgFile := flag.String("config", "config.yml", "config file")
	seed := flag.Bool("seed", true, "seed the automation catalog")
	flag.Parse()

	viper.SetConfigFile(*cfgFile)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("config file not read, using defaults: %v", err)
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := config.InitLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// 连接数据库
	db, err := database.Open(cfg.Database, database.Options{Logger: logger})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	logger.Info("Starting database migration...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	logger.Info("Database migration completed successfully!")

	if *seed {
		registry := automation.NewDefaultRegistry(automation.Deps{Logger: logger})
		if err := services.NewCatalogService(db, registry, logger).Seed(context.Background()); err != nil {
			log.Fatalf("Failed to seed automation catalog: %v", err)
		}
	}
}
