// Package main provides the Job Wars session server binary: the WebSocket
// gateway, the session hub and the match statistics API.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/jobwars/internal/config"
	"github.com/cory-johannsen/jobwars/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file; empty uses defaults and environment")
	migrateFirst := flag.Bool("migrate", false, "apply schema migrations before serving")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if *migrateFirst {
		version, err := postgres.Migrate(cfg.Database.DSN())
		if err != nil {
			log.Fatalf("migrating database: %v", err)
		}
		log.Printf("schema at version %d", version)
	}

	ctx := context.Background()
	a, cleanup, err := initializeApp(ctx, cfg)
	if err != nil {
		log.Fatalf("initializing server: %v", err)
	}
	defer cleanup()
	defer func() { _ = a.logger.Sync() }()

	a.logger.Info("starting session server",
		zap.String("addr", cfg.HTTP.Addr()),
		zap.Bool("stats_cache", cfg.Redis.Enabled),
		zap.Duration("startup", time.Since(start)),
	)

	if err := a.lifecycle.Run(ctx); err != nil {
		a.logger.Error("session server exited with error", zap.Error(err))
		cleanup()
		_ = a.logger.Sync()
		log.Fatalf("session server: %v", err)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.LoadDefaults()
	}
	return config.Load(path)
}
