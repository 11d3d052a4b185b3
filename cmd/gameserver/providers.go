package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/jobwars/internal/config"
	"github.com/cory-johannsen/jobwars/internal/gateway"
	"github.com/cory-johannsen/jobwars/internal/observability"
	"github.com/cory-johannsen/jobwars/internal/server"
	"github.com/cory-johannsen/jobwars/internal/session"
	"github.com/cory-johannsen/jobwars/internal/storage/postgres"
	"github.com/cory-johannsen/jobwars/internal/storage/statscache"
)

// app is the assembled server.
type app struct {
	logger    *zap.Logger
	lifecycle *server.Lifecycle
}

func newApp(logger *zap.Logger, lifecycle *server.Lifecycle) *app {
	return &app{logger: logger, lifecycle: lifecycle}
}

func provideLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger, nil
}

func providePool(ctx context.Context, cfg config.Config, logger *zap.Logger) (*postgres.Pool, func(), error) {
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	return pool, pool.Close, nil
}

func provideMatchRepository(pool *postgres.Pool) *postgres.MatchRepository {
	return postgres.NewMatchRepository(pool.DB())
}

// provideStatsStore puts the Redis cache in front of the repository when
// it is enabled.
func provideStatsStore(cfg config.Config, repo *postgres.MatchRepository, logger *zap.Logger) (statscache.Store, func()) {
	if !cfg.Redis.Enabled {
		return repo, func() {}
	}
	client := statscache.NewClient(cfg.Redis)
	logger.Info("stats cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing redis client", zap.Error(err))
		}
	}
	return statscache.New(client, repo, cfg.Redis.TTL, logger), cleanup
}

func provideHub(cfg config.Config, logger *zap.Logger, store statscache.Store) *session.Hub {
	return session.NewHub(cfg.Session, logger, store)
}

func provideGateway(cfg config.Config, hub *session.Hub, store statscache.Store, logger *zap.Logger) *gateway.Server {
	return gateway.NewServer(cfg.HTTP, hub, store, logger)
}

// provideLifecycle starts the hub before the gateway, so the gateway stops
// accepting connections before the hub closes the open ones.
func provideLifecycle(ctx context.Context, logger *zap.Logger, hub *session.Hub, gw *gateway.Server) *server.Lifecycle {
	lc := server.NewLifecycle(logger)
	lc.Add("session-hub", &server.FuncService{
		StartFn: func() error { return hub.Run(ctx) },
		StopFn:  hub.Stop,
	})
	lc.Add("gateway", gw)
	return lc
}
