//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/cory-johannsen/jobwars/internal/config"
)

func initializeApp(ctx context.Context, cfg config.Config) (*app, func(), error) {
	wire.Build(
		provideLogger,
		providePool,
		provideMatchRepository,
		provideStatsStore,
		provideHub,
		provideGateway,
		provideLifecycle,
		newApp,
	)
	return nil, nil, nil
}
