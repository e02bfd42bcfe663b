//go:build wireinject
// +build wireinject

package di

import (
	"OptiFlow/pkg/config"
	"OptiFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Domain data
		ProvideResolver,
		ProvideCache,
		ProvideSnapshotStore,
		ProvideHistoricalStore,
		ProvideHistorySink,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideTickRelay,
		ProvideSnapshotArchive,

		// Core pipeline
		ProvideHub,
		ProvideEngine,
		ProvideMarketStream,
		ProvideCollector,

		// Surfaces
		ProvideHTTPHandler,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
