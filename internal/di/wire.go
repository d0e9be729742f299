//go:build wireinject
// +build wireinject

package di

import (
	"SpikeWatch/internal/usecase"
	"SpikeWatch/pkg/config"
	"SpikeWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,

		// Repositories and sources
		ProvideStreamSampler,
		ProvideMarketData,
		ProvideStateStore,
		ProvideTradeArchive,
		ProvideNotifiers,
		ProvideNotificationPipeline,
		ProvideDispatcher,

		// Use cases
		usecase.NewBook,
		usecase.NewStats,
		ProvideCooldown,
		ProvideScanner,
		ProvideTradeTracker,
		ProvideWatchlist,
		ProvideTradingCore,
		ProvideScheduler,

		// HTTP
		ProvideStatusHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
