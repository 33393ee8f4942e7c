//go:build wireinject
// +build wireinject

package di

import (
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideClock,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,

		// Repositories
		ProvideStore,
		ProvideNotifier,
		ProvideDeduper,
		ProvideLayeredCache,

		// Providers and fetching
		ProvideFetcher,
		ProvideSources,
		ProvideTrendingSource,
		ProvideCalendarSource,
		ProvideResponseCache,

		// Use cases
		ProvideResolver,
		ProvideCorrelationEngine,
		ProvideNarrativeClassifier,
		ProvideAlertEngine,
		ProvideScheduler,
		ProvideExchangeStream,
		ProvideTickCollector,
		ProvideCandidateHandler,

		// HTTP surface and application
		ProvideOpsHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
