//go:build wireinject
// +build wireinject

package di

import (
	"TrainCtl/pkg/config"
	"TrainCtl/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Engine
		ProvideTopology,
		ProvideStateStore,
		ProvideConflictDetector,
		ProvidePriorityTable,
		ProvideDecisionEngine,

		// Infrastructure clients and repositories
		ProvideClickHouseClient,
		ProvideHistory,
		ProvideHistoryPipeline,
		ProvideDecisionPublisher,
		ProvideRedisCache,
		ProvideDecisionCache,
		ProvideStateMirror,
		ProvideKafkaConsumer,

		// Use cases and transport
		ProvideBroker,
		ProvideTrafficController,
		ProvideKafkaStatusHandler,
		ProvideHTTPHandler,
		ProvideRateLimiter,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
