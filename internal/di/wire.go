//go:build wireinject
// +build wireinject

package di

import (
	"TradeOps/pkg/config"
	"TradeOps/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideOrderStore,
		ProvideMetricStore,

		// External collaborators
		ProvideMarketStream,
		ProvideExchangeClient,
		ProvideWebhookSink,
		ProvideAlertSink,
		ProvideAlertRelay,

		// Core components
		ProvideMarketDataHub,
		ProvideOrderQueue,
		ProvideMonitoringHub,

		// HTTP
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
