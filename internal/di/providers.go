package di

import (
	"context"
	"fmt"
	"time"

	"TradeOps/internal/domain/repository"
	"TradeOps/internal/handler/api"
	"TradeOps/internal/marketdata"
	"TradeOps/internal/monitoring"
	"TradeOps/internal/orderqueue"
	internalrepo "TradeOps/internal/repository"
	"TradeOps/internal/service/alert"
	"TradeOps/internal/service/exchange"
	"TradeOps/internal/service/stream"
	pkgch "TradeOps/pkg/clickhouse"
	"TradeOps/pkg/config"
	xhttp "TradeOps/pkg/http"
	pkgkafka "TradeOps/pkg/kafka"
	applogger "TradeOps/pkg/logger"
	"TradeOps/pkg/metrics"
	"TradeOps/pkg/retry"
	"TradeOps/pkg/server"

	goredis "github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRedisClient creates a Redis client and verifies connectivity.
func ProvideRedisClient(cfg *config.Config) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// ProvideKafkaProducer creates a Kafka producer. Returns nil when no brokers
// are configured; alerting then falls back to direct webhook delivery.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Alerts.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Alerts.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Alerts.Kafka.Compression),
		pkgkafka.WithRequiredAcks(-1),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the alert relay consumer. Nil without brokers.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if len(cfg.Alerts.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Alerts.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Alerts.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Alerts.Kafka.Workers),
		pkgkafka.WithConsumerRetry(cfg.Alerts.Kafka.RetryMax, cfg.Alerts.Kafka.BackoffMin, cfg.Alerts.Kafka.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Alerts.Kafka.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideWebhookSink creates the webhook delivery sink.
func ProvideWebhookSink(cfg *config.Config, l *applogger.Logger) *alert.WebhookSink {
	return alert.NewWebhookSink(cfg.Alerts.WebhookURL, cfg.Alerts.Timeout, l)
}

// ProvideAlertRelay creates the Kafka->webhook relay handler. Nil without a
// Kafka pipeline; the monitoring hub then dispatches straight to the webhook.
func ProvideAlertRelay(cfg *config.Config, webhook *alert.WebhookSink, l *applogger.Logger) *alert.RelayHandler {
	if len(cfg.Alerts.Kafka.Brokers) == 0 || cfg.Alerts.Kafka.Topic == "" {
		return nil
	}
	return alert.NewRelayHandler(cfg.Alerts.Kafka.Topic, webhook, l)
}

// ProvideAlertSink picks the hub-facing sink: the Kafka topic when a
// pipeline is configured, the webhook directly otherwise.
func ProvideAlertSink(cfg *config.Config, producer *pkgkafka.Producer, webhook *alert.WebhookSink, l *applogger.Logger) repository.AlertSink {
	if producer != nil && cfg.Alerts.Kafka.Topic != "" {
		return alert.NewKafkaSink(producer, cfg.Alerts.Kafka.Topic, l)
	}
	return webhook
}

// ProvideMarketStream creates the venue WebSocket stream.
func ProvideMarketStream(cfg *config.Config, l *applogger.Logger) repository.MarketStream {
	return stream.New(
		cfg.MarketData.APIKey,
		cfg.MarketData.WebSocketURL,
		cfg.MarketData.ConnectTimeout,
		cfg.MarketData.PingInterval,
		l,
	)
}

// ProvideMarketDataHub creates the market data hub.
func ProvideMarketDataHub(ms repository.MarketStream, cfg *config.Config, m repository.Metrics, l *applogger.Logger) *marketdata.Hub {
	return marketdata.NewHub(ms, marketdata.Options{
		Symbols:              cfg.MarketData.Symbols,
		CacheTTL:             cfg.MarketData.CacheTTL,
		MaxReconnectAttempts: cfg.MarketData.MaxReconnectAttempts,
		ReconnectDelay:       cfg.MarketData.ReconnectDelay,
	}, m, l)
}

// ProvideOrderStore creates the Redis-backed order store.
func ProvideOrderStore(rdb *goredis.Client, cfg *config.Config, l *applogger.Logger) repository.OrderStore {
	return internalrepo.NewRedisOrderStore(rdb, cfg.Redis.KeyPrefix, l)
}

// ProvideMetricStore creates the ClickHouse-backed metric store.
func ProvideMetricStore(ch *pkgch.Client, l *applogger.Logger) repository.MetricStore {
	return internalrepo.NewCHMetricStore(ch, l)
}

// ProvideExchangeClient creates the venue order client.
func ProvideExchangeClient(cfg *config.Config, l *applogger.Logger) repository.ExchangeClient {
	return exchange.New(cfg.Exchange.BaseURL, cfg.Exchange.APIKey, cfg.Exchange.Timeout, l)
}

// ProvideOrderQueue creates the order queue.
func ProvideOrderQueue(store repository.OrderStore, exch repository.ExchangeClient, cfg *config.Config, m repository.Metrics, l *applogger.Logger) *orderqueue.Queue {
	return orderqueue.New(store, exch, orderqueue.Options{
		MaxRetries:     cfg.OrderQueue.MaxRetries,
		ExecuteTimeout: cfg.OrderQueue.ExecuteTimeout,
		RequeueHead:    cfg.OrderQueue.RequeueHead,
		Retry: retry.Options{
			InitialDelay:  cfg.OrderQueue.Retry.InitialDelay,
			BackoffFactor: cfg.OrderQueue.Retry.BackoffFactor,
		},
	}, m, l)
}

// ProvideMonitoringHub creates the monitoring hub.
func ProvideMonitoringHub(store repository.MetricStore, sink repository.AlertSink, cfg *config.Config, m repository.Metrics, l *applogger.Logger) *monitoring.Hub {
	return monitoring.NewHub(store, sink, monitoring.Options{
		BufferSize:    cfg.Monitoring.BufferSize,
		FlushInterval: cfg.Monitoring.FlushInterval,
		FlushRetry: retry.Options{
			MaxAttempts:   cfg.Monitoring.FlushRetry.MaxAttempts,
			InitialDelay:  cfg.Monitoring.FlushRetry.InitialDelay,
			BackoffFactor: cfg.Monitoring.FlushRetry.BackoffFactor,
		},
	}, m, l)
}

// ProvideHTTPHandler creates the ops API handler.
func ProvideHTTPHandler(l *applogger.Logger, market *marketdata.Hub, orders *orderqueue.Queue, monitor *monitoring.Hub) xhttp.Handler {
	return api.NewOpsHandler(l, market, orders, monitor)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	market *marketdata.Hub,
	orders *orderqueue.Queue,
	monitor *monitoring.Hub,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	relay *alert.RelayHandler,
	chClient *pkgch.Client,
	rdb *goredis.Client,
) *server.App {
	return server.New(cfg, l, market, orders, monitor, handler, consumer, relay, chClient, rdb)
}
