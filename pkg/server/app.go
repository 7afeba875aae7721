package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradeOps/internal/domain/models"
	"TradeOps/internal/marketdata"
	"TradeOps/internal/monitoring"
	"TradeOps/internal/orderqueue"
	"TradeOps/internal/service/alert"
	pkgch "TradeOps/pkg/clickhouse"
	"TradeOps/pkg/config"
	xhttp "TradeOps/pkg/http"
	pkgkafka "TradeOps/pkg/kafka"
	applogger "TradeOps/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	market     *marketdata.Hub
	orders     *orderqueue.Queue
	monitor    *monitoring.Hub
	handler    xhttp.Handler
	consumer   *pkgkafka.Consumer
	relay      *alert.RelayHandler
	chClient   *pkgch.Client
	rdb        *goredis.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
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
) *App {
	return &App{
		cfg:      cfg,
		logger:   l,
		market:   market,
		orders:   orders,
		monitor:  monitor,
		handler:  handler,
		consumer: consumer,
		relay:    relay,
		chClient: chClient,
		rdb:      rdb,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger

	// Monitoring first so the other components can emit from the start.
	if err := a.monitor.Start(ctx); err != nil {
		l.Error("monitoring start error", applogger.Error(err))
		return err
	}

	if err := a.orders.Start(ctx); err != nil {
		l.Error("order queue start error", applogger.Error(err))
		return err
	}

	if err := a.market.Start(ctx); err != nil {
		// Degraded start: the API and queue still work without live ticks.
		l.Error("market data start error", applogger.Error(err))
	} else {
		l.Info("market data hub started", applogger.Strings("symbols", a.cfg.MarketData.Symbols))
	}

	// Surface reconnect exhaustion as a critical operational alert.
	go a.watchConnectivity(ctx)

	if a.consumer != nil && a.relay != nil {
		a.consumer.RegisterHandler(a.relay)
		if err := a.consumer.Start(); err != nil {
			l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		l.Info("alert relay started", applogger.String("topic", a.relay.Topic()))
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithServerTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(l, 1*time.Second),
	)
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown()
}

// watchConnectivity turns fatal hub errors into critical alerts so an
// operator hears about a dead feed instead of reading stale prices.
func (a *App) watchConnectivity(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-a.market.Errors():
			if !ok {
				return
			}
			a.logger.Error("market data connectivity lost", applogger.Error(err))
			a.monitor.Dispatch(ctx, &models.Alert{
				RuleID:      "system:stream-connectivity",
				MetricName:  "stream_connected",
				Value:       0,
				Threshold:   1,
				Severity:    "critical",
				Description: "upstream market data stream lost: " + err.Error(),
				Timestamp:   time.Now(),
			})
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	l := a.logger
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.orders.Stop(ctx); err != nil {
		l.Warn("order queue stop error", applogger.Error(err))
	}

	a.market.Cleanup()

	// Final flush happens here; everything buffered lands before exit.
	a.monitor.Cleanup(ctx)

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
