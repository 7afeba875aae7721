package repository

import (
	"context"
	"errors"
	"time"

	"TradeOps/internal/domain/models"
)

// ErrOrderNotFound is returned by OrderStore when an id has no record.
var ErrOrderNotFound = errors.New("order not found")

// MarketStream is an upstream market data connection. A single stream
// carries ticks for every subscribed symbol.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Close() error
	IsConnected() bool
}

// OrderStore persists orders and their lifecycle state.
type OrderStore interface {
	Save(ctx context.Context, o *models.Order) error
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus, retryCount int, errMsg string) error
	Get(ctx context.Context, id string) (*models.Order, error)
	ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error)
	Close() error
}

// MetricStore persists metric points and serves range/stat queries.
type MetricStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	StoreBatch(ctx context.Context, metrics []*models.Metric) error
	Query(ctx context.Context, name string, from, to time.Time, tags map[string]string, limit int) ([]*models.Metric, error)
	Stats(ctx context.Context, name string, from, to time.Time) (*models.MetricStats, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// ExchangeClient submits orders to the trading venue.
type ExchangeClient interface {
	SubmitOrder(ctx context.Context, o *models.Order) (*models.Execution, error)
}

// AlertSink receives fired alerts. Dispatch must not block the caller on
// delivery outcome.
type AlertSink interface {
	Dispatch(ctx context.Context, a *models.Alert) error
	Close() error
}

type Metrics interface {
	RecordTickIngested(symbol string)
	RecordLastPrice(symbol string, price float64)
	RecordReconnect()
	RecordOrderProcessed(status string)
	RecordQueueDepth(depth int)
	RecordFlush(size int, success bool)
	RecordAlertFired(rule string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
