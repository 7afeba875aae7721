package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeOps/internal/domain/models"
	drepo "TradeOps/internal/domain/repository"
	applogger "TradeOps/pkg/logger"
	"TradeOps/pkg/retry"

	"github.com/go-playground/validator/v10"
)

// Options configures a Hub.
type Options struct {
	BufferSize    int
	FlushInterval time.Duration
	FlushRetry    retry.Options
}

// Hub buffers metric points, flushes them to durable storage in batches and
// evaluates alert rules on every recorded point. Flushing is all-or-nothing
// per cycle: a failed batch is retried and then re-buffered, never dropped.
type Hub struct {
	store    drepo.MetricStore
	sink     drepo.AlertSink
	opts     Options
	logger   *applogger.Logger
	metrics  drepo.Metrics
	validate *validator.Validate

	mu     sync.Mutex
	buffer []*models.Metric
	rules  map[string]models.AlertRule

	flushReq chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a monitoring hub. Start launches the flush loop.
func NewHub(store drepo.MetricStore, sink drepo.AlertSink, opts Options, m drepo.Metrics, l *applogger.Logger) *Hub {
	return &Hub{
		store:    store,
		sink:     sink,
		opts:     opts,
		logger:   l.With("monitoring"),
		metrics:  m,
		validate: validator.New(),
		buffer:   make([]*models.Metric, 0, opts.BufferSize),
		rules:    make(map[string]models.AlertRule),
		flushReq: make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start launches the periodic flush loop.
func (h *Hub) Start(ctx context.Context) error {
	if err := h.store.Init(ctx); err != nil {
		return fmt.Errorf("metric store init: %w", err)
	}
	h.wg.Add(1)
	go h.flushLoop(ctx)
	return nil
}

// RecordMetric validates and buffers a point, evaluates alert rules and
// triggers an immediate flush when the buffer hits BufferSize.
func (h *Hub) RecordMetric(ctx context.Context, m *models.Metric) error {
	if m == nil {
		return fmt.Errorf("%w: nil metric", models.ErrValidation)
	}
	if err := h.validate.StructCtx(ctx, m); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	h.mu.Lock()
	h.buffer = append(h.buffer, m)
	full := len(h.buffer) >= h.opts.BufferSize
	h.mu.Unlock()

	h.checkAlerts(ctx, m)

	if full {
		select {
		case h.flushReq <- struct{}{}:
		default:
		}
	}
	return nil
}

// checkAlerts fires every matching rule independently. Dispatch is
// fire-and-forget; delivery failures never reach the metric path.
func (h *Hub) checkAlerts(ctx context.Context, m *models.Metric) {
	h.mu.Lock()
	matched := make([]models.AlertRule, 0, 2)
	for _, r := range h.rules {
		if r.MetricName == m.Name && r.Matches(m.Value) {
			matched = append(matched, r)
		}
	}
	h.mu.Unlock()

	for _, r := range matched {
		a := &models.Alert{
			RuleID:      r.ID,
			MetricName:  m.Name,
			Value:       m.Value,
			Threshold:   r.Threshold,
			Severity:    r.Severity,
			Description: fmt.Sprintf("%s is %s threshold %g (value %g)", m.Name, r.Condition, r.Threshold, m.Value),
			Timestamp:   time.Now(),
		}
		h.metrics.RecordAlertFired(r.ID)
		h.logger.Warn("alert fired",
			applogger.String("rule", r.ID),
			applogger.String("metric", m.Name),
			applogger.Float64("value", m.Value),
			applogger.Float64("threshold", r.Threshold),
		)
		h.Dispatch(ctx, a)
	}
}

// Dispatch sends an alert to the sink without waiting on delivery. Also used
// directly for hub-level operational alerts (e.g. lost upstream
// connectivity).
func (h *Hub) Dispatch(ctx context.Context, a *models.Alert) {
	go func() {
		if err := h.sink.Dispatch(ctx, a); err != nil {
			h.metrics.RecordError("alert_dispatch")
		}
	}()
}

func (h *Hub) flushLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.flush(ctx)
		case <-h.flushReq:
			h.flush(ctx)
		}
	}
}

// flush writes the current buffer as one batch. On retry exhaustion the
// batch is put back in front of the buffer so ingestion order survives.
func (h *Hub) flush(ctx context.Context) {
	h.mu.Lock()
	batch := h.buffer
	h.buffer = make([]*models.Metric, 0, h.opts.BufferSize)
	h.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	start := time.Now()
	_, err := retry.Do(ctx, h.logger, "metric_flush", h.opts.FlushRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.store.StoreBatch(ctx, batch)
	})
	h.metrics.RecordLatency("metric_flush", time.Since(start).Seconds())

	if err != nil {
		h.mu.Lock()
		h.buffer = append(batch, h.buffer...)
		h.mu.Unlock()
		h.metrics.RecordFlush(len(batch), false)
		h.logger.Error("flush failed, batch re-buffered",
			applogger.Int("size", len(batch)),
			applogger.Error(err),
		)
		return
	}

	h.metrics.RecordFlush(len(batch), true)
	h.logger.Debug("flushed metrics", applogger.Int("size", len(batch)))
}

// AddRule registers or replaces an alert rule.
func (h *Hub) AddRule(ctx context.Context, r models.AlertRule) error {
	if err := h.validate.StructCtx(ctx, &r); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	h.mu.Lock()
	h.rules[r.ID] = r
	h.mu.Unlock()
	h.logger.Info("alert rule added",
		applogger.String("rule", r.ID),
		applogger.String("metric", r.MetricName),
	)
	return nil
}

// RemoveRule deletes a rule by id, reporting whether it existed.
func (h *Hub) RemoveRule(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rules[id]; !ok {
		return false
	}
	delete(h.rules, id)
	return true
}

// Rules returns a snapshot of configured rules.
func (h *Hub) Rules() []models.AlertRule {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.AlertRule, 0, len(h.rules))
	for _, r := range h.rules {
		out = append(out, r)
	}
	return out
}

// GetMetrics queries stored points for a name over a time range.
func (h *Hub) GetMetrics(ctx context.Context, name string, from, to time.Time, tags map[string]string, limit int) ([]*models.Metric, error) {
	return h.store.Query(ctx, name, from, to, tags, limit)
}

// GetMetricStats aggregates min/max/avg/count over a time range.
func (h *Hub) GetMetricStats(ctx context.Context, name string, from, to time.Time) (*models.MetricStats, error) {
	return h.store.Stats(ctx, name, from, to)
}

// Cleanup stops the flush loop and performs one final flush.
func (h *Hub) Cleanup(ctx context.Context) {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
	h.wg.Wait()
	h.flush(ctx)
	h.logger.Info("monitoring hub cleaned up")
}
