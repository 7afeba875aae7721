package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksIngested   *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	reconnectsTotal prometheus.Counter
	ordersProcessed *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	flushesTotal    *prometheus.CounterVec
	flushSize       prometheus.Histogram
	alertsFired     *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeops_ticks_ingested_total",
				Help: "Total number of market ticks ingested from upstream",
			},
			[]string{"symbol"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradeops_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		reconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tradeops_stream_reconnects_total",
				Help: "Total number of upstream stream reconnect attempts",
			},
		),
		ordersProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeops_orders_processed_total",
				Help: "Total number of orders reaching a status",
			},
			[]string{"status"},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradeops_order_queue_depth",
				Help: "Current number of orders waiting in the queue",
			},
		),
		flushesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeops_metric_flushes_total",
				Help: "Total number of metric buffer flushes",
			},
			[]string{"outcome"},
		),
		flushSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradeops_metric_flush_size",
				Help:    "Number of metric points per flush",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		alertsFired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeops_alerts_fired_total",
				Help: "Total number of alerts fired per rule",
			},
			[]string{"rule"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeops_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeops_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTickIngested records a tick received from the upstream stream.
func (r *Recorder) RecordTickIngested(symbol string) {
	r.ticksIngested.WithLabelValues(symbol).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordReconnect records a stream reconnect attempt.
func (r *Recorder) RecordReconnect() {
	r.reconnectsTotal.Inc()
}

// RecordOrderProcessed records an order reaching a status.
func (r *Recorder) RecordOrderProcessed(status string) {
	r.ordersProcessed.WithLabelValues(status).Inc()
}

// RecordQueueDepth records the current order queue depth.
func (r *Recorder) RecordQueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}

// RecordFlush records a metric buffer flush.
func (r *Recorder) RecordFlush(size int, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.flushesTotal.WithLabelValues(outcome).Inc()
	r.flushSize.Observe(float64(size))
}

// RecordAlertFired records an alert fired for a rule.
func (r *Recorder) RecordAlertFired(rule string) {
	r.alertsFired.WithLabelValues(rule).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
