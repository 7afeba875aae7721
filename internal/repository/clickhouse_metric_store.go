package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TradeOps/internal/domain/models"
	domrepo "TradeOps/internal/domain/repository"
	pkgch "TradeOps/pkg/clickhouse"
	applogger "TradeOps/pkg/logger"
)

const metricsTable = "metrics"

var metricsSchema = []string{
	`CREATE TABLE IF NOT EXISTS metrics (
        name String,
        value Float64,
        ts DateTime64(3),
        tags Map(String, String)
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMMDD(ts)
    ORDER BY (name, ts)
    TTL toDateTime(ts) + INTERVAL 30 DAY`,
}

// CHMetricStore implements MetricStore backed by ClickHouse.
type CHMetricStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

// NewCHMetricStore creates ClickHouse metric storage.
func NewCHMetricStore(ch *pkgch.Client, l *applogger.Logger) domrepo.MetricStore {
	return &CHMetricStore{client: ch, db: ch.DB(), l: l.With("metric_store")}
}

// Init ensures the metrics table exists.
func (s *CHMetricStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, metricsSchema)
}

// StoreBatch inserts all points in one statement per chunk. Either the whole
// chunk lands or the error propagates; there are no partial writes within a
// chunk.
func (s *CHMetricStore) StoreBatch(ctx context.Context, metrics []*models.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(metrics); start += chunkSize {
		end := start + chunkSize
		if end > len(metrics) {
			end = len(metrics)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*4)
		for _, m := range metrics[start:end] {
			if m == nil || m.Name == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?)")
			args = append(args, m.Name, m.Value, m.Timestamp, m.Tags)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (name, value, ts, tags) VALUES %s", metricsTable, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("metric batch insert error",
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("store metrics: %w: %v", models.ErrStorageWrite, err)
		}
	}
	return nil
}

// Query returns metric points for a name in [from, to], newest first.
// Tag filters are ANDed; an empty tag map matches everything.
func (s *CHMetricStore) Query(ctx context.Context, name string, from, to time.Time, tags map[string]string, limit int) ([]*models.Metric, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT name, value, ts, tags FROM %s WHERE name = ? AND ts >= ? AND ts <= ?", metricsTable))
	args := []interface{}{name, from, to}
	for k, v := range tags {
		sb.WriteString(" AND tags[?] = ?")
		args = append(args, k, v)
	}
	sb.WriteString(" ORDER BY ts DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		s.l.Error("metric query error", applogger.String("name", name), applogger.Error(err))
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*models.Metric
	for rows.Next() {
		var m models.Metric
		if err := rows.Scan(&m.Name, &m.Value, &m.Timestamp, &m.Tags); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Stats computes min/max/avg/count for a metric over [from, to].
func (s *CHMetricStore) Stats(ctx context.Context, name string, from, to time.Time) (*models.MetricStats, error) {
	q := fmt.Sprintf(`
        SELECT min(value), max(value), avg(value), count()
        FROM %s
        WHERE name = ? AND ts >= ? AND ts <= ?
    `, metricsTable)

	st := &models.MetricStats{Name: name}
	var min, max, avg sql.NullFloat64
	row := s.db.QueryRowContext(ctx, q, name, from, to)
	if err := row.Scan(&min, &max, &avg, &st.Count); err != nil {
		s.l.Error("metric stats error", applogger.String("name", name), applogger.Error(err))
		return nil, fmt.Errorf("metric stats: %w", err)
	}
	st.Min = min.Float64
	st.Max = max.Float64
	st.Avg = avg.Float64
	return st, nil
}

// Health pings the database.
func (s *CHMetricStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by pkg/clickhouse.
func (s *CHMetricStore) Close() error {
	return nil
}
