package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TradeOps/internal/domain/models"
	domrepo "TradeOps/internal/domain/repository"
	applogger "TradeOps/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisOrderStore persists orders as JSON values plus per-status index sets,
// so recovery can list non-terminal orders without scanning every key.
// The queue is the only writer; reads may come from anywhere.
type RedisOrderStore struct {
	rdb    *redis.Client
	prefix string
	l      *applogger.Logger
}

// NewRedisOrderStore creates a Redis-backed OrderStore.
func NewRedisOrderStore(rdb *redis.Client, prefix string, l *applogger.Logger) domrepo.OrderStore {
	if prefix == "" {
		prefix = "tradeops"
	}
	return &RedisOrderStore{rdb: rdb, prefix: prefix, l: l.With("order_store")}
}

func (s *RedisOrderStore) orderKey(id string) string {
	return fmt.Sprintf("%s:orders:%s", s.prefix, id)
}

func (s *RedisOrderStore) statusKey(status models.OrderStatus) string {
	return fmt.Sprintf("%s:orders:status:%s", s.prefix, status)
}

// Save writes the order record and adds it to its status index.
func (s *RedisOrderStore) Save(ctx context.Context, o *models.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.ID, err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.orderKey(o.ID), data, 0)
	pipe.SAdd(ctx, s.statusKey(o.Status), o.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus rewrites the order with the new status and moves it between
// status index sets in one transaction.
func (s *RedisOrderStore) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, retryCount int, errMsg string) error {
	o, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	prev := o.Status
	o.Status = status
	o.RetryCount = retryCount
	o.Error = errMsg
	o.UpdatedAt = time.Now()

	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", id, err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.orderKey(id), data, 0)
	if prev != status {
		pipe.SRem(ctx, s.statusKey(prev), id)
		pipe.SAdd(ctx, s.statusKey(status), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	return nil
}

// Get loads a single order by id.
func (s *RedisOrderStore) Get(ctx context.Context, id string) (*models.Order, error) {
	data, err := s.rdb.Get(ctx, s.orderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("order %s: %w", id, domrepo.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	var o models.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order %s: %w", id, err)
	}
	return &o, nil
}

// ListByStatus returns all orders currently in the given status. Index
// entries whose record disappeared are skipped and cleaned up.
func (s *RedisOrderStore) ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error) {
	ids, err := s.rdb.SMembers(ctx, s.statusKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s orders: %w", status, err)
	}

	orders := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.Get(ctx, id)
		if errors.Is(err, domrepo.ErrOrderNotFound) {
			s.l.Warn("dangling status index entry removed",
				applogger.String("order_id", id),
				applogger.String("status", string(status)),
			)
			if remErr := s.rdb.SRem(ctx, s.statusKey(status), id).Err(); remErr != nil {
				s.l.Warn("dangling index cleanup failed",
					applogger.String("order_id", id),
					applogger.String("status", string(status)),
					applogger.Error(remErr),
				)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// Close closes the underlying client.
func (s *RedisOrderStore) Close() error {
	return s.rdb.Close()
}
