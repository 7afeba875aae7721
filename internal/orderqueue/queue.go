package orderqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"TradeOps/internal/domain/models"
	drepo "TradeOps/internal/domain/repository"
	applogger "TradeOps/pkg/logger"
	"TradeOps/pkg/retry"

	"github.com/go-playground/validator/v10"
)

// Options configures a Queue.
type Options struct {
	MaxRetries     int
	ExecuteTimeout time.Duration
	RequeueHead    bool // retried orders jump the line instead of going to the tail
	Retry          retry.Options
}

// Queue serializes order execution: a single worker dequeues the head and
// drives it through the status machine. Concurrency comes from queueing,
// never from parallel execution.
type Queue struct {
	store    drepo.OrderStore
	exchange drepo.ExchangeClient
	opts     Options
	logger   *applogger.Logger
	metrics  drepo.Metrics
	validate *validator.Validate

	mu      sync.Mutex
	pending []*models.Order
	timers  map[string]*time.Timer

	wake     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an order queue. Start launches the worker.
func New(store drepo.OrderStore, exchange drepo.ExchangeClient, opts Options, m drepo.Metrics, l *applogger.Logger) *Queue {
	return &Queue{
		store:    store,
		exchange: exchange,
		opts:     opts,
		logger:   l.With("orderqueue"),
		metrics:  m,
		validate: validator.New(),
		timers:   make(map[string]*time.Timer),
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start runs the recovery sweep and launches the single worker.
func (q *Queue) Start(ctx context.Context) error {
	if err := q.recover(ctx); err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}
	q.wg.Add(1)
	go q.worker(ctx)
	return nil
}

// recover reloads non-terminal orders after a restart. Orders stuck in
// PROCESSING by a crash become RETRYING while retries remain, else FAILED.
func (q *Queue) recover(ctx context.Context) error {
	stuck, err := q.store.ListByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return err
	}
	for _, o := range stuck {
		if o.RetryCount < q.opts.MaxRetries {
			// picked up again by the waiting sweep below
			if err := q.setStatus(ctx, o, models.StatusRetrying, "recovered after crash"); err != nil {
				return err
			}
		} else {
			if err := q.setStatus(ctx, o, models.StatusFailed, "retries exhausted before crash"); err != nil {
				return err
			}
		}
		q.logger.Warn("recovered in-flight order",
			applogger.String("order_id", o.ID),
			applogger.String("status", string(o.Status)),
		)
	}

	// the store lists in index order; re-sort by submission time so the
	// queue stays FIFO across a restart
	var waiting []*models.Order
	for _, status := range []models.OrderStatus{models.StatusPending, models.StatusRetrying} {
		orders, err := q.store.ListByStatus(ctx, status)
		if err != nil {
			return err
		}
		waiting = append(waiting, orders...)
	}
	sort.Slice(waiting, func(i, j int) bool {
		return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
	})
	for _, o := range waiting {
		q.enqueue(o)
	}
	return nil
}

// AddOrder validates and persists a new order, appends it to the tail and
// returns the persisted record. Execution happens asynchronously.
// Resubmitting a known id is idempotent: the stored record is returned
// unchanged, so a terminal order never regresses to pending.
func (q *Queue) AddOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil order", models.ErrValidation)
	}
	if err := q.validate.StructCtx(ctx, o); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	if o.ID == "" {
		o.ID = strconv.FormatInt(time.Now().UnixNano(), 10)
	} else {
		cur, err := q.store.Get(ctx, o.ID)
		if err == nil {
			q.logger.Info("duplicate order submission ignored",
				applogger.String("order_id", o.ID),
				applogger.String("status", string(cur.Status)),
			)
			return cur.Clone(), nil
		}
		if !errors.Is(err, drepo.ErrOrderNotFound) {
			return nil, fmt.Errorf("lookup order %s: %w", o.ID, err)
		}
	}
	o.Status = models.StatusPending
	o.RetryCount = 0
	o.Error = ""
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now

	if err := q.store.Save(ctx, o); err != nil {
		return nil, fmt.Errorf("persist order %s: %w", o.ID, err)
	}

	q.enqueue(o)
	q.logger.Info("order accepted",
		applogger.String("order_id", o.ID),
		applogger.String("symbol", o.Symbol),
		applogger.String("side", o.Side),
	)
	return o.Clone(), nil
}

func (q *Queue) enqueue(o *models.Order) {
	q.mu.Lock()
	q.pending = append(q.pending, o)
	depth := len(q.pending)
	q.mu.Unlock()

	q.metrics.RecordQueueDepth(depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) enqueueFront(o *models.Order) {
	q.mu.Lock()
	q.pending = append([]*models.Order{o}, q.pending...)
	depth := len(q.pending)
	q.mu.Unlock()

	q.metrics.RecordQueueDepth(depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) dequeue() *models.Order {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	o := q.pending[0]
	q.pending = q.pending[1:]
	q.metrics.RecordQueueDepth(len(q.pending))
	return o
}

// worker is the single execution loop. It idles on the wake channel when
// the queue is empty.
func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		o := q.dequeue()
		if o == nil {
			select {
			case <-q.stopChan:
				return
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		select {
		case <-q.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		q.process(ctx, o)
	}
}

// process drives one order through one execution attempt.
func (q *Queue) process(ctx context.Context, o *models.Order) {
	if err := q.setStatus(ctx, o, models.StatusProcessing, ""); err != nil {
		// cancelled while queued, or admin override; drop without executing
		q.logger.Warn("order skipped",
			applogger.String("order_id", o.ID),
			applogger.Error(err),
		)
		return
	}

	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, q.opts.ExecuteTimeout)
	exec, err := q.exchange.SubmitOrder(execCtx, o)
	cancel()
	q.metrics.RecordLatency("order_execute", time.Since(start).Seconds())

	if err == nil {
		if serr := q.setStatus(ctx, o, models.StatusCompleted, ""); serr != nil {
			q.logger.Warn("completion transition rejected",
				applogger.String("order_id", o.ID),
				applogger.Error(serr),
			)
			return
		}
		q.logger.Info("order completed",
			applogger.String("order_id", o.ID),
			applogger.String("exchange_id", exec.ExchangeID),
			applogger.Int("retry_count", o.RetryCount),
		)
		return
	}

	o.RetryCount++
	q.metrics.RecordError("order_execute")

	if o.RetryCount < q.opts.MaxRetries {
		if serr := q.setStatus(ctx, o, models.StatusRetrying, err.Error()); serr != nil {
			q.logger.Warn("retry transition rejected",
				applogger.String("order_id", o.ID),
				applogger.Error(serr),
			)
			return
		}
		delay := q.opts.Retry.Delay(o.RetryCount)
		q.logger.Warn("order execution failed, requeueing",
			applogger.String("order_id", o.ID),
			applogger.Int("retry_count", o.RetryCount),
			applogger.Duration("delay_ms", delay),
			applogger.Error(err),
		)
		q.scheduleRequeue(o, delay)
		return
	}

	if serr := q.setStatus(ctx, o, models.StatusFailed, err.Error()); serr != nil {
		q.logger.Warn("failure transition rejected",
			applogger.String("order_id", o.ID),
			applogger.Error(serr),
		)
		return
	}
	q.logger.Error("order failed, retries exhausted",
		applogger.String("order_id", o.ID),
		applogger.Int("retry_count", o.RetryCount),
		applogger.Error(err),
	)
}

// scheduleRequeue re-enqueues after the backoff delay. Tail by default so
// later first-time submissions are not starved; head is a config escape
// hatch.
func (q *Queue) scheduleRequeue(o *models.Order, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.stopChan:
		return
	default:
	}

	q.timers[o.ID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, o.ID)
		q.mu.Unlock()

		select {
		case <-q.stopChan:
			return
		default:
		}
		if q.opts.RequeueHead {
			q.enqueueFront(o)
		} else {
			q.enqueue(o)
		}
	})
}

// setStatus validates and applies a transition, persisting it. The current
// status is re-read from the store so concurrent admin overrides (e.g.
// cancellation) are honored.
func (q *Queue) setStatus(ctx context.Context, o *models.Order, to models.OrderStatus, errMsg string) error {
	cur, err := q.store.Get(ctx, o.ID)
	if err != nil {
		return err
	}
	if !cur.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s (order %s)", models.ErrInvalidTransition, cur.Status, to, o.ID)
	}
	if err := q.store.UpdateStatus(ctx, o.ID, to, o.RetryCount, errMsg); err != nil {
		return err
	}
	o.Status = to
	o.Error = errMsg
	o.UpdatedAt = time.Now()
	q.metrics.RecordOrderProcessed(string(to))
	return nil
}

// UpdateOrderStatus is the administrative override, used for manual
// cancellation. Illegal transitions are rejected without mutating state.
func (q *Queue) UpdateOrderStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, to)
	}

	cur, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s (order %s)", models.ErrInvalidTransition, cur.Status, to, id)
	}
	if err := q.store.UpdateStatus(ctx, id, to, cur.RetryCount, cur.Error); err != nil {
		return nil, err
	}

	if to == models.StatusCancelled {
		q.removePending(id)
	}
	q.metrics.RecordOrderProcessed(string(to))
	q.logger.Info("order status overridden",
		applogger.String("order_id", id),
		applogger.String("from", string(cur.Status)),
		applogger.String("to", string(to)),
	)
	return q.store.Get(ctx, id)
}

func (q *Queue) removePending(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, o := range q.pending {
		if o.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
}

// GetOrder returns the persisted order by id.
func (q *Queue) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return q.store.Get(ctx, id)
}

// GetQueue returns a snapshot of waiting orders in FIFO order.
func (q *Queue) GetQueue() []*models.Order {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.Order, len(q.pending))
	for i, o := range q.pending {
		out[i] = o.Clone()
	}
	return out
}

// Stop halts the worker and pending requeue timers. The in-flight order, if
// any, finishes its current attempt.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		close(q.stopChan)
		q.mu.Lock()
		for id, t := range q.timers {
			t.Stop()
			delete(q.timers, id)
		}
		q.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for order worker: %w", ctx.Err())
	case <-done:
		q.logger.Info("order queue stopped")
		return nil
	}
}
