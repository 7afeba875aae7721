package orderqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"TradeOps/internal/domain/models"
	drepo "TradeOps/internal/domain/repository"
	"TradeOps/pkg/logger"
	"TradeOps/pkg/retry"
)

type nopMetrics struct{}

func (nopMetrics) RecordTickIngested(string)       {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordReconnect()                {}
func (nopMetrics) RecordOrderProcessed(string)     {}
func (nopMetrics) RecordQueueDepth(int)            {}
func (nopMetrics) RecordFlush(int, bool)           {}
func (nopMetrics) RecordAlertFired(string)         {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}

type memStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]*models.Order)}
}

func (s *memStore) Save(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, retryCount int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, drepo.ErrOrderNotFound)
	}
	o.Status = status
	o.RetryCount = retryCount
	o.Error = errMsg
	o.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, drepo.ErrOrderNotFound)
	}
	return o.Clone(), nil
}

func (s *memStore) ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

// scriptedExchange fails the first N submissions, then succeeds. It also
// tracks submission order and the maximum number of concurrent calls.
type scriptedExchange struct {
	failures    int32
	calls       int32
	inFlight    int32
	maxInFlight int32

	mu    sync.Mutex
	order []string
}

func (e *scriptedExchange) SubmitOrder(ctx context.Context, o *models.Order) (*models.Execution, error) {
	n := atomic.AddInt32(&e.inFlight, 1)
	defer atomic.AddInt32(&e.inFlight, -1)
	for {
		max := atomic.LoadInt32(&e.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&e.maxInFlight, max, n) {
			break
		}
	}

	e.mu.Lock()
	e.order = append(e.order, o.ID)
	e.mu.Unlock()

	call := atomic.AddInt32(&e.calls, 1)
	time.Sleep(time.Millisecond)
	if call <= atomic.LoadInt32(&e.failures) {
		return nil, errors.New("venue rejected")
	}
	return &models.Execution{OrderID: o.ID, ExchangeID: "X-" + o.ID}, nil
}

func testOrder(id string) *models.Order {
	return &models.Order{
		ID:     id,
		UserID: "u1",
		Symbol: "ETH-USD",
		Side:   "buy",
		Type:   "market",
		Amount: 1,
	}
}

func newTestQueue(store *memStore, exch *scriptedExchange, maxRetries int) *Queue {
	return New(store, exch, Options{
		MaxRetries:     maxRetries,
		ExecuteTimeout: time.Second,
		Retry:          retry.Options{InitialDelay: time.Millisecond, BackoffFactor: 2},
	}, nopMetrics{}, logger.Nop())
}

func waitStatus(t *testing.T, store *memStore, id string, want models.OrderStatus) *models.Order {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		o, err := store.Get(context.Background(), id)
		if err == nil && o.Status == want {
			return o
		}
		time.Sleep(2 * time.Millisecond)
	}
	o, _ := store.Get(context.Background(), id)
	t.Fatalf("order %s never reached %s (last: %+v)", id, want, o)
	return nil
}

func TestOrderCompletesRoundTrip(t *testing.T) {
	store := newMemStore()
	exch := &scriptedExchange{}
	q := newTestQueue(store, exch, 3)

	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop(context.Background())

	saved, err := q.AddOrder(context.Background(), testOrder("o1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if saved.Status != models.StatusPending {
		t.Fatalf("status = %s right after add, want pending", saved.Status)
	}

	final := waitStatus(t, store, "o1", models.StatusCompleted)
	if final.RetryCount != 0 {
		t.Fatalf("retryCount = %d, want 0", final.RetryCount)
	}
}

func TestOrderRetriesThenCompletes(t *testing.T) {
	store := newMemStore()
	exch := &scriptedExchange{failures: 2}
	q := newTestQueue(store, exch, 3)

	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop(context.Background())

	if _, err := q.AddOrder(context.Background(), testOrder("o1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	final := waitStatus(t, store, "o1", models.StatusCompleted)
	if final.RetryCount != 2 {
		t.Fatalf("retryCount = %d, want 2", final.RetryCount)
	}
	if got := atomic.LoadInt32(&exch.calls); got != 3 {
		t.Fatalf("execution attempts = %d, want 3", got)
	}
}

func TestOrderFailsAfterRetryExhaustion(t *testing.T) {
	store := newMemStore()
	exch := &scriptedExchange{failures: 1 << 30} // always fails
	q := newTestQueue(store, exch, 2)

	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop(context.Background())

	if _, err := q.AddOrder(context.Background(), testOrder("o1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	final := waitStatus(t, store, "o1", models.StatusFailed)
	if final.RetryCount != 2 {
		t.Fatalf("retryCount = %d, want 2", final.RetryCount)
	}
	if final.Error == "" {
		t.Fatal("terminal failed order must carry its error")
	}
	if got := atomic.LoadInt32(&exch.calls); got != 2 {
		t.Fatalf("execution attempts = %d, want exactly maxRetries (2)", got)
	}
}

func TestAddOrderValidation(t *testing.T) {
	store := newMemStore()
	q := newTestQueue(store, &scriptedExchange{}, 3)

	bad := []*models.Order{
		{Side: "buy", Type: "market", Amount: 1},                          // missing symbol
		{Symbol: "ETH-USD", Side: "hold", Type: "market", Amount: 1},      // bad side
		{Symbol: "ETH-USD", Side: "buy", Type: "market", Amount: 0},       // zero amount
		{Symbol: "ETH-USD", Side: "buy", Type: "market", Amount: -5},      // negative amount
		nil,
	}
	for i, o := range bad {
		if _, err := q.AddOrder(context.Background(), o); !errors.Is(err, models.ErrValidation) {
			t.Fatalf("case %d: err = %v, want ErrValidation", i, err)
		}
	}

	if len(q.GetQueue()) != 0 {
		t.Fatal("rejected orders must not enter the queue")
	}
}

func TestResubmitExistingOrderIsIdempotent(t *testing.T) {
	store := newMemStore()
	exch := &scriptedExchange{}
	q := newTestQueue(store, exch, 3)

	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop(context.Background())

	if _, err := q.AddOrder(context.Background(), testOrder("o1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	waitStatus(t, store, "o1", models.StatusCompleted)

	// same client id again: the stored record comes back untouched
	again, err := q.AddOrder(context.Background(), testOrder("o1"))
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if again.Status != models.StatusCompleted {
		t.Fatalf("resubmit returned status %s, want completed", again.Status)
	}

	o, _ := store.Get(context.Background(), "o1")
	if o.Status != models.StatusCompleted {
		t.Fatalf("terminal order regressed to %s on resubmit", o.Status)
	}
	if len(q.GetQueue()) != 0 {
		t.Fatal("resubmitted order must not be re-queued")
	}

	// give a would-be second execution time to surface
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&exch.calls); got != 1 {
		t.Fatalf("execution attempts = %d, want 1", got)
	}
}

func TestRecoveryPreservesSubmissionOrder(t *testing.T) {
	store := newMemStore()
	base := time.Now()
	// saved out of order; CreatedAt carries the true submission order
	for _, id := range []string{"third", "first", "second"} {
		o := testOrder(id)
		o.Status = models.StatusPending
		switch id {
		case "first":
			o.CreatedAt = base
		case "second":
			o.CreatedAt = base.Add(time.Second)
		case "third":
			o.CreatedAt = base.Add(2 * time.Second)
		}
		if err := store.Save(context.Background(), o); err != nil {
			t.Fatal(err)
		}
	}

	exch := &scriptedExchange{}
	q := newTestQueue(store, exch, 3)
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop(context.Background())

	for _, id := range []string{"first", "second", "third"} {
		waitStatus(t, store, id, models.StatusCompleted)
	}

	exch.mu.Lock()
	defer exch.mu.Unlock()
	want := []string{"first", "second", "third"}
	for i, id := range want {
		if exch.order[i] != id {
			t.Fatalf("recovered execution order %v, want %v", exch.order, want)
		}
	}
}

func TestAdminOverrideRejectsIllegalTransition(t *testing.T) {
	store := newMemStore()
	done := testOrder("o1")
	done.Status = models.StatusCompleted
	if err := store.Save(context.Background(), done); err != nil {
		t.Fatal(err)
	}

	q := newTestQueue(store, &scriptedExchange{}, 3)
	if _, err := q.UpdateOrderStatus(context.Background(), "o1", models.StatusCancelled); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	o, _ := store.Get(context.Background(), "o1")
	if o.Status != models.StatusCompleted {
		t.Fatalf("status mutated to %s on rejected transition", o.Status)
	}
}

func TestCancelPendingOrder(t *testing.T) {
	store := newMemStore()
	q := newTestQueue(store, &scriptedExchange{}, 3)

	// worker not started: order stays pending in the queue
	if _, err := q.AddOrder(context.Background(), testOrder("o1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	o, err := q.UpdateOrderStatus(context.Background(), "o1", models.StatusCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != models.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", o.Status)
	}
	if len(q.GetQueue()) != 0 {
		t.Fatal("cancelled order still queued")
	}
}

func TestRecoverySweep(t *testing.T) {
	store := newMemStore()

	crashed := testOrder("stuck")
	crashed.Status = models.StatusProcessing
	crashed.RetryCount = 1
	if err := store.Save(context.Background(), crashed); err != nil {
		t.Fatal(err)
	}

	dead := testOrder("dead")
	dead.Status = models.StatusProcessing
	dead.RetryCount = 3
	if err := store.Save(context.Background(), dead); err != nil {
		t.Fatal(err)
	}

	q := newTestQueue(store, &scriptedExchange{}, 3)
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop(context.Background())

	// stuck order is re-driven to completion, dead one is terminal failed
	waitStatus(t, store, "stuck", models.StatusCompleted)
	o := waitStatus(t, store, "dead", models.StatusFailed)
	if o.RetryCount != 3 {
		t.Fatalf("dead retryCount = %d, want 3", o.RetryCount)
	}
}

func TestSingleWriterFIFO(t *testing.T) {
	store := newMemStore()
	exch := &scriptedExchange{}
	q := newTestQueue(store, exch, 3)

	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop(context.Background())

	ids := []string{"o1", "o2", "o3", "o4", "o5"}
	for _, id := range ids {
		if _, err := q.AddOrder(context.Background(), testOrder(id)); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	for _, id := range ids {
		waitStatus(t, store, id, models.StatusCompleted)
	}

	if got := atomic.LoadInt32(&exch.maxInFlight); got != 1 {
		t.Fatalf("max concurrent executions = %d, want 1", got)
	}

	exch.mu.Lock()
	defer exch.mu.Unlock()
	for i, id := range ids {
		if exch.order[i] != id {
			t.Fatalf("execution order %v, want FIFO %v", exch.order, ids)
		}
	}
}
