package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TradeOps/internal/domain/models"
	"TradeOps/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordTickIngested(string)         {}
func (nopMetrics) RecordLastPrice(string, float64)   {}
func (nopMetrics) RecordReconnect()                  {}
func (nopMetrics) RecordOrderProcessed(string)       {}
func (nopMetrics) RecordQueueDepth(int)              {}
func (nopMetrics) RecordFlush(int, bool)             {}
func (nopMetrics) RecordAlertFired(string)           {}
func (nopMetrics) RecordError(string)                {}
func (nopMetrics) RecordLatency(string, float64)     {}

type fakeStream struct {
	mu          sync.Mutex
	connectErrs []error
	connects    int
	subscribed  [][]string
	ticks       chan *models.Tick
	errs        chan error
	connected   bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{}
}

func (f *fakeStream) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.ticks = make(chan *models.Tick, 16)
	f.errs = make(chan error, 1)
	f.connected = true
	return nil
}

func (f *fakeStream) Subscribe(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, symbols)
	return nil
}

func (f *fakeStream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks, f.errs
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func newTestHub(fs *fakeStream, opts Options) *Hub {
	return NewHub(fs, opts, nopMetrics{}, logger.Nop())
}

func TestFanOutInIngestionOrder(t *testing.T) {
	h := newTestHub(newFakeStream(), Options{CacheTTL: time.Minute})

	var got []float64
	h.Subscribe(context.Background(), "BTC-USD", func(tk models.Tick) {
		got = append(got, tk.Price)
	})

	h.processTick(&models.Tick{Symbol: "BTC-USD", Price: 100})
	h.processTick(&models.Tick{Symbol: "BTC-USD", Price: 101})

	if len(got) != 2 || got[0] != 100 || got[1] != 101 {
		t.Fatalf("got %v, want [100 101]", got)
	}
}

func TestFanOutOnlyMatchingSymbol(t *testing.T) {
	h := newTestHub(newFakeStream(), Options{CacheTTL: time.Minute})

	var calls int
	h.Subscribe(context.Background(), "BTC-USD", func(models.Tick) { calls++ })

	h.processTick(&models.Tick{Symbol: "ETH-USD", Price: 5})
	if calls != 0 {
		t.Fatalf("subscriber for BTC-USD received ETH-USD tick")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub(newFakeStream(), Options{CacheTTL: time.Minute})

	var calls int
	sub := h.Subscribe(context.Background(), "BTC-USD", func(models.Tick) { calls++ })

	h.processTick(&models.Tick{Symbol: "BTC-USD", Price: 100})
	h.Unsubscribe(sub)
	h.processTick(&models.Tick{Symbol: "BTC-USD", Price: 101})

	if calls != 1 {
		t.Fatalf("calls = %d, want exactly 1", calls)
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	h := newTestHub(newFakeStream(), Options{CacheTTL: time.Minute})

	var second bool
	h.Subscribe(context.Background(), "BTC-USD", func(models.Tick) { panic("bad subscriber") })
	h.Subscribe(context.Background(), "BTC-USD", func(models.Tick) { second = true })

	h.processTick(&models.Tick{Symbol: "BTC-USD", Price: 100})

	if !second {
		t.Fatal("panic in first subscriber blocked delivery to second")
	}
}

func TestGetMarketDataCacheAndTTL(t *testing.T) {
	h := newTestHub(newFakeStream(), Options{CacheTTL: 20 * time.Millisecond})

	if _, ok := h.GetMarketData("BTC-USD"); ok {
		t.Fatal("empty cache should miss")
	}

	h.processTick(&models.Tick{Symbol: "BTC-USD", Price: 100})

	a, ok := h.GetMarketData("BTC-USD")
	if !ok || a.Price != 100 {
		t.Fatalf("GetMarketData = (%v, %v), want price 100", a, ok)
	}
	b, _ := h.GetMarketData("BTC-USD")
	if a != b {
		t.Fatal("consecutive reads without ingestion should be identical")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := h.GetMarketData("BTC-USD"); ok {
		t.Fatal("expired tick should miss")
	}
}

func TestStartDeliversStreamTicks(t *testing.T) {
	fs := newFakeStream()
	h := newTestHub(fs, Options{Symbols: []string{"BTC-USD"}, CacheTTL: time.Minute})

	received := make(chan models.Tick, 1)
	h.Subscribe(context.Background(), "BTC-USD", func(tk models.Tick) { received <- tk })

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.Cleanup()

	if h.State() != StateConnected {
		t.Fatalf("state = %s, want connected", h.State())
	}

	fs.ticks <- &models.Tick{Symbol: "BTC-USD", Price: 42}

	select {
	case tk := <-received:
		if tk.Price != 42 {
			t.Fatalf("price = %v, want 42", tk.Price)
		}
	case <-time.After(time.Second):
		t.Fatal("tick not delivered")
	}
}

func TestCleanupInterruptsReconnectBackoff(t *testing.T) {
	fs := newFakeStream()
	// first connect ok, every reconnect attempt fails
	fs.connectErrs = []error{nil}
	for i := 0; i < 8; i++ {
		fs.connectErrs = append(fs.connectErrs, errors.New("down"))
	}

	h := newTestHub(fs, Options{
		Symbols:              []string{"BTC-USD"},
		CacheTTL:             time.Minute,
		MaxReconnectAttempts: 4,
		ReconnectDelay:       500 * time.Millisecond,
	})

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	fs.errs <- errors.New("stream reset")
	time.Sleep(50 * time.Millisecond) // let the hub enter the backoff

	start := time.Now()
	h.Cleanup()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Cleanup blocked %v waiting out the reconnect backoff", elapsed)
	}

	// an interrupted backoff is a shutdown, not a dead feed
	select {
	case err := <-h.Errors():
		t.Fatalf("unexpected fatal error during shutdown: %v", err)
	default:
	}
}

func TestReconnectExhaustionSurfacesFatalError(t *testing.T) {
	fs := newFakeStream()
	// first connect ok, every reconnect attempt fails
	fs.connectErrs = []error{nil, errors.New("down"), errors.New("down")}

	h := newTestHub(fs, Options{
		Symbols:              []string{"BTC-USD"},
		CacheTTL:             time.Minute,
		MaxReconnectAttempts: 2,
		ReconnectDelay:       time.Millisecond,
	})

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.Cleanup()

	fs.errs <- errors.New("stream reset")

	select {
	case err := <-h.Errors():
		if err == nil {
			t.Fatal("nil fatal error")
		}
	case <-time.After(time.Second):
		t.Fatal("fatal error not surfaced after reconnect exhaustion")
	}

	if got := h.State(); got != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}
	// 1 initial + 2 reconnect attempts
	if fs.connects != 3 {
		t.Fatalf("connects = %d, want 3", fs.connects)
	}
}
