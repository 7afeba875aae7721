package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeOps/internal/domain/models"
	drepo "TradeOps/internal/domain/repository"
	"TradeOps/pkg/cache"
	applogger "TradeOps/pkg/logger"
	"TradeOps/pkg/retry"
)

// ConnState is the hub's connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// TickCallback receives fan-out ticks. Callbacks run on the hub's read
// goroutine; keep them short.
type TickCallback func(models.Tick)

// Subscription is the token returned by Subscribe, used to unsubscribe.
type Subscription struct {
	symbol string
	id     uint64
}

// Symbol returns the subscribed symbol.
func (s Subscription) Symbol() string { return s.symbol }

type subscriber struct {
	id uint64
	cb TickCallback
}

// Options configures a Hub.
type Options struct {
	Symbols              []string
	CacheTTL             time.Duration
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

// Hub owns the single upstream stream, the latest-tick cache and the
// per-symbol subscriber registry. The cache and registry are mutated only
// here; callers go through the exported methods.
type Hub struct {
	stream  drepo.MarketStream
	opts    Options
	logger  *applogger.Logger
	metrics drepo.Metrics

	cache *cache.TTLCache[models.Tick]

	mu     sync.Mutex
	subs   map[string][]subscriber
	nextID uint64
	state  ConnState
	cancel context.CancelFunc

	errs     chan error
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a market data hub. Start must be called before ticks flow.
func NewHub(stream drepo.MarketStream, opts Options, m drepo.Metrics, l *applogger.Logger) *Hub {
	return &Hub{
		stream:   stream,
		opts:     opts,
		logger:   l.With("marketdata"),
		metrics:  m,
		cache:    cache.NewTTLCache[models.Tick](),
		subs:     make(map[string][]subscriber),
		state:    StateDisconnected,
		errs:     make(chan error, 1),
		stopChan: make(chan struct{}),
	}
}

// State returns the current connection state.
func (h *Hub) State() ConnState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Hub) setState(s ConnState) {
	h.mu.Lock()
	prev := h.state
	h.state = s
	h.mu.Unlock()
	if prev != s {
		h.logger.Info("state change",
			applogger.String("from", prev.String()),
			applogger.String("to", s.String()),
		)
	}
}

// Errors exposes fatal hub errors (reconnect exhaustion). The channel is
// never closed while the hub lives.
func (h *Hub) Errors() <-chan error {
	return h.errs
}

// Start connects upstream and launches the read loop. The hub owns a
// cancellable child context so Cleanup can interrupt reconnect backoff.
func (h *Hub) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	if err := h.connect(ctx); err != nil {
		h.setState(StateDisconnected)
		cancel()
		return err
	}
	h.wg.Add(1)
	go h.run(ctx)
	return nil
}

// connect opens the stream and re-issues upstream subscriptions for the
// configured symbols plus every symbol with a live local subscriber.
// Refuses to dial once shutdown has begun, so a reconnect attempt racing
// Cleanup cannot leak a fresh connection.
func (h *Hub) connect(ctx context.Context) error {
	select {
	case <-h.stopChan:
		return fmt.Errorf("hub connect: hub is shut down")
	default:
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("hub connect: %w", err)
	}
	h.setState(StateConnecting)
	if err := h.stream.Connect(ctx); err != nil {
		return fmt.Errorf("hub connect: %w", err)
	}
	if err := h.stream.Subscribe(ctx, h.upstreamSymbols()); err != nil {
		_ = h.stream.Close()
		return fmt.Errorf("hub subscribe: %w", err)
	}
	h.setState(StateConnected)
	return nil
}

func (h *Hub) upstreamSymbols() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[string]struct{}, len(h.opts.Symbols)+len(h.subs))
	out := make([]string, 0, len(h.opts.Symbols)+len(h.subs))
	for _, s := range h.opts.Symbols {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for s, subs := range h.subs {
		if len(subs) == 0 {
			continue
		}
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()

	for {
		ticks, errs := h.stream.Read(ctx)

	read:
		for {
			select {
			case <-h.stopChan:
				return
			case <-ctx.Done():
				return
			case t, ok := <-ticks:
				if !ok {
					break read
				}
				h.processTick(t)
			case err, ok := <-errs:
				if !ok {
					break read
				}
				h.logger.Warn("stream error", applogger.Error(err))
				h.metrics.RecordError("stream")
				break read
			}
		}

		select {
		case <-h.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		if !h.reconnect(ctx) {
			return
		}
	}
}

// reconnect drives RECONNECTING with bounded backoff. Returns false when
// attempts are exhausted; the hub is then DISCONNECTED until an external
// restart, and the fatal error is published on Errors.
func (h *Hub) reconnect(ctx context.Context) bool {
	h.setState(StateReconnecting)
	_ = h.stream.Close()

	opts := retry.Options{
		MaxAttempts:  h.opts.MaxReconnectAttempts,
		InitialDelay: h.opts.ReconnectDelay,
	}
	_, err := retry.Do(ctx, h.logger, "reconnect", opts, func(ctx context.Context) (struct{}, error) {
		h.metrics.RecordReconnect()
		return struct{}{}, h.connect(ctx)
	})
	if err != nil {
		h.setState(StateDisconnected)
		// shutdown interrupted the backoff; not a fatal stream error
		select {
		case <-h.stopChan:
			return false
		default:
		}
		if ctx.Err() != nil {
			return false
		}
		h.metrics.RecordError("reconnect_exhausted")
		fatal := fmt.Errorf("reconnect exhausted: %w", err)
		select {
		case h.errs <- fatal:
		default:
			// a previous fatal error is still unread
		}
		return false
	}
	return true
}

// processTick caches the tick and fans it out to subscribers for its symbol
// in registration order. A panicking callback is isolated; delivery to the
// remaining subscribers continues.
func (h *Hub) processTick(t *models.Tick) {
	if t == nil || t.Symbol == "" {
		return
	}

	h.cache.Set(t.Symbol, *t, h.opts.CacheTTL)
	h.metrics.RecordTickIngested(t.Symbol)
	h.metrics.RecordLastPrice(t.Symbol, t.Price)

	h.mu.Lock()
	subs := make([]subscriber, len(h.subs[t.Symbol]))
	copy(subs, h.subs[t.Symbol])
	h.mu.Unlock()

	for _, s := range subs {
		h.deliver(s, *t)
	}
}

func (h *Hub) deliver(s subscriber, t models.Tick) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("subscriber panic",
				applogger.String("symbol", t.Symbol),
				applogger.Any("panic", r),
			)
			h.metrics.RecordError("subscriber_panic")
		}
	}()
	s.cb(t)
}

// GetMarketData returns the cached tick for symbol, or false if absent or
// expired. Never touches the network.
func (h *Hub) GetMarketData(symbol string) (models.Tick, bool) {
	return h.cache.Get(symbol)
}

// Subscribe registers a callback for a symbol. The first subscriber on a
// symbol triggers an upstream subscribe when connected.
func (h *Hub) Subscribe(ctx context.Context, symbol string, cb TickCallback) Subscription {
	h.mu.Lock()
	h.nextID++
	sub := Subscription{symbol: symbol, id: h.nextID}
	first := len(h.subs[symbol]) == 0
	h.subs[symbol] = append(h.subs[symbol], subscriber{id: sub.id, cb: cb})
	connected := h.state == StateConnected
	h.mu.Unlock()

	if first && connected {
		if err := h.stream.Subscribe(ctx, []string{symbol}); err != nil {
			h.logger.Warn("upstream subscribe failed",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
	}
	return sub
}

// Unsubscribe removes a subscription. Ticks already mid-dispatch may still
// be delivered; nothing is delivered after Unsubscribe returns.
func (h *Hub) Unsubscribe(sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[sub.symbol]
	for i, s := range subs {
		if s.id == sub.id {
			h.subs[sub.symbol] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subs[sub.symbol]) == 0 {
		delete(h.subs, sub.symbol)
	}
}

// Cleanup closes the stream and clears subscriptions and cache. Shutdown
// only; the hub is not restartable afterwards.
func (h *Hub) Cleanup() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
		h.mu.Lock()
		cancel := h.cancel
		h.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
	_ = h.stream.Close()
	h.wg.Wait()

	h.mu.Lock()
	h.subs = make(map[string][]subscriber)
	h.state = StateDisconnected
	h.mu.Unlock()
	h.cache.Clear()

	h.logger.Info("hub cleaned up")
}
