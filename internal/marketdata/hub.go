package marketdata

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/book"
	"github.com/autovant/perp-core/internal/types"
)

// Config controls Hub behaviour.
type Config struct {
	Symbols           []string
	TopN              int
	TradeWindow       time.Duration
	CoalesceInterval  time.Duration
	BackoffBase       time.Duration
	BackoffCap        time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopN <= 0 {
		c.TopN = 10
	}
	if c.TradeWindow <= 0 {
		c.TradeWindow = 100 * time.Millisecond
	}
	if c.CoalesceInterval <= 0 {
		c.CoalesceInterval = time.Millisecond
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 200 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 10 * time.Second
	}
	return c
}

type symbolState struct {
	mu            sync.RWMutex
	book          *book.Book
	trades        *TradeRing
	lastPublished time.Time
}

// Hub is C2: it owns the streaming connection via a StreamAdapter,
// demultiplexes by symbol, applies updates in feed order per symbol
// (no cross-symbol ordering guarantee), and publishes a coalesced tick
// event per symbol to downstream subscribers.
type Hub struct {
	cfg     Config
	adapter StreamAdapter
	logger  *zap.Logger

	mu      sync.RWMutex
	symbols map[string]*symbolState
	ticks   chan types.MarketData

	resyncCounter   prometheus.Counter
	dropCounter     prometheus.Counter
	reconnectCounter prometheus.Counter
}

// New constructs a Hub for cfg.Symbols.
func New(cfg Config, adapter StreamAdapter, logger *zap.Logger, registerer prometheus.Registerer) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:     cfg,
		adapter: adapter,
		logger:  logger,
		symbols: make(map[string]*symbolState, len(cfg.Symbols)),
		ticks:   make(chan types.MarketData, 1024),
		resyncCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdata_book_resyncs_total",
			Help: "Total number of order book resyncs triggered by a crossed book.",
		}),
		dropCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdata_tick_drops_total",
			Help: "Total number of tick publications dropped because the downstream channel was full.",
		}),
		reconnectCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdata_reconnects_total",
			Help: "Total number of stream adapter reconnect attempts.",
		}),
	}
	for _, sym := range cfg.Symbols {
		h.symbols[sym] = &symbolState{
			book:   book.New(sym, cfg.TopN),
			trades: NewTradeRing(cfg.TradeWindow),
		}
	}
	if registerer != nil {
		registerer.MustRegister(h.resyncCounter, h.dropCounter, h.reconnectCounter)
	}
	return h
}

// Ticks returns the channel of coalesced per-symbol tick events.
func (h *Hub) Ticks() <-chan types.MarketData { return h.ticks }

// Snapshot returns the latest non-stale snapshot for symbol, for the
// TradingLoop's non-blocking per-iteration read (spec §4.13 step 1).
func (h *Hub) Snapshot(symbol string) (types.MarketData, bool) {
	h.mu.RLock()
	st, ok := h.symbols[symbol]
	h.mu.RUnlock()
	if !ok {
		return types.MarketData{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.book.Snapshot(st.trades.Since(time.Now()))
}

// Run owns the adapter connection for the lifetime of ctx, reconnecting
// with exponential backoff and full jitter on stream loss.
func (h *Hub) Run(ctx context.Context) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := h.runOnce(ctx); err != nil {
			h.logger.Warn("stream adapter disconnected", zap.Error(err), zap.Int("attempt", attempt))
		}
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		h.reconnectCounter.Inc()
		backoff := h.backoffDuration(attempt)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

func (h *Hub) backoffDuration(attempt int) time.Duration {
	d := h.cfg.BackoffBase << uint(attempt-1)
	if d <= 0 || d > h.cfg.BackoffCap {
		d = h.cfg.BackoffCap
	}
	// full jitter
	return time.Duration(rand.Int63n(int64(d) + 1))
}

func (h *Hub) runOnce(ctx context.Context) error {
	updates, trades, snapshots, err := h.adapter.Subscribe(ctx, h.cfg.Symbols)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(h.cfg.CoalesceInterval)
	defer ticker.Stop()

	dirty := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			h.applyUpdate(ctx, u)
			dirty[u.Symbol] = true
		case t, ok := <-trades:
			if !ok {
				return nil
			}
			h.applyTrade(t)
			dirty[t.Symbol] = true
		case s, ok := <-snapshots:
			if !ok {
				return nil
			}
			h.applySnapshot(s)
			dirty[s.Symbol] = true
		case <-ticker.C:
			for sym := range dirty {
				h.publish(sym)
			}
			dirty = make(map[string]bool)
		}
	}
}

func (h *Hub) applyUpdate(ctx context.Context, u L2UpdateMsg) {
	h.mu.RLock()
	st, ok := h.symbols[u.Symbol]
	h.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.book.ApplyUpdates(u.TS, []book.Update{u.Update})
	wasStale := st.book.Stale()
	st.mu.Unlock()

	if wasStale {
		h.resyncCounter.Inc()
		go h.resync(ctx, u.Symbol)
	}
}

func (h *Hub) resync(ctx context.Context, symbol string) {
	snap, err := h.adapter.RequestSnapshot(ctx, symbol)
	if err != nil {
		h.logger.Error("resync snapshot request failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	h.applySnapshot(snap)
}

func (h *Hub) applyTrade(t TradeMsg) {
	h.mu.RLock()
	st, ok := h.symbols[t.Symbol]
	h.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.trades.Add(t.Trade)
	st.mu.Unlock()
}

func (h *Hub) applySnapshot(s SnapshotMsg) {
	h.mu.RLock()
	st, ok := h.symbols[s.Symbol]
	h.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.book.LoadSnapshot(s.TS, s.Bids, s.Asks)
	st.mu.Unlock()
}

func (h *Hub) publish(symbol string) {
	h.mu.RLock()
	st, ok := h.symbols[symbol]
	h.mu.RUnlock()
	if !ok {
		return
	}

	st.mu.RLock()
	snap, valid := st.book.Snapshot(st.trades.Since(time.Now()))
	st.mu.RUnlock()
	if !valid {
		return
	}

	select {
	case h.ticks <- snap:
	default:
		h.dropCounter.Inc()
	}
}
