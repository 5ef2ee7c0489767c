// Package adapter provides a simulated exchange client satisfying the
// StreamAdapter/OrderAdapter contracts spec §6 names as consumed, not
// defined, by the hard core. It exists so the engine is runnable end to
// end in paper/replay mode; a real venue integration (REST + websocket)
// would implement the same interfaces. Grounded on the teacher's
// PaperBroker (execution_service.go) for fill/slippage/latency modeling,
// generalized from the teacher's single-symbol float64 model to the
// multi-symbol decimal book model spec.md requires.
package adapter

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/autovant/perp-core/internal/marketdata"
	"github.com/autovant/perp-core/internal/types"
)

// SimulatedConfig controls the paper venue's fill/latency model.
// BaseSlippageBps and MaxSlippageBps are accepted but not read by the
// fill path; no slippage is applied to simulated fills.
type SimulatedConfig struct {
	Seed             int64
	AckLatencyMean   time.Duration
	AckLatencyP95    time.Duration
	BaseSlippageBps  float64
	MaxSlippageBps   float64
	TickSize         decimal.Decimal
}

func (c SimulatedConfig) withDefaults() SimulatedConfig {
	if c.AckLatencyMean <= 0 {
		c.AckLatencyMean = 40 * time.Millisecond
	}
	if c.AckLatencyP95 <= 0 {
		c.AckLatencyP95 = 120 * time.Millisecond
	}
	if c.MaxSlippageBps <= 0 {
		c.MaxSlippageBps = 10
	}
	if c.TickSize.IsZero() {
		c.TickSize = decimal.NewFromFloat(0.1)
	}
	return c
}

type bookState struct {
	mu   sync.RWMutex
	bids []types.Level
	asks []types.Level
	ts   time.Time
}

type workingOrder struct {
	order     types.Order
	createdAt time.Time
}

// Simulated is a paper exchange adapter: it holds an in-memory book per
// symbol that test/replay drivers push into via SetBook, and fills
// working orders against that book after a sampled latency: an IOC
// order fills in full at the opposing touch (or at its own price when
// that side is empty), a crossing limit order fills in full at its own
// price. No slippage is added to either.
type Simulated struct {
	cfg    SimulatedConfig
	rng    *rand.Rand
	sigma  float64

	mu      sync.Mutex
	books   map[string]*bookState
	orders  map[string]*workingOrder
	nextSeq map[string]uint64

	updates   chan marketdata.L2UpdateMsg
	trades    chan marketdata.TradeMsg
	snapshots chan marketdata.SnapshotMsg
}

// NewSimulated builds a Simulated adapter for the given symbols.
func NewSimulated(cfg SimulatedConfig, symbols []string) *Simulated {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	s := &Simulated{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		sigma:   deriveSigma(cfg.AckLatencyMean, cfg.AckLatencyP95),
		books:   make(map[string]*bookState),
		orders:  make(map[string]*workingOrder),
		nextSeq: make(map[string]uint64),
	}
	for _, sym := range symbols {
		s.books[sym] = &bookState{}
	}
	return s
}

func deriveSigma(mean, p95 time.Duration) float64 {
	m, p := float64(mean), float64(p95)
	if p <= m {
		if m > 0 {
			return m * 0.2
		}
		return 1
	}
	return math.Max((p-m)/1.645, 1)
}

// SetBook pushes a full book state into the simulator and emits a
// snapshot message to any active subscription, letting a replay or test
// driver act as the market.
func (s *Simulated) SetBook(symbol string, ts time.Time, bids, asks []types.Level) {
	s.mu.Lock()
	bs, ok := s.books[symbol]
	if !ok {
		bs = &bookState{}
		s.books[symbol] = bs
	}
	s.mu.Unlock()

	bs.mu.Lock()
	bs.bids = bids
	bs.asks = asks
	bs.ts = ts
	bs.mu.Unlock()

	if s.snapshots != nil {
		select {
		case s.snapshots <- marketdata.SnapshotMsg{Symbol: symbol, TS: ts, Bids: bids, Asks: asks}:
		default:
		}
	}
}

// Subscribe implements marketdata.StreamAdapter.
func (s *Simulated) Subscribe(ctx context.Context, symbols []string) (<-chan marketdata.L2UpdateMsg, <-chan marketdata.TradeMsg, <-chan marketdata.SnapshotMsg, error) {
	s.mu.Lock()
	s.updates = make(chan marketdata.L2UpdateMsg, 1024)
	s.trades = make(chan marketdata.TradeMsg, 1024)
	s.snapshots = make(chan marketdata.SnapshotMsg, 64)
	s.mu.Unlock()

	for _, sym := range symbols {
		if snap, err := s.RequestSnapshot(ctx, sym); err == nil {
			s.snapshots <- snap
		}
	}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		close(s.updates)
		close(s.trades)
		close(s.snapshots)
		s.mu.Unlock()
	}()

	return s.updates, s.trades, s.snapshots, nil
}

// RequestSnapshot implements marketdata.StreamAdapter.
func (s *Simulated) RequestSnapshot(_ context.Context, symbol string) (marketdata.SnapshotMsg, error) {
	s.mu.Lock()
	bs, ok := s.books[symbol]
	s.mu.Unlock()
	if !ok {
		return marketdata.SnapshotMsg{}, fmt.Errorf("adapter: unknown symbol %s", symbol)
	}
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return marketdata.SnapshotMsg{
		Symbol: symbol,
		TS:     bs.ts,
		Bids:   append([]types.Level(nil), bs.bids...),
		Asks:   append([]types.Level(nil), bs.asks...),
	}, nil
}

// PlaceOrder implements marketdata.OrderAdapter. It models post-only
// rejection, an IOC order that always fills in full after the sampled
// latency, and a limit order resting until canceled by the caller (the
// executor drives the timeout).
func (s *Simulated) PlaceOrder(ctx context.Context, o types.Order) (string, error) {
	id := o.ID
	if id == "" {
		id = uuid.NewString()
	}
	o.ID = id
	o.Status = types.StatusSubmitted
	o.CreatedAt = time.Now()
	o.LastUpdateAt = o.CreatedAt

	s.mu.Lock()
	bs := s.books[o.Symbol]
	s.mu.Unlock()
	if bs == nil {
		return "", fmt.Errorf("adapter: unknown symbol %s", o.Symbol)
	}

	bs.mu.RLock()
	bids := append([]types.Level(nil), bs.bids...)
	asks := append([]types.Level(nil), bs.asks...)
	bs.mu.RUnlock()

	crosses := s.crossesSpread(o, bids, asks)
	if o.Kind == types.KindLimit && o.PostOnly && crosses {
		o.Status = types.StatusRejected
		s.store(&o)
		return id, nil
	}

	s.store(&o)

	switch o.Kind {
	case types.KindIOC:
		go s.simulateFill(o, bids, asks, true)
	case types.KindLimit:
		if crosses {
			go s.simulateFill(o, bids, asks, false)
		}
		// Otherwise the order rests; a status-update consumer (the
		// maker executor) observes fills via GetOrder/GetFills until
		// it cancels on timeout.
	}

	return id, nil
}

func (s *Simulated) store(o *types.Order) {
	s.mu.Lock()
	s.orders[o.ID] = &workingOrder{order: *o, createdAt: o.CreatedAt}
	s.mu.Unlock()
}

func (s *Simulated) crossesSpread(o types.Order, bids, asks []types.Level) bool {
	if o.Kind == types.KindIOC {
		return true
	}
	if o.Side == types.SideBuy {
		if len(asks) == 0 {
			return false
		}
		return o.Price.Decimal.GreaterThanOrEqual(asks[0].Price.Decimal)
	}
	if len(bids) == 0 {
		return false
	}
	return o.Price.Decimal.LessThanOrEqual(bids[0].Price.Decimal)
}

func (s *Simulated) simulateFill(o types.Order, bids, asks []types.Level, crossedMarket bool) {
	delay := s.sampleLatency()
	time.Sleep(delay)

	fillPrice := o.Price
	if crossedMarket {
		if o.Side == types.SideBuy && len(asks) > 0 {
			fillPrice = asks[0].Price
		} else if o.Side == types.SideSell && len(bids) > 0 {
			fillPrice = bids[0].Price
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	wo, ok := s.orders[o.ID]
	if !ok {
		return
	}
	wo.order.FilledSize = wo.order.Size
	wo.order.Status = types.StatusFilled
	wo.order.Price = fillPrice
	wo.order.LastUpdateAt = time.Now()
	s.nextSeq[o.ID]++
}

func (s *Simulated) sampleLatency() time.Duration {
	lat := s.rng.NormFloat64()*s.sigma + float64(s.cfg.AckLatencyMean)
	if lat < 0 {
		lat = 0
	}
	return time.Duration(lat)
}

// CancelOrder implements marketdata.OrderAdapter.
func (s *Simulated) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wo, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("adapter: unknown order %s", orderID)
	}
	if wo.order.Status.IsTerminal() {
		return nil
	}
	wo.order.Status = types.StatusCanceled
	wo.order.LastUpdateAt = time.Now()
	return nil
}

// GetOrder implements marketdata.OrderAdapter.
func (s *Simulated) GetOrder(_ context.Context, orderID string) (types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wo, ok := s.orders[orderID]
	if !ok {
		return types.Order{}, fmt.Errorf("adapter: unknown order %s", orderID)
	}
	return wo.order, nil
}

// GetFills implements marketdata.OrderAdapter.
func (s *Simulated) GetFills(_ context.Context, orderID string) ([]types.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wo, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("adapter: unknown order %s", orderID)
	}
	if wo.order.FilledSize.Decimal.IsZero() {
		return nil, nil
	}
	return []types.Fill{{
		OrderID: orderID,
		Seq:     s.nextSeq[orderID],
		Symbol:  wo.order.Symbol,
		Side:    wo.order.Side,
		Kind:    wo.order.Kind,
		Price:   wo.order.Price,
		Size:    wo.order.FilledSize,
		Maker:   wo.order.Kind == types.KindLimit,
		TS:      wo.order.LastUpdateAt,
	}}, nil
}

var (
	_ marketdata.StreamAdapter = (*Simulated)(nil)
	_ marketdata.OrderAdapter  = (*Simulated)(nil)
)
