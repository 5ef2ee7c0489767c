// Package loop implements C13: the per-symbol TradingLoop sequencer,
// the single-threaded cooperative loop §5 describes tying the signal,
// risk, execution, monitoring and attribution components together.
// Grounded on the teacher's services.go dispatch loop (the nearest
// thing the teacher had to a top-level sequencer, albeit a stub) and
// its Prometheus histogram usage in execution_service.go
// (signalAckLatency) for the iteration-latency instrumentation pattern.
package loop

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/cost"
	"github.com/autovant/perp-core/internal/execution"
	"github.com/autovant/perp-core/internal/pnl"
	"github.com/autovant/perp-core/internal/risk"
	"github.com/autovant/perp-core/internal/signal"
	"github.com/autovant/perp-core/internal/types"
)

// SnapshotSource is the non-blocking per-symbol read the loop polls
// each iteration, satisfied by *marketdata.Hub.
type SnapshotSource interface {
	Snapshot(symbol string) (types.MarketData, bool)
}

// SizingConfig parameterizes step 3's intent sizing function:
// size = min(base_size, k*|value|*nav/mid).
type SizingConfig struct {
	BaseSize decimal.Decimal
	K        decimal.Decimal
	NAV      decimal.Decimal
}

// Config controls one symbol's TradingLoop.
type Config struct {
	Symbol         string
	MaxStaleness   time.Duration
	TickInterval   time.Duration
	Sizing         SizingConfig
}

func (c Config) withDefaults() Config {
	if c.MaxStaleness <= 0 {
		c.MaxStaleness = 250 * time.Millisecond
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Millisecond
	}
	return c
}

// Metrics holds the collectors shared by every symbol's Loop in a
// process. A process runs one TradingLoop per symbol, so these are
// label-vectors keyed by symbol rather than per-Loop collectors --
// registering the same metric name twice against one registry panics,
// which is what a per-Loop prometheus.NewHistogram would do the moment
// a second symbol is configured.
type Metrics struct {
	iterationLatency *prometheus.HistogramVec
	skipCounter      *prometheus.CounterVec
	denyCounter      *prometheus.CounterVec
}

// NewMetrics builds the shared collector set and registers it against
// registerer, if non-nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		iterationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trading_loop_iteration_seconds",
			Help:    "End-to-end latency of one trading loop iteration.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"symbol"}),
		skipCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_loop_skips_total",
			Help: "Iterations skipped due to stale snapshot or LOW confidence.",
		}, []string{"symbol"}),
		denyCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_loop_risk_denials_total",
			Help: "Orders denied by the risk gate, by reason.",
		}, []string{"symbol", "reason"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.iterationLatency, m.skipCounter, m.denyCounter)
	}
	return m
}

// Loop is C13, bound to one symbol.
type Loop struct {
	cfg Config

	source     SnapshotSource
	aggregator *signal.Aggregator
	classifier *signal.Classifier
	gate       *risk.Gate
	positions  *risk.PositionManager
	hybrid     *execution.Hybrid
	estimator  *cost.Estimator
	attributor *pnl.Attributor
	logger     *zap.Logger
	onFill     func(symbol string, attribution types.Attribution)

	iterationLatency prometheus.Observer
	skipCounter      prometheus.Counter
	denyCounter      *prometheus.CounterVec
}

// Deps bundles the collaborators a Loop is assembled from, so
// New's signature stays stable as the component set grows.
type Deps struct {
	Source     SnapshotSource
	Aggregator *signal.Aggregator
	Classifier *signal.Classifier
	Gate       *risk.Gate
	Positions  *risk.PositionManager
	Hybrid     *execution.Hybrid
	Estimator  *cost.Estimator
	Attributor *pnl.Attributor
	Logger     *zap.Logger
	Metrics    *Metrics
	// OnFill, if set, is called with each fill's PnL decomposition as it
	// is attributed, so a caller can relay it off-process (e.g. to the
	// reporter over NATS) without the loop package depending on bus.
	OnFill func(symbol string, attribution types.Attribution)
}

func New(cfg Config, deps Deps) *Loop {
	cfg = cfg.withDefaults()
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	l := &Loop{
		cfg:              cfg,
		source:           deps.Source,
		aggregator:       deps.Aggregator,
		classifier:       deps.Classifier,
		gate:             deps.Gate,
		positions:        deps.Positions,
		hybrid:           deps.Hybrid,
		estimator:        deps.Estimator,
		attributor:       deps.Attributor,
		logger:           deps.Logger,
		onFill:           deps.OnFill,
		iterationLatency: metrics.iterationLatency.WithLabelValues(cfg.Symbol),
		skipCounter:      metrics.skipCounter.WithLabelValues(cfg.Symbol),
		denyCounter:      metrics.denyCounter.MustCurryWith(prometheus.Labels{"symbol": cfg.Symbol}),
	}
	return l
}

// Run drives the loop until ctx is canceled, polling the snapshot
// source at TickInterval and executing the seven-step sequence from
// §4.13 whenever a fresh, non-stale snapshot is available.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.iterate(ctx)
		}
	}
}

func (l *Loop) iterate(ctx context.Context) {
	start := time.Now()
	defer func() {
		l.iterationLatency.Observe(time.Since(start).Seconds())
	}()

	// Step 1: non-blocking snapshot read; skip if unavailable or stale.
	snapshot, ok := l.source.Snapshot(l.cfg.Symbol)
	if !ok {
		l.skipCounter.Inc()
		return
	}
	if time.Since(snapshot.TS) > l.cfg.MaxStaleness {
		l.skipCounter.Inc()
		return
	}

	// Step 2: signals -> aggregate -> classify.
	score := l.aggregator.Score(snapshot)
	score = score.WithConfidence(l.classifier.Classify(score.Value))

	if l.attributor != nil {
		mid := snapshot.Mid()
		l.attributor.UpdateReferenceMid(l.cfg.Symbol, mid.Decimal)
	}

	if score.Confidence == types.ConfidenceLow {
		l.skipCounter.Inc()
		return
	}

	// Step 3: size the intent.
	size := l.sizeIntent(score, snapshot)
	if !size.Decimal.IsPositive() {
		l.skipCounter.Inc()
		return
	}

	side := score.Side()
	position := l.positions.Position(l.cfg.Symbol)

	intended := types.Order{
		Symbol: l.cfg.Symbol,
		Side:   side,
		Kind:   types.KindLimit,
		Size:   size,
	}
	if bb, ok := snapshot.BestBid(); ok && side == types.SideBuy {
		intended.Price = bb.Price
	} else if ba, ok := snapshot.BestAsk(); ok {
		intended.Price = ba.Price
	}

	// Step 4: risk gate.
	decision := l.gate.Allow(intended, position, snapshot)
	if !decision.Approved {
		l.denyCounter.WithLabelValues(string(decision.Reason)).Inc()
		l.logger.Info("risk gate denied intent", zap.String("symbol", l.cfg.Symbol), zap.String("reason", string(decision.Reason)))
		return
	}

	// Step 5: execute.
	outcome := l.hybrid.Execute(ctx, score, size, snapshot)

	// Steps 6-7: fan out fills, loop continues on next tick.
	l.reportOrder(outcome.MakerOrder, score.Confidence, snapshot)
	l.reportOrder(outcome.IOCOrder, score.Confidence, snapshot)
}

// sizeIntent implements size = min(base_size, k*|value|*nav/mid), §4.13.
func (l *Loop) sizeIntent(score types.SignalScore, snapshot types.MarketData) types.Size {
	mid := snapshot.Mid()
	if !mid.Decimal.IsPositive() {
		return types.ZeroSize
	}
	absValue := decimal.NewFromFloat(absFloat(score.Value))
	dynamic := l.cfg.Sizing.K.Mul(absValue).Mul(l.cfg.Sizing.NAV).Div(mid.Decimal)
	return types.Size{Decimal: decimal.Min(l.cfg.Sizing.BaseSize, dynamic)}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (l *Loop) reportOrder(order *types.Order, confidence types.Confidence, snapshot types.MarketData) {
	if order == nil || order.FilledSize.Decimal.IsZero() {
		return
	}

	fill := types.Fill{
		OrderID: order.ID,
		Seq:     order.FillSeq,
		Symbol:  order.Symbol,
		Side:    order.Side,
		Kind:    order.Kind,
		Price:   order.Price,
		Size:    order.FilledSize,
		Maker:   order.Kind == types.KindLimit,
		TS:      order.LastUpdateAt,
	}

	l.positions.ApplyFill(fill)

	estimate := l.estimator.EstimateCost(order.Kind, order.Side, order.FilledSize, snapshot)

	if l.attributor != nil {
		attribution := l.attributor.OnFill(fill, estimate, snapshot.Mid().Decimal)
		if l.onFill != nil {
			l.onFill(order.Symbol, attribution)
		}
	}

	if ref, ok := opposingTouch(order.Side, snapshot); ok {
		l.estimator.RecordFill(order.Symbol, order.Side, order.Kind, order.FilledSize, order.Price.Decimal, ref.Decimal, estimate, order.LastUpdateAt.UnixNano())
	}
}

// opposingTouch returns the touch price on the far side of the book
// from side -- the ask for a buy, the bid for a sell -- matching the
// reference price cost.Estimator.EstimateCost itself used to size its
// pre-trade slippage lookup, so realized-vs-estimated comparisons stay
// apples to apples.
func opposingTouch(side types.Side, snapshot types.MarketData) (types.Price, bool) {
	if side == types.SideBuy {
		if ask, ok := snapshot.BestAsk(); ok {
			return ask.Price, true
		}
		return types.Price{}, false
	}
	if bid, ok := snapshot.BestBid(); ok {
		return bid.Price, true
	}
	return types.Price{}, false
}
