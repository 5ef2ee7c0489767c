package cost

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/types"
)

// ImpactConfig parameterizes the impact-bps power-law model, §4.6.
type ImpactConfig struct {
	Alpha      float64
	Beta       float64
	DepthK     int
	MinBps     float64
	MaxBps     float64
}

func (c ImpactConfig) withDefaults() ImpactConfig {
	if c.Alpha <= 0 {
		c.Alpha = 1.0
	}
	if c.Beta <= 0 {
		c.Beta = 0.5
	}
	if c.DepthK <= 0 {
		c.DepthK = 5
	}
	if c.MaxBps <= 0 {
		c.MaxBps = 10
	}
	if c.MinBps <= 0 {
		c.MinBps = 0.5
	}
	return c
}

// Estimator is C6: the DynamicCostEstimator. It composes fee (from a
// types.FeeSchedule), slippage (from a SlippageEstimator) and a
// power-law impact model into a pre-trade types.CostEstimate, and
// records realized post-trade outcomes for drift monitoring.
type Estimator struct {
	fees    types.FeeSchedule
	slip    *SlippageEstimator
	impact  ImpactConfig
	logger  *zap.Logger

	mu      sync.Mutex
	records map[recordKey][]RealizedRecord
}

type recordKey struct {
	symbol string
	kind   types.OrderKind
}

// RealizedRecord is one post-trade estimate-vs-actual observation, §4.6.
type RealizedRecord struct {
	EstimatedTotalBps decimal.Decimal
	ActualTotalBps    decimal.Decimal
	TS                int64
}

func NewEstimator(fees types.FeeSchedule, slip *SlippageEstimator, impact ImpactConfig, logger *zap.Logger) *Estimator {
	return &Estimator{
		fees:    fees,
		slip:    slip,
		impact:  impact.withDefaults(),
		logger:  logger,
		records: make(map[recordKey][]RealizedRecord),
	}
}

// EstimateCost computes the pre-trade cost decomposition for an
// intended order against snapshot, per §4.6.
func (e *Estimator) EstimateCost(kind types.OrderKind, side types.Side, size types.Size, snapshot types.MarketData) types.CostEstimate {
	feeBps, err := e.fees.FeeBps(kind)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("unknown order kind for fee lookup, using zero fee", zap.Error(err))
		}
		feeBps = decimal.Zero
	}

	notional := e.notionalOf(side, size, snapshot)
	slipBps := e.slip.Estimate(snapshot.Symbol, side, notional)
	if math.IsNaN(slipBps) || math.IsInf(slipBps, 0) {
		if e.logger != nil {
			e.logger.Warn("slippage estimate unavailable, falling back to 0bps", zap.String("symbol", snapshot.Symbol))
		}
		slipBps = 0
	}

	impactBps := e.impactBps(side, size, snapshot)

	total := feeBps.Add(decimal.NewFromFloat(slipBps)).Add(decimal.NewFromFloat(impactBps))
	return types.CostEstimate{
		FeeBps:      feeBps,
		SlippageBps: decimal.NewFromFloat(slipBps),
		ImpactBps:   decimal.NewFromFloat(impactBps),
		TotalBps:    total,
	}
}

func (e *Estimator) notionalOf(side types.Side, size types.Size, snapshot types.MarketData) float64 {
	var px types.Price
	if side == types.SideBuy {
		if ask, ok := snapshot.BestAsk(); ok {
			px = ask.Price
		}
	} else {
		if bid, ok := snapshot.BestBid(); ok {
			px = bid.Price
		}
	}
	f, _ := px.Decimal.Mul(size.Decimal).Float64()
	return f
}

// impactBps implements α·(size/liquidity)^β·(1+(1-liquidity_score)),
// clamped to [MinBps, MaxBps].
func (e *Estimator) impactBps(side types.Side, size types.Size, snapshot types.MarketData) float64 {
	var passive []types.Level
	if side == types.SideBuy {
		passive = snapshot.Asks
	} else {
		passive = snapshot.Bids
	}
	liquidity := types.TopKNotional(passive, e.impact.DepthK)
	liqF, _ := liquidity.Decimal.Float64()
	sizeF, _ := size.Decimal.Float64()

	if liqF <= 0 {
		return e.impact.MaxBps
	}

	liquidityScore := clamp01(liqF / referenceLiquidity(passive, e.impact.DepthK))
	raw := e.impact.Alpha * math.Pow(sizeF/liqF, e.impact.Beta) * (1 + (1 - liquidityScore))
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return e.impact.MaxBps
	}
	return clampRange(raw, e.impact.MinBps, e.impact.MaxBps)
}

// referenceLiquidity is the average per-level notional across the top-K
// passive levels, used to normalize liquidity into a [0,1] score: a book
// with liquidity concentrated at the touch scores closer to 1 than one
// spread thin across K levels.
func referenceLiquidity(levels []types.Level, k int) float64 {
	if k > len(levels) {
		k = len(levels)
	}
	if k == 0 {
		return 1
	}
	total := types.TopKNotional(levels, k)
	totalF, _ := total.Decimal.Float64()
	avg := totalF / float64(k)
	if avg <= 0 {
		return 1
	}
	return avg
}

func clamp01(v float64) float64 { return clampRange(v, 0, 1) }

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RecordFill records the realized cost outcome of one terminal fill
// against the pre-trade estimate produced for it: the observed
// slippage, measured against referencePrice (the same opposing-touch
// reference EstimateCost itself used), feeds the SlippageEstimator's
// history so later pre-trade estimates for (symbol, side) learn from
// it, and the realized-vs-estimated total bps feeds RecordRealized for
// drift monitoring. A zero referencePrice (no opposing touch available
// at fill time) is skipped rather than recorded as a degenerate
// infinite bps observation.
func (e *Estimator) RecordFill(symbol string, side types.Side, kind types.OrderKind, size types.Size, fillPrice, referencePrice decimal.Decimal, estimate types.CostEstimate, ts int64) {
	if referencePrice.IsZero() {
		return
	}

	notional := fillPrice.Mul(size.Decimal)
	notionalF, _ := notional.Float64()

	slipBps := fillPrice.Sub(referencePrice).Abs().Div(referencePrice).Mul(decimal.NewFromInt(10000))
	slipBpsF, _ := slipBps.Float64()
	e.slip.Record(SlippageObservation{Symbol: symbol, Side: side, Bps: slipBpsF, Notional: notionalF})

	actual := types.CostEstimate{
		FeeBps:      estimate.FeeBps,
		SlippageBps: slipBps,
		ImpactBps:   estimate.ImpactBps,
		TotalBps:    estimate.FeeBps.Add(slipBps).Add(estimate.ImpactBps),
	}
	e.RecordRealized(symbol, kind, estimate, actual, ts)
}

// RecordRealized appends the realized-vs-estimated breakdown for one
// terminal order to the drift-monitoring store, segmented by
// (symbol, kind).
func (e *Estimator) RecordRealized(symbol string, kind types.OrderKind, estimated, actual types.CostEstimate, ts int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := recordKey{symbol, kind}
	e.records[key] = append(e.records[key], RealizedRecord{
		EstimatedTotalBps: estimated.TotalBps,
		ActualTotalBps:    actual.TotalBps,
		TS:                ts,
	})
}

// DriftBps returns the mean (actual - estimated) total bps for
// (symbol, kind), or zero if there is no history.
func (e *Estimator) DriftBps(symbol string, kind types.OrderKind) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	recs := e.records[recordKey{symbol, kind}]
	if len(recs) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, r := range recs {
		sum = sum.Add(r.ActualTotalBps.Sub(r.EstimatedTotalBps))
	}
	return sum.Div(decimal.NewFromInt(int64(len(recs))))
}
