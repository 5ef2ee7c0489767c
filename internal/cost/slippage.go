// Package cost implements C5 (SlippageEstimator) and C6
// (DynamicCostEstimator), pre-trade cost prediction and post-trade
// realized-cost recording. Grounded on the teacher's
// computeSlippage/applySlippage pair in execution_service.go, which
// this package generalizes from a single global history to one
// segmented by (symbol, side) and promotes from float64 to decimal at
// the money boundary, keeping float64 only for the ratio/size-factor
// math per spec §9.
package cost

import (
	"sort"
	"sync"

	"github.com/autovant/perp-core/internal/types"
)

// SlippageObservation is one realized slippage sample in bps.
type SlippageObservation struct {
	Symbol string
	Side   types.Side
	Bps    float64
	Notional float64
}

type slippageKey struct {
	symbol string
	side   types.Side
}

// SlippageEstimator maintains a bounded, capacity-trimmed history of
// observed slippage bps segmented by (symbol, side), per §4.5.
type SlippageEstimator struct {
	mu        sync.Mutex
	capacity  int
	defaultBps float64
	history   map[slippageKey][]SlippageObservation
}

func NewSlippageEstimator(capacity int, defaultBps float64) *SlippageEstimator {
	if capacity <= 0 {
		capacity = 1000
	}
	return &SlippageEstimator{
		capacity:   capacity,
		defaultBps: defaultBps,
		history:    make(map[slippageKey][]SlippageObservation),
	}
}

// Record appends an observed slippage sample, trimming the oldest
// entries past capacity.
func (e *SlippageEstimator) Record(obs SlippageObservation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := slippageKey{obs.Symbol, obs.Side}
	hist := append(e.history[key], obs)
	if len(hist) > e.capacity {
		hist = hist[len(hist)-e.capacity:]
	}
	e.history[key] = hist
}

// Estimate returns median(recent) * sizeFactor(size), or the configured
// default when there is no history yet.
func (e *SlippageEstimator) Estimate(symbol string, side types.Side, notional float64) float64 {
	e.mu.Lock()
	hist := e.history[slippageKey{symbol, side}]
	e.mu.Unlock()

	if len(hist) == 0 {
		return e.defaultBps
	}

	bpsSamples := make([]float64, len(hist))
	notionals := make([]float64, len(hist))
	for i, o := range hist {
		bpsSamples[i] = o.Bps
		notionals[i] = o.Notional
	}
	medianBps := median(bpsSamples)
	medianNotional := median(notionals)
	return medianBps * sizeFactor(notional, medianNotional)
}

// sizeFactor is a non-decreasing function of size relative to the
// median observed notional: identity below the median, linear growth
// up to a cap of 2x at 10x median notional, per §4.5.
func sizeFactor(notional, medianNotional float64) float64 {
	if medianNotional <= 0 || notional <= medianNotional {
		return 1.0
	}
	ratio := notional / medianNotional
	if ratio >= 10 {
		return 2.0
	}
	// linear interpolation from (1, 1.0) to (10, 2.0)
	return 1.0 + (ratio-1.0)*(1.0/9.0)
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
