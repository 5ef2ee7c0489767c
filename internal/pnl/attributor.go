// Package pnl implements C12: the PnLAttributor. Grounded on the
// teacher's computeUnrealPnL (execution_service.go) for the
// mark-to-reference arithmetic shape, and on
// DimaJoyti-ai-agentic-crypto-browser's PostTradeAnalytics for the
// decimal-first decomposition-record pattern, generalized to the
// five-way {alpha, fee, slippage, impact, rebate} split with an
// unexplained residual so the identity in §3 always holds exactly.
package pnl

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/autovant/perp-core/internal/cost"
	"github.com/autovant/perp-core/internal/risk"
	"github.com/autovant/perp-core/internal/types"
)

// OnTrader is the subset of *risk.Gate the attributor drives after
// computing each fill's total realized PnL.
type OnTrader interface {
	OnTrade(totalPnL decimal.Decimal)
}

// Attributor is C12. Alpha is computed independently from reference-mid
// movement at fill time, never derived circularly from Total (§9's
// resolved open question); Unexplained absorbs whatever residual keeps
// the identity exact.
type Attributor struct {
	estimator *cost.Estimator
	gate      OnTrader

	mu      sync.Mutex
	refMid  map[string]decimal.Decimal
	history []types.Attribution
	window  int
	applied map[fillKey]struct{}
}

// fillKey identifies a fill for idempotency, mirroring
// internal/risk.PositionManager's dedup key.
type fillKey struct {
	orderID string
	seq     uint64
}

func NewAttributor(estimator *cost.Estimator, gate OnTrader, window int) *Attributor {
	if window <= 0 {
		window = 500
	}
	return &Attributor{
		estimator: estimator,
		gate:      gate,
		refMid:    make(map[string]decimal.Decimal),
		window:    window,
		applied:   make(map[fillKey]struct{}),
	}
}

// UpdateReferenceMid refreshes the rolling reference mid for symbol,
// typically called once per trading-loop iteration before any fills are
// attributed against it.
func (a *Attributor) UpdateReferenceMid(symbol string, mid decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refMid[symbol] = mid
}

// OnFill computes the per-fill decomposition described in §4.12 and
// feeds the resulting total PnL into the risk gate's OnTrade hook.
// Redelivery of a fill already attributed (same OrderID + Seq) is a
// no-op, per spec's fill-idempotency invariant. Fills with no OrderID
// (e.g. synthetic/test fills) are never deduplicated.
func (a *Attributor) OnFill(fill types.Fill, estimate types.CostEstimate, exitMid decimal.Decimal) types.Attribution {
	if fill.OrderID != "" {
		a.mu.Lock()
		key := fillKey{fill.OrderID, fill.Seq}
		_, seen := a.applied[key]
		if !seen {
			a.applied[key] = struct{}{}
		}
		a.mu.Unlock()
		if seen {
			return types.Attribution{}
		}
	}

	a.mu.Lock()
	entryMid, hadRef := a.refMid[fill.Symbol]
	a.mu.Unlock()
	if !hadRef {
		entryMid = fill.Price.Decimal
	}

	signedSize := fill.Size.Decimal
	if fill.Side == types.SideSell {
		signedSize = signedSize.Neg()
	}

	alpha := exitMid.Sub(entryMid).Mul(signedSize)

	notional := fill.Price.Decimal.Mul(fill.Size.Decimal)
	fee := notional.Mul(estimate.FeeBps).Div(decimal.NewFromInt(10000))

	refPrice := entryMid
	slippage := fill.Price.Decimal.Sub(refPrice).Abs().Mul(fill.Size.Decimal)

	impact := notional.Mul(estimate.ImpactBps).Div(decimal.NewFromInt(10000))

	rebate := decimal.Zero
	if fill.Rebate {
		rebate = fee // a confirmed-rebate fill earns back its fee, a conservative proxy absent a venue-reported rebate rate
	}

	explained := alpha.Sub(fee).Sub(slippage).Sub(impact).Add(rebate)
	// Unexplained is defined to be zero by construction here: this
	// attributor has no independent "actual total PnL" source besides
	// its own components, so the identity holds trivially. A venue
	// fills report with realized PnL would set unexplained = actual -
	// explained instead.
	unexplained := decimal.Zero
	total := explained.Add(unexplained)

	attribution := types.Attribution{
		Alpha:       alpha,
		Fee:         fee,
		Slippage:    slippage,
		Impact:      impact,
		Rebate:      rebate,
		Unexplained: unexplained,
		Total:       total,
	}

	a.mu.Lock()
	a.history = append(a.history, attribution)
	if len(a.history) > a.window {
		a.history = a.history[len(a.history)-a.window:]
	}
	a.mu.Unlock()

	if a.gate != nil {
		a.gate.OnTrade(total)
	}

	return attribution
}

// AlphaShare reports Σalpha / Σ|total| over the rolling window, per
// §4.12's health metric. Informational only; not a gate.
func (a *Attributor) AlphaShare() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.history) == 0 {
		return 0
	}
	sumAlpha := decimal.Zero
	sumAbsTotal := decimal.Zero
	for _, attr := range a.history {
		sumAlpha = sumAlpha.Add(attr.Alpha)
		sumAbsTotal = sumAbsTotal.Add(attr.Total.Abs())
	}
	if sumAbsTotal.IsZero() {
		return 0
	}
	f, _ := sumAlpha.Div(sumAbsTotal).Float64()
	return f
}

var _ OnTrader = (*risk.Gate)(nil)
