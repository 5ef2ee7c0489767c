// Package risk implements C7: the RiskGate admission-control component
// and its PositionManager sub-component. Grounded on the teacher's
// risk_state.go (RiskState{CrisisMode, ConsecutiveLosses, Drawdown,
// PositionSizeFactor}) for the shape of a broadcastable risk state, and
// on execution_service.go's applyPositionFill/computeUnrealPnL for the
// position-update arithmetic, both re-expressed in decimal and
// generalized to the size-weighted-average / proportional-realization /
// sign-change-closes-then-opens rules of §3.
package risk

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/autovant/perp-core/internal/types"
)

// PositionManager owns per-symbol position state, updated on every
// fill per §3's rules: size-weighted average entry price while
// increasing, proportional realization while decreasing, and a sign
// change treated as close-then-open with full realization across zero.
type PositionManager struct {
	mu        sync.Mutex
	positions map[string]types.Position
	applied   map[fillKey]struct{}
}

// fillKey identifies a fill for idempotency, per spec's "applied exactly
// once per (order id, fill sequence)" invariant.
type fillKey struct {
	orderID string
	seq     uint64
}

func NewPositionManager() *PositionManager {
	return &PositionManager{
		positions: make(map[string]types.Position),
		applied:   make(map[fillKey]struct{}),
	}
}

// Position returns a copy of the current position for symbol.
func (m *PositionManager) Position(symbol string) types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[symbol]; ok {
		return p
	}
	return types.Position{Symbol: symbol}
}

// ApplyFill updates the position for fill.Symbol and returns the
// realized PnL delta from this fill (zero unless the fill closes or
// reduces an existing position). Redelivery of a fill already applied
// (same OrderID + Seq) is a no-op, per spec's fill-idempotency
// invariant. Fills with no OrderID (e.g. synthetic/test fills) are
// never deduplicated.
func (m *PositionManager) ApplyFill(fill types.Fill) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fill.OrderID != "" {
		key := fillKey{fill.OrderID, fill.Seq}
		if _, seen := m.applied[key]; seen {
			return decimal.Zero
		}
		m.applied[key] = struct{}{}
	}

	pos, ok := m.positions[fill.Symbol]
	if !ok {
		pos = types.Position{Symbol: fill.Symbol}
	}

	signedFillSize := fill.Size.Decimal
	if fill.Side == types.SideSell {
		signedFillSize = signedFillSize.Neg()
	}

	realizedDelta := decimal.Zero

	switch {
	case pos.Size.IsZero():
		// Opening from flat: new average entry is the fill price.
		pos.AvgEntryPrice = fill.Price
		pos.Size = signedFillSize

	case sameSign(pos.Size, signedFillSize):
		// Increasing an existing position: size-weighted average.
		oldNotional := pos.AvgEntryPrice.Decimal.Mul(pos.Size.Decimal.Abs())
		addNotional := fill.Price.Decimal.Mul(signedFillSize.Abs())
		newSize := pos.Size.Add(signedFillSize)
		pos.AvgEntryPrice = types.Price{Decimal: oldNotional.Add(addNotional).Div(newSize.Abs())}
		pos.Size = newSize

	default:
		// Decreasing, possibly crossing through zero.
		closingSize := decimal.Min(pos.Size.Abs(), signedFillSize.Abs())
		pnlPerUnit := fill.Price.Decimal.Sub(pos.AvgEntryPrice.Decimal)
		if pos.Size.IsNegative() {
			pnlPerUnit = pnlPerUnit.Neg()
		}
		realizedDelta = pnlPerUnit.Mul(closingSize)
		pos.RealizedPnL = pos.RealizedPnL.Add(realizedDelta)

		newSize := pos.Size.Add(signedFillSize)
		if sameSign(pos.Size, newSize) || newSize.IsZero() {
			// Still reducing toward (or reaching) flat: avg entry
			// unchanged, only size shrinks.
			pos.Size = newSize
			if newSize.IsZero() {
				pos.AvgEntryPrice = types.ZeroPrice
			}
		} else {
			// Sign change: close fully, then open the residual at the
			// fill price (full realization across zero already
			// captured above for the closing leg).
			pos.Size = newSize
			pos.AvgEntryPrice = fill.Price
		}
	}

	m.positions[fill.Symbol] = pos
	return realizedDelta
}

// MarkUnrealized recomputes unrealized PnL for symbol against a current
// mark price, typically called once per trading-loop iteration.
func (m *PositionManager) MarkUnrealized(symbol string, mark types.Price) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[symbol]
	if !ok || pos.Size.IsZero() {
		return
	}
	diff := mark.Decimal.Sub(pos.AvgEntryPrice.Decimal)
	pos.UnrealizedPnL = diff.Mul(pos.Size)
	m.positions[symbol] = pos
}

// Reset clears all tracked positions and applied-fill history.
func (m *PositionManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = make(map[string]types.Position)
	m.applied = make(map[fillKey]struct{})
}

func sameSign(a, b decimal.Decimal) bool {
	return (a.IsPositive() && b.IsPositive()) || (a.IsNegative() && b.IsNegative())
}
