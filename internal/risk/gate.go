package risk

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/audit"
	"github.com/autovant/perp-core/internal/types"
)

// Config carries the hard limits the gate enforces, per §4.7 and the
// config table in §6.
type Config struct {
	MaxSingleLossPct     decimal.Decimal
	MaxDailyDrawdownPct  decimal.Decimal
	MaxPositionUSD       decimal.Decimal
	WorstAdverseMoveBps  decimal.Decimal
}

// Gate is C7's admission-control half: it holds the process-wide NAV /
// daily-PnL / halt state (the only shared mutable state the engine
// carries, per spec §9) and validates every intended order before it
// reaches an executor. The halt flag is a sticky atomic latch: once
// tripped it stays tripped until Reset is called by an operator (the
// ops HTTP surface, §4's supplemented features).
type Gate struct {
	cfg    Config
	logger *zap.Logger
	sink   audit.Writer

	mu           sync.Mutex
	nav          decimal.Decimal
	dailyPnL     decimal.Decimal
	dailyRealized decimal.Decimal

	halted     atomic.Bool
	haltReason atomic.Value // string
}

func NewGate(cfg Config, nav decimal.Decimal, logger *zap.Logger, sink audit.Writer) *Gate {
	if sink == nil {
		sink = audit.NopSink{}
	}
	g := &Gate{cfg: cfg, logger: logger, sink: sink, nav: nav}
	g.haltReason.Store("")
	return g
}

// Snapshot returns an immutable read of the current risk state.
func (g *Gate) Snapshot() types.RiskStateSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return types.RiskStateSnapshot{
		NAV:           g.nav,
		DailyPnL:      g.dailyPnL,
		DailyRealized: g.dailyRealized,
		Halted:        g.halted.Load(),
		HaltReason:    g.haltReason.Load().(string),
	}
}

// Allow is the pre-order check, §4.7: rejects when halted, when the
// resulting position notional would exceed max_position_usd, when the
// estimated worst-case loss of this order would exceed
// max_single_loss_pct*nav, or when daily_pnl minus that worst-case loss
// would breach -max_daily_drawdown_pct*nav.
func (g *Gate) Allow(intended types.Order, position types.Position, snapshot types.MarketData) types.Decision {
	if g.halted.Load() {
		return types.Decision{Approved: false, Reason: types.DenyHalted}
	}

	g.mu.Lock()
	nav := g.nav
	dailyPnL := g.dailyPnL
	g.mu.Unlock()

	mark := intended.Price
	if mark.Decimal.IsZero() {
		mark = snapshot.Mid()
	}

	resultingSize := position.Size
	signedOrderSize := intended.Size.Decimal
	if intended.Side == types.SideSell {
		signedOrderSize = signedOrderSize.Neg()
	}
	resultingSize = resultingSize.Add(signedOrderSize)
	resultingNotional := resultingSize.Abs().Mul(mark.Decimal)

	if nav.IsPositive() && resultingNotional.GreaterThan(g.cfg.MaxPositionUSD) {
		return types.Decision{Approved: false, Reason: types.DenyMaxPositionExceeded}
	}

	worstCaseLoss := intended.Size.Decimal.Mul(mark.Decimal).Mul(g.cfg.WorstAdverseMoveBps).Div(decimal.NewFromInt(10000))

	if nav.IsPositive() {
		maxSingleLoss := g.cfg.MaxSingleLossPct.Mul(nav)
		if worstCaseLoss.GreaterThan(maxSingleLoss) {
			return types.Decision{Approved: false, Reason: types.DenySingleLossExceeded}
		}

		maxDrawdown := g.cfg.MaxDailyDrawdownPct.Mul(nav).Neg()
		if dailyPnL.Sub(worstCaseLoss).LessThan(maxDrawdown) {
			return types.Decision{Approved: false, Reason: types.DenyDailyDrawdownExceeded}
		}
	}

	return types.Decision{Approved: true}
}

// OnTrade is invoked by PnLAttributor on every terminal fill with the
// fill's total realized PnL. It updates daily_pnl and, if either hard
// limit is now breached, sets the sticky halt latch and emits a
// critical audit event.
func (g *Gate) OnTrade(totalPnL decimal.Decimal) {
	g.mu.Lock()
	g.dailyPnL = g.dailyPnL.Add(totalPnL)
	if totalPnL.IsNegative() {
		g.dailyRealized = g.dailyRealized.Add(totalPnL)
	}
	nav := g.nav
	dailyPnL := g.dailyPnL
	g.mu.Unlock()

	if !nav.IsPositive() {
		return
	}

	maxDrawdown := g.cfg.MaxDailyDrawdownPct.Mul(nav).Neg()
	if dailyPnL.LessThan(maxDrawdown) {
		g.trip("daily_drawdown_breached", dailyPnL)
		return
	}

	maxSingleLoss := g.cfg.MaxSingleLossPct.Mul(nav)
	if totalPnL.Neg().GreaterThan(maxSingleLoss) {
		g.trip("single_trade_loss_breached", totalPnL)
	}
}

func (g *Gate) trip(reason string, value decimal.Decimal) {
	if !g.halted.CompareAndSwap(false, true) {
		return // already halted: sticky, first trip wins the reason
	}
	g.haltReason.Store(reason)
	if g.logger != nil {
		g.logger.Error("risk gate tripped halt", zap.String("reason", reason), zap.String("value", value.String()))
	}
	g.sink.Write(audit.Event{
		Kind:   audit.EventRiskCritical,
		Fields: map[string]interface{}{"reason": reason, "value": value.String()},
	})
}

// Reset clears the halt latch. Only an external operator action (the
// ops HTTP surface) may call this; nothing inside the hard core
// self-resets.
func (g *Gate) Reset() {
	g.halted.Store(false)
	g.haltReason.Store("")
}

// Halted reports the current sticky halt state.
func (g *Gate) Halted() bool { return g.halted.Load() }

// SetNAV updates the NAV the gate sizes its limits against, typically
// refreshed periodically from the exchange account endpoint.
func (g *Gate) SetNAV(nav decimal.Decimal) {
	g.mu.Lock()
	g.nav = nav
	g.mu.Unlock()
}

// ResetDaily clears the daily PnL counters, called at the venue's daily
// boundary.
func (g *Gate) ResetDaily() {
	g.mu.Lock()
	g.dailyPnL = decimal.Zero
	g.dailyRealized = decimal.Zero
	g.mu.Unlock()
}
