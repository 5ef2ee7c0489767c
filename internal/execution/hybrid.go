package execution

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/monitor"
	"github.com/autovant/perp-core/internal/types"
)

// Outcome is the terminal result of one HybridExecutor attempt: zero,
// one, or two orders (maker then IOC fallback), each possibly carrying
// partial fills. The caller (TradingLoop) fans fills out to
// PositionManager, PnLAttributor and the cost estimator.
type Outcome struct {
	MakerOrder *types.Order
	IOCOrder   *types.Order
	Skipped    bool
}

// Hybrid is C10: the per-signal routing state machine described in
// §4.10. Exactly one intent may be in flight per symbol at a time; a
// signal arriving while a prior intent is in-flight is dropped and
// logged as coalesced.
type Hybrid struct {
	maker  *ShallowMaker
	ioc    *IOC
	fills  FillRateRecorder
	logger *zap.Logger

	mu      sync.Mutex
	inFlight map[string]bool
}

// FillRateRecorder is the subset of *monitor.FillRateMonitor the
// executor reports attempt outcomes to.
type FillRateRecorder interface {
	Record(confidence types.Confidence, filled bool)
}

func NewHybrid(maker *ShallowMaker, ioc *IOC, fills FillRateRecorder, logger *zap.Logger) *Hybrid {
	return &Hybrid{maker: maker, ioc: ioc, fills: fills, logger: logger, inFlight: make(map[string]bool)}
}

// Execute routes one classified signal for symbol, per §4.10's table:
//
//	LOW    -> skip
//	HIGH   -> try_maker(5s); if not fully filled -> ioc_fallback for the remainder
//	MEDIUM -> try_maker(3s); if not filled -> skip (never cross the spread)
func (h *Hybrid) Execute(ctx context.Context, score types.SignalScore, size types.Size, snapshot types.MarketData) Outcome {
	symbol := snapshot.Symbol

	h.mu.Lock()
	if h.inFlight[symbol] {
		h.mu.Unlock()
		h.logger.Info("coalesced: dropping signal with an intent already in flight", zap.String("symbol", symbol))
		return Outcome{Skipped: true}
	}
	h.inFlight[symbol] = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.inFlight[symbol] = false
		h.mu.Unlock()
	}()

	if score.Confidence == types.ConfidenceLow {
		return Outcome{Skipped: true}
	}

	side := score.Side()
	makerOrder, filled := h.maker.TryMaker(ctx, side, size, score.Confidence, snapshot)

	// §4.10's fill-rate convention: only a full fill within the maker
	// window counts as "filled"; partials count against the rate.
	h.fills.Record(score.Confidence, filled)

	if filled {
		return Outcome{MakerOrder: &makerOrder}
	}

	if score.Confidence == types.ConfidenceMedium {
		return Outcome{MakerOrder: &makerOrder, Skipped: true}
	}

	// HIGH and not fully filled: IOC fallback for the remaining size.
	remaining := makerOrder.Remaining()
	if !remaining.Decimal.IsPositive() {
		return Outcome{MakerOrder: &makerOrder}
	}
	iocOrder := h.ioc.Submit(ctx, side, remaining, snapshot)
	return Outcome{MakerOrder: &makerOrder, IOCOrder: &iocOrder}
}

var _ FillRateRecorder = (*monitor.FillRateMonitor)(nil)
