// Package execution implements C8 (ShallowMakerExecutor), C9
// (IOCExecutor) and C10 (HybridExecutor) — the per-signal routing state
// machine described in §4.10. Grounded on the teacher's PaperBroker
// order lifecycle (execution_service.go) for the submit/poll/cancel
// shape, and on the OrderState machine in
// web3guy0-polybot/execution/executor.go for the
// pending/filled/canceled/rejected transition structure, both
// generalized to the hybrid maker-then-IOC-fallback routing §4.10
// requires and promoted to decimal throughout.
package execution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/marketdata"
	"github.com/autovant/perp-core/internal/types"
)

// pollInterval is the fallback polling cadence when the adapter offers
// no status-update channel, per §4.8's "≥10 Hz" requirement.
const pollInterval = 80 * time.Millisecond

// ShallowMaker is C8: it places a passive limit order one tick inside
// the opposite side and waits up to a confidence-dependent timeout.
type ShallowMaker struct {
	adapter marketdata.OrderAdapter
	spec    types.SymbolSpec
	logger  *zap.Logger

	timeoutHigh   time.Duration
	timeoutMedium time.Duration
	tickOffset    int
	postOnly      bool
}

func NewShallowMaker(adapter marketdata.OrderAdapter, spec types.SymbolSpec, logger *zap.Logger, timeoutHigh, timeoutMedium time.Duration, tickOffset int, postOnly bool) *ShallowMaker {
	return &ShallowMaker{
		adapter:       adapter,
		spec:          spec,
		logger:        logger,
		timeoutHigh:   timeoutHigh,
		timeoutMedium: timeoutMedium,
		tickOffset:    tickOffset,
		postOnly:      postOnly,
	}
}

// TryMaker submits the passive order and waits for a terminal outcome
// or timeout, per §4.8. Returns (order, true) only on a FILLED terminal
// order; any other outcome — timeout, reject, partial-then-canceled —
// returns (lastKnownOrder, false) so the caller can inspect partial
// fills for position/attribution purposes even though the attempt
// itself did not succeed.
func (m *ShallowMaker) TryMaker(ctx context.Context, side types.Side, size types.Size, confidence types.Confidence, snapshot types.MarketData) (types.Order, bool) {
	timeout := m.timeoutForConfidence(confidence)
	price := m.passivePrice(side, snapshot)

	order := types.Order{
		Symbol:    snapshot.Symbol,
		Side:      side,
		Kind:      types.KindLimit,
		Price:     price,
		Size:      size,
		PostOnly:  m.postOnly,
		CreatedAt: time.Now(),
	}

	id, err := m.adapter.PlaceOrder(ctx, order)
	if err != nil {
		m.logger.Warn("maker order submission failed", zap.Error(err), zap.String("symbol", order.Symbol))
		return order, false
	}
	order.ID = id

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		current, err := m.adapter.GetOrder(ctx, id)
		if err != nil {
			m.logger.Warn("maker order status poll failed", zap.Error(err), zap.String("order_id", id))
		} else {
			order = current
			switch order.Status {
			case types.StatusFilled:
				return order, true
			case types.StatusRejected, types.StatusCanceled, types.StatusExpired:
				return order, false
			}
		}

		if time.Now().After(deadline) {
			_ = m.adapter.CancelOrder(ctx, id)
			final, err := m.adapter.GetOrder(ctx, id)
			if err == nil {
				order = final
			}
			return order, false
		}

		select {
		case <-ctx.Done():
			_ = m.adapter.CancelOrder(ctx, id)
			return order, false
		case <-ticker.C:
		}
	}
}

func (m *ShallowMaker) timeoutForConfidence(c types.Confidence) time.Duration {
	switch c {
	case types.ConfidenceHigh:
		return m.timeoutHigh
	default:
		return m.timeoutMedium
	}
}

// passivePrice places the order one tick inside the opposite touch:
// best_bid + tick for BUY, best_ask - tick for SELL.
func (m *ShallowMaker) passivePrice(side types.Side, snapshot types.MarketData) types.Price {
	tickSize := m.spec.TickSize
	offset := tickSize.Mul(decimalFromInt(m.tickOffset))

	if side == types.SideBuy {
		bb, ok := snapshot.BestBid()
		if !ok {
			return types.ZeroPrice
		}
		return types.Price{Decimal: bb.Price.Decimal.Add(offset)}
	}
	ba, ok := snapshot.BestAsk()
	if !ok {
		return types.ZeroPrice
	}
	return types.Price{Decimal: ba.Price.Decimal.Sub(offset)}
}
