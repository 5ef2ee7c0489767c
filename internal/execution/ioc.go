package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/marketdata"
	"github.com/autovant/perp-core/internal/types"
)

// IOC is C9: the immediate-or-cancel executor. It crosses the spread
// for a single-shot fill-or-discard attempt, capped by a maximum cross
// in bps beyond the touch.
type IOC struct {
	adapter    marketdata.OrderAdapter
	logger     *zap.Logger
	maxCrossBps decimal.Decimal
}

func NewIOC(adapter marketdata.OrderAdapter, logger *zap.Logger, maxCrossBps decimal.Decimal) *IOC {
	return &IOC{adapter: adapter, logger: logger, maxCrossBps: maxCrossBps}
}

// Submit places the IOC order and waits briefly for the adapter's
// terminal status (IOC orders resolve at submission time in practice,
// but the adapter contract is async so the executor still observes the
// result rather than assuming it).
func (e *IOC) Submit(ctx context.Context, side types.Side, size types.Size, snapshot types.MarketData) types.Order {
	price := e.crossPrice(side, snapshot)

	order := types.Order{
		Symbol:    snapshot.Symbol,
		Side:      side,
		Kind:      types.KindIOC,
		Price:     price,
		Size:      size,
		CreatedAt: time.Now(),
	}

	id, err := e.adapter.PlaceOrder(ctx, order)
	if err != nil {
		e.logger.Warn("ioc order submission failed", zap.Error(err), zap.String("symbol", order.Symbol))
		order.Status = types.StatusRejected
		return order
	}
	order.ID = id

	deadline := time.Now().Add(2 * time.Second)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		current, err := e.adapter.GetOrder(ctx, id)
		if err == nil {
			order = current
			if order.Status.IsTerminal() {
				return order
			}
		}
		if time.Now().After(deadline) {
			_ = e.adapter.CancelOrder(ctx, id)
			final, err := e.adapter.GetOrder(ctx, id)
			if err == nil {
				order = final
			}
			if !order.Status.IsTerminal() {
				order.Status = types.StatusCanceled
			}
			return order
		}
		select {
		case <-ctx.Done():
			_ = e.adapter.CancelOrder(ctx, id)
			return order
		case <-ticker.C:
		}
	}
}

// crossPrice is best_ask (+ bounded slippage envelope) for BUY,
// best_bid (- envelope) for SELL, capped by maxCrossBps beyond the
// touch.
func (e *IOC) crossPrice(side types.Side, snapshot types.MarketData) types.Price {
	if side == types.SideBuy {
		ba, ok := snapshot.BestAsk()
		if !ok {
			return types.ZeroPrice
		}
		envelope := ba.Price.Decimal.Mul(e.maxCrossBps.Div(decimal.NewFromInt(10000)))
		return types.Price{Decimal: ba.Price.Decimal.Add(envelope)}
	}
	bb, ok := snapshot.BestBid()
	if !ok {
		return types.ZeroPrice
	}
	envelope := bb.Price.Decimal.Mul(e.maxCrossBps.Div(decimal.NewFromInt(10000)))
	return types.Price{Decimal: bb.Price.Decimal.Sub(envelope)}
}
