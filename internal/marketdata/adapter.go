// Package marketdata implements C2: the MarketDataHub that demultiplexes
// an exchange adapter's streams into per-symbol order books and trade
// tapes, per spec §4.2. The StreamAdapter/OrderAdapter interfaces below
// are the narrow contract spec §6 names as "consumed, not defined here" —
// a concrete implementation lives in internal/adapter and is an external
// collaborator, not part of the hard core.
package marketdata

import (
	"context"
	"time"

	"github.com/autovant/perp-core/internal/book"
	"github.com/autovant/perp-core/internal/types"
)

// L2UpdateMsg is a single incremental book update for one symbol as
// delivered by the exchange stream.
type L2UpdateMsg struct {
	Symbol string
	TS     time.Time
	Update book.Update
}

// TradeMsg is a single executed trade as delivered by the exchange
// stream.
type TradeMsg struct {
	Symbol string
	Trade  types.Trade
}

// SnapshotMsg is a full book snapshot, delivered on connect or on
// request (resync).
type SnapshotMsg struct {
	Symbol string
	TS     time.Time
	Bids   []types.Level
	Asks   []types.Level
}

// StreamAdapter is the streaming half of spec §6's exchange adapter
// contract.
type StreamAdapter interface {
	// Subscribe starts streaming for the given symbols and returns
	// channels the hub reads from until ctx is canceled. The adapter
	// closes all three channels when the stream ends (disconnect or
	// ctx cancellation).
	Subscribe(ctx context.Context, symbols []string) (<-chan L2UpdateMsg, <-chan TradeMsg, <-chan SnapshotMsg, error)

	// RequestSnapshot asks the adapter for a fresh snapshot of symbol,
	// used for resync after a crossed-book failure or reconnect.
	RequestSnapshot(ctx context.Context, symbol string) (SnapshotMsg, error)
}

// OrderAdapter is the REST half of spec §6's exchange adapter contract,
// consumed by the execution package.
type OrderAdapter interface {
	PlaceOrder(ctx context.Context, o types.Order) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (types.Order, error)
	GetFills(ctx context.Context, orderID string) ([]types.Fill, error)
}
