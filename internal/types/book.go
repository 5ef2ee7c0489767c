package types

import "time"

// Level is a single aggregated price level in an order book.
type Level struct {
	Price Price
	Size  Size
}

// Trade is one entry of a symbol's trade tape; Side is the aggressor side.
type Trade struct {
	TS     time.Time
	Symbol string
	Side   Side
	Price  Price
	Size   Size
}

// MarketData is an immutable snapshot of a symbol's book plus recent trade
// tape, valid for exactly one iteration of the per-symbol trading loop.
type MarketData struct {
	Symbol       string
	TS           time.Time
	Bids         []Level // descending price
	Asks         []Level // ascending price
	RecentTrades []Trade // bounded ring contents, oldest first
}

func (m MarketData) BestBid() (Level, bool) {
	if len(m.Bids) == 0 {
		return Level{}, false
	}
	return m.Bids[0], true
}

func (m MarketData) BestAsk() (Level, bool) {
	if len(m.Asks) == 0 {
		return Level{}, false
	}
	return m.Asks[0], true
}

// Mid returns (best_bid+best_ask)/2, or the zero Price if either side is
// empty.
func (m MarketData) Mid() Price {
	bb, ok1 := m.BestBid()
	ba, ok2 := m.BestAsk()
	if !ok1 || !ok2 {
		return ZeroPrice
	}
	return Mid(bb.Price, ba.Price)
}

// Microprice returns the depth-weighted mid
// (ask*bidSize + bid*askSize)/(bidSize+askSize), or Mid() if either side
// is empty or sizes sum to zero.
func (m MarketData) Microprice() Price {
	bb, ok1 := m.BestBid()
	ba, ok2 := m.BestAsk()
	if !ok1 || !ok2 {
		return ZeroPrice
	}
	denom := bb.Size.Decimal.Add(ba.Size.Decimal)
	if denom.IsZero() {
		return Mid(bb.Price, ba.Price)
	}
	num := ba.Price.Decimal.Mul(bb.Size.Decimal).Add(bb.Price.Decimal.Mul(ba.Size.Decimal))
	return Price{num.Div(denom)}
}

// SpreadBps returns the best-bid/best-ask spread in basis points.
func (m MarketData) SpreadBps() Bps {
	bb, ok1 := m.BestBid()
	ba, ok2 := m.BestAsk()
	if !ok1 || !ok2 {
		return ZeroBps
	}
	return SpreadBps(bb.Price, ba.Price)
}

// TopKNotional sums price*size of the first K levels on one side.
func TopKNotional(levels []Level, k int) Size {
	total := ZeroSize
	for i, lvl := range levels {
		if i >= k {
			break
		}
		total.Decimal = total.Decimal.Add(lvl.Price.Decimal.Mul(lvl.Size.Decimal))
	}
	return total
}
