package marketdata

import (
	"time"

	"github.com/autovant/perp-core/internal/types"
)

// TradeRing is the bounded ring of the last W ms of trades for one
// symbol, per spec §3. Add and Since both evict trades older than the
// window; an eviction copies the retained trades into a new slice.
type TradeRing struct {
	window time.Duration
	trades []types.Trade
}

func NewTradeRing(window time.Duration) *TradeRing {
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	return &TradeRing{window: window}
}

// Add appends a trade and evicts anything older than the window relative
// to t.TS.
func (r *TradeRing) Add(t types.Trade) {
	r.trades = append(r.trades, t)
	r.evict(t.TS)
}

func (r *TradeRing) evict(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.trades) && r.trades[i].TS.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.trades = append([]types.Trade(nil), r.trades[i:]...)
	}
}

// Since returns the trades retained, oldest first. The caller owns the
// returned slice (it is a copy).
func (r *TradeRing) Since(now time.Time) []types.Trade {
	r.evict(now)
	return append([]types.Trade(nil), r.trades...)
}
