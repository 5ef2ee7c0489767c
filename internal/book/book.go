// Package book implements C1: the per-symbol top-N L2 order book
// maintained from a snapshot plus a stream of incremental updates, per
// spec §4.1. Grounded on the price-level bookkeeping in
// other_examples/8829b2bd_..._orderbook_engine.go (decimal price levels,
// best-bid/ask caching) adapted to the simpler top-N aggregated-level
// semantics spec.md actually asks for (no per-order queue, no matching).
package book

import (
	"sort"
	"time"

	"github.com/autovant/perp-core/internal/types"
)

// Update is a single incremental level update. Size==0 removes the level.
type Update struct {
	Side  types.Side
	Price types.Price
	Size  types.Size
}

// Book maintains top-N bids (descending) and asks (ascending) for one
// symbol. It is exclusively owned by the MarketDataHub; signals only ever
// read an immutable Snapshot.
type Book struct {
	Symbol       string
	TopN         int
	bids         []types.Level
	asks         []types.Level
	lastUpdateTS time.Time
	stale        bool
}

// New creates an empty book for symbol with the given top-N depth.
func New(symbol string, topN int) *Book {
	if topN <= 0 {
		topN = 10
	}
	return &Book{Symbol: symbol, TopN: topN}
}

// LoadSnapshot replaces the book wholesale from a full snapshot (used on
// connect and on resync after a crossed-book failure) and clears the
// stale flag.
func (b *Book) LoadSnapshot(ts time.Time, bids, asks []types.Level) {
	b.bids = sortedTrim(bids, true, b.TopN)
	b.asks = sortedTrim(asks, false, b.TopN)
	b.lastUpdateTS = ts
	b.stale = false
}

// ApplyUpdates applies a batch of incremental updates arriving in feed
// order, trims each side back to TopN, and stamps last_update_ts. If the
// resulting book is crossed (best_bid >= best_ask) the book is marked
// stale; callers (MarketDataHub) must then request a resync and must not
// publish snapshots until LoadSnapshot clears it.
func (b *Book) ApplyUpdates(ts time.Time, updates []Update) {
	for _, u := range updates {
		b.applyOne(u)
	}
	b.bids = trimTo(b.bids, b.TopN)
	b.asks = trimTo(b.asks, b.TopN)
	b.lastUpdateTS = ts

	if b.crossed() {
		b.stale = true
	}
}

func (b *Book) applyOne(u Update) {
	switch u.Side {
	case types.SideBuy:
		b.bids = upsertLevel(b.bids, u.Price, u.Size, true)
	case types.SideSell:
		b.asks = upsertLevel(b.asks, u.Price, u.Size, false)
	}
}

func (b *Book) crossed() bool {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return false
	}
	return b.bids[0].Price.Decimal.GreaterThanOrEqual(b.asks[0].Price.Decimal)
}

// Stale reports whether the book is in a resync-pending state.
func (b *Book) Stale() bool { return b.stale }

// Snapshot returns an immutable view of the book plus the supplied trade
// tape. ok is false while the book is stale — callers must not forward
// the snapshot to signals in that case (spec §4.1).
func (b *Book) Snapshot(trades []types.Trade) (types.MarketData, bool) {
	if b.stale {
		return types.MarketData{}, false
	}
	return types.MarketData{
		Symbol:       b.Symbol,
		TS:           b.lastUpdateTS,
		Bids:         append([]types.Level(nil), b.bids...),
		Asks:         append([]types.Level(nil), b.asks...),
		RecentTrades: trades,
	}, true
}

func upsertLevel(levels []types.Level, price types.Price, size types.Size, descending bool) []types.Level {
	idx := sort.Search(len(levels), func(i int) bool {
		if descending {
			return levels[i].Price.Decimal.LessThanOrEqual(price.Decimal)
		}
		return levels[i].Price.Decimal.GreaterThanOrEqual(price.Decimal)
	})

	found := idx < len(levels) && levels[idx].Price.Decimal.Equal(price.Decimal)

	if size.Decimal.IsZero() {
		if found {
			return append(levels[:idx], levels[idx+1:]...)
		}
		return levels
	}

	if found {
		levels[idx].Size = size
		return levels
	}

	levels = append(levels, types.Level{})
	copy(levels[idx+1:], levels[idx:])
	levels[idx] = types.Level{Price: price, Size: size}
	return levels
}

func trimTo(levels []types.Level, n int) []types.Level {
	if len(levels) > n {
		return levels[:n]
	}
	return levels
}

func sortedTrim(levels []types.Level, descending bool, n int) []types.Level {
	out := append([]types.Level(nil), levels...)
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.Decimal.GreaterThan(out[j].Price.Decimal)
		}
		return out[i].Price.Decimal.LessThan(out[j].Price.Decimal)
	})
	return trimTo(out, n)
}

// BestBid and BestAsk return the top level of each side without building
// a full snapshot; the bool is false when that side is empty.
func (b *Book) BestBid() (types.Level, bool) {
	if len(b.bids) == 0 {
		return types.Level{}, false
	}
	return b.bids[0], true
}

func (b *Book) BestAsk() (types.Level, bool) {
	if len(b.asks) == 0 {
		return types.Level{}, false
	}
	return b.asks[0], true
}

// EqualLevels is exported for tests validating the round-trip law:
// "snapshot -> updates reducing it to the same snapshot yields an equal
// book".
func EqualLevels(a, b []types.Level) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Price.Decimal.Equal(b[i].Price.Decimal) || !a[i].Size.Decimal.Equal(b[i].Size.Decimal) {
			return false
		}
	}
	return true
}
