// Package types defines the shared decimal data model for the trading
// core: prices, sizes, book levels, orders, positions and attribution.
// Monetary arithmetic is decimal throughout; float64 is reserved for
// signal scalars and statistics, per spec.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price is a quote-currency price at a symbol's configured precision.
type Price struct {
	decimal.Decimal
}

// Size is a base-asset quantity. Sizes are strictly positive except where
// explicitly noted (a zero Size on an incremental book update means
// "remove this level").
type Size struct {
	decimal.Decimal
}

// Bps is a value expressed in basis points (1bp = 1e-4).
type Bps struct {
	decimal.Decimal
}

func NewPrice(v float64) Price { return Price{decimal.NewFromFloat(v)} }
func NewSize(v float64) Size   { return Size{decimal.NewFromFloat(v)} }
func NewBps(v float64) Bps     { return Bps{decimal.NewFromFloat(v)} }

var (
	ZeroPrice = Price{decimal.Zero}
	ZeroSize  = Size{decimal.Zero}
	ZeroBps   = Bps{decimal.Zero}
)

// SymbolSpec carries the per-symbol precision the book and executors
// round to.
type SymbolSpec struct {
	Symbol   string
	TickSize decimal.Decimal
	LotSize  decimal.Decimal
}

// RoundToTick rounds a price down to the nearest tick, whatever the side
// it is for. A zero TickSize returns p unchanged.
func (s SymbolSpec) RoundToTick(p Price) Price {
	if s.TickSize.IsZero() {
		return p
	}
	ticks := p.Decimal.Div(s.TickSize).Floor()
	return Price{ticks.Mul(s.TickSize)}
}

// Mid returns the arithmetic mid of two prices.
func Mid(bid, ask Price) Price {
	return Price{bid.Decimal.Add(ask.Decimal).Div(decimal.NewFromInt(2))}
}

// SpreadBps returns (ask-bid)/mid in basis points. Returns zero if mid is
// non-positive.
func SpreadBps(bid, ask Price) Bps {
	mid := Mid(bid, ask)
	if !mid.Decimal.IsPositive() {
		return ZeroBps
	}
	spread := ask.Decimal.Sub(bid.Decimal)
	return Bps{spread.Div(mid.Decimal).Mul(decimal.NewFromInt(10000))}
}

// Side is the direction of an order or trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Sign returns +1 for BUY, -1 for SELL.
func (s Side) Sign() int {
	if s == SideSell {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind is a tagged variant, never a raw string comparison at the fee
// boundary (spec §9).
type OrderKind string

const (
	KindLimit OrderKind = "LIMIT"
	KindIOC   OrderKind = "IOC"
)

// FeeSchedule holds the exchange's maker/taker fee schedule in bps.
type FeeSchedule struct {
	MakerFeeBps decimal.Decimal
	TakerFeeBps decimal.Decimal
}

// FeeBps dispatches on the OrderKind tag, never on a string comparison.
func (f FeeSchedule) FeeBps(kind OrderKind) (decimal.Decimal, error) {
	switch kind {
	case KindLimit:
		return f.MakerFeeBps, nil
	case KindIOC:
		return f.TakerFeeBps, nil
	default:
		return decimal.Zero, fmt.Errorf("types: unknown order kind %q", kind)
	}
}
