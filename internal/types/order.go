package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the order lifecycle state, §3. An order is terminal in
// FILLED/CANCELED/REJECTED/EXPIRED.
type OrderStatus string

const (
	StatusCreated         OrderStatus = "CREATED"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether the status can no longer transition.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Order is exclusively owned by the coordinator (HybridExecutor/Shallow
// Maker/IOC) from CREATED until terminal, then transferred to the
// PositionManager and PnLAttributor.
type Order struct {
	ID            string
	Symbol        string
	Side          Side
	Kind          OrderKind
	Price         Price
	Size          Size
	FilledSize    Size
	Status        OrderStatus
	CreatedAt     time.Time
	LastUpdateAt  time.Time
	PostOnly      bool
	ClientNonce   string
	FillSeq       uint64 // monotonically increasing per order, for idempotent fill application
}

// Remaining returns the unfilled size.
func (o Order) Remaining() Size {
	return Size{o.Size.Decimal.Sub(o.FilledSize.Decimal)}
}

// FullyFilled reports whether FilledSize has reached Size.
func (o Order) FullyFilled() bool {
	return o.FilledSize.Decimal.GreaterThanOrEqual(o.Size.Decimal)
}

// Fill is a single execution against an order, keyed for idempotency by
// (OrderID, Seq).
type Fill struct {
	OrderID  string
	Seq      uint64
	Symbol   string
	Side     Side
	Kind     OrderKind
	Price    Price
	Size     Size
	Maker    bool
	Rebate   bool
	TS       time.Time
}

// Position is the per-symbol running position, §3.
type Position struct {
	Symbol        string
	Size          decimal.Decimal // signed base-asset size
	AvgEntryPrice Price
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
}

// IsFlat reports whether the position has zero size.
func (p Position) IsFlat() bool { return p.Size.IsZero() }

// SignedSide returns the side a closing trade would need, or "" if flat.
func (p Position) SignedSide() Side {
	switch {
	case p.Size.IsPositive():
		return SideSell
	case p.Size.IsNegative():
		return SideBuy
	default:
		return ""
	}
}
