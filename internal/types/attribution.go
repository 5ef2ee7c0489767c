package types

import "github.com/shopspring/decimal"

// CostEstimate is the pre-trade cost decomposition produced by
// DynamicCostEstimator, recomputed per order attempt.
type CostEstimate struct {
	FeeBps       decimal.Decimal
	SlippageBps  decimal.Decimal
	ImpactBps    decimal.Decimal
	TotalBps     decimal.Decimal
}

// Attribution is the per-fill PnL decomposition, §3/§4.12. Alpha is
// computed independently from reference-mid movement (never circularly
// from Total, per §9's resolved open question); Unexplained absorbs any
// residual so the identity below always holds exactly:
//
//	Total = Alpha - Fee - Slippage - Impact + Rebate + Unexplained
type Attribution struct {
	Alpha       decimal.Decimal
	Fee         decimal.Decimal
	Slippage    decimal.Decimal
	Impact      decimal.Decimal
	Rebate      decimal.Decimal
	Unexplained decimal.Decimal
	Total       decimal.Decimal
}

// FillRateWindow is a bounded FIFO of outcomes for one confidence band.
type FillRateWindow struct {
	Capacity int
	entries  []bool
	head     int
	size     int
}

func NewFillRateWindow(capacity int) *FillRateWindow {
	if capacity <= 0 {
		capacity = 100
	}
	return &FillRateWindow{Capacity: capacity, entries: make([]bool, capacity)}
}

// Record appends an outcome, evicting the oldest entry once at capacity.
func (w *FillRateWindow) Record(filled bool) {
	idx := (w.head + w.size) % w.Capacity
	if w.size < w.Capacity {
		w.entries[idx] = filled
		w.size++
	} else {
		w.entries[w.head] = filled
		w.head = (w.head + 1) % w.Capacity
	}
}

// Rate returns filled_count/len, or 0 if empty.
func (w *FillRateWindow) Rate() float64 {
	if w.size == 0 {
		return 0
	}
	count := 0
	for i := 0; i < w.size; i++ {
		if w.entries[(w.head+i)%w.Capacity] {
			count++
		}
	}
	return float64(count) / float64(w.size)
}

// Len returns the number of attempts currently retained.
func (w *FillRateWindow) Len() int { return w.size }
