package cost

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/autovant/perp-core/internal/types"
)

func lvl(price, size float64) types.Level {
	return types.Level{Price: types.NewPrice(price), Size: types.NewSize(size)}
}

func TestSlippageEstimator_EmptyHistoryReturnsDefault(t *testing.T) {
	e := NewSlippageEstimator(100, 1.5)
	if got := e.Estimate("ETHUSDT", types.SideBuy, 1000); got != 1.5 {
		t.Fatalf("expected default 1.5bps, got %v", got)
	}
}

func TestSlippageEstimator_SizeFactorScalesAboveMedian(t *testing.T) {
	e := NewSlippageEstimator(100, 1.5)
	for i := 0; i < 10; i++ {
		e.Record(SlippageObservation{Symbol: "ETHUSDT", Side: types.SideBuy, Bps: 2.0, Notional: 1000})
	}
	small := e.Estimate("ETHUSDT", types.SideBuy, 500)
	large := e.Estimate("ETHUSDT", types.SideBuy, 10000)
	if small != 2.0 {
		t.Fatalf("expected identity factor below median, got %v", small)
	}
	if large <= small {
		t.Fatalf("expected larger size to scale up estimate, got small=%v large=%v", small, large)
	}
	if large > 4.0 {
		t.Fatalf("expected size factor capped at 2x, got %v", large)
	}
}

func TestSlippageEstimator_CapacityTrim(t *testing.T) {
	e := NewSlippageEstimator(5, 1.0)
	for i := 0; i < 20; i++ {
		e.Record(SlippageObservation{Symbol: "ETHUSDT", Side: types.SideBuy, Bps: float64(i), Notional: 100})
	}
	hist := e.history[slippageKey{"ETHUSDT", types.SideBuy}]
	if len(hist) != 5 {
		t.Fatalf("expected history trimmed to capacity 5, got %d", len(hist))
	}
}

func TestEstimator_EstimateCost_FeeMatchesKind(t *testing.T) {
	fees := types.FeeSchedule{MakerFeeBps: decimal.NewFromFloat(1.5), TakerFeeBps: decimal.NewFromFloat(4.5)}
	slip := NewSlippageEstimator(100, 1.0)
	est := NewEstimator(fees, slip, ImpactConfig{}, nil)

	snapshot := types.MarketData{
		Symbol: "ETHUSDT",
		Bids:   []types.Level{lvl(1499.9, 10)},
		Asks:   []types.Level{lvl(1500.1, 10)},
	}

	makerCost := est.EstimateCost(types.KindLimit, types.SideBuy, types.NewSize(1), snapshot)
	if !makerCost.FeeBps.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("expected maker fee 1.5bps, got %v", makerCost.FeeBps)
	}

	takerCost := est.EstimateCost(types.KindIOC, types.SideBuy, types.NewSize(1), snapshot)
	if !takerCost.FeeBps.Equal(decimal.NewFromFloat(4.5)) {
		t.Fatalf("expected taker fee 4.5bps, got %v", takerCost.FeeBps)
	}
}

func TestEstimator_ImpactBpsClampedToRange(t *testing.T) {
	fees := types.FeeSchedule{}
	slip := NewSlippageEstimator(100, 0)
	est := NewEstimator(fees, slip, ImpactConfig{MinBps: 0.5, MaxBps: 10}, nil)

	thin := types.MarketData{Asks: []types.Level{lvl(100, 0.001)}}
	cost := est.EstimateCost(types.KindIOC, types.SideBuy, types.NewSize(1000), thin)
	if cost.ImpactBps.LessThan(decimal.NewFromFloat(0.5)) || cost.ImpactBps.GreaterThan(decimal.NewFromFloat(10)) {
		t.Fatalf("expected impact clamped to [0.5,10], got %v", cost.ImpactBps)
	}
}

func TestEstimator_RecordRealizedAndDrift(t *testing.T) {
	fees := types.FeeSchedule{}
	slip := NewSlippageEstimator(100, 0)
	est := NewEstimator(fees, slip, ImpactConfig{}, nil)

	estCost := types.CostEstimate{TotalBps: decimal.NewFromFloat(5)}
	actualCost := types.CostEstimate{TotalBps: decimal.NewFromFloat(7)}
	est.RecordRealized("ETHUSDT", types.KindIOC, estCost, actualCost, 1)

	drift := est.DriftBps("ETHUSDT", types.KindIOC)
	if !drift.Equal(decimal.NewFromFloat(2)) {
		t.Fatalf("expected drift 2bps, got %v", drift)
	}
}

func TestEstimator_RecordFillFeedsSlippageHistoryAndDrift(t *testing.T) {
	fees := types.FeeSchedule{TakerFeeBps: decimal.NewFromFloat(4.5)}
	slip := NewSlippageEstimator(100, 0)
	est := NewEstimator(fees, slip, ImpactConfig{}, nil)

	estimate := types.CostEstimate{FeeBps: decimal.NewFromFloat(4.5), SlippageBps: decimal.NewFromFloat(1), TotalBps: decimal.NewFromFloat(5.5)}
	// filled 10bps away from the reference touch price
	fillPrice := decimal.NewFromFloat(1501.5)
	referencePrice := decimal.NewFromFloat(1500)
	est.RecordFill("ETHUSDT", types.SideBuy, types.KindIOC, types.NewSize(1), fillPrice, referencePrice, estimate, 1)

	if got := slip.Estimate("ETHUSDT", types.SideBuy, 1500); got <= 0 {
		t.Fatalf("expected RecordFill to have populated slippage history, got estimate %v", got)
	}

	drift := est.DriftBps("ETHUSDT", types.KindIOC)
	if drift.IsZero() {
		t.Fatalf("expected non-zero drift once realized slippage diverges from the estimate")
	}
}

func TestEstimator_RecordFillSkipsZeroReferencePrice(t *testing.T) {
	fees := types.FeeSchedule{}
	slip := NewSlippageEstimator(100, 0)
	est := NewEstimator(fees, slip, ImpactConfig{}, nil)

	est.RecordFill("ETHUSDT", types.SideBuy, types.KindIOC, types.NewSize(1), decimal.NewFromFloat(1500), decimal.Zero, types.CostEstimate{}, 1)

	if drift := est.DriftBps("ETHUSDT", types.KindIOC); !drift.IsZero() {
		t.Fatalf("expected no realized record for a zero reference price, got drift %v", drift)
	}
}
