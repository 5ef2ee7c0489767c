package signal

import (
	"math"
	"testing"
	"time"

	"github.com/autovant/perp-core/internal/types"
)

func lvl(price, size float64) types.Level {
	return types.Level{Price: types.NewPrice(price), Size: types.NewSize(size)}
}

func TestOBI_BalancedBookIsZero(t *testing.T) {
	md := types.MarketData{
		Bids: []types.Level{lvl(100, 5), lvl(99, 5)},
		Asks: []types.Level{lvl(101, 5), lvl(102, 5)},
	}
	if obi := OBI(md, 5); math.Abs(obi) > 1e-9 {
		t.Fatalf("expected ~0 OBI for balanced book, got %v", obi)
	}
}

func TestOBI_ZeroDepthReturnsZero(t *testing.T) {
	md := types.MarketData{}
	if obi := OBI(md, 5); obi != 0 {
		t.Fatalf("expected 0 OBI with no depth, got %v", obi)
	}
}

func TestOBI_SkewedBookIsPositive(t *testing.T) {
	md := types.MarketData{
		Bids: []types.Level{lvl(100, 10)},
		Asks: []types.Level{lvl(101, 2)},
	}
	obi := OBI(md, 5)
	if obi <= 0 {
		t.Fatalf("expected positive OBI with heavier bid side, got %v", obi)
	}
}

func TestMicropriceDeviation_SymmetricBookIsZero(t *testing.T) {
	md := types.MarketData{
		Bids: []types.Level{lvl(100, 10)},
		Asks: []types.Level{lvl(102, 10)},
	}
	if d := MicropriceDeviation(md); math.Abs(d) > 1e-9 {
		t.Fatalf("expected ~0 deviation for symmetric sizes, got %v", d)
	}
}

func TestImpact_NoTradesIsZero(t *testing.T) {
	if v := Impact(types.MarketData{}); v != 0 {
		t.Fatalf("expected 0 impact with no trades, got %v", v)
	}
}

func TestImpact_AllBuysIsOne(t *testing.T) {
	md := types.MarketData{RecentTrades: []types.Trade{
		{Side: types.SideBuy, Size: types.NewSize(1), TS: time.Now()},
		{Side: types.SideBuy, Size: types.NewSize(2), TS: time.Now()},
	}}
	if v := Impact(md); v != 1 {
		t.Fatalf("expected impact 1 for all-buy trades, got %v", v)
	}
}

func TestAggregator_WeightedSumClampedAndComponentsPreserved(t *testing.T) {
	agg := NewAggregator(Weights{OBI: 1, Microprice: 0, Impact: 0, OBIDepthK: 5})
	md := types.MarketData{
		Bids: []types.Level{lvl(100, 100)},
		Asks: []types.Level{lvl(101, 1)},
		TS:   time.Now(),
	}
	score := agg.Score(md)
	if score.Value <= 0 || score.Value > 1 {
		t.Fatalf("expected clamped positive value, got %v", score.Value)
	}
	if len(score.Components) != 3 {
		t.Fatalf("expected 3 preserved components, got %d", len(score.Components))
	}
}

func TestClassifier_Bands(t *testing.T) {
	c := NewClassifier(0.45, 0.25)
	cases := []struct {
		value float64
		want  types.Confidence
	}{
		{0.5, types.ConfidenceHigh},
		{0.3, types.ConfidenceMedium},
		{0.1, types.ConfidenceLow},
		{-0.5, types.ConfidenceHigh},
	}
	for _, c2 := range cases {
		if got := c.Classify(c2.value); got != c2.want {
			t.Fatalf("Classify(%v) = %v, want %v", c2.value, got, c2.want)
		}
	}
}

func TestClassifier_CalibratePercentiles(t *testing.T) {
	c := NewClassifier(0.45, 0.25)
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = float64(i) / 100
	}
	if err := c.Calibrate(samples); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t1, t2 := c.Thresholds()
	if t1 <= t2 {
		t.Fatalf("expected theta1 > theta2, got %v <= %v", t1, t2)
	}
}

func TestClassifier_CalibrateRejectsSmallSample(t *testing.T) {
	c := NewClassifier(0.45, 0.25)
	if err := c.Calibrate(make([]float64, 10)); err == nil {
		t.Fatalf("expected error for under-sized calibration sample")
	}
}
