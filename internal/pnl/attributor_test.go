package pnl

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/autovant/perp-core/internal/cost"
	"github.com/autovant/perp-core/internal/types"
)

type fakeGate struct {
	trades []decimal.Decimal
}

func (g *fakeGate) OnTrade(totalPnL decimal.Decimal) {
	g.trades = append(g.trades, totalPnL)
}

func TestAttributor_IdentityHolds(t *testing.T) {
	fees := types.FeeSchedule{MakerFeeBps: decimal.NewFromFloat(1.5), TakerFeeBps: decimal.NewFromFloat(4.5)}
	slip := cost.NewSlippageEstimator(100, 1)
	estimator := cost.NewEstimator(fees, slip, cost.ImpactConfig{}, nil)
	gate := &fakeGate{}
	attributor := NewAttributor(estimator, gate, 10)

	attributor.UpdateReferenceMid("ETHUSDT", decimal.NewFromFloat(1500))

	fill := types.Fill{Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(1500.2), Size: types.NewSize(1)}
	estimate := types.CostEstimate{FeeBps: decimal.NewFromFloat(1.5), ImpactBps: decimal.NewFromFloat(1)}

	attribution := attributor.OnFill(fill, estimate, decimal.NewFromFloat(1501))

	identity := attribution.Alpha.Sub(attribution.Fee).Sub(attribution.Slippage).Sub(attribution.Impact).Add(attribution.Rebate).Add(attribution.Unexplained)
	if !identity.Equal(attribution.Total) {
		t.Fatalf("identity violated: computed %v, Total %v", identity, attribution.Total)
	}
	if len(gate.trades) != 1 {
		t.Fatalf("expected OnTrade to be called once, got %d", len(gate.trades))
	}
}

func TestAttributor_AlphaShareComputation(t *testing.T) {
	fees := types.FeeSchedule{}
	slip := cost.NewSlippageEstimator(100, 0)
	estimator := cost.NewEstimator(fees, slip, cost.ImpactConfig{}, nil)
	attributor := NewAttributor(estimator, nil, 10)

	attributor.UpdateReferenceMid("ETHUSDT", decimal.NewFromFloat(1500))
	fill := types.Fill{Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(1500), Size: types.NewSize(1)}
	estimate := types.CostEstimate{}
	attributor.OnFill(fill, estimate, decimal.NewFromFloat(1510))

	if share := attributor.AlphaShare(); share <= 0 {
		t.Fatalf("expected positive alpha share for a favorable move, got %v", share)
	}
}

func TestAttributor_RedeliveredFillIsNoOp(t *testing.T) {
	fees := types.FeeSchedule{MakerFeeBps: decimal.NewFromFloat(1.5)}
	slip := cost.NewSlippageEstimator(100, 1)
	estimator := cost.NewEstimator(fees, slip, cost.ImpactConfig{}, nil)
	gate := &fakeGate{}
	attributor := NewAttributor(estimator, gate, 10)

	attributor.UpdateReferenceMid("ETHUSDT", decimal.NewFromFloat(1500))
	fill := types.Fill{OrderID: "order-1", Seq: 0, Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(1500.2), Size: types.NewSize(1)}
	estimate := types.CostEstimate{FeeBps: decimal.NewFromFloat(1.5)}

	first := attributor.OnFill(fill, estimate, decimal.NewFromFloat(1501))
	second := attributor.OnFill(fill, estimate, decimal.NewFromFloat(1501))

	if len(gate.trades) != 1 {
		t.Fatalf("expected OnTrade called once despite redelivery, got %d", len(gate.trades))
	}
	if first.Total.IsZero() {
		t.Fatalf("expected the first application to produce a non-zero total")
	}
	if !second.Total.IsZero() || !second.Alpha.IsZero() {
		t.Fatalf("expected redelivered fill to return a zero-value attribution, got %+v", second)
	}
}
