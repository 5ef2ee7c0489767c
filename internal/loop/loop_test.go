package loop

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/audit"
	"github.com/autovant/perp-core/internal/cost"
	"github.com/autovant/perp-core/internal/pnl"
	"github.com/autovant/perp-core/internal/risk"
	"github.com/autovant/perp-core/internal/signal"
	"github.com/autovant/perp-core/internal/types"
)

type fixedSource struct {
	snap  types.MarketData
	valid bool
}

func (s fixedSource) Snapshot(string) (types.MarketData, bool) { return s.snap, s.valid }

func TestLoop_SizeIntentRespectsCapAndIsPositive(t *testing.T) {
	gate := risk.NewGate(risk.Config{
		MaxSingleLossPct:    decimal.NewFromFloat(0.5),
		MaxDailyDrawdownPct: decimal.NewFromFloat(0.5),
		MaxPositionUSD:      decimal.NewFromFloat(1_000_000),
		WorstAdverseMoveBps: decimal.NewFromFloat(30),
	}, decimal.NewFromFloat(100000), zap.NewNop(), audit.NopSink{})
	positions := risk.NewPositionManager()
	fees := types.FeeSchedule{MakerFeeBps: decimal.NewFromFloat(1.5), TakerFeeBps: decimal.NewFromFloat(4.5)}
	slip := cost.NewSlippageEstimator(100, 1)
	estimator := cost.NewEstimator(fees, slip, cost.ImpactConfig{}, nil)
	attributor := pnl.NewAttributor(estimator, gate, 10)
	aggregator := signal.NewAggregator(signal.Weights{OBI: 1, OBIDepthK: 5})
	classifier := signal.NewClassifier(0.1, 0.05)

	l := New(Config{
		Symbol: "ETHUSDT",
		Sizing: SizingConfig{
			BaseSize: decimal.NewFromFloat(10),
			K:        decimal.NewFromFloat(1),
			NAV:      decimal.NewFromFloat(100000),
		},
	}, Deps{
		Source:     fixedSource{},
		Aggregator: aggregator,
		Classifier: classifier,
		Gate:       gate,
		Positions:  positions,
		Estimator:  estimator,
		Attributor: attributor,
		Logger:     zap.NewNop(),
	})

	snapshot := types.MarketData{
		Symbol: "ETHUSDT",
		Bids:   []types.Level{{Price: types.NewPrice(1000), Size: types.NewSize(100)}},
		Asks:   []types.Level{{Price: types.NewPrice(1001), Size: types.NewSize(1)}},
	}
	score := types.SignalScore{Value: 1.0}
	size := l.sizeIntent(score, snapshot)

	if size.Decimal.GreaterThan(decimal.NewFromFloat(10)) {
		t.Fatalf("expected size capped at base_size=10, got %v", size.Decimal)
	}
	if !size.Decimal.IsPositive() {
		t.Fatalf("expected positive size for value=1.0, got %v", size.Decimal)
	}
}

func TestSnapshotSource_MissingSnapshotReportsNotOK(t *testing.T) {
	src := fixedSource{valid: false}
	if _, ok := src.Snapshot("ETHUSDT"); ok {
		t.Fatalf("expected no snapshot available")
	}
}
