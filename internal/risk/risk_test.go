package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/autovant/perp-core/internal/audit"
	"github.com/autovant/perp-core/internal/types"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestPositionManager_OpenThenIncreaseWeightedAverage(t *testing.T) {
	pm := NewPositionManager()
	pm.ApplyFill(types.Fill{Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(100), Size: types.NewSize(1)})
	pm.ApplyFill(types.Fill{Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(110), Size: types.NewSize(1)})

	pos := pm.Position("ETHUSDT")
	if !pos.Size.Equal(dec(2)) {
		t.Fatalf("expected size 2, got %v", pos.Size)
	}
	if !pos.AvgEntryPrice.Decimal.Equal(dec(105)) {
		t.Fatalf("expected avg entry 105, got %v", pos.AvgEntryPrice.Decimal)
	}
}

func TestPositionManager_DecreaseRealizesProportionally(t *testing.T) {
	pm := NewPositionManager()
	pm.ApplyFill(types.Fill{Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(100), Size: types.NewSize(2)})
	realized := pm.ApplyFill(types.Fill{Symbol: "ETHUSDT", Side: types.SideSell, Price: types.NewPrice(110), Size: types.NewSize(1)})

	if !realized.Equal(dec(10)) {
		t.Fatalf("expected realized pnl 10, got %v", realized)
	}
	pos := pm.Position("ETHUSDT")
	if !pos.Size.Equal(dec(1)) {
		t.Fatalf("expected remaining size 1, got %v", pos.Size)
	}
	if !pos.AvgEntryPrice.Decimal.Equal(dec(100)) {
		t.Fatalf("expected avg entry unchanged at 100, got %v", pos.AvgEntryPrice.Decimal)
	}
}

func TestPositionManager_SignChangeClosesThenOpens(t *testing.T) {
	pm := NewPositionManager()
	pm.ApplyFill(types.Fill{Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(100), Size: types.NewSize(1)})
	realized := pm.ApplyFill(types.Fill{Symbol: "ETHUSDT", Side: types.SideSell, Price: types.NewPrice(120), Size: types.NewSize(3)})

	if !realized.Equal(dec(20)) {
		t.Fatalf("expected realized pnl 20 on the closing 1 unit, got %v", realized)
	}
	pos := pm.Position("ETHUSDT")
	if !pos.Size.Equal(dec(-2)) {
		t.Fatalf("expected residual short position of -2, got %v", pos.Size)
	}
	if !pos.AvgEntryPrice.Decimal.Equal(dec(120)) {
		t.Fatalf("expected new entry at fill price 120, got %v", pos.AvgEntryPrice.Decimal)
	}
}

func TestPositionManager_RedeliveredFillIsNoOp(t *testing.T) {
	pm := NewPositionManager()
	fill := types.Fill{OrderID: "order-1", Seq: 0, Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(100), Size: types.NewSize(1)}

	pm.ApplyFill(fill)
	pm.ApplyFill(fill) // redelivered, same OrderID+Seq

	pos := pm.Position("ETHUSDT")
	if !pos.Size.Equal(dec(1)) {
		t.Fatalf("expected size to reflect the fill only once, got %v", pos.Size)
	}

	next := types.Fill{OrderID: "order-1", Seq: 1, Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(110), Size: types.NewSize(1)}
	pm.ApplyFill(next)

	pos = pm.Position("ETHUSDT")
	if !pos.Size.Equal(dec(2)) {
		t.Fatalf("expected a new fill sequence on the same order to still apply, got %v", pos.Size)
	}
}

func newTestGate(nav float64) *Gate {
	cfg := Config{
		MaxSingleLossPct:    dec(0.02),
		MaxDailyDrawdownPct: dec(0.05),
		MaxPositionUSD:      dec(100000),
		WorstAdverseMoveBps: dec(30),
	}
	return NewGate(cfg, dec(nav), nil, audit.NopSink{})
}

func TestGate_RejectsWhenPositionExceedsLimit(t *testing.T) {
	g := newTestGate(10000)
	order := types.Order{Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(2000), Size: types.NewSize(100)}
	decision := g.Allow(order, types.Position{Symbol: "ETHUSDT"}, types.MarketData{})
	if decision.Approved {
		t.Fatalf("expected rejection for oversized position notional")
	}
	if decision.Reason != types.DenyMaxPositionExceeded {
		t.Fatalf("expected DenyMaxPositionExceeded, got %v", decision.Reason)
	}
}

func TestGate_ApprovesWithinLimits(t *testing.T) {
	g := newTestGate(1_000_000)
	order := types.Order{Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(2000), Size: types.NewSize(1)}
	decision := g.Allow(order, types.Position{Symbol: "ETHUSDT"}, types.MarketData{})
	if !decision.Approved {
		t.Fatalf("expected approval, got denial reason %v", decision.Reason)
	}
}

func TestGate_HaltIsStickyAndRejectsEverything(t *testing.T) {
	g := newTestGate(10000)
	g.trip("manual_test", dec(-1000))

	order := types.Order{Symbol: "ETHUSDT", Side: types.SideBuy, Price: types.NewPrice(1), Size: types.NewSize(1)}
	decision := g.Allow(order, types.Position{}, types.MarketData{})
	if decision.Approved || decision.Reason != types.DenyHalted {
		t.Fatalf("expected DenyHalted after trip, got %+v", decision)
	}

	g.Reset()
	decision = g.Allow(order, types.Position{}, types.MarketData{})
	if !decision.Approved {
		t.Fatalf("expected approval after reset, got %+v", decision)
	}
}

func TestGate_OnTradeTripsHaltOnDrawdownBreach(t *testing.T) {
	g := newTestGate(10000)
	g.OnTrade(dec(-600)) // 6% of 10000 nav > 5% max daily drawdown

	if !g.Halted() {
		t.Fatalf("expected gate to halt after daily drawdown breach")
	}
}

func TestGate_OnTradeDoesNotTripWithinLimits(t *testing.T) {
	g := newTestGate(10000)
	g.OnTrade(dec(-50))

	if g.Halted() {
		t.Fatalf("expected no halt for small loss within limits")
	}
}
