// Grounded on the teacher's TestPaperBroker_MarketOrder
// (execution_service_test.go), rewritten against the real
// PlaceOrder/GetOrder contract instead of the teacher test's
// lastPrice/positions fields, which didn't exist on PaperBroker even
// in the teacher's own tree.
package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/autovant/perp-core/internal/types"
)

func TestSimulated_IOCOrderFillsAgainstBook(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{Seed: 7, AckLatencyMean: time.Millisecond, AckLatencyP95: 2 * time.Millisecond}, []string{"BTCUSDT"})
	sim.SetBook("BTCUSDT", time.Now(), []types.Level{{Price: types.NewPrice(49990), Size: types.NewSize(5)}}, []types.Level{{Price: types.NewPrice(50010), Size: types.NewSize(5)}})

	order := types.Order{
		Symbol: "BTCUSDT",
		Side:   types.SideBuy,
		Kind:   types.KindIOC,
		Size:   types.NewSize(1),
		Price:  types.NewPrice(50010),
	}

	id, err := sim.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	deadline := time.After(500 * time.Millisecond)
	for {
		got, err := sim.GetOrder(context.Background(), id)
		if err != nil {
			t.Fatalf("GetOrder: %v", err)
		}
		if got.Status == types.StatusFilled {
			if !got.FilledSize.Decimal.Equal(decimal.NewFromInt(1)) {
				t.Fatalf("expected filled size 1, got %v", got.FilledSize.Decimal)
			}
			if !got.Price.Decimal.Equal(decimal.NewFromInt(50010)) {
				t.Fatalf("expected fill at ask 50010, got %v", got.Price.Decimal)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("order did not fill before deadline")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSimulated_PostOnlyOrderCrossingSpreadIsRejected(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{Seed: 3}, []string{"ETHUSDT"})
	sim.SetBook("ETHUSDT", time.Now(), []types.Level{{Price: types.NewPrice(1999), Size: types.NewSize(10)}}, []types.Level{{Price: types.NewPrice(2001), Size: types.NewSize(10)}})

	order := types.Order{
		Symbol:   "ETHUSDT",
		Side:     types.SideBuy,
		Kind:     types.KindLimit,
		PostOnly: true,
		Size:     types.NewSize(1),
		Price:    types.NewPrice(2005), // crosses the ask
	}

	id, err := sim.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	got, err := sim.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != types.StatusRejected {
		t.Fatalf("expected post-only crossing order rejected, got %v", got.Status)
	}
}

func TestSimulated_RestingLimitOrderDoesNotFillUntilCanceled(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{Seed: 9}, []string{"ETHUSDT"})
	sim.SetBook("ETHUSDT", time.Now(), []types.Level{{Price: types.NewPrice(1999), Size: types.NewSize(10)}}, []types.Level{{Price: types.NewPrice(2001), Size: types.NewSize(10)}})

	order := types.Order{
		Symbol: "ETHUSDT",
		Side:   types.SideBuy,
		Kind:   types.KindLimit,
		Size:   types.NewSize(1),
		Price:  types.NewPrice(1998), // does not cross
	}

	id, err := sim.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	got, err := sim.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status == types.StatusFilled {
		t.Fatal("resting order should not fill on its own")
	}

	if err := sim.CancelOrder(context.Background(), id); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	got, err = sim.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrder after cancel: %v", err)
	}
	if got.Status != types.StatusCanceled {
		t.Fatalf("expected canceled, got %v", got.Status)
	}
}
