package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/types"
)

type fakeAdapter struct {
	orders map[string]*types.Order
	nextID int
	// fillAfterCalls, if > 0, makes the order FILLED once GetOrder has
	// been called that many times.
	fillAfterCalls int
	callCounts     map[string]int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{orders: make(map[string]*types.Order), callCounts: make(map[string]int)}
}

func (f *fakeAdapter) PlaceOrder(_ context.Context, o types.Order) (string, error) {
	f.nextID++
	id := "ord-" + time.Now().String() + string(rune(f.nextID))
	o.ID = id
	o.Status = types.StatusSubmitted
	f.orders[id] = &o
	return id, nil
}

func (f *fakeAdapter) CancelOrder(_ context.Context, orderID string) error {
	if o, ok := f.orders[orderID]; ok && !o.Status.IsTerminal() {
		o.Status = types.StatusCanceled
	}
	return nil
}

func (f *fakeAdapter) GetOrder(_ context.Context, orderID string) (types.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return types.Order{}, context.Canceled
	}
	f.callCounts[orderID]++
	if f.fillAfterCalls > 0 && f.callCounts[orderID] >= f.fillAfterCalls && !o.Status.IsTerminal() {
		o.Status = types.StatusFilled
		o.FilledSize = o.Size
	}
	return *o, nil
}

func (f *fakeAdapter) GetFills(_ context.Context, orderID string) ([]types.Fill, error) {
	return nil, nil
}

func testSpec() types.SymbolSpec {
	return types.SymbolSpec{Symbol: "ETHUSDT", TickSize: decimal.NewFromFloat(0.1), LotSize: decimal.NewFromFloat(0.001)}
}

func testSnapshot() types.MarketData {
	return types.MarketData{
		Symbol: "ETHUSDT",
		Bids:   []types.Level{{Price: types.NewPrice(1499.9), Size: types.NewSize(10)}},
		Asks:   []types.Level{{Price: types.NewPrice(1500.1), Size: types.NewSize(10)}},
	}
}

func TestShallowMaker_FillsBeforeTimeout(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.fillAfterCalls = 1
	maker := NewShallowMaker(adapter, testSpec(), zap.NewNop(), 2*time.Second, time.Second, 1, true)

	order, filled := maker.TryMaker(context.Background(), types.SideBuy, types.NewSize(1), types.ConfidenceHigh, testSnapshot())
	if !filled {
		t.Fatalf("expected fill before timeout")
	}
	if order.Status != types.StatusFilled {
		t.Fatalf("expected FILLED status, got %v", order.Status)
	}
}

func TestShallowMaker_TimesOutAndCancels(t *testing.T) {
	adapter := newFakeAdapter()
	maker := NewShallowMaker(adapter, testSpec(), zap.NewNop(), 150*time.Millisecond, 150*time.Millisecond, 1, true)

	_, filled := maker.TryMaker(context.Background(), types.SideBuy, types.NewSize(1), types.ConfidenceHigh, testSnapshot())
	if filled {
		t.Fatalf("expected timeout to produce no fill")
	}
}

func TestIOC_SubmitsAcrossSpread(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.fillAfterCalls = 1
	ioc := NewIOC(adapter, zap.NewNop(), decimal.NewFromFloat(5))

	order := ioc.Submit(context.Background(), types.SideBuy, types.NewSize(1), testSnapshot())
	if order.Status != types.StatusFilled {
		t.Fatalf("expected IOC to resolve FILLED, got %v", order.Status)
	}
	if !order.Price.Decimal.GreaterThan(decimal.NewFromFloat(1500.1)) {
		t.Fatalf("expected IOC price to cross above best ask, got %v", order.Price.Decimal)
	}
}
