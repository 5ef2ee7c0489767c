package book

import (
	"testing"
	"time"

	"github.com/autovant/perp-core/internal/types"
)

func lvl(price, size float64) types.Level {
	return types.Level{Price: types.NewPrice(price), Size: types.NewSize(size)}
}

func TestApplyUpdates_BasicUpsertAndRemove(t *testing.T) {
	b := New("ETHUSDT", 10)
	now := time.Now()
	b.LoadSnapshot(now, []types.Level{lvl(1499.9, 10), lvl(1499.8, 5)}, []types.Level{lvl(1500.1, 10)})

	b.ApplyUpdates(now.Add(time.Millisecond), []Update{
		{Side: types.SideBuy, Price: types.NewPrice(1499.9), Size: types.NewSize(0)}, // remove
		{Side: types.SideSell, Price: types.NewPrice(1500.2), Size: types.NewSize(3)},
	})

	snap, ok := b.Snapshot(nil)
	if !ok {
		t.Fatalf("expected non-stale snapshot")
	}
	if len(snap.Bids) != 1 || !snap.Bids[0].Price.Decimal.Equal(types.NewPrice(1499.8).Decimal) {
		t.Fatalf("expected single remaining bid at 1499.8, got %+v", snap.Bids)
	}
	if len(snap.Asks) != 2 {
		t.Fatalf("expected 2 asks, got %+v", snap.Asks)
	}
}

func TestApplyUpdates_CrossedBookGoesStale(t *testing.T) {
	b := New("ETHUSDT", 10)
	now := time.Now()
	b.LoadSnapshot(now, []types.Level{lvl(1499.9, 10)}, []types.Level{lvl(1500.1, 10)})

	b.ApplyUpdates(now.Add(time.Millisecond), []Update{
		{Side: types.SideBuy, Price: types.NewPrice(1500.2), Size: types.NewSize(5)},
	})

	if !b.Stale() {
		t.Fatalf("expected book to be marked stale after crossing")
	}
	if _, ok := b.Snapshot(nil); ok {
		t.Fatalf("expected no snapshot to be published while stale")
	}

	b.LoadSnapshot(now.Add(2*time.Millisecond), []types.Level{lvl(1499.9, 10)}, []types.Level{lvl(1500.1, 10)})
	if b.Stale() {
		t.Fatalf("expected resync to clear stale flag")
	}
}

func TestTopNTrim(t *testing.T) {
	b := New("ETHUSDT", 2)
	now := time.Now()
	b.LoadSnapshot(now, []types.Level{lvl(100, 1), lvl(99, 1), lvl(98, 1)}, []types.Level{lvl(101, 1), lvl(102, 1), lvl(103, 1)})
	snap, ok := b.Snapshot(nil)
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Fatalf("expected top-2 trim, got bids=%d asks=%d", len(snap.Bids), len(snap.Asks))
	}
}

func TestRoundTrip_SnapshotReducingToSameBook(t *testing.T) {
	b := New("ETHUSDT", 10)
	now := time.Now()
	bids := []types.Level{lvl(1499.9, 10), lvl(1499.8, 5)}
	asks := []types.Level{lvl(1500.1, 10)}
	b.LoadSnapshot(now, bids, asks)

	// Apply an update then its exact inverse; book must equal the original.
	b.ApplyUpdates(now.Add(time.Millisecond), []Update{
		{Side: types.SideBuy, Price: types.NewPrice(1499.7), Size: types.NewSize(2)},
	})
	b.ApplyUpdates(now.Add(2*time.Millisecond), []Update{
		{Side: types.SideBuy, Price: types.NewPrice(1499.7), Size: types.NewSize(0)},
	})

	snap, ok := b.Snapshot(nil)
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if !EqualLevels(snap.Bids, bids) {
		t.Fatalf("round-trip law violated: got %+v want %+v", snap.Bids, bids)
	}
}
