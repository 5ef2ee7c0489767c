package marketdata

import (
	"sync"

	"github.com/autovant/perp-core/internal/types"
)

// NATSCache is a loop.SnapshotSource backed by ticks received over the
// bus from a remote MarketDataHub process, rather than an in-process
// Hub. It lets the execution and trading-loop binaries run as a
// separate process from feedhandler, per the teacher's multi-service
// split (services.go's -service= dispatch).
type NATSCache struct {
	mu    sync.RWMutex
	ticks map[string]types.MarketData
}

func NewNATSCache() *NATSCache {
	return &NATSCache{ticks: make(map[string]types.MarketData)}
}

// Ingest stores the latest tick for its symbol, overwriting any prior
// value.
func (c *NATSCache) Ingest(md types.MarketData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[md.Symbol] = md
}

// Snapshot implements loop.SnapshotSource.
func (c *NATSCache) Snapshot(symbol string) (types.MarketData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md, ok := c.ticks[symbol]
	return md, ok
}
