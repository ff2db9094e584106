// Package quotestream consumes the optional streaming quote feed and keeps
// a single-writer, many-reader cache of the latest marks keyed by symbol.
package quotestream

import (
	"sync"
	"time"
)

// Tick is one normalized quote update from the stream.
type Tick struct {
	Symbol string  `msgpack:"s" json:"symbol"`
	Last   float64 `msgpack:"l" json:"last"`
	Bid    float64 `msgpack:"b" json:"bid"`
	Ask    float64 `msgpack:"a" json:"ask"`
	// Unix milliseconds at the provider.
	Timestamp int64 `msgpack:"t" json:"timestamp"`

	// ReceivedAt is stamped locally when the tick lands in the cache.
	ReceivedAt time.Time `msgpack:"-" json:"-"`
}

// Cache holds the most recent tick per symbol. The stream consumer is the
// only writer; the monitor and handlers are readers.
type Cache struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

// NewCache creates an empty quote cache.
func NewCache() *Cache {
	return &Cache{ticks: make(map[string]Tick)}
}

// Put stores the latest tick for its symbol.
func (c *Cache) Put(tick Tick) {
	tick.ReceivedAt = time.Now()
	c.mu.Lock()
	c.ticks[tick.Symbol] = tick
	c.mu.Unlock()
}

// Get returns the latest tick for a symbol if it is fresher than maxAge.
func (c *Cache) Get(symbol string, maxAge time.Duration) (Tick, bool) {
	c.mu.RLock()
	tick, ok := c.ticks[symbol]
	c.mu.RUnlock()
	if !ok {
		return Tick{}, false
	}
	if maxAge > 0 && time.Since(tick.ReceivedAt) > maxAge {
		return Tick{}, false
	}
	return tick, true
}

// Size returns the number of symbols with a cached tick.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ticks)
}
