// Package scancache implements the Scan Cache Facade (C4): the single
// core-facing hook invoked when the Settings Facade (C3) reports that an
// IAP's settings entry has disappeared. The actual cached scan results are
// out of scope (spec.md §1); this package only models the eviction hook
// and its exactly-once delivery guarantee (spec.md §8).
package scancache

import (
	"log/slog"
	"sync"

	"github.com/sebas/icd/internal/events"
)

// Cache tracks which IAP names have had their scan results evicted.
type Cache struct {
	mu      sync.Mutex
	evicted map[string]int
	bus     *events.Bus
}

// New creates a scan cache wired to bus for eviction notifications.
func New(bus *events.Bus) *Cache {
	return &Cache{evicted: make(map[string]int), bus: bus}
}

// RemoveIAP evicts any cached scan results for name. Safe to call more than
// once; each call is recorded, but callers driving deletions (settings.Facade)
// are expected to invoke it exactly once per deletion.
func (c *Cache) RemoveIAP(name string) {
	c.mu.Lock()
	c.evicted[name]++
	count := c.evicted[name]
	c.mu.Unlock()

	slog.Debug("scancache: evicted", "iap", name, "count", count)
	if c.bus != nil {
		c.bus.Publish(events.SubjectScanCache+"."+name+"."+events.SuffixEvicted, name)
	}
}

// EvictionCount returns how many times RemoveIAP was called for name,
// for test assertions of the exactly-once property.
func (c *Cache) EvictionCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evicted[name]
}
