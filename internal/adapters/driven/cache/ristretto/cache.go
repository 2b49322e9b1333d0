// Package ristretto provides the query result cache backed by dgraph-io/ristretto.
package ristretto

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure Cache implements the interface.
var _ driven.ResultCache = (*Cache)(nil)

// Cache holds synthesis results for a fixed TTL. Every entry costs 1, so
// MaxEntries bounds the number of cached queries.
type Cache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// New creates a cache from settings.
func New(settings domain.CacheSettings) (*Cache, error) {
	entries := max(settings.MaxEntries, 1)
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        entries * 10,
		MaxCost:            entries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &Cache{cache: c, ttl: settings.TTL}, nil
}

// Get returns a cached result.
func (c *Cache) Get(key string) (domain.SynthesisResult, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return domain.SynthesisResult{}, false
	}
	result, ok := v.(domain.SynthesisResult)
	return result, ok
}

// Set stores a result. Writes are buffered and may be dropped under contention.
func (c *Cache) Set(key string, result domain.SynthesisResult) {
	var stored bool
	if c.ttl > 0 {
		stored = c.cache.SetWithTTL(key, result, 1, c.ttl)
	} else {
		stored = c.cache.Set(key, result, 1)
	}
	if !stored {
		logger.Debug("cache: dropped entry for %q", key)
		return
	}
	c.cache.Wait()
}

// Clear drops every cached result.
func (c *Cache) Clear() {
	c.cache.Clear()
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}
