// Package cachestore wraps an sbtree.Storage with a read-through
// ristretto cache, for benchmark and demo use (cmd/sbtreebench). It is
// deliberately kept out of the core engine: sbtree.BufferPool already
// provides the only caching the core needs, with no allocation after
// init, and mixing a second cache into the write path would undermine
// that guarantee.
package cachestore

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"sbtree/sbtree"
)

// Cached decorates a Storage with an in-process read cache keyed by page
// id. Writes always go straight to the underlying storage and also
// refresh the cache entry, so reads are never stale relative to this
// process's own writes.
type Cached struct {
	underlying sbtree.Storage
	cache      *ristretto.Cache[uint32, []byte]
	pageSize   int
	hits       uint64
	misses     uint64
}

// Config tunes the ristretto cache sitting in front of Storage.
type Config struct {
	// NumCounters sizes ristretto's admission-policy counters. Ristretto's
	// own guidance is roughly 10x the number of items expected to fit in
	// the cache.
	NumCounters int64
	// MaxCost bounds the cache's total cost units; here cost is bytes, so
	// this is roughly the cache's memory budget.
	MaxCost int64
	// BufferItems is ristretto's internal ring buffer size per shard.
	BufferItems int64
}

// DefaultConfig returns reasonable defaults for caching a few thousand
// pages of a typical page size.
func DefaultConfig() Config {
	return Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20,
		BufferItems: 64,
	}
}

// New wraps underlying with a read-through ristretto cache.
func New(underlying sbtree.Storage, pageSize int, cfg Config) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[uint32, []byte]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("cachestore: creating ristretto cache: %w", err)
	}
	return &Cached{underlying: underlying, cache: cache, pageSize: pageSize}, nil
}

// ReadPage satisfies sbtree.Storage, serving from cache on a hit and
// populating the cache on a miss.
func (c *Cached) ReadPage(id uint32, dst []byte) error {
	if v, ok := c.cache.Get(id); ok {
		c.hits++
		copy(dst, v)
		return nil
	}
	c.misses++
	if err := c.underlying.ReadPage(id, dst); err != nil {
		return err
	}
	cached := make([]byte, len(dst))
	copy(cached, dst)
	c.cache.Set(id, cached, int64(len(cached)))
	return nil
}

// WritePage satisfies sbtree.Storage: writes go through to the underlying
// storage first, then refresh the cache entry so this process's own reads
// never observe a stale cached page.
func (c *Cached) WritePage(id uint32, src []byte) error {
	if err := c.underlying.WritePage(id, src); err != nil {
		return err
	}
	cached := make([]byte, len(src))
	copy(cached, src)
	c.cache.Set(id, cached, int64(len(cached)))
	return nil
}

func (c *Cached) Sync() error { return c.underlying.Sync() }

func (c *Cached) Close() error {
	c.cache.Close()
	return c.underlying.Close()
}

// Stats reports cumulative cache hit/miss counts.
func (c *Cached) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}
