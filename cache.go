// cache.go
package main

import (
	"fmt"

	"github.com/dgraph-io/ristretto"

	"sigview/flirt"
)

// ByteCache wraps Ristretto for function byte windows. Heuristic mode
// rescans the same windows once per applicable signature, so cached loads
// pay off quickly on large catalogs.
type ByteCache struct {
	cache   *ristretto.Cache
	maxCost int64
}

// NewByteCache creates a Ristretto-backed byte window cache capped at
// maxCost bytes.
func NewByteCache(maxCost int64) (*ByteCache, error) {
	cfg := &ristretto.Config{
		NumCounters: maxCost / 64,
		MaxCost:     maxCost,
		BufferItems: 64,
		Metrics:     true,
		Cost: func(value interface{}) int64 {
			if buf, ok := value.([]byte); ok {
				return int64(len(buf)) + 24
			}
			return 1
		},
	}

	cache, err := ristretto.NewCache(cfg)
	if err != nil {
		return nil, err
	}

	return &ByteCache{
		cache:   cache,
		maxCost: maxCost,
	}, nil
}

func (bc *ByteCache) Get(addr uint64, n int) ([]byte, bool) {
	value, found := bc.cache.Get(windowKey(addr, n))
	if !found {
		return nil, false
	}
	return value.([]byte), true
}

func (bc *ByteCache) Set(addr uint64, n int, buf []byte) bool {
	return bc.cache.Set(windowKey(addr, n), buf, 0)
}

func (bc *ByteCache) Clear() {
	bc.cache.Clear()
}

func (bc *ByteCache) MaxSize() int64 {
	return bc.maxCost
}

// GetMetrics returns current cache metrics
func (bc *ByteCache) GetMetrics() *ristretto.Metrics {
	return bc.cache.Metrics
}

// Wait ensures all pending operations are complete
func (bc *ByteCache) Wait() {
	bc.cache.Wait()
}

func windowKey(addr uint64, n int) string {
	return fmt.Sprintf("%x:%x", addr, n)
}

// CachingAddressSpace decorates an AddressSpace with the byte cache. It
// is transparent: short reads and zero fills cache the same way they
// load.
type CachingAddressSpace struct {
	inner flirt.AddressSpace
	cache *ByteCache
}

var _ flirt.AddressSpace = (*CachingAddressSpace)(nil)

func NewCachingAddressSpace(inner flirt.AddressSpace, cache *ByteCache) *CachingAddressSpace {
	return &CachingAddressSpace{inner: inner, cache: cache}
}

func (c *CachingAddressSpace) LoadBytes(addr uint64, n int) []byte {
	if buf, ok := c.cache.Get(addr, n); ok {
		return buf
	}
	buf := c.inner.LoadBytes(addr, n)
	if buf != nil {
		c.cache.Set(addr, n, buf)
	}
	return buf
}

func (c *CachingAddressSpace) Segments() []flirt.Segment {
	return c.inner.Segments()
}
