package planner

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of plans a Cache keeps by default.
const DefaultCacheSize = 1024

// Cache keeps recently used plans keyed by Key. Concurrent misses for the
// same key compile once.
type Cache struct {
	plans  *lru.Cache[uint64, *Plan]
	flight singleflight.Group
}

func NewCache(size int) (*Cache, error) {
	plans, err := lru.New[uint64, *Plan](size)
	if err != nil {
		return nil, err
	}
	return &Cache{plans: plans}, nil
}

// Key returns the cache key of an operation of a query document.
func Key(query, operationName string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(operationName)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(query)
	return h.Sum64()
}

// GetOrCompile returns the cached plan for key, or calls compile and caches
// its result. hit reports whether the plan came from the cache. Failed
// compilations are not cached.
func (c *Cache) GetOrCompile(key uint64, compile func() (*Plan, error)) (plan *Plan, hit bool, err error) {
	if p, ok := c.plans.Get(key); ok {
		return p, true, nil
	}
	v, err, _ := c.flight.Do(strconv.FormatUint(key, 16), func() (any, error) {
		if p, ok := c.plans.Get(key); ok {
			return p, nil
		}
		p, err := compile()
		if err != nil {
			return nil, err
		}
		c.plans.Add(key, p)
		return p, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Plan), false, nil
}

func (c *Cache) Len() int { return c.plans.Len() }
