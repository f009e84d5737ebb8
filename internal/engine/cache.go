package engine

import "sync"

// Cache remembers (experiment, subject) -> variant so repeat assignments
// skip the hash-and-increment path. It is advisory only: dropping every
// entry is always safe because assignment re-derives the same variant.
type Cache struct {
	mu  sync.Mutex
	max int
	m   map[cacheKey]string
}

type cacheKey struct {
	experimentID string
	subjectID    string
}

// NewCache returns a cache that resets itself once it holds max entries.
// max <= 0 means unbounded.
func NewCache(max int) *Cache {
	return &Cache{max: max, m: make(map[cacheKey]string)}
}

func (c *Cache) Get(experimentID, subjectID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[cacheKey{experimentID, subjectID}]
	return v, ok
}

func (c *Cache) Put(experimentID, subjectID, variant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.max > 0 && len(c.m) >= c.max {
		c.m = make(map[cacheKey]string)
	}
	c.m[cacheKey{experimentID, subjectID}] = variant
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
