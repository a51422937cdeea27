package transform

// dedupCache is a bounded insertion-ordered set of recently seen tick keys.
//
// Eviction is amortized: once the cache exceeds its maximum, the oldest
// quarter is removed in one pass instead of evicting per insert. A key that
// has been evicted is treated as never seen.
type dedupCache struct {
	max   int
	keys  map[string]struct{}
	order []string
}

func newDedupCache(max int) *dedupCache {
	return &dedupCache{
		max:  max,
		keys: make(map[string]struct{}, max),
	}
}

// Seen reports whether key was already recorded, recording it if not.
func (c *dedupCache) Seen(key string) bool {
	if _, ok := c.keys[key]; ok {
		return true
	}

	c.keys[key] = struct{}{}
	c.order = append(c.order, key)

	if len(c.keys) > c.max {
		c.evictOldest()
	}

	return false
}

// evictOldest removes the oldest ~25% of keys in bulk
func (c *dedupCache) evictOldest() {
	n := c.max / 4
	if n < 1 {
		n = 1
	}
	if n > len(c.order) {
		n = len(c.order)
	}

	for _, key := range c.order[:n] {
		delete(c.keys, key)
	}

	// Copy the tail so the backing array does not pin evicted keys.
	rest := make([]string, len(c.order)-n, c.max+1)
	copy(rest, c.order[n:])
	c.order = rest
}

func (c *dedupCache) Len() int {
	return len(c.keys)
}
