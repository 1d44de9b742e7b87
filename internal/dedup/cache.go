package dedup

import "time"

// Meta records where and when an entry was first seen.
type Meta struct {
	At     time.Time
	Source string
}

// seenCache is a bounded insertion-ordered set. Once max entries is
// exceeded the oldest insertion is evicted first (plain FIFO, not LRU:
// a hit does not refresh an entry's position).
type seenCache struct {
	max       int
	entries   map[string]Meta
	order     []string
	evictions uint64
}

func newSeenCache(max int) *seenCache {
	if max <= 0 {
		max = 10000
	}
	return &seenCache{
		max:     max,
		entries: make(map[string]Meta, max/4),
	}
}

func (c *seenCache) has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

func (c *seenCache) add(key string, meta Meta) {
	if key == "" {
		return
	}
	if _, ok := c.entries[key]; ok {
		// Re-marking keeps the original insertion slot.
		c.entries[key] = meta
		return
	}
	c.entries[key] = meta
	c.order = append(c.order, key)
	for len(c.entries) > c.max && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		c.evictions++
	}
}

func (c *seenCache) len() int { return len(c.entries) }

func (c *seenCache) reset() {
	c.entries = make(map[string]Meta, c.max/4)
	c.order = nil
	c.evictions = 0
}
