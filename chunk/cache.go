package chunk

// Cache holds at most one value. Storing a new key replaces the previous entry wholesale.
// It is not safe for concurrent use.
type Cache[K comparable, V any] struct {
	key   K
	value V
	full  bool

	hits   int
	misses int
}

// Get returns the value stored under key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	if c.full && c.key == key {
		c.hits++
		return c.value, true
	}
	var zero V
	c.misses++
	return zero, false
}

// Put replaces the entry.
func (c *Cache[K, V]) Put(key K, value V) {
	c.key, c.value, c.full = key, value, true
}

// GetOrLoad returns the value under key, calling load and storing its result on a miss. A failed
// load leaves the previous entry in place.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Put(key, v)
	return v, nil
}

// Key returns the key of the resident entry.
func (c *Cache[K, V]) Key() (K, bool) {
	return c.key, c.full
}

// Reset drops the entry.
func (c *Cache[K, V]) Reset() {
	var zeroK K
	var zeroV V
	c.key, c.value, c.full = zeroK, zeroV, false
}

// Stats returns the hit and miss counts.
func (c *Cache[K, V]) Stats() (hits, misses int) {
	return c.hits, c.misses
}
