package rest

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds lookup caches kept on a session.
const DefaultCacheSize = 128

// Cache memoises lookups (boards by name, mailboxes by name) for the
// lifetime of a session. Failed lookups are not cached.
type Cache[V any] struct {
	entries *lru.Cache[string, V]
}

// NewCache returns a cache holding up to size entries.
func NewCache[V any](size int) *Cache[V] {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, V](size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &Cache[V]{entries: entries}
}

// Get returns the cached value for key or stores the result of fetch.
func (c *Cache[V]) Get(key string, fetch func() (V, error)) (V, error) {
	if v, ok := c.entries.Get(key); ok {
		return v, nil
	}
	v, err := fetch()
	if err != nil {
		var zero V
		return zero, err
	}
	c.entries.Add(key, v)
	return v, nil
}

// Forget drops key from the cache.
func (c *Cache[V]) Forget(key string) {
	c.entries.Remove(key)
}
