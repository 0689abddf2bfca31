package storage

import "sync"

// Cloner is implemented by values the cache hands out copies of.
type Cloner[T any] interface {
	ValidatingSpec
	Clone() T
}

type cacheEntry[T any] struct {
	val  T
	used bool
}

// CachedStore is a read-through, write-through cache in front of another
// store. Callers always receive copies, so a cached value is never shared
// between goroutines.
type CachedStore[T Cloner[T]] struct {
	backend Store[T]

	mu      sync.Mutex
	entries map[string]*cacheEntry[T]
}

func NewCachedStore[T Cloner[T]](backend Store[T]) *CachedStore[T] {
	return &CachedStore[T]{
		backend: backend,
		entries: map[string]*cacheEntry[T]{},
	}
}

func (c *CachedStore[T]) Load(key string) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.used = true
		v := e.val.Clone()
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := c.backend.Load(key)
	if err != nil {
		var zero T
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A Save that landed while the backend was read is newer than v.
	if e, ok := c.entries[key]; ok {
		e.used = true
		return e.val.Clone(), nil
	}
	c.entries[key] = &cacheEntry[T]{val: v.Clone(), used: true}

	return v, nil
}

func (c *CachedStore[T]) Save(key string, v T) error {
	if err := c.backend.Save(key, v); err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[key] = &cacheEntry[T]{val: v.Clone(), used: true}
	c.mu.Unlock()

	return nil
}

// Evict drops entries that have not been used since the previous sweep and
// returns how many were removed. With force every entry is dropped. Evicted
// values are reloaded from the backend on the next Load.
func (c *CachedStore[T]) Evict(force bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if force || !e.used {
			delete(c.entries, k)
			n++
			continue
		}
		e.used = false
	}
	return n
}

// Len returns the number of cached entries.
func (c *CachedStore[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
