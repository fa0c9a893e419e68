package local

import (
	"io"
	"sync"
)

// modelCache deduplicates model loads. The first request for a model ID
// performs the load while concurrent requests for the same ID block on it;
// later requests reuse the loaded instance. A failed load is forgotten so
// the next request retries instead of caching the error forever.
type modelCache[T any] struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry[T]
}

type cacheEntry[T any] struct {
	once  sync.Once
	model T
	err   error
}

func newModelCache[T any]() *modelCache[T] {
	return &modelCache[T]{entries: make(map[string]*cacheEntry[T])}
}

func (c *modelCache[T]) get(modelID string, load func() (T, error)) (T, error) {
	c.mu.Lock()
	entry, ok := c.entries[modelID]
	if !ok {
		entry = &cacheEntry[T]{}
		c.entries[modelID] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.model, entry.err = load()
	})

	if entry.err != nil {
		c.mu.Lock()
		if c.entries[modelID] == entry {
			delete(c.entries, modelID)
		}
		c.mu.Unlock()
		var zero T
		return zero, entry.err
	}
	return entry.model, nil
}

// close releases every cached model that implements io.Closer and empties
// the cache.
func (c *modelCache[T]) close() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*cacheEntry[T])
	c.mu.Unlock()

	var firstErr error
	for _, entry := range entries {
		if entry.err != nil {
			continue
		}
		if closer, ok := any(entry.model).(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
