package cache

import (
	"sync"
	"time"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalCache provides the in-process tier with per-entry TTLs
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]*localEntry
	stopCh  chan struct{}
}

// NewLocalCache creates a local cache and starts its cleanup goroutine
func NewLocalCache() *LocalCache {
	cache := &LocalCache{
		entries: make(map[string]*localEntry),
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// Get retrieves a value from the cache
func (c *LocalCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	// Check expiration
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}

	return entry.value, true
}

// Set stores a value with the given TTL
func (c *LocalCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &localEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete removes a key from the cache
func (c *LocalCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear removes all entries
func (c *LocalCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*localEntry)
}

// cleanup periodically removes expired entries
func (c *LocalCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (c *LocalCache) Stop() {
	close(c.stopCh)
}

// Len returns the number of live entries (for testing)
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	now := time.Now()
	for _, entry := range c.entries {
		if now.Before(entry.expiresAt) {
			count++
		}
	}
	return count
}
