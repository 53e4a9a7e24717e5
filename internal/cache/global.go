package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Global is the shared cache tier visible to every node
type Global interface {
	// Get returns the value and whether the key was present
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error
}

// RedisGlobal implements Global on redis
type RedisGlobal struct {
	client *redis.Client
}

// NewRedisGlobal creates a redis-backed global tier
func NewRedisGlobal(client *redis.Client) *RedisGlobal {
	return &RedisGlobal{client: client}
}

func (g *RedisGlobal) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := g.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return value, true, nil
}

func (g *RedisGlobal) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := g.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

func (g *RedisGlobal) Delete(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}

type memoryGlobalEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryGlobal implements Global in-process for tests and single-node setups
type MemoryGlobal struct {
	mu      sync.RWMutex
	entries map[string]memoryGlobalEntry
}

// NewMemoryGlobal creates an in-memory global tier
func NewMemoryGlobal() *MemoryGlobal {
	return &MemoryGlobal{entries: make(map[string]memoryGlobalEntry)}
}

func (g *MemoryGlobal) Get(ctx context.Context, key string) ([]byte, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, exists := g.entries[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (g *MemoryGlobal) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries[key] = memoryGlobalEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (g *MemoryGlobal) Delete(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.entries, key)
	return nil
}
