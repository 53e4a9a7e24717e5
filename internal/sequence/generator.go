package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Generator issues per-scope monotonic sequences. Subscriber slots and post
// slots are both derived from these sequences, so Last feeds the pagination
// engine's last-slot computation.
type Generator interface {
	// Next atomically increments and returns the sequence for key
	Next(ctx context.Context, key string) (int64, error)

	// Last returns the current sequence for key, 0 when none was issued
	Last(ctx context.Context, key string) (int64, error)
}

// RedisGenerator implements Generator on redis INCR
type RedisGenerator struct {
	client *redis.Client
	prefix string
}

// NewRedisGenerator creates a redis-backed sequence generator
func NewRedisGenerator(client *redis.Client, prefix string) *RedisGenerator {
	if prefix == "" {
		prefix = "feedgrid:seq"
	}
	return &RedisGenerator{client: client, prefix: prefix}
}

func (g *RedisGenerator) fullKey(key string) string {
	return fmt.Sprintf("%s:%s", g.prefix, key)
}

// Next atomically increments and returns the sequence for key
func (g *RedisGenerator) Next(ctx context.Context, key string) (int64, error) {
	val, err := g.client.Incr(ctx, g.fullKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence %q: %w", key, err)
	}
	return val, nil
}

// Last returns the current sequence for key, 0 when none was issued
func (g *RedisGenerator) Last(ctx context.Context, key string) (int64, error) {
	val, err := g.client.Get(ctx, g.fullKey(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence %q: %w", key, err)
	}
	return val, nil
}

// MemoryGenerator implements Generator in process memory, for tests and
// single-node development
type MemoryGenerator struct {
	mu   sync.Mutex
	seqs map[string]int64
}

// NewMemoryGenerator creates an in-memory sequence generator
func NewMemoryGenerator() *MemoryGenerator {
	return &MemoryGenerator{seqs: make(map[string]int64)}
}

// Next atomically increments and returns the sequence for key
func (g *MemoryGenerator) Next(_ context.Context, key string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seqs[key]++
	return g.seqs[key], nil
}

// Last returns the current sequence for key, 0 when none was issued
func (g *MemoryGenerator) Last(_ context.Context, key string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seqs[key], nil
}
