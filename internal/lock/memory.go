package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryRepository implements Repository with an in-process map
// This is useful for testing and single-node development
type MemoryRepository struct {
	entries map[string]memoryEntry
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryRepository creates an in-memory lock repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// AcquireIfAbsent claims the key when no live entry holds it
func (r *MemoryRepository) AcquireIfAbsent(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[key]; exists && r.now().Before(entry.expiresAt) {
		return false, nil
	}

	r.entries[key] = memoryEntry{
		token:     token,
		expiresAt: r.now().Add(ttl),
	}
	return true, nil
}

// Release frees the key when the token still owns it
func (r *MemoryRepository) Release(ctx context.Context, key, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[key]; exists && entry.token == token {
		delete(r.entries, key)
	}
	return nil
}
