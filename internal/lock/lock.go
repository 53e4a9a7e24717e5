package lock

import (
	"context"
	"fmt"
	"time"
)

// Type identifies the critical section a lock protects. Keys from different
// types never collide even when the entity key is the same.
type Type string

const (
	// TypeSubscribe serializes subscribe/unsubscribe for one (subscriber, target) edge
	TypeSubscribe Type = "subscribe"

	// TypePost serializes post modifications
	TypePost Type = "post"
)

// Repository provides atomic acquire/release of named locks
type Repository interface {
	// AcquireIfAbsent atomically claims the key for the token when no other
	// owner holds it. Returns false without error when the key is taken.
	AcquireIfAbsent(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release frees the key only when the token still owns it
	Release(ctx context.Context, key, token string) error
}

// lockKey builds the storage key for a lock
func lockKey(lockType Type, key string) string {
	return fmt.Sprintf("feedgrid:lock:%s:%s", lockType, key)
}
