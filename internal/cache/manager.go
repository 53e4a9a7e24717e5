package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/utils"
)

// Loader fetches the value from the system of record on a cache miss
type Loader func(ctx context.Context) ([]byte, error)

// Manager coordinates the two cache tiers. Reads check local first, then the
// shared tier, then fall through to the loader; each hit repopulates the
// tiers above it. Callers that need strict freshness skip the manager and
// read the store directly.
type Manager struct {
	local     *LocalCache
	global    Global
	publisher queue.Publisher
	logger    *logging.Logger
}

// NewManager creates a cache manager
func NewManager(local *LocalCache, global Global, publisher queue.Publisher, logger *logging.Logger) *Manager {
	return &Manager{
		local:     local,
		global:    global,
		publisher: publisher,
		logger:    logger,
	}
}

// GetOrLoad returns the cached value for (cacheType, key), loading and
// populating both tiers on a miss. A shared-tier read failure degrades to a
// direct load rather than failing the request.
func (m *Manager) GetOrLoad(ctx context.Context, cacheType Type, key string, loader Loader) ([]byte, error) {
	ttls, err := TTLsFor(cacheType)
	if err != nil {
		return nil, err
	}

	sk := storageKey(cacheType, key)

	if value, ok := m.local.Get(sk); ok {
		return value, nil
	}

	value, found, err := m.global.Get(ctx, sk)
	if err != nil {
		m.logger.Warn("Global cache read failed, falling back to loader", "key", sk, "error", err)
	} else if found {
		m.local.Set(sk, value, ttls.Local)
		return value, nil
	}

	value, err = loader(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.global.Set(ctx, sk, value, ttls.Global); err != nil {
		m.logger.Warn("Global cache write failed", "key", sk, "error", err)
	}
	m.local.Set(sk, value, ttls.Local)

	return value, nil
}

// Evict removes the entry from the selected tiers. A GLOBAL eviction also
// broadcasts an invalidation message so every node drops its local copy.
func (m *Manager) Evict(ctx context.Context, cacheType Type, key string, strategies ...Strategy) error {
	if _, err := TTLsFor(cacheType); err != nil {
		return err
	}

	sk := storageKey(cacheType, key)

	for _, strategy := range strategies {
		switch strategy {
		case StrategyLocal:
			m.local.Delete(sk)

		case StrategyGlobal:
			if err := m.global.Delete(ctx, sk); err != nil {
				return err
			}
			if err := m.broadcastEviction(ctx, cacheType, key); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown eviction strategy: %s", strategy)
		}
	}

	return nil
}

// broadcastEviction publishes the invalidation keyed by entry so evictions
// for one entry stay ordered
func (m *Manager) broadcastEviction(ctx context.Context, cacheType Type, key string) error {
	msg := EvictMessage{Type: cacheType, Key: key}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal evict message: %w", err)
	}

	partitionKey := fmt.Sprintf("%s:%s", cacheType, key)
	if err := m.publisher.Publish(ctx, utils.TopicCacheEvict, partitionKey, data); err != nil {
		return fmt.Errorf("failed to broadcast eviction: %w", err)
	}
	return nil
}

// HandleEviction applies a broadcast invalidation to the local tier. Wired
// as the bus consumer handler on every node.
func (m *Manager) HandleEviction(data []byte) error {
	var msg EvictMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal evict message: %w", err)
	}

	m.local.Delete(storageKey(msg.Type, msg.Key))
	return nil
}
