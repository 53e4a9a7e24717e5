package consumer

import (
	"fmt"

	"github.com/feedgrid/feedgrid/internal/cache"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/utils"
)

// StartCacheEvictions subscribes the node's cache manager to the cluster
// invalidation broadcast. Every node consumes every eviction, so a GLOBAL
// evict anywhere drops the LOCAL entry everywhere.
func StartCacheEvictions(sub queue.Subscriber, manager *cache.Manager, logger *logging.Logger) error {
	if err := sub.Subscribe(utils.TopicCacheEvict, func(data []byte) error {
		if err := manager.HandleEviction(data); err != nil {
			logger.Warn("Failed to apply cache eviction broadcast", "error", err)
			// A malformed broadcast is dropped, not redelivered
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", utils.TopicCacheEvict, err)
	}
	return nil
}
