package utils

import "time"

// =============================================================================
// Timeout Constants
// =============================================================================

// HTTP Handler Timeouts
const (
	// DefaultRequestTimeout is the default timeout for HTTP requests
	DefaultRequestTimeout = 30 * time.Second

	// ValidationTimeout is the timeout for input validation operations
	ValidationTimeout = 5 * time.Second

	// BatchWriteTimeout is the timeout for batch write operations
	BatchWriteTimeout = 10 * time.Second

	// EventPublishTimeout is the timeout for publishing a single event to the bus
	EventPublishTimeout = 5 * time.Second

	// CounterUpdateTimeout is the timeout for the async subscription counter update
	CounterUpdateTimeout = 5 * time.Second

	// FanoutTimeout is the timeout for one consumed event's full fanout
	FanoutTimeout = 60 * time.Second
)

// =============================================================================
// Queue Constants
// =============================================================================

// QueueType represents the type of message queue
type QueueType string

const (
	// QueueTypeKafka represents Apache Kafka queue (default)
	QueueTypeKafka QueueType = "kafka"

	// QueueTypeNATS represents NATS JetStream queue
	QueueTypeNATS QueueType = "nats"

	// QueueTypeRedis represents Redis Streams queue
	QueueTypeRedis QueueType = "redis"

	// QueueTypeMemory represents in-memory queue (for testing)
	QueueTypeMemory QueueType = "memory"
)

// Well-known topics
const (
	// TopicFeedFanout carries per-subscriber feed fanout commands
	TopicFeedFanout = "feedgrid.feed.fanout"

	// TopicCacheEvict broadcasts global cache invalidations to every node
	TopicCacheEvict = "feedgrid.cache.evict"

	// TopicEvents carries resource change events for downstream consumers
	TopicEvents = "feedgrid.events"

	// TopicDeadLetterSuffix is appended to a topic name for its dead-letter topic
	TopicDeadLetterSuffix = ".dlt"
)

// =============================================================================
// Store Constants
// =============================================================================

// StoreType represents the wide-column store backend
type StoreType string

const (
	// StoreTypeMemory represents the in-memory store (default)
	StoreTypeMemory StoreType = "memory"
)

// =============================================================================
// Etcd Constants
// =============================================================================

const (
	// EtcdDialTimeout is the timeout for establishing etcd connections
	EtcdDialTimeout = 5 * time.Second

	// EtcdRequestTimeout is the default timeout for etcd requests
	EtcdRequestTimeout = 5 * time.Second

	// EtcdLeaseTTL is the lease TTL in seconds for node-id claims
	EtcdLeaseTTL = 10
)
