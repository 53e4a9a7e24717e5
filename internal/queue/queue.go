package queue

import "context"

// Publisher publishes messages to a topic on the bus.
//
// The partition key controls ordering: messages published with the same key
// are delivered in publish order to a single consumer. Callers that need
// per-entity ordering (feed fanout, cache eviction) derive the key from the
// entity identifier.
type Publisher interface {
	// Publish publishes a single message to a topic with a partition key
	Publish(ctx context.Context, topic, key string, data []byte) error

	// PublishBatch publishes multiple messages asynchronously and waits for all to complete
	// Returns the number of successfully published messages and any error
	PublishBatch(ctx context.Context, messages []BatchMessage) (int, error)

	// Close closes the connection
	Close() error
}

// BatchMessage represents a message for batch publishing
type BatchMessage struct {
	Topic string
	Key   string
	Data  []byte
}

// Subscriber subscribes to messages from the bus
type Subscriber interface {
	// Subscribe subscribes to a topic with a handler
	Subscribe(topic string, handler MessageHandler) error

	// Unsubscribe unsubscribes from a topic
	Unsubscribe(topic string) error

	// Close closes the connection
	Close() error
}

// MessageHandler handles incoming messages. Returning an error prevents the
// message from being acknowledged so the backend redelivers it.
type MessageHandler func(data []byte) error

// Queue combines Publisher and Subscriber interfaces
type Queue interface {
	Publisher
	Subscriber
}
