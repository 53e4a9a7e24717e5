package queue

import (
	"context"
	"fmt"
	"sync"
)

// MemoryQueue implements Queue interface using in-memory channels
// This is useful for testing and development without external dependencies
type MemoryQueue struct {
	channels      map[string]chan []byte
	subscriptions map[string]context.CancelFunc
	mu            sync.RWMutex
}

// newMemoryQueue creates a new in-memory queue instance
func newMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		channels:      make(map[string]chan []byte),
		subscriptions: make(map[string]context.CancelFunc),
	}
}

// getOrCreateChannel returns existing channel or creates new one
func (q *MemoryQueue) getOrCreateChannel(topic string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ch, exists := q.channels[topic]; exists {
		return ch
	}

	// Create buffered channel with capacity 10000
	ch := make(chan []byte, 10000)
	q.channels[topic] = ch
	return ch
}

// Publish publishes a message to an in-memory channel. A single channel per
// topic already preserves publish order, so the partition key is not used
// for routing here.
func (q *MemoryQueue) Publish(ctx context.Context, topic, key string, data []byte) error {
	ch := q.getOrCreateChannel(topic)

	// Make a copy of data to avoid race conditions
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	select {
	case ch <- dataCopy:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("channel full for topic: %s", topic)
	}
}

// PublishBatch publishes multiple messages
func (q *MemoryQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	successCount := 0

	for _, msg := range messages {
		if err := q.Publish(ctx, msg.Topic, msg.Key, msg.Data); err != nil {
			continue
		}
		successCount++
	}

	return successCount, nil
}

// Subscribe subscribes to an in-memory channel
func (q *MemoryQueue) Subscribe(topic string, handler MessageHandler) error {
	q.mu.Lock()
	if _, exists := q.subscriptions[topic]; exists {
		q.mu.Unlock()
		return fmt.Errorf("already subscribed to topic: %s", topic)
	}
	q.mu.Unlock()

	ch := q.getOrCreateChannel(topic)
	ctx, cancel := context.WithCancel(context.Background())

	q.mu.Lock()
	q.subscriptions[topic] = cancel
	q.mu.Unlock()

	// Start consuming messages in background
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-ch:
				if err := handler(data); err != nil {
					// In memory queue, we just log and continue
					continue
				}
			}
		}
	}()

	return nil
}

// Unsubscribe unsubscribes from a channel
func (q *MemoryQueue) Unsubscribe(topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, exists := q.subscriptions[topic]
	if !exists {
		return fmt.Errorf("not subscribed to topic: %s", topic)
	}

	cancel()
	delete(q.subscriptions, topic)
	return nil
}

// Close closes all channels and subscriptions
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Cancel all subscriptions
	for topic, cancel := range q.subscriptions {
		cancel()
		delete(q.subscriptions, topic)
	}

	// Close all channels
	for topic, ch := range q.channels {
		close(ch)
		delete(q.channels, topic)
	}

	return nil
}

// GetPendingCount returns the number of pending messages for a topic (for testing)
func (q *MemoryQueue) GetPendingCount(topic string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if ch, exists := q.channels[topic]; exists {
		return len(ch)
	}
	return 0
}
