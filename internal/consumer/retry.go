// Package consumer holds the worker-side message consumers: the feed fanout
// driven by resource change events, the cache invalidation listener, and the
// retry/dead-letter wrapping shared by all of them.
package consumer

import (
	"context"
	"time"

	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/utils"
)

// RetryOptions bounds local retry before a message dead-letters
type RetryOptions struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryOptions returns the worker defaults
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxAttempts: 3, Delay: 500 * time.Millisecond}
}

// WithRetry wraps a handler with bounded local retries. A message that still
// fails after the last attempt is published to the topic's dead-letter topic
// and acknowledged, so a poison message never wedges the consumer group.
func WithRetry(topic string, handler queue.MessageHandler, opts RetryOptions, publisher queue.Publisher, logger *logging.Logger) queue.MessageHandler {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	return func(data []byte) error {
		var lastErr error
		for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
			lastErr = handler(data)
			if lastErr == nil {
				return nil
			}

			logger.Warn("Message handler failed",
				"topic", topic,
				"attempt", attempt,
				"max_attempts", opts.MaxAttempts,
				"error", lastErr)

			if attempt < opts.MaxAttempts {
				time.Sleep(opts.Delay)
			}
		}

		deadLetterTopic := topic + utils.TopicDeadLetterSuffix
		ctx, cancel := context.WithTimeout(context.Background(), utils.EventPublishTimeout)
		defer cancel()

		if err := publisher.Publish(ctx, deadLetterTopic, "", data); err != nil {
			logger.Error("Failed to dead-letter message, leaving it unacknowledged",
				"topic", topic,
				"dead_letter_topic", deadLetterTopic,
				"error", err)
			return lastErr
		}

		logger.Error("Message exhausted retries, dead-lettered",
			"topic", topic,
			"dead_letter_topic", deadLetterTopic,
			"error", lastErr)
		return nil
	}
}

// LogDeadLetters subscribes to a topic's dead-letter topic and records each
// message. The dead-letter path never retries and never fails.
func LogDeadLetters(sub queue.Subscriber, topic string, logger *logging.Logger) error {
	deadLetterTopic := topic + utils.TopicDeadLetterSuffix
	return sub.Subscribe(deadLetterTopic, func(data []byte) error {
		logger.Error("Dead-lettered message",
			"topic", deadLetterTopic,
			"size", len(data),
			"payload", string(data))
		return nil
	})
}
