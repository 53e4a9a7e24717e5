package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feedgrid/feedgrid/internal/event"
	"github.com/feedgrid/feedgrid/internal/feed"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/subscription"
	"github.com/feedgrid/feedgrid/internal/utils"
)

type postEventPayload struct {
	SpaceID     string `json:"spaceId"`
	PostID      int64  `json:"postId"`
	OwnerID     string `json:"ownerId"`
	FeedEventID int64  `json:"feedEventId"`
}

type subscriptionEventPayload struct {
	TargetID     string `json:"targetId"`
	SubscriberID string `json:"subscriberId"`
}

// FeedEventConsumer turns resource change events into feed writes: post and
// subscription creations push denormalized entries into every subscriber's
// feed, removals withdraw the delivered copies again.
type FeedEventConsumer struct {
	executor *subscription.DistributedExecutor
	feeds    *feed.Service
	logger   *logging.Logger
}

// NewFeedEventConsumer creates the consumer. The executor must page the same
// distribution index the subscription service writes.
func NewFeedEventConsumer(executor *subscription.DistributedExecutor, feeds *feed.Service, logger *logging.Logger) *FeedEventConsumer {
	return &FeedEventConsumer{
		executor: executor,
		feeds:    feeds,
		logger:   logger,
	}
}

// Start subscribes the consumer to the events topic with retry/dead-letter
// wrapping
func (c *FeedEventConsumer) Start(sub queue.Subscriber, pub queue.Publisher, opts RetryOptions) error {
	if err := sub.Subscribe(utils.TopicEvents, WithRetry(utils.TopicEvents, c.Handle, opts, pub, c.logger)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", utils.TopicEvents, err)
	}
	return LogDeadLetters(sub, utils.TopicEvents, c.logger)
}

// Handle processes one event. Returning an error leaves the message
// unacknowledged so the bus redelivers it; fanout writes are idempotent, so
// redelivery only re-applies the same upserts and deletes.
func (c *FeedEventConsumer) Handle(data []byte) error {
	var rec event.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("malformed event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), utils.FanoutTimeout)
	defer cancel()

	switch rec.Resource {
	case event.ResourcePost:
		return c.handlePost(ctx, rec)
	case event.ResourceSubscription:
		return c.handleSubscription(ctx, rec)
	default:
		// Other resources carry no feed effect
		return nil
	}
}

func (c *FeedEventConsumer) handlePost(ctx context.Context, rec event.Record) error {
	var payload postEventPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return fmt.Errorf("malformed post event payload: %w", err)
	}

	switch rec.Action {
	case event.ActionCreated:
		return c.fanoutToSubscribers(ctx, rec, payload.SpaceID)
	case event.ActionRemoved:
		feedEventID := payload.FeedEventID
		if feedEventID == 0 {
			c.logger.Warn("Post removed event carries no feed event id, skipping withdrawal",
				"tenant_id", rec.TenantID,
				"post_id", payload.PostID)
			return nil
		}
		return c.feeds.RemoveByTarget(ctx, rec.TenantID, rec.Component, payload.SpaceID, feedEventID)
	default:
		// Modifications keep the delivered copies as-is; readers resolve the
		// fresh content through the post service
		return nil
	}
}

func (c *FeedEventConsumer) handleSubscription(ctx context.Context, rec event.Record) error {
	var payload subscriptionEventPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return fmt.Errorf("malformed subscription event payload: %w", err)
	}

	switch rec.Action {
	case event.ActionCreated:
		return c.fanoutToSubscribers(ctx, rec, payload.TargetID)
	case event.ActionRemoved:
		// Withdraw everything the target ever pushed into this
		// subscriber's feed
		return c.feeds.RemoveBySource(ctx, rec.TenantID, rec.Component, payload.SubscriberID, payload.TargetID)
	default:
		return nil
	}
}

// fanoutToSubscribers delivers the event into the feed of every subscriber
// of targetID, one distribution page at a time
func (c *FeedEventConsumer) fanoutToSubscribers(ctx context.Context, rec event.Record, targetID string) error {
	item := feed.Item{
		EventID:   rec.EventID,
		Resource:  rec.Resource,
		Action:    rec.Action,
		SourceID:  targetID,
		Payload:   rec.Payload,
		CreatedAt: rec.CreatedAt,
	}

	return c.executor.ExecuteToTargetSubscribers(ctx, rec.TenantID, rec.Component, targetID,
		func(ctx context.Context, records []subscription.Record) error {
			owners := make([]string, 0, len(records))
			for _, sub := range records {
				owners = append(owners, sub.SubscriberID)
			}
			return c.feeds.Create(ctx, rec.TenantID, rec.Component, owners, item)
		})
}
