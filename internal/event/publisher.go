package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/utils"
)

// Publisher sends events to the bus and records every attempt in the
// history. Messages are keyed by event key, so all events of one entity land
// on one partition and keep their order.
type Publisher struct {
	queue   queue.Publisher
	history *History
	logger  *logging.Logger
}

// NewPublisher creates an event publisher
func NewPublisher(q queue.Publisher, history *History, logger *logging.Logger) *Publisher {
	return &Publisher{
		queue:   q,
		history: history,
		logger:  logger,
	}
}

// Publish sends the record to the bus and appends a history row with the
// outcome. A failed bus publish still leaves a FAILED history row behind and
// surfaces a publish_failure error to the caller.
func (p *Publisher) Publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal event record: %w", err)
	}

	publishErr := p.queue.Publish(ctx, utils.TopicEvents, rec.EventKey, data)

	status := StatusSuccess
	reason := ""
	if publishErr != nil {
		status = StatusFailed
		reason = publishErr.Error()
	}

	if err := p.history.Append(ctx, rec, status, reason); err != nil {
		// History write failures must not mask a successful publish, but
		// they leave the reliability record incomplete
		p.logger.Error("Failed to append event history",
			"event_id", rec.EventID,
			"event_key", rec.EventKey,
			"error", err)
		if publishErr == nil {
			return err
		}
	}

	if publishErr != nil {
		p.logger.Error("Event publish failed",
			"event_id", rec.EventID,
			"event_key", rec.EventKey,
			"error", publishErr)
		return errors.PublishFailure(utils.TopicEvents, publishErr)
	}

	return nil
}
