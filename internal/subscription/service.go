package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/feedgrid/feedgrid/internal/distribution"
	"github.com/feedgrid/feedgrid/internal/event"
	"github.com/feedgrid/feedgrid/internal/lock"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/sequence"
	"github.com/feedgrid/feedgrid/internal/store"
	"github.com/feedgrid/feedgrid/internal/utils"
)

// ComponentChecker gates mutations on the owning component being enabled.
// Satisfied by component.Registry.
type ComponentChecker interface {
	EnsureActive(ctx context.Context, tenantID, componentID string) error
}

// Service implements subscribe/unsubscribe with idempotent semantics. All
// writes of one edge happen under a distributed lock keyed by the full edge,
// so concurrent subscribe/unsubscribe calls serialize per edge rather than
// per target.
type Service struct {
	store     store.Store
	locks     *lock.Manager
	registry  ComponentChecker
	events    *event.Publisher
	sequences sequence.Generator
	snowflake *sequence.Snowflake
	logger    *logging.Logger
}

// NewService creates a subscription service
func NewService(
	s store.Store,
	locks *lock.Manager,
	registry ComponentChecker,
	events *event.Publisher,
	sequences sequence.Generator,
	snowflake *sequence.Snowflake,
	logger *logging.Logger,
) *Service {
	return &Service{
		store:     s,
		locks:     locks,
		registry:  registry,
		events:    events,
		sequences: sequences,
		snowflake: snowflake,
		logger:    logger,
	}
}

func edgeLockKey(tenantID, componentID, targetID, subscriberID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", tenantID, componentID, targetID, subscriberID)
}

func sequenceKey(tenantID, componentID, targetID string) string {
	return fmt.Sprintf("subscriber:%s:%s:%s", tenantID, componentID, targetID)
}

// SubscribeOptions carries optional edge attributes
type SubscribeOptions struct {
	Alarm bool
}

// Subscribe creates the edge (subscriber → target). Calling it again while
// the edge is ACTIVE is a no-op. Re-subscribing after an unsubscribe reuses
// the slot the edge held before, keeping historical partition locality
// stable.
func (s *Service) Subscribe(ctx context.Context, tenantID, componentID, targetID, subscriberID string, opts SubscribeOptions) error {
	if err := s.registry.EnsureActive(ctx, tenantID, componentID); err != nil {
		return err
	}

	return s.locks.WithLock(ctx, lock.TypeSubscribe, edgeLockKey(tenantID, componentID, targetID, subscriberID), func(ctx context.Context) error {
		existing, err := s.reverseRecord(ctx, tenantID, componentID, subscriberID, targetID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == StatusActive {
			return nil
		}

		var slot int64
		if existing != nil {
			slot = existing.Slot
		} else {
			seq, err := s.sequences.Next(ctx, sequenceKey(tenantID, componentID, targetID))
			if err != nil {
				return err
			}
			slot, err = distribution.SubscriberSlot(seq)
			if err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		rec := Record{
			TenantID:     tenantID,
			ComponentID:  componentID,
			TargetID:     targetID,
			SubscriberID: subscriberID,
			Slot:         slot,
			Status:       StatusActive,
			Alarm:        opts.Alarm,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if existing != nil {
			rec.CreatedAt = existing.CreatedAt
		}

		if err := s.store.BatchWrite(ctx, []store.Mutation{
			{Table: forwardTable, Kind: store.Upsert, Row: store.Row{Key: forwardKey(rec), Columns: recordColumns(rec)}},
			{Table: reverseTable, Kind: store.Upsert, Row: store.Row{Key: reverseKey(tenantID, componentID, subscriberID, targetID), Columns: recordColumns(rec)}},
			{Table: distributedTable, Kind: store.Upsert, Row: store.Row{Key: distributedKey(rec), Columns: recordColumns(rec)}},
		}); err != nil {
			return err
		}

		s.adjustCounter(tenantID, componentID, targetID, 1)

		return s.publishEdgeEvent(ctx, rec, event.ActionCreated)
	})
}

// Unsubscribe removes the edge. Unknown or already-deleted edges are a
// no-op. The reverse record flips to DELETED and keeps its slot; forward and
// distributed rows are physically removed.
func (s *Service) Unsubscribe(ctx context.Context, tenantID, componentID, targetID, subscriberID string) error {
	if err := s.registry.EnsureActive(ctx, tenantID, componentID); err != nil {
		return err
	}

	return s.locks.WithLock(ctx, lock.TypeSubscribe, edgeLockKey(tenantID, componentID, targetID, subscriberID), func(ctx context.Context) error {
		existing, err := s.reverseRecord(ctx, tenantID, componentID, subscriberID, targetID)
		if err != nil {
			return err
		}
		if existing == nil || existing.Status == StatusDeleted {
			return nil
		}

		rec := *existing
		rec.Status = StatusDeleted
		rec.UpdatedAt = time.Now().UTC()

		if err := s.store.BatchWrite(ctx, []store.Mutation{
			{Table: reverseTable, Kind: store.Upsert, Row: store.Row{Key: reverseKey(tenantID, componentID, subscriberID, targetID), Columns: recordColumns(rec)}},
			{Table: forwardTable, Kind: store.Delete, Row: store.Row{Key: forwardKey(rec)}},
			{Table: distributedTable, Kind: store.Delete, Row: store.Row{Key: distributedKey(rec)}},
		}); err != nil {
			return err
		}

		s.adjustCounter(tenantID, componentID, targetID, -1)

		return s.publishEdgeEvent(ctx, rec, event.ActionRemoved)
	})
}

// CountSubscribers returns the eventually-consistent subscriber counter.
// Never authoritative for membership; use IsSubscriber for that.
func (s *Service) CountSubscribers(ctx context.Context, tenantID, componentID, targetID string) (int64, error) {
	return s.store.Counter(ctx, counterTable, counterKey(tenantID, componentID, targetID))
}

// IsSubscriber reports whether the edge exists and is ACTIVE
func (s *Service) IsSubscriber(ctx context.Context, tenantID, componentID, targetID, subscriberID string) (bool, error) {
	rec, err := s.reverseRecord(ctx, tenantID, componentID, subscriberID, targetID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Status == StatusActive, nil
}

// reverseRecord reads the reverse row, nil when absent
func (s *Service) reverseRecord(ctx context.Context, tenantID, componentID, subscriberID, targetID string) (*Record, error) {
	row, err := s.store.Find(ctx, reverseTable, reverseKey(tenantID, componentID, subscriberID, targetID))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	rec := recordFromRow(tenantID, componentID, targetID, subscriberID, row.Columns)
	return &rec, nil
}

// adjustCounter updates the subscriber counter fire-and-forget. A crash
// between the batch write and this update undercounts transiently; a
// background reconciliation corrects it, the critical path never waits.
func (s *Service) adjustCounter(tenantID, componentID, targetID string, delta int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), utils.CounterUpdateTimeout)
		defer cancel()

		if err := s.store.Increment(ctx, counterTable, counterKey(tenantID, componentID, targetID), delta); err != nil {
			s.logger.Error("Failed to update subscriber counter",
				"tenant_id", tenantID,
				"component_id", componentID,
				"target_id", targetID,
				"delta", delta,
				"error", err)
		}
	}()
}

func (s *Service) publishEdgeEvent(ctx context.Context, rec Record, action event.Action) error {
	payload := map[string]interface{}{
		"tenantId":     rec.TenantID,
		"componentId":  rec.ComponentID,
		"targetId":     rec.TargetID,
		"subscriberId": rec.SubscriberID,
		"slot":         rec.Slot,
	}

	eventRec, err := event.NewRecord(
		s.snowflake,
		rec.TenantID,
		event.ResourceSubscription,
		rec.ComponentID,
		action,
		event.Key("subscription", rec.TargetID, rec.SubscriberID),
		payload,
	)
	if err != nil {
		return err
	}

	return s.events.Publish(ctx, eventRec)
}
