package feed

import (
	"context"
	"sync"
	"time"

	"github.com/feedgrid/feedgrid/internal/config"
	"github.com/feedgrid/feedgrid/internal/cursor"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/sequence"
	"github.com/feedgrid/feedgrid/internal/store"
	"github.com/feedgrid/feedgrid/internal/subscription"
)

// Service fans events out into recipient feed partitions
type Service struct {
	store       store.Store
	executor    *subscription.DistributedExecutor
	batchSize   int
	parallelism int
	logger      *logging.Logger
}

// NewService creates a feed service. The executor pages the subscription
// distribution index during removal fanout using cfg.FetchSize.
func NewService(s store.Store, cfg config.FanoutConfig, logger *logging.Logger) *Service {
	return &Service{
		store:       s,
		executor:    subscription.NewDistributedExecutor(s, cfg.FetchSize, logger),
		batchSize:   cfg.BatchSize,
		parallelism: cfg.Parallelism,
		logger:      logger,
	}
}

// Create delivers item into every owner's feed partition. Owners are chunked
// into fixed-size batches and written with bounded concurrency. Partial
// completion is possible on cancellation or store failure; the write is
// keyed by event id, so retries are absorbed by upsert semantics.
func (s *Service) Create(ctx context.Context, tenantID, componentID string, ownerIDs []string, item Item) error {
	if item.EventID < sequence.MinID {
		return errors.InvalidArguments("feed item event id %d below minimum", item.EventID)
	}
	if len(ownerIDs) == 0 {
		return nil
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, s.parallelism)
		mu       sync.Mutex
		firstErr error
	)

	for start := 0; start < len(ownerIDs); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			break
		}

		end := start + s.batchSize
		if end > len(ownerIDs) {
			end = len(ownerIDs)
		}
		batch := ownerIDs[start:end]

		sem <- struct{}{}
		wg.Go(func() {
			defer func() { <-sem }()

			if err := s.writeBatch(ctx, tenantID, componentID, batch, item); err != nil {
				s.logger.Error("Feed fanout batch failed",
					"tenant_id", tenantID,
					"component_id", componentID,
					"event_id", item.EventID,
					"owners", len(batch),
					"error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (s *Service) writeBatch(ctx context.Context, tenantID, componentID string, ownerIDs []string, item Item) error {
	mutations := make([]store.Mutation, 0, len(ownerIDs))
	for _, ownerID := range ownerIDs {
		mutations = append(mutations, store.Mutation{
			Table: feedTable,
			Kind:  store.Upsert,
			Row:   entryRow(tenantID, componentID, ownerID, item),
		})
	}
	return s.store.BatchWrite(ctx, mutations)
}

// RemoveByTarget deletes the delivered copies of eventID from every
// subscriber feed of target, paging the distribution index so the subscriber
// set never loads into memory at once. At-least-once: a failed page aborts
// and the caller retries, re-deleting already removed rows harmlessly.
func (s *Service) RemoveByTarget(ctx context.Context, tenantID, componentID, targetID string, eventID int64) error {
	return s.executor.ExecuteToTargetSubscribers(ctx, tenantID, componentID, targetID,
		func(ctx context.Context, records []subscription.Record) error {
			mutations := make([]store.Mutation, 0, len(records))
			for _, rec := range records {
				mutations = append(mutations, store.Mutation{
					Table: feedTable,
					Kind:  store.Delete,
					Row: store.Row{
						Key: store.Key{
							Partition:  feedPartition(tenantID, componentID, rec.SubscriberID),
							Clustering: []string{store.EncodeInt64(eventID)},
						},
					},
				})
			}
			return s.store.BatchWrite(ctx, mutations)
		})
}

// RemoveBySource deletes every entry in one owner's feed that originated
// from sourceID. Used when an owner unsubscribes from a target: copies the
// target already pushed into the owner's feed are withdrawn.
func (s *Service) RemoveBySource(ctx context.Context, tenantID, componentID, ownerID, sourceID string) error {
	partition := feedPartition(tenantID, componentID, ownerID)
	after := []string(nil)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := s.store.Scan(ctx, feedTable, partition, store.ScanOptions{
			StartAfter: after,
			Order:      store.Descending,
			Limit:      s.batchSize,
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		mutations := make([]store.Mutation, 0, len(rows))
		for _, row := range rows {
			if row.Columns["source_id"] != sourceID {
				continue
			}
			mutations = append(mutations, store.Mutation{
				Table: feedTable,
				Kind:  store.Delete,
				Row:   store.Row{Key: row.Key},
			})
		}
		if len(mutations) > 0 {
			if err := s.store.BatchWrite(ctx, mutations); err != nil {
				return err
			}
		}

		if len(rows) < s.batchSize {
			return nil
		}
		after = rows[len(rows)-1].Key.Clustering
	}
}

// ListFeeds pages one owner's feed. NEXT walks newest to oldest, matching
// how feeds render; PREVIOUS walks back toward newer entries.
func (s *Service) ListFeeds(ctx context.Context, tenantID, componentID, ownerID string, req cursor.Request) (cursor.Page[Entry], error) {
	partition := feedPartition(tenantID, componentID, ownerID)

	if req.Cursor != "" {
		if _, err := store.DecodeInt64(req.Cursor); err != nil {
			return cursor.Page[Entry]{}, errors.InvalidCursor("malformed feed cursor %q", req.Cursor)
		}
	}

	return cursor.Paginate(ctx, req,
		func(e Entry) string { return store.EncodeInt64(e.EventID) },
		func(ctx context.Context, after string, limit int) ([]Entry, error) {
			order := store.Descending
			if req.Direction == cursor.DirectionPrevious {
				order = store.Ascending
			}

			opts := store.ScanOptions{Order: order, Limit: limit}
			if after != "" {
				opts.StartAfter = []string{after}
			}

			rows, err := s.store.Scan(ctx, feedTable, partition, opts)
			if err != nil {
				return nil, err
			}

			entries := make([]Entry, 0, len(rows))
			for _, row := range rows {
				entry, err := entryFromRow(row)
				if err != nil {
					return nil, err
				}
				entries = append(entries, entry)
			}
			return entries, nil
		})
}
