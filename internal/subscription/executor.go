package subscription

import (
	"context"

	"github.com/feedgrid/feedgrid/internal/distribution"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/store"
)

// BatchHandler processes one page of subscriber records
type BatchHandler func(ctx context.Context, records []Record) error

// DistributedExecutor streams every subscriber of a target through a
// caller-supplied handler, page by page, without loading the full subscriber
// set into memory. It walks the distribution-key sharded index, so a hot
// target's scan load spreads over many partitions.
type DistributedExecutor struct {
	store     store.Store
	fetchSize int
	logger    *logging.Logger
}

// NewDistributedExecutor creates an executor with the given page size
func NewDistributedExecutor(s store.Store, fetchSize int, logger *logging.Logger) *DistributedExecutor {
	return &DistributedExecutor{
		store:     s,
		fetchSize: fetchSize,
		logger:    logger,
	}
}

// ExecuteToTargetSubscribers invokes the handler for each page of the
// target's subscribers. Cancelling the context stops between pages; pages
// already handled are not rolled back (at-least-once).
func (e *DistributedExecutor) ExecuteToTargetSubscribers(ctx context.Context, tenantID, componentID, targetID string, handler BatchHandler) error {
	for _, bucket := range distribution.AllKeys() {
		if err := ctx.Err(); err != nil {
			return err
		}

		partition := []string{tenantID, componentID, targetID, bucket.String()}
		after := ""

		for {
			opts := store.ScanOptions{Order: store.Ascending, Limit: e.fetchSize}
			if after != "" {
				opts.StartAfter = []string{after}
			}

			rows, err := e.store.Scan(ctx, distributedTable, partition, opts)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				break
			}

			records := make([]Record, 0, len(rows))
			for _, row := range rows {
				records = append(records, recordFromRow(tenantID, componentID, targetID, row.Key.Clustering[0], row.Columns))
			}

			if err := handler(ctx, records); err != nil {
				return err
			}

			if len(rows) < e.fetchSize {
				break
			}
			after = rows[len(rows)-1].Key.Clustering[0]
		}
	}

	return nil
}
