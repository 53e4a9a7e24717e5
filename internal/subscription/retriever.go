package subscription

import (
	"context"
	"strconv"

	"github.com/feedgrid/feedgrid/internal/cursor"
	"github.com/feedgrid/feedgrid/internal/distribution"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/store"
)

// ListTargetSubscribers pages through a target's subscribers in subscriber
// order, walking the slot partitions in either direction. A non-empty cursor
// names the last-seen subscriber; its slot is recovered from the reverse
// index so the walk resumes in the right partition.
func (s *Service) ListTargetSubscribers(ctx context.Context, tenantID, componentID, targetID string, req cursor.Request) (cursor.Page[Record], error) {
	if err := req.Validate(); err != nil {
		return cursor.Page[Record]{}, err
	}

	lastSeq, err := s.sequences.Last(ctx, sequenceKey(tenantID, componentID, targetID))
	if err != nil {
		return cursor.Page[Record]{}, err
	}

	slots := cursor.SlotRange{
		First: distribution.FirstSlotID,
		Last:  distribution.LastSlot(lastSeq, distribution.SubscriberSlotSize),
	}

	startSlot := slots.First
	if req.Direction == cursor.DirectionPrevious {
		startSlot = slots.Last
	}
	if req.Cursor != "" {
		rec, err := s.reverseRecord(ctx, tenantID, componentID, req.Cursor, targetID)
		if err != nil {
			return cursor.Page[Record]{}, err
		}
		if rec == nil {
			return cursor.Page[Record]{}, errors.InvalidCursor("unknown subscriber cursor %q", req.Cursor)
		}
		startSlot = rec.Slot
	}

	order := store.Ascending
	if req.Direction == cursor.DirectionPrevious {
		order = store.Descending
	}

	return cursor.PaginateSlots(ctx, req, slots, startSlot,
		func(rec Record) string { return rec.SubscriberID },
		func(ctx context.Context, slot int64, after string, limit int) ([]Record, error) {
			opts := store.ScanOptions{Order: order, Limit: limit}
			if after != "" {
				opts.StartAfter = []string{after}
			}

			rows, err := s.store.Scan(ctx, forwardTable, []string{tenantID, componentID, targetID, strconv.FormatInt(slot, 10)}, opts)
			if err != nil {
				return nil, err
			}

			records := make([]Record, 0, len(rows))
			for _, row := range rows {
				records = append(records, recordFromRow(tenantID, componentID, targetID, row.Key.Clustering[0], row.Columns))
			}
			return records, nil
		})
}

// ListSubscriberTargets pages through the targets one subscriber follows,
// walking the reverse index of that subscriber's single partition. DELETED
// rows stay in the index for slot reuse and are skipped here.
func (s *Service) ListSubscriberTargets(ctx context.Context, tenantID, componentID, subscriberID string, req cursor.Request) (cursor.Page[Record], error) {
	if err := req.Validate(); err != nil {
		return cursor.Page[Record]{}, err
	}

	order := store.Ascending
	if req.Direction == cursor.DirectionPrevious {
		order = store.Descending
	}

	return cursor.Paginate(ctx, req,
		func(rec Record) string { return rec.TargetID },
		func(ctx context.Context, after string, limit int) ([]Record, error) {
			records := make([]Record, 0, limit)
			resume := after

			// Deleted rows don't count against the page, so keep scanning
			// until enough ACTIVE rows accumulate or the partition ends
			for len(records) < limit {
				opts := store.ScanOptions{Order: order, Limit: limit}
				if resume != "" {
					opts.StartAfter = []string{resume}
				}

				rows, err := s.store.Scan(ctx, reverseTable, []string{tenantID, componentID, subscriberID}, opts)
				if err != nil {
					return nil, err
				}
				if len(rows) == 0 {
					break
				}

				for _, row := range rows {
					rec := recordFromRow(tenantID, componentID, row.Key.Clustering[0], subscriberID, row.Columns)
					if rec.Status != StatusActive {
						continue
					}
					records = append(records, rec)
					if len(records) == limit {
						break
					}
				}

				resume = rows[len(rows)-1].Key.Clustering[0]
				if len(rows) < limit {
					break
				}
			}

			return records, nil
		})
}
