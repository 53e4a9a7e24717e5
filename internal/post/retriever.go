package post

import (
	"context"
	"strconv"

	"github.com/feedgrid/feedgrid/internal/cursor"
	"github.com/feedgrid/feedgrid/internal/distribution"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/store"
)

// ListBySpace pages through a space's posts in post-id order, walking the
// slot partitions in either direction. A non-empty cursor names the
// last-seen post id; its slot is recovered from the reverse row so the walk
// resumes in the right partition. Removed posts stay in their partitions as
// DELETED and are skipped.
func (s *Service) ListBySpace(ctx context.Context, tenantID, componentID, spaceID string, req cursor.Request) (cursor.Page[Post], error) {
	if err := req.Validate(); err != nil {
		return cursor.Page[Post]{}, err
	}

	lastSeq, err := s.sequences.Last(ctx, sequenceKey(tenantID, componentID, spaceID))
	if err != nil {
		return cursor.Page[Post]{}, err
	}

	slots := cursor.SlotRange{
		First: distribution.FirstSlotID,
		Last:  distribution.LastSlot(lastSeq, distribution.PostSlotSize),
	}

	startSlot := slots.First
	if req.Direction == cursor.DirectionPrevious {
		startSlot = slots.Last
	}
	if req.Cursor != "" {
		postID, err := store.DecodeInt64(req.Cursor)
		if err != nil {
			return cursor.Page[Post]{}, errors.InvalidCursor("malformed post cursor %q", req.Cursor)
		}
		reverse, err := s.store.Find(ctx, reverseTable, reverseKey(tenantID, componentID, postID))
		if err != nil {
			return cursor.Page[Post]{}, err
		}
		if reverse == nil || reverse.Columns["space_id"] != spaceID {
			return cursor.Page[Post]{}, errors.InvalidCursor("unknown post cursor %q", req.Cursor)
		}
		startSlot, err = strconv.ParseInt(reverse.Columns["slot"], 10, 64)
		if err != nil {
			return cursor.Page[Post]{}, errors.InvalidCursor("unknown post cursor %q", req.Cursor)
		}
	}

	order := store.Ascending
	if req.Direction == cursor.DirectionPrevious {
		order = store.Descending
	}

	return cursor.PaginateSlots(ctx, req, slots, startSlot,
		func(p Post) string { return store.EncodeInt64(p.PostID) },
		func(ctx context.Context, slot int64, after string, limit int) ([]Post, error) {
			partition := []string{tenantID, componentID, spaceID, strconv.FormatInt(slot, 10)}
			posts := make([]Post, 0, limit)
			resume := after

			// Deleted posts don't count against the page, so keep scanning
			// until enough ACTIVE rows accumulate or the partition ends
			for len(posts) < limit {
				opts := store.ScanOptions{Order: order, Limit: limit}
				if resume != "" {
					opts.StartAfter = []string{resume}
				}

				rows, err := s.store.Scan(ctx, postTable, partition, opts)
				if err != nil {
					return nil, err
				}
				if len(rows) == 0 {
					break
				}

				for _, row := range rows {
					postID, err := store.DecodeInt64(row.Key.Clustering[0])
					if err != nil {
						return nil, err
					}
					p := postFromRow(tenantID, componentID, spaceID, slot, postID, row.Columns)
					if p.Status != StatusActive {
						continue
					}
					posts = append(posts, p)
					if len(posts) == limit {
						break
					}
				}

				resume = rows[len(rows)-1].Key.Clustering[0]
				if len(rows) < limit {
					break
				}
			}

			return posts, nil
		})
}
