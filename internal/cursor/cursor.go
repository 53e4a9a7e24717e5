// Package cursor implements bidirectional cursor pagination over sharded
// partitions. Every listing operation shares the same "read N+1, detect
// more, spill to the adjacent slot" walk so pages stay correct across
// partition boundaries without ever scanning a whole giant partition.
package cursor

import (
	"context"

	"github.com/feedgrid/feedgrid/internal/errors"
)

// Direction of traversal
type Direction string

const (
	// DirectionNext walks keys low to high
	DirectionNext Direction = "NEXT"
	// DirectionPrevious walks keys high to low
	DirectionPrevious Direction = "PREVIOUS"
)

// Request is a pagination request. Cursor is the opaque last-seen key from a
// prior page, empty for the first page.
type Request struct {
	Cursor    string
	PageSize  int
	Direction Direction
}

// Validate rejects malformed requests. An unsupported direction fails with
// not_supported; a non-positive page size with invalid_arguments.
func (r Request) Validate() error {
	if r.PageSize < 1 {
		return errors.InvalidArguments("page size must be at least 1, got %d", r.PageSize)
	}
	switch r.Direction {
	case DirectionNext, DirectionPrevious:
		return nil
	default:
		return errors.NotSupported("unsupported cursor direction %q", r.Direction)
	}
}

// Page is one page of results. NextCursor is empty when no more data exists
// in the traversal direction.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// HasMore reports whether another page may follow
func (p Page[T]) HasMore() bool {
	return p.NextCursor != ""
}

// SlotRange bounds the slot walk. First is the lowest slot coordinate in
// use, Last the highest (derived from the scope's current sequence bound).
type SlotRange struct {
	First int64
	Last  int64
}

// SinglePartition is the range for partitions that are not slot-sharded
var SinglePartition = SlotRange{First: 0, Last: 0}

// SlotFetch reads up to limit items from one slot, resuming exclusively
// after the given key ("" means the slot edge), ordered by the request
// direction.
type SlotFetch[T any] func(ctx context.Context, slot int64, after string, limit int) ([]T, error)

// PaginateSlots runs the slot walk: fetch pageSize+1 from the start slot,
// spill to adjacent slots inside the range until the page fills or slots
// exhaust. The returned cursor is the key of the last item when more data
// may follow, empty otherwise.
func PaginateSlots[T any](
	ctx context.Context,
	req Request,
	slots SlotRange,
	startSlot int64,
	keyOf func(T) string,
	fetch SlotFetch[T],
) (Page[T], error) {
	if err := req.Validate(); err != nil {
		return Page[T]{}, err
	}
	if startSlot < slots.First || startSlot > slots.Last {
		return Page[T]{}, errors.InvalidCursor("cursor slot %d outside range [%d, %d]", startSlot, slots.First, slots.Last)
	}

	items := make([]T, 0, req.PageSize)
	slot := startSlot
	after := req.Cursor

	for {
		if err := ctx.Err(); err != nil {
			return Page[T]{}, err
		}

		need := req.PageSize - len(items)
		got, err := fetch(ctx, slot, after, need+1)
		if err != nil {
			return Page[T]{}, err
		}

		if len(got) > need {
			// Extra row seen: page is full and this slot holds more
			items = append(items, got[:need]...)
			return Page[T]{
				Items:      items,
				NextCursor: keyOf(items[len(items)-1]),
			}, nil
		}
		items = append(items, got...)

		next, ok := advance(req.Direction, slot, slots)
		if !ok {
			// Slots exhausted: no more data in this direction
			return Page[T]{Items: items}, nil
		}
		slot = next
		after = ""

		if len(items) == req.PageSize {
			// Page filled exactly at a slot boundary; later slots may
			// still hold data, so hand back a resumable cursor
			return Page[T]{
				Items:      items,
				NextCursor: keyOf(items[len(items)-1]),
			}, nil
		}
	}
}

// Paginate walks a single partition that is not slot-sharded
func Paginate[T any](
	ctx context.Context,
	req Request,
	keyOf func(T) string,
	fetch func(ctx context.Context, after string, limit int) ([]T, error),
) (Page[T], error) {
	return PaginateSlots(ctx, req, SinglePartition, 0, keyOf,
		func(ctx context.Context, _ int64, after string, limit int) ([]T, error) {
			return fetch(ctx, after, limit)
		})
}

func advance(dir Direction, slot int64, slots SlotRange) (int64, bool) {
	switch dir {
	case DirectionNext:
		if slot+1 > slots.Last {
			return 0, false
		}
		return slot + 1, true
	default:
		if slot-1 < slots.First {
			return 0, false
		}
		return slot - 1, true
	}
}
