// Package distribution maps monotonic ids and high-cardinality keys onto
// bounded shard coordinates. Slots spread rows by sequence; distribution keys
// spread rows by owner. Both are deterministic so a later lookup can
// recompute the partition without a separate index.
package distribution

import (
	"github.com/feedgrid/feedgrid/internal/errors"
)

const (
	// MinID is the lowest id a slot can be assigned from
	MinID = int64(1)

	// FirstSlotID is the first slot coordinate
	FirstSlotID = int64(1)

	// SubscriberSlotSize bounds how many subscribers share one slot partition
	SubscriberSlotSize = int64(10_000)

	// PostSlotSize bounds how many posts share one slot partition
	PostSlotSize = int64(10_000)
)

// AssignSlot maps an id onto its slot coordinate. Pure: the same
// id/firstSlotID/slotSize always yields the same slot.
func AssignSlot(id, firstSlotID, slotSize int64) (int64, error) {
	if id < MinID {
		return 0, errors.InvalidArguments("id %d must be at least %d", id, MinID)
	}
	if slotSize < 1 {
		return 0, errors.InvalidArguments("slot size %d must be at least 1", slotSize)
	}
	return (id-MinID)/slotSize + firstSlotID, nil
}

// SubscriberSlot assigns the slot for a subscriber sequence number
func SubscriberSlot(sequence int64) (int64, error) {
	return AssignSlot(sequence, FirstSlotID, SubscriberSlotSize)
}

// PostSlot assigns the slot for a post sequence number
func PostSlot(sequence int64) (int64, error) {
	return AssignSlot(sequence, FirstSlotID, PostSlotSize)
}

// LastSlot computes the highest slot in use for a scope whose current
// sequence bound is lastSequence. Returns FirstSlotID when nothing was
// issued yet, so pagination always has a non-empty slot range.
func LastSlot(lastSequence, slotSize int64) int64 {
	if lastSequence < MinID {
		return FirstSlotID
	}
	slot, err := AssignSlot(lastSequence, FirstSlotID, slotSize)
	if err != nil {
		return FirstSlotID
	}
	return slot
}
