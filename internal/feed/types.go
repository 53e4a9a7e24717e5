// Package feed pushes denormalized event entries into every recipient's own
// feed partition and removes them again when the source disappears. Writes
// are batched and fanned out with bounded concurrency; removal walks the
// subscription distribution index so the full subscriber set is never loaded
// at once.
package feed

import (
	"encoding/json"
	"time"

	"github.com/feedgrid/feedgrid/internal/event"
	"github.com/feedgrid/feedgrid/internal/store"
)

const feedTable = "feed_v1"

// Entry is one delivered feed row. The partition is the recipient, the
// clustering key the event id, so a recipient's feed reads newest first.
type Entry struct {
	TenantID    string          `json:"tenantId"`
	ComponentID string          `json:"componentId"`
	OwnerID     string          `json:"ownerId"`
	EventID     int64           `json:"eventId"`
	Resource    event.Resource  `json:"resource"`
	Action      event.Action    `json:"action"`
	SourceID    string          `json:"sourceId"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Item is the event being fanned out, shared by every recipient of one
// Create call. SourceID names the entity the entry came from (post author,
// unfollowed target) so removal fanout can find delivered copies later.
type Item struct {
	EventID   int64
	Resource  event.Resource
	Action    event.Action
	SourceID  string
	Payload   json.RawMessage
	CreatedAt time.Time
}

func feedPartition(tenantID, componentID, ownerID string) []string {
	return []string{tenantID, componentID, ownerID}
}

func entryRow(tenantID, componentID, ownerID string, item Item) store.Row {
	return store.Row{
		Key: store.Key{
			Partition:  feedPartition(tenantID, componentID, ownerID),
			Clustering: []string{store.EncodeInt64(item.EventID)},
		},
		Columns: map[string]string{
			"resource":   string(item.Resource),
			"action":     string(item.Action),
			"source_id":  item.SourceID,
			"payload":    string(item.Payload),
			"created_at": item.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func entryFromRow(row store.Row) (Entry, error) {
	eventID, err := store.DecodeInt64(row.Key.Clustering[0])
	if err != nil {
		return Entry{}, err
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, row.Columns["created_at"])

	return Entry{
		TenantID:    row.Key.Partition[0],
		ComponentID: row.Key.Partition[1],
		OwnerID:     row.Key.Partition[2],
		EventID:     eventID,
		Resource:    event.Resource(row.Columns["resource"]),
		Action:      event.Action(row.Columns["action"]),
		SourceID:    row.Columns["source_id"],
		Payload:     json.RawMessage(row.Columns["payload"]),
		CreatedAt:   createdAt,
	}, nil
}
