package subscription

import (
	"strconv"
	"time"

	"github.com/feedgrid/feedgrid/internal/distribution"
	"github.com/feedgrid/feedgrid/internal/store"
)

// Status of a subscription edge. Unsubscribing flips the reverse record to
// DELETED instead of deleting it, so the slot survives for re-subscribes.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusDeleted Status = "DELETED"
)

const (
	// forwardTable holds subscriber rows partitioned by target and slot
	forwardTable = "subscriber_v1"

	// reverseTable holds subscription rows partitioned by subscriber
	reverseTable = "subscription_v1"

	// distributedTable spreads a target's subscribers over hash buckets
	// for scans that must not hammer one hot partition
	distributedTable = "subscriber_distributed_v1"

	// counterTable holds the per-target subscriber counter
	counterTable = "subscriber_counter_v1"
)

// Record is one subscription edge
type Record struct {
	TenantID     string
	ComponentID  string
	TargetID     string
	SubscriberID string
	Slot         int64
	Status       Status
	Alarm        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func forwardKey(rec Record) store.Key {
	return store.Key{
		Partition:  []string{rec.TenantID, rec.ComponentID, rec.TargetID, strconv.FormatInt(rec.Slot, 10)},
		Clustering: []string{rec.SubscriberID},
	}
}

func reverseKey(tenantID, componentID, subscriberID, targetID string) store.Key {
	return store.Key{
		Partition:  []string{tenantID, componentID, subscriberID},
		Clustering: []string{targetID},
	}
}

func distributedKey(rec Record) store.Key {
	return store.Key{
		Partition:  []string{rec.TenantID, rec.ComponentID, rec.TargetID, distribution.MakeKey(rec.SubscriberID).String()},
		Clustering: []string{rec.SubscriberID},
	}
}

func counterKey(tenantID, componentID, targetID string) store.Key {
	return store.Key{
		Partition:  []string{tenantID, componentID, targetID},
		Clustering: []string{"subscribers"},
	}
}

func recordColumns(rec Record) map[string]string {
	return map[string]string{
		"status":     string(rec.Status),
		"slot":       strconv.FormatInt(rec.Slot, 10),
		"alarm":      strconv.FormatBool(rec.Alarm),
		"created_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func recordFromRow(tenantID, componentID, targetID, subscriberID string, columns map[string]string) Record {
	slot, _ := strconv.ParseInt(columns["slot"], 10, 64)
	alarm, _ := strconv.ParseBool(columns["alarm"])
	createdAt, _ := time.Parse(time.RFC3339Nano, columns["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, columns["updated_at"])

	return Record{
		TenantID:     tenantID,
		ComponentID:  componentID,
		TargetID:     targetID,
		SubscriberID: subscriberID,
		Slot:         slot,
		Status:       Status(columns["status"]),
		Alarm:        alarm,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
}
