package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/feedgrid/feedgrid/internal/sequence"
)

// Action describes what happened to a resource
type Action string

const (
	ActionCreated  Action = "CREATED"
	ActionModified Action = "MODIFIED"
	ActionRemoved  Action = "REMOVED"
)

// Resource names the entity family an event is about
type Resource string

const (
	ResourceSubscription Resource = "subscriptions"
	ResourcePost         Resource = "posts"
	ResourceFeed         Resource = "feeds"
)

// Record is one resource change event. The event id is a snowflake, so ids
// order by creation time and the history bucket can be derived from the id
// alone.
type Record struct {
	EventID   int64           `json:"eventId"`
	TenantID  string          `json:"tenantId"`
	Resource  Resource        `json:"resource"`
	Component string          `json:"component"`
	Action    Action          `json:"action"`
	EventKey  string          `json:"eventKey"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewRecord builds a record with a freshly issued event id
func NewRecord(gen *sequence.Snowflake, tenantID string, resource Resource, component string, action Action, eventKey string, payload interface{}) (Record, error) {
	eventID, err := gen.NextID()
	if err != nil {
		return Record{}, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return Record{
		EventID:   eventID,
		TenantID:  tenantID,
		Resource:  resource,
		Component: component,
		Action:    action,
		EventKey:  eventKey,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Key builds an event key from its parts, e.g. "subscription::alice::bob"
func Key(parts ...string) string {
	key := ""
	for i, part := range parts {
		if i > 0 {
			key += "::"
		}
		key += part
	}
	return key
}
