package models

// ErrorDetail carries the machine-readable code and human-readable message
// of a surfaced error
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps an error for the wire
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ComponentResponse represents one component registration
type ComponentResponse struct {
	TenantID    string `json:"tenant_id"`
	ComponentID string `json:"component_id"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// ComponentListResponse represents list components response
type ComponentListResponse struct {
	Components []ComponentResponse `json:"components"`
}

// SubscriptionResponse represents one subscription edge
type SubscriptionResponse struct {
	TargetID     string `json:"target_id"`
	SubscriberID string `json:"subscriber_id"`
	Slot         int64  `json:"slot"`
	Alarm        bool   `json:"alarm"`
	CreatedAt    string `json:"created_at"`
}

// SubscriptionPageResponse is one page of subscription edges
type SubscriptionPageResponse struct {
	Items      []SubscriptionResponse `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// SubscriberCountResponse carries the eventually-consistent counter
type SubscriberCountResponse struct {
	TargetID string `json:"target_id"`
	Count    int64  `json:"count"`
}

// IsSubscriberResponse reports edge membership
type IsSubscriberResponse struct {
	TargetID     string `json:"target_id"`
	SubscriberID string `json:"subscriber_id"`
	Subscribed   bool   `json:"subscribed"`
}

// PostResponse represents one post
type PostResponse struct {
	PostID    int64  `json:"post_id"`
	SpaceID   string `json:"space_id"`
	OwnerID   string `json:"owner_id"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// PostPageResponse is one page of posts
type PostPageResponse struct {
	Items      []PostResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// FeedEntryResponse represents one delivered feed entry
type FeedEntryResponse struct {
	EventID   int64       `json:"event_id"`
	Resource  string      `json:"resource"`
	Action    string      `json:"action"`
	SourceID  string      `json:"source_id"`
	Payload   interface{} `json:"payload,omitempty"`
	CreatedAt string      `json:"created_at"`
}

// FeedPageResponse is one page of feed entries
type FeedPageResponse struct {
	Items      []FeedEntryResponse `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}
