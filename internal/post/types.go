// Package post manages authored content inside spaces. A post row lives in a
// slot-sharded partition of its space; a reverse row keyed by post id alone
// makes point lookups possible without knowing the slot. Removal is a status
// flip, never a physical delete, so slots and audit history stay stable.
package post

import (
	"strconv"
	"time"

	"github.com/feedgrid/feedgrid/internal/store"
)

// Status of a post
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusDeleted Status = "DELETED"
)

const (
	// postTable holds post rows partitioned by space and slot
	postTable = "post_v1"

	// reverseTable maps a post id back to its space and slot
	reverseTable = "post_reverse_v1"
)

// Post is one authored entry in a space
type Post struct {
	TenantID    string `json:"tenantId"`
	ComponentID string `json:"componentId"`
	SpaceID     string `json:"spaceId"`
	PostID      int64  `json:"postId"`
	Slot        int64  `json:"slot"`
	OwnerID     string `json:"ownerId"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Status      Status `json:"status"`

	// FeedEventID is the id of the event that fanned this post out, kept so
	// removal can withdraw the delivered feed copies later
	FeedEventID int64     `json:"feedEventId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Draft is the caller-supplied content of a new or modified post
type Draft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func postKey(p Post) store.Key {
	return store.Key{
		Partition:  []string{p.TenantID, p.ComponentID, p.SpaceID, strconv.FormatInt(p.Slot, 10)},
		Clustering: []string{store.EncodeInt64(p.PostID)},
	}
}

func reverseKey(tenantID, componentID string, postID int64) store.Key {
	return store.Key{
		Partition:  []string{tenantID, componentID},
		Clustering: []string{store.EncodeInt64(postID)},
	}
}

func postColumns(p Post) map[string]string {
	return map[string]string{
		"owner_id":      p.OwnerID,
		"title":         p.Title,
		"content":       p.Content,
		"status":        string(p.Status),
		"feed_event_id": strconv.FormatInt(p.FeedEventID, 10),
		"created_at":    p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":    p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func reverseColumns(p Post) map[string]string {
	return map[string]string{
		"space_id": p.SpaceID,
		"slot":     strconv.FormatInt(p.Slot, 10),
		"owner_id": p.OwnerID,
		"status":   string(p.Status),
	}
}

func postFromRow(tenantID, componentID, spaceID string, slot, postID int64, columns map[string]string) Post {
	feedEventID, _ := strconv.ParseInt(columns["feed_event_id"], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, columns["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, columns["updated_at"])

	return Post{
		TenantID:    tenantID,
		ComponentID: componentID,
		SpaceID:     spaceID,
		PostID:      postID,
		Slot:        slot,
		OwnerID:     columns["owner_id"],
		Title:       columns["title"],
		Content:     columns["content"],
		Status:      Status(columns["status"]),
		FeedEventID: feedEventID,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}
