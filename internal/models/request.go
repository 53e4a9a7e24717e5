// Package models defines the request and response DTOs of the HTTP surface.
// Core services take plain identifiers; these types exist only at the edge.
package models

// CreateComponentRequest registers a component under a tenant
type CreateComponentRequest struct {
	ComponentID string `json:"component_id"`
	Description string `json:"description,omitempty"`
}

// UpdateComponentRequest changes a component's description and/or status
type UpdateComponentRequest struct {
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// SubscribeRequest creates a subscription edge to the target in the path
type SubscribeRequest struct {
	SubscriberID string `json:"subscriber_id"`
	Alarm        bool   `json:"alarm,omitempty"`
}

// RegisterPostRequest creates a post in the space in the path
type RegisterPostRequest struct {
	OwnerID string `json:"owner_id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// ModifyPostRequest replaces a post's draft content. ActorID must match the
// post owner.
type ModifyPostRequest struct {
	ActorID string `json:"actor_id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// RemovePostRequest removes a post. ActorID must match the post owner.
type RemovePostRequest struct {
	ActorID string `json:"actor_id"`
}
