package cache

import (
	"fmt"
	"time"
)

// Type identifies a cached entity family. Each type carries its own TTL pair
// so hot, frequently-edited entities can expire faster than stable ones.
type Type string

const (
	// TypeComponent caches component registrations
	TypeComponent Type = "component"

	// TypePost caches post payloads
	TypePost Type = "post"
)

// TTLs holds the local and global tier expirations for a cache type. The
// local TTL never exceeds the global one, so a node-local copy can never
// outlive the shared tier it was populated from.
type TTLs struct {
	Local  time.Duration
	Global time.Duration
}

var typeTTLs = map[Type]TTLs{
	TypeComponent: {Local: 3 * time.Minute, Global: 30 * time.Minute},
	TypePost:      {Local: 1 * time.Minute, Global: 5 * time.Minute},
}

// TTLsFor returns the TTL pair for a cache type
func TTLsFor(t Type) (TTLs, error) {
	ttls, ok := typeTTLs[t]
	if !ok {
		return TTLs{}, fmt.Errorf("unknown cache type: %s", t)
	}
	return ttls, nil
}

// Strategy selects which tiers an eviction touches
type Strategy string

const (
	// StrategyLocal evicts only this node's in-process tier
	StrategyLocal Strategy = "LOCAL"

	// StrategyGlobal evicts the shared tier and broadcasts an invalidation
	// so every node drops its local copy
	StrategyGlobal Strategy = "GLOBAL"
)

// EvictMessage is the bus payload broadcast on a global eviction
type EvictMessage struct {
	Type Type   `json:"type"`
	Key  string `json:"key"`
}

// storageKey builds the shared-tier key for a cache entry
func storageKey(t Type, key string) string {
	return fmt.Sprintf("feedgrid:cache:%s:%s", t, key)
}
