// Package store defines the wide-column store contract the services persist
// through: point gets by full key, clustering-ordered range scans with
// limits, atomic batch writes and counter columns. Production deployments
// plug a real wide-column engine behind this interface; the memory backend
// serves tests and single-node development.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/feedgrid/feedgrid/internal/errors"
)

// Order controls clustering-key scan direction
type Order int

const (
	// Ascending scans clustering keys low to high
	Ascending Order = iota
	// Descending scans clustering keys high to low
	Descending
)

// Key identifies a row: partition key parts followed by clustering key parts.
// Partition keys always begin with tenant id, then component id, then a
// domain-specific slot or distribution key.
type Key struct {
	Partition  []string
	Clustering []string
}

// Row is a stored row
type Row struct {
	Key     Key
	Columns map[string]string
}

// MutationKind discriminates batch entries
type MutationKind int

const (
	// Upsert inserts or replaces a row
	Upsert MutationKind = iota
	// Delete removes a row
	Delete
)

// Mutation is one entry of an atomic batch write
type Mutation struct {
	Table string
	Kind  MutationKind
	Row   Row
}

// ScanOptions bounds a clustering range scan within one partition
type ScanOptions struct {
	// Prefix fixes leading clustering parts that every returned row must match
	Prefix []string

	// StartAfter resumes exclusively after this clustering bound: rows
	// strictly greater when Ascending, strictly smaller when Descending.
	// Empty means scan from the partition edge.
	StartAfter []string

	Order Order
	Limit int
}

// Store is the consumed wide-column contract
type Store interface {
	// Find returns the row for the full key, or nil when absent
	Find(ctx context.Context, table string, key Key) (*Row, error)

	// Scan returns up to opts.Limit rows of one partition in clustering order
	Scan(ctx context.Context, table string, partition []string, opts ScanOptions) ([]Row, error)

	// BatchWrite applies all mutations atomically
	BatchWrite(ctx context.Context, mutations []Mutation) error

	// Increment adjusts a counter column by delta, creating it at zero
	Increment(ctx context.Context, table string, key Key, delta int64) error

	// Counter reads a counter column, zero when absent
	Counter(ctx context.Context, table string, key Key) (int64, error)

	// Close releases backend resources
	Close() error
}

const int64Width = 20

// EncodeInt64 renders a non-negative id fixed-width so that lexicographic
// clustering order equals numeric order
func EncodeInt64(v int64) string {
	return fmt.Sprintf("%0*d", int64Width, v)
}

// DecodeInt64 parses a fixed-width encoded id
func DecodeInt64(s string) (int64, error) {
	if len(s) != int64Width {
		return 0, errors.InvalidArguments("malformed encoded id %q", s)
	}
	v, err := strconv.ParseInt(strings.TrimLeft(s, "0"), 10, 64)
	if err != nil {
		if strings.Trim(s, "0") == "" {
			return 0, nil
		}
		return 0, errors.InvalidArguments("malformed encoded id %q", s)
	}
	return v, nil
}
