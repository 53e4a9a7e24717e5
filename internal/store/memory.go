package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

const keySep = "\x1f"

// Memory implements Store in process memory. Rows of one partition are kept
// in clustering order; batch writes apply under one lock so they are atomic
// the way a single-partition wide-column batch is.
type Memory struct {
	mu       sync.RWMutex
	tables   map[string]map[string]map[string]Row // table -> partition -> clustering -> row
	counters map[string]int64
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		tables:   make(map[string]map[string]map[string]Row),
		counters: make(map[string]int64),
	}
}

func joinParts(parts []string) string {
	return strings.Join(parts, keySep)
}

func counterKey(table string, key Key) string {
	return table + keySep + joinParts(key.Partition) + keySep + joinParts(key.Clustering)
}

func copyRow(r Row) Row {
	cols := make(map[string]string, len(r.Columns))
	for k, v := range r.Columns {
		cols[k] = v
	}
	return Row{
		Key: Key{
			Partition:  append([]string(nil), r.Key.Partition...),
			Clustering: append([]string(nil), r.Key.Clustering...),
		},
		Columns: cols,
	}
}

// Find returns the row for the full key, or nil when absent
func (m *Memory) Find(_ context.Context, table string, key Key) (*Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	partitions, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	rows, ok := partitions[joinParts(key.Partition)]
	if !ok {
		return nil, nil
	}
	row, ok := rows[joinParts(key.Clustering)]
	if !ok {
		return nil, nil
	}
	out := copyRow(row)
	return &out, nil
}

// Scan returns up to opts.Limit rows of one partition in clustering order
func (m *Memory) Scan(_ context.Context, table string, partition []string, opts ScanOptions) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	partitions, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	rows, ok := partitions[joinParts(partition)]
	if !ok {
		return nil, nil
	}

	prefix := joinParts(opts.Prefix)
	var bound string
	if len(opts.StartAfter) > 0 {
		bound = joinParts(opts.StartAfter)
	}

	keys := make([]string, 0, len(rows))
	for ck := range rows {
		if prefix != "" && !strings.HasPrefix(ck, prefix+keySep) && ck != prefix {
			continue
		}
		if bound != "" {
			if opts.Order == Ascending && ck <= bound {
				continue
			}
			if opts.Order == Descending && ck >= bound {
				continue
			}
		}
		keys = append(keys, ck)
	}

	sort.Strings(keys)
	if opts.Order == Descending {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	limit := opts.Limit
	if limit <= 0 || limit > len(keys) {
		limit = len(keys)
	}

	out := make([]Row, 0, limit)
	for _, ck := range keys[:limit] {
		out = append(out, copyRow(rows[ck]))
	}
	return out, nil
}

// BatchWrite applies all mutations atomically
func (m *Memory) BatchWrite(_ context.Context, mutations []Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mut := range mutations {
		pk := joinParts(mut.Row.Key.Partition)
		ck := joinParts(mut.Row.Key.Clustering)

		switch mut.Kind {
		case Upsert:
			partitions, ok := m.tables[mut.Table]
			if !ok {
				partitions = make(map[string]map[string]Row)
				m.tables[mut.Table] = partitions
			}
			rows, ok := partitions[pk]
			if !ok {
				rows = make(map[string]Row)
				partitions[pk] = rows
			}
			rows[ck] = copyRow(mut.Row)

		case Delete:
			if partitions, ok := m.tables[mut.Table]; ok {
				if rows, ok := partitions[pk]; ok {
					delete(rows, ck)
					if len(rows) == 0 {
						delete(partitions, pk)
					}
				}
			}
		}
	}
	return nil
}

// Increment adjusts a counter column by delta, creating it at zero
func (m *Memory) Increment(_ context.Context, table string, key Key, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[counterKey(table, key)] += delta
	return nil
}

// Counter reads a counter column, zero when absent
func (m *Memory) Counter(_ context.Context, table string, key Key) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[counterKey(table, key)], nil
}

// Close releases backend resources
func (m *Memory) Close() error {
	return nil
}
