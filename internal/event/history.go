package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/snappy"

	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/sequence"
	"github.com/feedgrid/feedgrid/internal/store"
)

// Status records the outcome of a publish attempt
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

const (
	historyTable = "event_history_v1"

	// historyBucket is the partition window. Event ids are snowflakes, so
	// the issue time falls out of the id and rows bucket into hourly
	// partitions that never grow unbounded.
	historyBucket = time.Hour

	// maxReasonLength truncates failure reasons before storage
	maxReasonLength = 500
)

// HistoryEntry is a stored publish attempt with its payload snapshot
type HistoryEntry struct {
	Record   Record
	Status   Status
	Reason   string
	StoredAt time.Time
}

// History persists one row per publish attempt. The payload snapshot is
// snappy-compressed; failed attempts carry the truncated failure reason so
// operators can replay them.
type History struct {
	store store.Store
}

// NewHistory creates an event history over the given store
func NewHistory(s store.Store) *History {
	return &History{store: s}
}

func historySlot(eventID int64) (int64, error) {
	if eventID < sequence.MinID {
		return 0, errors.InvalidArguments("event id %d below minimum", eventID)
	}
	timestamp, _, _ := sequence.Parse(eventID)
	return timestamp / historyBucket.Milliseconds(), nil
}

func historyKey(rec Record, slot int64) store.Key {
	return store.Key{
		Partition: []string{rec.TenantID, strconv.FormatInt(slot, 10)},
		Clustering: []string{
			store.EncodeInt64(rec.EventID),
			string(rec.Resource),
			rec.Component,
			string(rec.Action),
		},
	}
}

// Append stores the outcome of one publish attempt
func (h *History) Append(ctx context.Context, rec Record, status Status, reason string) error {
	slot, err := historySlot(rec.EventID)
	if err != nil {
		return err
	}

	if len(reason) > maxReasonLength {
		reason = reason[:maxReasonLength]
	}

	snapshot, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal event snapshot: %w", err)
	}

	row := store.Row{
		Key: historyKey(rec, slot),
		Columns: map[string]string{
			"status":    string(status),
			"reason":    reason,
			"event_key": rec.EventKey,
			"payload":   string(snappy.Encode(nil, snapshot)),
			"stored_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}

	return h.store.BatchWrite(ctx, []store.Mutation{
		{Table: historyTable, Kind: store.Upsert, Row: row},
	})
}

// ListBySlot returns entries of one (tenant, slot) partition newest first
func (h *History) ListBySlot(ctx context.Context, tenantID string, slot int64, limit int) ([]HistoryEntry, error) {
	rows, err := h.store.Scan(ctx, historyTable, []string{tenantID, strconv.FormatInt(slot, 10)}, store.ScanOptions{
		Order: store.Descending,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := decodeHistoryRow(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decodeHistoryRow(row store.Row) (HistoryEntry, error) {
	snapshot, err := snappy.Decode(nil, []byte(row.Columns["payload"]))
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("failed to decompress event snapshot: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(snapshot, &rec); err != nil {
		return HistoryEntry{}, fmt.Errorf("failed to unmarshal event snapshot: %w", err)
	}

	storedAt, _ := time.Parse(time.RFC3339Nano, row.Columns["stored_at"])

	return HistoryEntry{
		Record:   rec,
		Status:   Status(row.Columns["status"]),
		Reason:   row.Columns["reason"],
		StoredAt: storedAt,
	}, nil
}
