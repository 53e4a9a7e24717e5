package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedgrid/feedgrid/internal/config"
	"github.com/feedgrid/feedgrid/internal/cursor"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/event"
	"github.com/feedgrid/feedgrid/internal/lock"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/sequence"
	"github.com/feedgrid/feedgrid/internal/store"
	"github.com/feedgrid/feedgrid/internal/subscription"
	"github.com/feedgrid/feedgrid/internal/utils"
)

type activeChecker struct{}

func (activeChecker) EnsureActive(_ context.Context, _, _ string) error { return nil }

type feedFixture struct {
	service       *Service
	subscriptions *subscription.Service
	store         *store.Memory
	snowflake     *sequence.Snowflake
}

func newFeedFixture(t *testing.T) *feedFixture {
	t.Helper()

	logger := logging.NewWithWriter(io.Discard, zerolog.ErrorLevel)
	memStore := store.NewMemory()

	locks := lock.NewManager(lock.NewMemoryRepository(), config.LockConfig{
		TTL:         3 * time.Second,
		WaitTimeout: 3 * time.Second,
		RetryDelay:  10 * time.Millisecond,
	}, logger)

	snowflake, err := sequence.NewSnowflake(1)
	if err != nil {
		t.Fatalf("Failed to create snowflake: %v", err)
	}

	bus, err := queue.NewQueue(config.QueueConfig{Type: string(utils.QueueTypeMemory)})
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	t.Cleanup(func() { bus.Close() })

	events := event.NewPublisher(bus, event.NewHistory(memStore), logger)
	subscriptions := subscription.NewService(
		memStore, locks, activeChecker{}, events,
		sequence.NewMemoryGenerator(), snowflake, logger)

	service := NewService(memStore, config.FanoutConfig{
		BatchSize:   3,
		Parallelism: 4,
		FetchSize:   5,
	}, logger)

	return &feedFixture{
		service:       service,
		subscriptions: subscriptions,
		store:         memStore,
		snowflake:     snowflake,
	}
}

func (f *feedFixture) newEventID(t *testing.T) int64 {
	t.Helper()
	id, err := f.snowflake.NextID()
	if err != nil {
		t.Fatalf("Failed to generate event id: %v", err)
	}
	return id
}

func (f *feedFixture) listAll(t *testing.T, tenantID, componentID, ownerID string) []Entry {
	t.Helper()

	var out []Entry
	cur := ""
	for {
		page, err := f.service.ListFeeds(context.Background(), tenantID, componentID, ownerID, cursor.Request{
			Cursor:    cur,
			PageSize:  4,
			Direction: cursor.DirectionNext,
		})
		if err != nil {
			t.Fatalf("ListFeeds failed: %v", err)
		}
		out = append(out, page.Items...)
		if !page.HasMore() {
			return out
		}
		cur = page.NextCursor
	}
}

func TestCreate_DeliversToAllOwners(t *testing.T) {
	f := newFeedFixture(t)

	owners := make([]string, 10)
	for i := range owners {
		owners[i] = fmt.Sprintf("u%03d", i)
	}

	eventID := f.newEventID(t)
	item := Item{
		EventID:  eventID,
		Resource: event.ResourcePost,
		Action:   event.ActionCreated,
		SourceID: "author1",
		Payload:  json.RawMessage(`{"postId":"p1"}`),
	}
	if err := f.service.Create(context.Background(), "t1", "timeline", owners, item); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, owner := range owners {
		entries := f.listAll(t, "t1", "timeline", owner)
		if len(entries) != 1 {
			t.Fatalf("Owner %s: expected 1 entry, got %d", owner, len(entries))
		}
		got := entries[0]
		if got.EventID != eventID {
			t.Errorf("Owner %s: expected event id %d, got %d", owner, eventID, got.EventID)
		}
		if got.SourceID != "author1" {
			t.Errorf("Owner %s: expected source author1, got %s", owner, got.SourceID)
		}
		if string(got.Payload) != `{"postId":"p1"}` {
			t.Errorf("Owner %s: payload mismatch: %s", owner, got.Payload)
		}
		if got.CreatedAt.IsZero() {
			t.Errorf("Owner %s: created_at not set", owner)
		}
	}
}

func TestCreate_EmptyOwners(t *testing.T) {
	f := newFeedFixture(t)

	err := f.service.Create(context.Background(), "t1", "timeline", nil, Item{
		EventID: f.newEventID(t),
	})
	if err != nil {
		t.Fatalf("Create with no owners failed: %v", err)
	}
}

func TestCreate_RejectsBadEventID(t *testing.T) {
	f := newFeedFixture(t)

	err := f.service.Create(context.Background(), "t1", "timeline", []string{"u1"}, Item{EventID: 0})
	if errors.CodeOf(err) != errors.CodeInvalidArguments {
		t.Fatalf("Expected invalid_arguments, got %v", err)
	}
}

func TestListFeeds_NewestFirstWithCursor(t *testing.T) {
	f := newFeedFixture(t)
	ctx := context.Background()

	ids := make([]int64, 9)
	for i := range ids {
		ids[i] = f.newEventID(t)
		err := f.service.Create(ctx, "t1", "timeline", []string{"u1"}, Item{
			EventID:  ids[i],
			Resource: event.ResourcePost,
			Action:   event.ActionCreated,
			SourceID: "author1",
			Payload:  json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		})
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	entries := f.listAll(t, "t1", "timeline", "u1")
	if len(entries) != len(ids) {
		t.Fatalf("Expected %d entries, got %d", len(ids), len(entries))
	}
	for i, entry := range entries {
		expected := ids[len(ids)-1-i]
		if entry.EventID != expected {
			t.Errorf("Position %d: expected event id %d, got %d", i, expected, entry.EventID)
		}
	}
}

func TestListFeeds_PreviousWalksTowardNewer(t *testing.T) {
	f := newFeedFixture(t)
	ctx := context.Background()

	ids := make([]int64, 5)
	for i := range ids {
		ids[i] = f.newEventID(t)
		if err := f.service.Create(ctx, "t1", "timeline", []string{"u1"}, Item{
			EventID:  ids[i],
			Resource: event.ResourcePost,
			Action:   event.ActionCreated,
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	// Start from the oldest entry and walk back toward the newest
	page, err := f.service.ListFeeds(ctx, "t1", "timeline", "u1", cursor.Request{
		Cursor:    store.EncodeInt64(ids[0]),
		PageSize:  10,
		Direction: cursor.DirectionPrevious,
	})
	if err != nil {
		t.Fatalf("ListFeeds failed: %v", err)
	}
	if len(page.Items) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(page.Items))
	}
	for i, entry := range page.Items {
		if entry.EventID != ids[i+1] {
			t.Errorf("Position %d: expected event id %d, got %d", i, ids[i+1], entry.EventID)
		}
	}
	if page.HasMore() {
		t.Errorf("Expected final page, got cursor %q", page.NextCursor)
	}
}

func TestListFeeds_MalformedCursor(t *testing.T) {
	f := newFeedFixture(t)

	_, err := f.service.ListFeeds(context.Background(), "t1", "timeline", "u1", cursor.Request{
		Cursor:    "not-an-id",
		PageSize:  10,
		Direction: cursor.DirectionNext,
	})
	if !errors.IsInvalidCursor(err) {
		t.Fatalf("Expected invalid_cursor, got %v", err)
	}
}

func TestRemoveByTarget_DeletesDeliveredCopies(t *testing.T) {
	f := newFeedFixture(t)
	ctx := context.Background()

	subscribers := make([]string, 12)
	for i := range subscribers {
		subscribers[i] = fmt.Sprintf("s%03d", i)
		if err := f.subscriptions.Subscribe(ctx, "t1", "timeline", "author1", subscribers[i], subscription.SubscribeOptions{}); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
	}

	removedID := f.newEventID(t)
	keptID := f.newEventID(t)
	for _, id := range []int64{removedID, keptID} {
		if err := f.service.Create(ctx, "t1", "timeline", subscribers, Item{
			EventID:  id,
			Resource: event.ResourcePost,
			Action:   event.ActionCreated,
			SourceID: "author1",
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if err := f.service.RemoveByTarget(ctx, "t1", "timeline", "author1", removedID); err != nil {
		t.Fatalf("RemoveByTarget failed: %v", err)
	}

	for _, sub := range subscribers {
		entries := f.listAll(t, "t1", "timeline", sub)
		if len(entries) != 1 {
			t.Fatalf("Subscriber %s: expected 1 remaining entry, got %d", sub, len(entries))
		}
		if entries[0].EventID != keptID {
			t.Errorf("Subscriber %s: expected kept event %d, got %d", sub, keptID, entries[0].EventID)
		}
	}
}

func TestRemoveBySource_WithdrawsOnlyThatSource(t *testing.T) {
	f := newFeedFixture(t)
	ctx := context.Background()

	var fromB []int64
	for i := 0; i < 7; i++ {
		id := f.newEventID(t)
		source := "authorA"
		if i%2 == 1 {
			source = "authorB"
			fromB = append(fromB, id)
		}
		if err := f.service.Create(ctx, "t1", "timeline", []string{"u1"}, Item{
			EventID:  id,
			Resource: event.ResourcePost,
			Action:   event.ActionCreated,
			SourceID: source,
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if err := f.service.RemoveBySource(ctx, "t1", "timeline", "u1", "authorA"); err != nil {
		t.Fatalf("RemoveBySource failed: %v", err)
	}

	entries := f.listAll(t, "t1", "timeline", "u1")
	if len(entries) != len(fromB) {
		t.Fatalf("Expected %d entries from authorB, got %d", len(fromB), len(entries))
	}
	for _, entry := range entries {
		if entry.SourceID == "authorA" {
			t.Errorf("Entry %d from authorA survived removal", entry.EventID)
		}
	}
}

func TestCreate_Cancellation(t *testing.T) {
	f := newFeedFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	owners := make([]string, 50)
	for i := range owners {
		owners[i] = fmt.Sprintf("u%03d", i)
	}

	err := f.service.Create(ctx, "t1", "timeline", owners, Item{
		EventID: f.newEventID(t),
	})
	if err != context.Canceled {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
