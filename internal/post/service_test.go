package post

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedgrid/feedgrid/internal/cache"
	"github.com/feedgrid/feedgrid/internal/config"
	"github.com/feedgrid/feedgrid/internal/cursor"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/event"
	"github.com/feedgrid/feedgrid/internal/lock"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/sequence"
	"github.com/feedgrid/feedgrid/internal/store"
	"github.com/feedgrid/feedgrid/internal/utils"
)

type stubChecker struct {
	err error
}

func (c stubChecker) EnsureActive(_ context.Context, _, _ string) error { return c.err }

type postFixture struct {
	service *Service
	store   *store.Memory
	local   *cache.LocalCache
	checker *stubChecker
}

func newPostFixture(t *testing.T) *postFixture {
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

	local := cache.NewLocalCache()
	t.Cleanup(local.Stop)
	cacheManager := cache.NewManager(local, cache.NewMemoryGlobal(), bus, logger)

	events := event.NewPublisher(bus, event.NewHistory(memStore), logger)
	checker := &stubChecker{}

	service := NewService(
		memStore, locks, checker, cacheManager, events,
		sequence.NewMemoryGenerator(), snowflake, logger)

	return &postFixture{service: service, store: memStore, local: local, checker: checker}
}

func TestRegisterAndGet(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	created, err := f.service.Register(ctx, "t1", "board", "space1", "alice", Draft{
		Title:   "hello",
		Content: "first post",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if created.PostID < sequence.MinID {
		t.Errorf("Expected a snowflake post id, got %d", created.PostID)
	}
	if created.Slot != 1 {
		t.Errorf("Expected first post in slot 1, got %d", created.Slot)
	}
	if created.Status != StatusActive {
		t.Errorf("Expected ACTIVE status, got %s", created.Status)
	}
	if created.FeedEventID < sequence.MinID {
		t.Errorf("Expected feed event id recorded, got %d", created.FeedEventID)
	}

	got, err := f.service.Get(ctx, "t1", "board", created.PostID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "hello" || got.Content != "first post" || got.OwnerID != "alice" {
		t.Errorf("Unexpected post: %+v", got)
	}
	if got.SpaceID != "space1" {
		t.Errorf("Expected space1, got %s", got.SpaceID)
	}
}

func TestRegister_RejectsEmptyContent(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.service.Register(context.Background(), "t1", "board", "space1", "alice", Draft{})
	if errors.CodeOf(err) != errors.CodeInvalidArguments {
		t.Fatalf("Expected invalid_arguments, got %v", err)
	}
}

func TestRegister_InactiveComponent(t *testing.T) {
	f := newPostFixture(t)
	f.checker.err = errors.NoPermission("component disabled")

	_, err := f.service.Register(context.Background(), "t1", "board", "space1", "alice", Draft{Content: "x"})
	if errors.CodeOf(err) != errors.CodeNoPermission {
		t.Fatalf("Expected no_permission, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.service.Get(context.Background(), "t1", "board", 123456789)
	if !errors.IsNotFound(err) {
		t.Fatalf("Expected not_found, got %v", err)
	}
}

func TestModify_OwnerOnly(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	created, err := f.service.Register(ctx, "t1", "board", "space1", "alice", Draft{Content: "v1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err = f.service.Modify(ctx, "t1", "board", created.PostID, "mallory", Draft{Content: "hacked"})
	if errors.CodeOf(err) != errors.CodeNoPermission {
		t.Fatalf("Expected no_permission for non-owner, got %v", err)
	}

	modified, err := f.service.Modify(ctx, "t1", "board", created.PostID, "alice", Draft{Title: "t2", Content: "v2"})
	if err != nil {
		t.Fatalf("Modify failed: %v", err)
	}
	if modified.Content != "v2" || modified.Title != "t2" {
		t.Errorf("Unexpected modified post: %+v", modified)
	}

	// Modification must invalidate the cached copy
	got, err := f.service.Get(ctx, "t1", "board", created.PostID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != "v2" {
		t.Errorf("Expected fresh content v2 after modify, got %s", got.Content)
	}
}

func TestModify_MissingPost(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.service.Modify(context.Background(), "t1", "board", 42, "alice", Draft{Content: "x"})
	if !errors.IsNotFound(err) {
		t.Fatalf("Expected not_found, got %v", err)
	}
}

func TestRemove_FlipsStatusAndIsIdempotent(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	created, err := f.service.Register(ctx, "t1", "board", "space1", "alice", Draft{Content: "v1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.service.Remove(ctx, "t1", "board", created.PostID, "bob"); errors.CodeOf(err) != errors.CodeNoPermission {
		t.Fatalf("Expected no_permission for non-owner remove, got %v", err)
	}

	if err := f.service.Remove(ctx, "t1", "board", created.PostID, "alice"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	// Second remove is a no-op
	if err := f.service.Remove(ctx, "t1", "board", created.PostID, "alice"); err != nil {
		t.Fatalf("Repeated remove failed: %v", err)
	}

	row, err := f.store.Find(ctx, reverseTable, reverseKey("t1", "board", created.PostID))
	if err != nil {
		t.Fatalf("Find reverse row failed: %v", err)
	}
	if row == nil || row.Columns["status"] != string(StatusDeleted) {
		t.Errorf("Expected reverse row flipped to DELETED, got %+v", row)
	}

	if _, err := f.service.Get(ctx, "t1", "board", created.PostID); !errors.IsNotFound(err) {
		t.Errorf("Expected not_found reading a removed post, got %v", err)
	}

	if err := f.service.Remove(ctx, "t1", "board", 999, "alice"); !errors.IsNotFound(err) {
		t.Errorf("Expected not_found for unknown post, got %v", err)
	}
}

func TestListBySpace_SkipsRemovedAndPages(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 9; i++ {
		created, err := f.service.Register(ctx, "t1", "board", "space1", "alice", Draft{
			Content: fmt.Sprintf("post %d", i),
		})
		if err != nil {
			t.Fatalf("Register %d failed: %v", i, err)
		}
		ids = append(ids, created.PostID)
	}
	if err := f.service.Remove(ctx, "t1", "board", ids[4], "alice"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	var got []int64
	cur := ""
	for {
		page, err := f.service.ListBySpace(ctx, "t1", "board", "space1", cursor.Request{
			Cursor:    cur,
			PageSize:  3,
			Direction: cursor.DirectionNext,
		})
		if err != nil {
			t.Fatalf("ListBySpace failed: %v", err)
		}
		for _, p := range page.Items {
			got = append(got, p.PostID)
		}
		if !page.HasMore() {
			break
		}
		cur = page.NextCursor
	}

	var expected []int64
	for i, id := range ids {
		if i == 4 {
			continue
		}
		expected = append(expected, id)
	}
	if fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestListBySpace_Previous(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		created, err := f.service.Register(ctx, "t1", "board", "space1", "alice", Draft{
			Content: fmt.Sprintf("post %d", i),
		})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		ids = append(ids, created.PostID)
	}

	page, err := f.service.ListBySpace(ctx, "t1", "board", "space1", cursor.Request{
		PageSize:  10,
		Direction: cursor.DirectionPrevious,
	})
	if err != nil {
		t.Fatalf("ListBySpace failed: %v", err)
	}
	if len(page.Items) != len(ids) {
		t.Fatalf("Expected %d posts, got %d", len(ids), len(page.Items))
	}
	for i, p := range page.Items {
		expected := ids[len(ids)-1-i]
		if p.PostID != expected {
			t.Errorf("Position %d: expected %d, got %d", i, expected, p.PostID)
		}
	}
}

func TestListBySpace_InvalidCursor(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	_, err := f.service.ListBySpace(ctx, "t1", "board", "space1", cursor.Request{
		Cursor:    "garbage",
		PageSize:  5,
		Direction: cursor.DirectionNext,
	})
	if !errors.IsInvalidCursor(err) {
		t.Fatalf("Expected invalid_cursor for malformed cursor, got %v", err)
	}

	// A well-formed cursor naming a post from another space is also invalid
	created, err := f.service.Register(ctx, "t1", "board", "other-space", "alice", Draft{Content: "x"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, err = f.service.ListBySpace(ctx, "t1", "board", "space1", cursor.Request{
		Cursor:    store.EncodeInt64(created.PostID),
		PageSize:  5,
		Direction: cursor.DirectionNext,
	})
	if !errors.IsInvalidCursor(err) {
		t.Fatalf("Expected invalid_cursor for cross-space cursor, got %v", err)
	}
}
