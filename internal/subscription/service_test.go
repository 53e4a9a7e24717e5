package subscription

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedgrid/feedgrid/internal/config"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/event"
	"github.com/feedgrid/feedgrid/internal/lock"
	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/sequence"
	"github.com/feedgrid/feedgrid/internal/store"
)

type stubChecker struct {
	inactive map[string]error
}

func (c *stubChecker) EnsureActive(ctx context.Context, tenantID, componentID string) error {
	if err, ok := c.inactive[tenantID+":"+componentID]; ok {
		return err
	}
	return nil
}

type capturedEvent struct {
	Topic string
	Key   string
	Data  []byte
}

type capturingBus struct {
	events []capturedEvent
}

func (b *capturingBus) Publish(ctx context.Context, topic, key string, data []byte) error {
	b.events = append(b.events, capturedEvent{topic, key, data})
	return nil
}

func (b *capturingBus) PublishBatch(ctx context.Context, messages []queue.BatchMessage) (int, error) {
	for _, msg := range messages {
		_ = b.Publish(ctx, msg.Topic, msg.Key, msg.Data)
	}
	return len(messages), nil
}

func (b *capturingBus) Close() error { return nil }

type fixture struct {
	service *Service
	store   store.Store
	bus     *capturingBus
	checker *stubChecker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	memStore := store.NewMemory()
	logger := logging.NewWithWriter(io.Discard, zerolog.ErrorLevel)

	locks := lock.NewManager(lock.NewMemoryRepository(), config.LockConfig{
		TTL:         3 * time.Second,
		WaitTimeout: 3 * time.Second,
		RetryDelay:  10 * time.Millisecond,
	}, logger)

	bus := &capturingBus{}
	snowflake, err := sequence.NewSnowflake(1)
	if err != nil {
		t.Fatalf("Failed to create snowflake: %v", err)
	}

	checker := &stubChecker{inactive: map[string]error{}}
	events := event.NewPublisher(bus, event.NewHistory(memStore), logger)

	service := NewService(memStore, locks, checker, events, sequence.NewMemoryGenerator(), snowflake, logger)

	return &fixture{
		service: service,
		store:   memStore,
		bus:     bus,
		checker: checker,
	}
}

// waitForCounter polls until the fire-and-forget counter update lands
func waitForCounter(t *testing.T, f *fixture, tenantID, componentID, targetID string, want int64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := f.service.CountSubscribers(context.Background(), tenantID, componentID, targetID)
		if err != nil {
			t.Fatalf("CountSubscribers failed: %v", err)
		}
		if got == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	got, _ := f.service.CountSubscribers(context.Background(), tenantID, componentID, targetID)
	t.Fatalf("Counter never reached %d, last value %d", want, got)
}

func TestService_SubscribeUnsubscribe_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.Subscribe(ctx, "t1", "follow", "g1", "s1", SubscribeOptions{}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	active, err := f.service.IsSubscriber(ctx, "t1", "follow", "g1", "s1")
	if err != nil {
		t.Fatalf("IsSubscriber failed: %v", err)
	}
	if !active {
		t.Fatal("Expected edge to be ACTIVE after subscribe")
	}
	waitForCounter(t, f, "t1", "follow", "g1", 1)

	if len(f.bus.events) != 1 {
		t.Fatalf("Expected 1 subscribed event, got %d", len(f.bus.events))
	}
	if f.bus.events[0].Key != "subscription::g1::s1" {
		t.Errorf("Unexpected event key: %s", f.bus.events[0].Key)
	}

	if err := f.service.Unsubscribe(ctx, "t1", "follow", "g1", "s1"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	active, err = f.service.IsSubscriber(ctx, "t1", "follow", "g1", "s1")
	if err != nil {
		t.Fatalf("IsSubscriber failed: %v", err)
	}
	if active {
		t.Fatal("Expected edge to be inactive after unsubscribe")
	}
	waitForCounter(t, f, "t1", "follow", "g1", 0)

	if len(f.bus.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(f.bus.events))
	}

	// Forward row physically gone, reverse row kept as DELETED
	rec, err := f.service.reverseRecord(ctx, "t1", "follow", "s1", "g1")
	if err != nil {
		t.Fatalf("reverseRecord failed: %v", err)
	}
	if rec == nil || rec.Status != StatusDeleted {
		t.Errorf("Expected DELETED reverse record, got %+v", rec)
	}
	row, err := f.store.Find(ctx, forwardTable, forwardKey(*rec))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if row != nil {
		t.Error("Expected forward row to be deleted")
	}
}

func TestService_Subscribe_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.service.Subscribe(ctx, "t1", "follow", "g1", "s1", SubscribeOptions{}); err != nil {
			t.Fatalf("Subscribe %d failed: %v", i, err)
		}
	}

	// Only the first call counts or publishes
	waitForCounter(t, f, "t1", "follow", "g1", 1)
	time.Sleep(50 * time.Millisecond)
	waitForCounter(t, f, "t1", "follow", "g1", 1)
	if len(f.bus.events) != 1 {
		t.Errorf("Expected 1 event, got %d", len(f.bus.events))
	}
}

func TestService_Unsubscribe_UnknownEdge_NoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.Unsubscribe(ctx, "t1", "follow", "g1", "never-subscribed"); err != nil {
		t.Fatalf("Expected no-op, got %v", err)
	}
	if len(f.bus.events) != 0 {
		t.Errorf("No-op unsubscribe must not publish, got %d events", len(f.bus.events))
	}

	count, err := f.service.CountSubscribers(ctx, "t1", "follow", "g1")
	if err != nil {
		t.Fatalf("CountSubscribers failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected counter 0, got %d", count)
	}
}

func TestService_Resubscribe_ReusesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.Subscribe(ctx, "t1", "follow", "g1", "s1", SubscribeOptions{}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	first, _ := f.service.reverseRecord(ctx, "t1", "follow", "s1", "g1")

	if err := f.service.Unsubscribe(ctx, "t1", "follow", "g1", "s1"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := f.service.Subscribe(ctx, "t1", "follow", "g1", "s1", SubscribeOptions{}); err != nil {
		t.Fatalf("Re-subscribe failed: %v", err)
	}

	second, _ := f.service.reverseRecord(ctx, "t1", "follow", "s1", "g1")
	if second.Slot != first.Slot {
		t.Errorf("Expected slot reuse: first %d, second %d", first.Slot, second.Slot)
	}
	if second.Status != StatusActive {
		t.Errorf("Expected ACTIVE after re-subscribe, got %s", second.Status)
	}
}

func TestService_InactiveComponent(t *testing.T) {
	f := newFixture(t)
	f.checker.inactive["t1:follow"] = errors.NoPermission("component follow is disabled")

	err := f.service.Subscribe(context.Background(), "t1", "follow", "g1", "s1", SubscribeOptions{})
	if errors.CodeOf(err) != errors.CodeNoPermission {
		t.Fatalf("Expected no_permission, got %v", err)
	}

	err = f.service.Unsubscribe(context.Background(), "t1", "follow", "g1", "s1")
	if errors.CodeOf(err) != errors.CodeNoPermission {
		t.Fatalf("Expected no_permission, got %v", err)
	}
}

func subscribeMany(t *testing.T, f *fixture, tenantID, componentID, targetID string, n int) []string {
	t.Helper()

	ctx := context.Background()
	subscribers := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%03d", i)
		if err := f.service.Subscribe(ctx, tenantID, componentID, targetID, id, SubscribeOptions{}); err != nil {
			t.Fatalf("Subscribe %s failed: %v", id, err)
		}
		subscribers = append(subscribers, id)
	}
	return subscribers
}
