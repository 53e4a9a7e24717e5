package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedgrid/feedgrid/internal/logging"
	"github.com/feedgrid/feedgrid/internal/queue"
	"github.com/feedgrid/feedgrid/internal/utils"
)

// capturingPublisher records published messages for assertions
type capturingPublisher struct {
	mu       sync.Mutex
	messages []struct {
		Topic string
		Key   string
		Data  []byte
	}
}

func (p *capturingPublisher) Publish(ctx context.Context, topic, key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, struct {
		Topic string
		Key   string
		Data  []byte
	}{topic, key, data})
	return nil
}

func (p *capturingPublisher) PublishBatch(ctx context.Context, messages []queue.BatchMessage) (int, error) {
	for _, msg := range messages {
		if err := p.Publish(ctx, msg.Topic, msg.Key, msg.Data); err != nil {
			return 0, err
		}
	}
	return len(messages), nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func (p *capturingPublisher) last() (string, string, []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.messages[len(p.messages)-1]
	return m.Topic, m.Key, m.Data
}

func testManager(t *testing.T) (*Manager, *capturingPublisher) {
	t.Helper()

	local := NewLocalCache()
	t.Cleanup(local.Stop)

	publisher := &capturingPublisher{}
	logger := logging.NewWithWriter(io.Discard, zerolog.ErrorLevel)

	return NewManager(local, NewMemoryGlobal(), publisher, logger), publisher
}

func TestTTLsFor(t *testing.T) {
	for _, cacheType := range []Type{TypeComponent, TypePost} {
		ttls, err := TTLsFor(cacheType)
		if err != nil {
			t.Fatalf("TTLsFor(%s) failed: %v", cacheType, err)
		}
		if ttls.Local > ttls.Global {
			t.Errorf("%s: local TTL %v exceeds global TTL %v", cacheType, ttls.Local, ttls.Global)
		}
	}

	if _, err := TTLsFor(Type("bogus")); err == nil {
		t.Error("Expected error for unknown cache type")
	}
}

func TestManager_GetOrLoad_LoadsOnce(t *testing.T) {
	m, _ := testManager(t)

	var loads atomic.Int32
	loader := func(ctx context.Context) ([]byte, error) {
		loads.Add(1)
		return []byte("component-payload"), nil
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		value, err := m.GetOrLoad(ctx, TypeComponent, "tenant-1:follow", loader)
		if err != nil {
			t.Fatalf("GetOrLoad failed: %v", err)
		}
		if string(value) != "component-payload" {
			t.Errorf("Unexpected value: %s", value)
		}
	}

	if loads.Load() != 1 {
		t.Errorf("Expected 1 load, got %d", loads.Load())
	}
}

func TestManager_GetOrLoad_GlobalHitPopulatesLocal(t *testing.T) {
	m, _ := testManager(t)

	ctx := context.Background()
	sk := storageKey(TypePost, "post-1")

	// Seed only the global tier, as if another node loaded it
	if err := m.global.Set(ctx, sk, []byte("from-global"), time.Minute); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	var loads atomic.Int32
	loader := func(ctx context.Context) ([]byte, error) {
		loads.Add(1)
		return []byte("from-loader"), nil
	}

	value, err := m.GetOrLoad(ctx, TypePost, "post-1", loader)
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	if string(value) != "from-global" {
		t.Errorf("Expected global value, got %s", value)
	}
	if loads.Load() != 0 {
		t.Errorf("Loader should not run on global hit, ran %d times", loads.Load())
	}

	// Local tier was populated by the global hit
	if _, ok := m.local.Get(sk); !ok {
		t.Error("Expected local tier to be populated after global hit")
	}
}

func TestManager_GetOrLoad_LoaderError(t *testing.T) {
	m, _ := testManager(t)

	sentinel := fmt.Errorf("store unavailable")
	_, err := m.GetOrLoad(context.Background(), TypePost, "post-x", func(ctx context.Context) ([]byte, error) {
		return nil, sentinel
	})
	if err != sentinel {
		t.Fatalf("Expected loader error, got %v", err)
	}
}

func TestManager_GetOrLoad_UnknownType(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.GetOrLoad(context.Background(), Type("bogus"), "k", func(ctx context.Context) ([]byte, error) {
		return []byte("v"), nil
	})
	if err == nil {
		t.Fatal("Expected error for unknown cache type")
	}
}

func TestManager_Evict_LocalOnly(t *testing.T) {
	m, publisher := testManager(t)

	ctx := context.Background()
	loader := func(ctx context.Context) ([]byte, error) {
		return []byte("v1"), nil
	}

	if _, err := m.GetOrLoad(ctx, TypePost, "post-2", loader); err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}

	if err := m.Evict(ctx, TypePost, "post-2", StrategyLocal); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}

	// Local gone, global still present, no broadcast
	sk := storageKey(TypePost, "post-2")
	if _, ok := m.local.Get(sk); ok {
		t.Error("Expected local entry to be evicted")
	}
	if _, found, _ := m.global.Get(ctx, sk); !found {
		t.Error("Local-only eviction must not touch the global tier")
	}
	if publisher.count() != 0 {
		t.Errorf("Local-only eviction must not broadcast, got %d messages", publisher.count())
	}
}

func TestManager_Evict_GlobalBroadcasts(t *testing.T) {
	m, publisher := testManager(t)

	ctx := context.Background()
	loader := func(ctx context.Context) ([]byte, error) {
		return []byte("v1"), nil
	}

	if _, err := m.GetOrLoad(ctx, TypeComponent, "tenant-1:follow", loader); err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}

	if err := m.Evict(ctx, TypeComponent, "tenant-1:follow", StrategyLocal, StrategyGlobal); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}

	sk := storageKey(TypeComponent, "tenant-1:follow")
	if _, found, _ := m.global.Get(ctx, sk); found {
		t.Error("Expected global entry to be evicted")
	}

	if publisher.count() != 1 {
		t.Fatalf("Expected 1 broadcast, got %d", publisher.count())
	}

	topic, key, data := publisher.last()
	if topic != utils.TopicCacheEvict {
		t.Errorf("Expected topic %s, got %s", utils.TopicCacheEvict, topic)
	}
	if key != "component:tenant-1:follow" {
		t.Errorf("Unexpected partition key: %s", key)
	}

	var msg EvictMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal broadcast: %v", err)
	}
	if msg.Type != TypeComponent || msg.Key != "tenant-1:follow" {
		t.Errorf("Unexpected message: %+v", msg)
	}
}

func TestManager_HandleEviction(t *testing.T) {
	m, _ := testManager(t)

	ctx := context.Background()
	loader := func(ctx context.Context) ([]byte, error) {
		return []byte("stale"), nil
	}

	if _, err := m.GetOrLoad(ctx, TypePost, "post-3", loader); err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}

	data, _ := json.Marshal(EvictMessage{Type: TypePost, Key: "post-3"})
	if err := m.HandleEviction(data); err != nil {
		t.Fatalf("HandleEviction failed: %v", err)
	}

	if _, ok := m.local.Get(storageKey(TypePost, "post-3")); ok {
		t.Error("Expected local entry to be evicted by broadcast")
	}

	// Global tier keeps the value; only the local copies are dropped
	if _, found, _ := m.global.Get(ctx, storageKey(TypePost, "post-3")); !found {
		t.Error("Broadcast eviction must not touch the global tier")
	}

	if err := m.HandleEviction([]byte("not json")); err == nil {
		t.Error("Expected error for malformed broadcast")
	}
}

func TestLocalCache_TTL(t *testing.T) {
	c := NewLocalCache()
	defer c.Stop()

	c.Set("k", []byte("v"), 30*time.Millisecond)

	if v, ok := c.Get("k"); !ok || string(v) != "v" {
		t.Fatal("Expected fresh entry to be readable")
	}

	time.Sleep(60 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("Expected entry to expire")
	}
}

func TestLocalCache_DeleteAndClear(t *testing.T) {
	c := NewLocalCache()
	defer c.Stop()

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Expected a to be deleted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("Expected b to survive")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after clear, got %d", c.Len())
	}
}
