package lock

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedgrid/feedgrid/internal/config"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/logging"
)

func testManager(t *testing.T, cfg config.LockConfig) *Manager {
	t.Helper()
	logger := logging.NewWithWriter(io.Discard, zerolog.ErrorLevel)
	return NewManager(NewMemoryRepository(), cfg, logger)
}

func defaultLockConfig() config.LockConfig {
	return config.LockConfig{
		TTL:         3 * time.Second,
		WaitTimeout: 3 * time.Second,
		RetryDelay:  10 * time.Millisecond,
	}
}

func TestLockKey(t *testing.T) {
	key := lockKey(TypeSubscribe, "tenant-1:follow:alice:bob")
	expected := "feedgrid:lock:subscribe:tenant-1:follow:alice:bob"
	if key != expected {
		t.Errorf("Expected %s, got %s", expected, key)
	}
}

func TestMemoryRepository_AcquireRelease(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	acquired, err := repo.AcquireIfAbsent(ctx, "k", "token-a", time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !acquired {
		t.Fatal("Expected first acquire to succeed")
	}

	// Second acquire with a different token must fail while held
	acquired, err = repo.AcquireIfAbsent(ctx, "k", "token-b", time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if acquired {
		t.Fatal("Expected second acquire to fail while lock held")
	}

	// Release with the wrong token is a no-op
	if err := repo.Release(ctx, "k", "token-b"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	acquired, _ = repo.AcquireIfAbsent(ctx, "k", "token-b", time.Second)
	if acquired {
		t.Fatal("Wrong-token release should not free the lock")
	}

	// Release with the owning token frees it
	if err := repo.Release(ctx, "k", "token-a"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	acquired, _ = repo.AcquireIfAbsent(ctx, "k", "token-b", time.Second)
	if !acquired {
		t.Fatal("Expected acquire to succeed after release")
	}
}

func TestMemoryRepository_TTLExpiry(t *testing.T) {
	repo := NewMemoryRepository()
	current := time.Now()
	repo.now = func() time.Time { return current }

	ctx := context.Background()

	acquired, _ := repo.AcquireIfAbsent(ctx, "k", "token-a", time.Second)
	if !acquired {
		t.Fatal("Expected acquire to succeed")
	}

	// Before expiry another owner is rejected
	acquired, _ = repo.AcquireIfAbsent(ctx, "k", "token-b", time.Second)
	if acquired {
		t.Fatal("Expected acquire to fail before expiry")
	}

	// After expiry the stale entry is replaced
	current = current.Add(2 * time.Second)
	acquired, _ = repo.AcquireIfAbsent(ctx, "k", "token-b", time.Second)
	if !acquired {
		t.Fatal("Expected acquire to succeed after expiry")
	}
}

func TestManager_WithLock_RunsFunction(t *testing.T) {
	m := testManager(t, defaultLockConfig())

	ran := false
	err := m.WithLock(context.Background(), TypeSubscribe, "edge-1", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock failed: %v", err)
	}
	if !ran {
		t.Fatal("Expected function to run")
	}
}

func TestManager_WithLock_PropagatesError(t *testing.T) {
	m := testManager(t, defaultLockConfig())

	sentinel := fmt.Errorf("inner failure")
	err := m.WithLock(context.Background(), TypeSubscribe, "edge-1", func(ctx context.Context) error {
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("Expected inner error, got %v", err)
	}

	// Lock must be released even when fn failed
	err = m.WithLock(context.Background(), TypeSubscribe, "edge-1", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Expected lock to be free after failed fn: %v", err)
	}
}

func TestManager_WithLock_Timeout(t *testing.T) {
	cfg := config.LockConfig{
		TTL:         5 * time.Second,
		WaitTimeout: 100 * time.Millisecond,
		RetryDelay:  10 * time.Millisecond,
	}
	m := testManager(t, cfg)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- m.WithLock(context.Background(), TypePost, "post-9", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started

	// Second caller cannot acquire within the wait timeout
	err := m.WithLock(context.Background(), TypePost, "post-9", func(ctx context.Context) error {
		return nil
	})
	if !errors.IsLockTimeout(err) {
		t.Fatalf("Expected lock timeout error, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Holder failed: %v", err)
	}
}

func TestManager_WithLock_DifferentKeysDoNotContend(t *testing.T) {
	cfg := config.LockConfig{
		TTL:         5 * time.Second,
		WaitTimeout: 100 * time.Millisecond,
		RetryDelay:  10 * time.Millisecond,
	}
	m := testManager(t, cfg)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- m.WithLock(context.Background(), TypeSubscribe, "edge-a", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started

	// Different key and different type proceed immediately
	if err := m.WithLock(context.Background(), TypeSubscribe, "edge-b", func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Different key should not contend: %v", err)
	}
	if err := m.WithLock(context.Background(), TypePost, "edge-a", func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Different lock type should not contend: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Holder failed: %v", err)
	}
}

func TestManager_WithLock_MutualExclusion(t *testing.T) {
	m := testManager(t, defaultLockConfig())

	var mu sync.Mutex
	counter := 0
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(context.Background(), TypeSubscribe, "shared", func(ctx context.Context) error {
				mu.Lock()
				inCritical++
				if inCritical > maxInCritical {
					maxInCritical = inCritical
				}
				counter++
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inCritical--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if counter != 10 {
		t.Errorf("Expected 10 executions, got %d", counter)
	}
	if maxInCritical != 1 {
		t.Errorf("Expected at most 1 goroutine in critical section, saw %d", maxInCritical)
	}
}

func TestManager_WithLock_ContextCancelled(t *testing.T) {
	cfg := config.LockConfig{
		TTL:         5 * time.Second,
		WaitTimeout: 5 * time.Second,
		RetryDelay:  10 * time.Millisecond,
	}
	m := testManager(t, cfg)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- m.WithLock(context.Background(), TypePost, "post-1", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := m.WithLock(ctx, TypePost, "post-1", func(ctx context.Context) error { return nil })
	if err != context.Canceled {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	close(release)
	<-done
}
