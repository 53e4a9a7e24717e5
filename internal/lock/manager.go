package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/feedgrid/feedgrid/internal/config"
	"github.com/feedgrid/feedgrid/internal/errors"
	"github.com/feedgrid/feedgrid/internal/logging"
)

// Manager runs functions under a distributed lock with bounded acquisition
type Manager struct {
	repo        Repository
	ttl         time.Duration
	waitTimeout time.Duration
	retryDelay  time.Duration
	logger      *logging.Logger
}

// NewManager creates a lock manager with the configured timings
func NewManager(repo Repository, cfg config.LockConfig, logger *logging.Logger) *Manager {
	return &Manager{
		repo:        repo,
		ttl:         cfg.TTL,
		waitTimeout: cfg.WaitTimeout,
		retryDelay:  cfg.RetryDelay,
		logger:      logger,
	}
}

// WithLock acquires the lock for (lockType, key), runs fn and releases the
// lock afterwards. Acquisition retries until the wait timeout elapses, then
// fails with a lock_acquisition_timeout error so callers surface contention
// instead of blocking indefinitely.
func (m *Manager) WithLock(ctx context.Context, lockType Type, key string, fn func(ctx context.Context) error) error {
	storageKey := lockKey(lockType, key)
	token := uuid.NewString()

	acquired, err := m.acquire(ctx, storageKey, token)
	if err != nil {
		return err
	}
	if !acquired {
		m.logger.Warn("Lock acquisition timed out",
			"lock_type", string(lockType),
			"key", key,
			"wait_timeout", m.waitTimeout)
		return errors.LockTimeout(key)
	}

	defer func() {
		// Release with a fresh context so cancellation of the caller's
		// context cannot leak the lock until TTL expiry
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := m.repo.Release(releaseCtx, storageKey, token); err != nil {
			m.logger.Warn("Failed to release lock", "key", storageKey, "error", err)
		}
	}()

	return fn(ctx)
}

// acquire polls AcquireIfAbsent until success, timeout or context cancellation
func (m *Manager) acquire(ctx context.Context, storageKey, token string) (bool, error) {
	deadline := time.Now().Add(m.waitTimeout)

	for {
		acquired, err := m.repo.AcquireIfAbsent(ctx, storageKey, token, m.ttl)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}

		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}
}
