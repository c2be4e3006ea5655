package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// StoreLockKey builds the redis key guarding a tenant's record store.
func StoreLockKey(tenantID string) string {
	return fmt.Sprintf("tenant:%s:store:lock", tenantID)
}

const (
	lockTTL       = 90 * time.Second
	lockRetryStep = 250 * time.Millisecond
)

// StoreLocker serialises mutating actions against a tenant's record store.
// Acquisition waits up to the supplied bound; failure surfaces as
// ErrServerBusy so the client retries instead of queueing server side.
type StoreLocker struct {
	locker *redislock.Client
}

// NewStoreLocker constructs a StoreLocker over a redis client.
func NewStoreLocker(client *redis.Client) *StoreLocker {
	return &StoreLocker{locker: redislock.New(client)}
}

// WithLock runs fn while holding the tenant store lock. A wait of zero
// means a single acquisition attempt (best effort).
func (l *StoreLocker) WithLock(ctx context.Context, tenantID string, wait time.Duration, fn func(context.Context) error) error {
	if l == nil || l.locker == nil {
		// No redis configured: run unlocked rather than refuse writes.
		return fn(ctx)
	}
	var retry redislock.RetryStrategy
	if wait > 0 {
		retry = redislock.LimitRetry(redislock.LinearBackoff(lockRetryStep), int(wait/lockRetryStep))
	}
	lock, err := l.locker.Obtain(ctx, StoreLockKey(tenantID), lockTTL, &redislock.Options{RetryStrategy: retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrServerBusy
	}
	if err != nil {
		return fmt.Errorf("shared: obtain store lock: %w", err)
	}
	defer func() {
		_ = lock.Release(ctx)
	}()
	return fn(ctx)
}
