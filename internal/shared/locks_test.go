package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testLocker(t *testing.T) *StoreLocker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStoreLocker(rdb)
}

func TestWithLockRunsAndReleases(t *testing.T) {
	locker := testLocker(t)
	ctx := context.Background()

	ran := 0
	require.NoError(t, locker.WithLock(ctx, "t1", time.Second, func(context.Context) error {
		ran++
		return nil
	}))
	// Released: a second acquisition on the same tenant succeeds at once.
	require.NoError(t, locker.WithLock(ctx, "t1", 0, func(context.Context) error {
		ran++
		return nil
	}))
	require.Equal(t, 2, ran)
}

func TestWithLockHeldIsBusy(t *testing.T) {
	locker := testLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "t1", 0, func(inner context.Context) error {
		// Zero wait means a single attempt against the held lock.
		return locker.WithLock(inner, "t1", 0, func(context.Context) error {
			t.Fatal("nested acquisition must not run")
			return nil
		})
	})
	require.ErrorIs(t, err, ErrServerBusy)
}

func TestWithLockBoundedWaitOutlivesHolder(t *testing.T) {
	locker := testLocker(t)
	ctx := context.Background()

	held := make(chan struct{})
	holder := make(chan error, 1)
	go func() {
		holder <- locker.WithLock(ctx, "t1", 0, func(context.Context) error {
			close(held)
			time.Sleep(400 * time.Millisecond)
			return nil
		})
	}()
	<-held

	ran := false
	require.NoError(t, locker.WithLock(ctx, "t1", 5*time.Second, func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)
	require.NoError(t, <-holder)
}

func TestWithLockTenantsAreIndependent(t *testing.T) {
	locker := testLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "t1", 0, func(inner context.Context) error {
		return locker.WithLock(inner, "t2", 0, func(context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
}

func TestWithLockWithoutRedisRunsUnlocked(t *testing.T) {
	var locker *StoreLocker
	ran := false
	require.NoError(t, locker.WithLock(context.Background(), "t1", time.Second, func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)
}
