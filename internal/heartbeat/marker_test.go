package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testMarker(t *testing.T) (*Marker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewMarker(rdb), mr
}

func TestMarkerAbsenceFailsOpen(t *testing.T) {
	marker, _ := testMarker(t)
	dirty, err := marker.ChangedSince(context.Background(), "t1", time.Now())
	require.NoError(t, err)
	require.True(t, dirty)
}

func TestMarkerAnswersClean(t *testing.T) {
	marker, _ := testMarker(t)
	ctx := context.Background()
	touched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, marker.Touch(ctx, "t1", touched))

	dirty, err := marker.ChangedSince(ctx, "t1", touched.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, dirty)

	dirty, err = marker.ChangedSince(ctx, "t1", touched.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, dirty)
}

func TestMarkerIsScopedPerTenant(t *testing.T) {
	marker, _ := testMarker(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, marker.Touch(ctx, "t1", now))

	dirty, err := marker.ChangedSince(ctx, "t2", now)
	require.NoError(t, err)
	require.True(t, dirty)
}

func TestMarkerExpiry(t *testing.T) {
	marker, mr := testMarker(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, marker.Touch(ctx, "t1", now))
	require.True(t, mr.TTL(markerKey("t1")) > 0)

	mr.FastForward(markerTTL + time.Minute)

	dirty, err := marker.ChangedSince(ctx, "t1", now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, dirty)
}

func TestMarkerGarbageValueFailsOpen(t *testing.T) {
	marker, mr := testMarker(t)
	mr.Set(markerKey("t1"), "not-a-timestamp")

	dirty, err := marker.ChangedSince(context.Background(), "t1", time.Now())
	require.NoError(t, err)
	require.True(t, dirty)
}
