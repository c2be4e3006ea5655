// Package heartbeat serves the cheap change poll. A per-tenant dirty
// marker in Redis answers "anything new?" without touching the record
// store; only a dirty tenant pays for the bounded delta scan.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// markerTTL bounds how long a marker can answer for a quiet tenant. An
// expired marker reads as dirty, which is safe, just not free.
const markerTTL = 6 * time.Hour

// Marker is the write-through dirty flag, one key per tenant.
type Marker struct {
	rdb *redis.Client
}

func NewMarker(rdb *redis.Client) *Marker {
	return &Marker{rdb: rdb}
}

func markerKey(tenantID string) string {
	return fmt.Sprintf("tenant:%s:dirty", tenantID)
}

// Touch refreshes the marker after a mutating action. A nil receiver is
// a no-op so callers can run without Redis in tests.
func (m *Marker) Touch(ctx context.Context, tenantID string, at time.Time) error {
	if m == nil {
		return nil
	}
	return m.rdb.Set(ctx, markerKey(tenantID), at.UTC().UnixMilli(), markerTTL).Err()
}

// ChangedSince reports whether the tenant mutated after since. A missing
// or unreadable marker reads as changed: the cache fails open, never
// closed, so an eviction cannot hide an update.
func (m *Marker) ChangedSince(ctx context.Context, tenantID string, since time.Time) (bool, error) {
	if m == nil {
		return true, nil
	}
	val, err := m.rdb.Get(ctx, markerKey(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return true, nil
	}
	return time.UnixMilli(ms).After(since), nil
}
