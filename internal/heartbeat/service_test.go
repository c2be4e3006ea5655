package heartbeat

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foamcrew/foamcrew/internal/jobrecord"
)

// A clean marker must answer the poll by itself. The repositories are nil
// here, so any scan on the clean path would panic the test.
func TestDeltaCleanPathSkipsScans(t *testing.T) {
	marker, _ := testMarker(t)
	ctx := context.Background()
	touched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, marker.Touch(ctx, "t1", touched))

	svc := NewService(marker, nil, nil, nil, nil, slog.New(slog.DiscardHandler))
	delta, err := svc.Delta(ctx, "t1", touched.Add(time.Minute))
	require.NoError(t, err)

	require.Empty(t, delta.JobUpdates)
	require.NotNil(t, delta.JobUpdates)
	require.Empty(t, delta.Messages)
	require.NotNil(t, delta.Messages)
	require.Empty(t, delta.MaterialLogs)
	require.NotNil(t, delta.MaterialLogs)
	require.Nil(t, delta.Warehouse)
	require.Nil(t, delta.LifetimeUsage)
	require.NotEmpty(t, delta.ServerTime)
}

func TestRelevantJobs(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []jobrecord.Record{
		{ID: "stale", LastModified: "2026-03-01T10:00:00Z"},
		{ID: "modified", LastModified: "2026-03-01T13:00:00Z"},
		{ID: "running", ExecutionStatus: jobrecord.ExecutionInProgress, LastModified: "2026-02-01T00:00:00Z"},
		{ID: "started", Actuals: &jobrecord.Actuals{LastStartedAt: "2026-03-01T12:30:00Z"}},
		{ID: "unstamped"},
	}

	got := relevantJobs(recs, since)
	ids := make([]string, 0, len(got))
	for _, rec := range got {
		ids = append(ids, rec.ID)
	}
	require.Equal(t, []string{"modified", "running", "started"}, ids)
}

func TestRelevantJobsEmptyNotNil(t *testing.T) {
	got := relevantJobs(nil, time.Now())
	require.NotNil(t, got)
	require.Empty(t, got)
}
