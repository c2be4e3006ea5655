package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/ledger"
	"github.com/foamcrew/foamcrew/internal/messages"
	"github.com/foamcrew/foamcrew/internal/warehouse"
)

// logScanLimit bounds the material log tail a delta may read.
const logScanLimit = 200

// Delta is the incremental update shipped to a polling client. Empty
// slices, never null, so clients can range without nil checks.
type Delta struct {
	JobUpdates    []jobrecord.Record      `json:"jobUpdates"`
	Messages      []messages.Message      `json:"messages"`
	Warehouse     *warehouse.Snapshot     `json:"warehouse,omitempty"`
	MaterialLogs  []ledger.MaterialEntry  `json:"materialLogs"`
	LifetimeUsage *warehouse.LifetimeUsage `json:"lifetimeUsage,omitempty"`
	ServerTime    string                  `json:"serverTime"`
}

// Service answers the poll.
type Service struct {
	marker    *Marker
	jobs      *jobrecord.Repository
	messages  *messages.Service
	ledger    *ledger.Repository
	warehouse *warehouse.Repository
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(marker *Marker, jobs *jobrecord.Repository, msgs *messages.Service, led *ledger.Repository, wh *warehouse.Repository, logger *slog.Logger) *Service {
	return &Service{
		marker:    marker,
		jobs:      jobs,
		messages:  msgs,
		ledger:    led,
		warehouse: wh,
		logger:    logger,
		now:       time.Now,
	}
}

// Delta returns what changed after since. The clean path answers from
// the marker alone; the dirty path performs the bounded scans.
func (s *Service) Delta(ctx context.Context, tenantID string, since time.Time) (Delta, error) {
	delta := Delta{
		JobUpdates:   []jobrecord.Record{},
		Messages:     []messages.Message{},
		MaterialLogs: []ledger.MaterialEntry{},
		ServerTime:   s.now().UTC().Format(time.RFC3339),
	}

	dirty, err := s.marker.ChangedSince(ctx, tenantID, since)
	if err != nil {
		s.logger.Warn("dirty marker unavailable, assuming changed",
			slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
	if !dirty {
		return delta, nil
	}

	all, err := s.jobs.All(ctx, tenantID)
	if err != nil {
		return delta, err
	}
	delta.JobUpdates = relevantJobs(all, since)

	if delta.Messages, err = s.messages.TailSince(ctx, tenantID, since); err != nil {
		return delta, err
	}
	if delta.Messages == nil {
		delta.Messages = []messages.Message{}
	}
	if delta.MaterialLogs, err = s.ledger.EntriesSince(ctx, tenantID, since, logScanLimit); err != nil {
		return delta, err
	}
	if delta.MaterialLogs == nil {
		delta.MaterialLogs = []ledger.MaterialEntry{}
	}

	snap, err := s.warehouse.Snapshot(ctx, tenantID)
	if err != nil {
		return delta, err
	}
	delta.Warehouse = &snap
	usage, err := s.warehouse.Lifetime(ctx, tenantID)
	if err != nil {
		return delta, err
	}
	delta.LifetimeUsage = &usage
	return delta, nil
}

// relevantJobs filters to records a client could care about after since:
// modified, started, or still running.
func relevantJobs(recs []jobrecord.Record, since time.Time) []jobrecord.Record {
	out := []jobrecord.Record{}
	for _, rec := range recs {
		if rec.ExecutionStatus == jobrecord.ExecutionInProgress {
			out = append(out, rec)
			continue
		}
		if t := jobrecord.ParseTime(rec.LastModified); t.After(since) {
			out = append(out, rec)
			continue
		}
		if rec.Actuals != nil {
			if t := jobrecord.ParseTime(rec.Actuals.LastStartedAt); t.After(since) {
				out = append(out, rec)
			}
		}
	}
	return out
}
