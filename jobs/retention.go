package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/foamcrew/foamcrew/internal/ledger"
	"github.com/foamcrew/foamcrew/internal/shared"
)

const (
	// TaskLedgerRetention prunes old material ledger rows nightly.
	TaskLedgerRetention = "ledger:retention"
	// TaskIdempotencyCleanup drops stale idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"

	// idempotencyRetention is how long a processed key keeps blocking
	// duplicate requests. Well past any client retry window.
	idempotencyRetention = 7 * 24 * time.Hour
)

// LedgerRetentionPayload carries the retention window for one prune run.
type LedgerRetentionPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewLedgerRetentionTask constructs the nightly prune task.
func NewLedgerRetentionTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerRetentionPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRetention, body, asynq.Queue(QueueDefault)), nil
}

// HandleLedgerRetentionTask removes material ledger rows older than the
// retention window. Variance history ages out; warehouse counts and
// lifetime totals are unaffected.
func HandleLedgerRetentionTask(repo *ledger.Repository, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerRetentionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			return asynq.SkipRetry
		}
		cutoff := time.Now().UTC().Add(-payload.Retention)
		removed, err := repo.PruneMaterialLog(ctx, cutoff)
		if err != nil {
			return err
		}
		logger.Info("material ledger pruned", "cutoff", cutoff.Format(time.RFC3339), "removed", removed)
		return nil
	}
}

// NewIdempotencyCleanupTask constructs the key cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}

// HandleIdempotencyCleanupTask drops idempotency keys past the retry
// window so the table stays small.
func HandleIdempotencyCleanupTask(store *shared.IdempotencyStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := store.Cleanup(ctx, idempotencyRetention); err != nil {
			return err
		}
		logger.Info("idempotency keys cleaned", "older_than", idempotencyRetention.String())
		return nil
	}
}
