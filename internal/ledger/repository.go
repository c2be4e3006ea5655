package ledger

import (
	"context"
	"time"

	"github.com/foamcrew/foamcrew/internal/store"
)

// Repository appends to and reads the audit ledgers.
type Repository struct {
	store *store.Store
}

func NewRepository(s *store.Store) *Repository {
	return &Repository{store: s}
}

// Append writes one material entry, ordered by the entry's own date.
func (r *Repository) Append(ctx context.Context, tenantID string, entry MaterialEntry) error {
	return r.store.Append(ctx, store.MaterialLog, tenantID, entry, materialFields(entry), entry.When(time.Time{}))
}

// AppendTx writes one material entry inside a reconciliation
// transaction, so the ledger line commits or rolls back with the stock
// change it describes.
func AppendTx(ctx context.Context, tx *store.Tx, tenantID string, entry MaterialEntry) error {
	return tx.Append(ctx, store.MaterialLog, tenantID, entry, materialFields(entry), entry.When(time.Time{}))
}

// Tail returns up to limit material entries, newest first.
func (r *Repository) Tail(ctx context.Context, tenantID string, limit int) ([]MaterialEntry, error) {
	docs, err := r.store.Tail(ctx, store.MaterialLog, tenantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]MaterialEntry, 0, len(docs))
	for _, doc := range docs {
		var entry MaterialEntry
		if store.Decode(doc, &entry) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// EntriesSince walks the tail newest-first and stops at the first entry
// at or before since, so a quiet ledger costs a handful of rows, not a
// full scan. Results come back oldest-first.
func (r *Repository) EntriesSince(ctx context.Context, tenantID string, since time.Time, scanLimit int) ([]MaterialEntry, error) {
	tail, err := r.Tail(ctx, tenantID, scanLimit)
	if err != nil {
		return nil, err
	}
	var fresh []MaterialEntry
	for _, entry := range tail {
		if !entry.When(time.Time{}).After(since) {
			break
		}
		fresh = append(fresh, entry)
	}
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	return fresh, nil
}

// AppendPnL writes one realised profit line.
func (r *Repository) AppendPnL(ctx context.Context, tenantID string, entry PnLEntry) error {
	return r.store.Append(ctx, store.ProfitAndLoss, tenantID, entry, store.Fields{
		"job_id":         entry.JobID,
		"customer_name":  entry.CustomerName,
		"invoice_number": entry.InvoiceNumber,
		"revenue":        entry.Revenue,
		"net_profit":     entry.NetProfit,
	}, time.Time{})
}

// PnLTail returns recent profit lines, newest first.
func (r *Repository) PnLTail(ctx context.Context, tenantID string, limit int) ([]PnLEntry, error) {
	docs, err := r.store.Tail(ctx, store.ProfitAndLoss, tenantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]PnLEntry, 0, len(docs))
	for _, doc := range docs {
		var entry PnLEntry
		if store.Decode(doc, &entry) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// AppendTime writes one crew clock line.
func (r *Repository) AppendTime(ctx context.Context, tenantID string, entry TimeEntry) error {
	fields := store.Fields{"job_id": entry.JobID, "tech_name": entry.TechName}
	if t, err := time.Parse(time.RFC3339, entry.StartTime); err == nil {
		fields["started_at"] = t
	}
	if t, err := time.Parse(time.RFC3339, entry.EndTime); err == nil {
		fields["ended_at"] = t
	}
	return r.store.Append(ctx, store.CrewTimeLog, tenantID, entry, fields, time.Time{})
}

// PruneMaterialLog removes material entries older than cutoff across all
// tenants.
func (r *Repository) PruneMaterialLog(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.store.Prune(ctx, store.MaterialLog, cutoff)
}

func materialFields(entry MaterialEntry) store.Fields {
	return store.Fields{
		"job_id":        entry.JobID,
		"customer_name": entry.CustomerName,
		"material_name": entry.MaterialName,
		"quantity":      entry.Quantity,
		"unit":          entry.Unit,
		"logged_by":     entry.LoggedBy,
	}
}
