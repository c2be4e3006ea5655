package jobrecord

import (
	"context"
	"fmt"

	"github.com/foamcrew/foamcrew/internal/shared"
	"github.com/foamcrew/foamcrew/internal/store"
)

// Repository persists job records in the Jobs collection.
type Repository struct {
	store *store.Store
}

// NewRepository constructs Repository.
func NewRepository(s *store.Store) *Repository {
	return &Repository{store: s}
}

// Get fetches one job record by id.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (Record, bool, error) {
	raw, found, err := r.store.Get(ctx, store.Jobs, tenantID, id)
	if err != nil || !found {
		return Record{}, false, err
	}
	var rec Record
	if !store.Decode(raw, &rec) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// All returns every readable job record.
func (r *Repository) All(ctx context.Context, tenantID string) ([]Record, error) {
	docs, err := r.store.Scan(ctx, store.Jobs, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(docs))
	for _, doc := range docs {
		var rec Record
		if store.Decode(doc, &rec) && rec.ID != "" {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Put upserts one job record together with its index columns.
func (r *Repository) Put(ctx context.Context, tenantID string, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("jobrecord: %w: missing id", shared.ErrValidation)
	}
	return r.store.Put(ctx, store.Jobs, tenantID, rec.ID, rec, indexFields(rec))
}

// ReplaceAll swaps the tenant's job set wholesale. Callers must run the
// merge first; replacement itself is destructive.
func (r *Repository) ReplaceAll(ctx context.Context, tenantID string, recs []Record) error {
	rows := make([]store.Row, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			continue
		}
		rows = append(rows, store.Row{Key: rec.ID, Doc: rec, Fields: indexFields(rec)})
	}
	return r.store.Replace(ctx, store.Jobs, tenantID, rows)
}

// Delete removes one job record.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	return r.store.Delete(ctx, store.Jobs, tenantID, id)
}

// Update applies fn to a freshly row-locked copy of the record and writes
// it back in the same transaction. fn returning false skips the write.
// This is the single-row compare-and-set used by the lock-free tier.
func (r *Repository) Update(ctx context.Context, tenantID, id string, fn func(*Record) (bool, error)) (Record, error) {
	var out Record
	err := r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		raw, found, err := tx.GetForUpdate(ctx, store.Jobs, tenantID, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("jobrecord: job %s: %w", id, shared.ErrNotFound)
		}
		var rec Record
		if !store.Decode(raw, &rec) {
			return fmt.Errorf("jobrecord: job %s: %w", id, shared.ErrNotFound)
		}
		changed, err := fn(&rec)
		if err != nil {
			return err
		}
		out = rec
		if !changed {
			return nil
		}
		return tx.Put(ctx, store.Jobs, tenantID, rec.ID, rec, indexFields(rec))
	})
	return out, err
}

// PutTx upserts one job record inside an existing transaction, so a
// record update can commit atomically with the stock movement it gates.
func PutTx(ctx context.Context, tx *store.Tx, tenantID string, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("jobrecord: %w: missing id", shared.ErrValidation)
	}
	return tx.Put(ctx, store.Jobs, tenantID, rec.ID, rec, indexFields(rec))
}

func indexFields(rec Record) store.Fields {
	fields := store.Fields{
		"customer_name":    rec.Customer.Name,
		"total_value":      rec.TotalValue,
		"status":           string(statusOrDraft(rec.Status)),
		"execution_status": string(execOrNotStarted(rec.ExecutionStatus)),
		"invoice_number":   rec.InvoiceNumber,
		"material_cost":    rec.MaterialCost(),
		"pdf_link":         rec.PDFLink,
	}
	if t := ParseTime(rec.LastModified); !t.IsZero() {
		fields["last_modified"] = t
	}
	return fields
}

func statusOrDraft(s Status) Status {
	if s == "" {
		return StatusDraft
	}
	return s
}

func execOrNotStarted(s ExecutionStatus) ExecutionStatus {
	if s == "" {
		return ExecutionNotStarted
	}
	return s
}
