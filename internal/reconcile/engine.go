// Package reconcile holds the inventory reconciliation engine: the
// point-of-sale deduction at work-order creation and the variance
// reconciliation at job completion. Both paths are idempotent through
// the boolean gates on the job record and commit stock changes, ledger
// lines, and the record itself in one transaction.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/ledger"
	"github.com/foamcrew/foamcrew/internal/store"
	"github.com/foamcrew/foamcrew/internal/warehouse"
)

const (
	openCellName   = "Open Cell Foam"
	closedCellName = "Closed Cell Foam"
	setsUnit       = "Sets"
)

// StockTx is the per-tenant transactional surface the engine mutates.
type StockTx interface {
	Counts(ctx context.Context) (warehouse.Counts, error)
	PutCounts(ctx context.Context, counts warehouse.Counts) error
	Lifetime(ctx context.Context) (warehouse.LifetimeUsage, error)
	PutLifetime(ctx context.Context, usage warehouse.LifetimeUsage) error
	Item(ctx context.Context, id string) (warehouse.Item, bool, error)
	PutItem(ctx context.Context, item warehouse.Item) error
	AppendLog(ctx context.Context, entry ledger.MaterialEntry) error
	PutJob(ctx context.Context, rec jobrecord.Record) error
}

// Engine applies stock movements and writes the matching ledger lines.
type Engine struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewEngine(s *store.Store, logger *slog.Logger) *Engine {
	return &Engine{store: s, logger: logger, now: time.Now, newID: uuid.NewString}
}

// DeductForWorkOrder subtracts the job's planned quantities from stock,
// snapshots them on the record, and sets the deduction gate. A job whose
// gate is already set is left untouched.
func (e *Engine) DeductForWorkOrder(ctx context.Context, tenantID string, rec *jobrecord.Record) error {
	if rec.InventoryDeducted {
		return nil
	}
	return e.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		return e.deduct(ctx, &pgStockTx{tx: tx, tenantID: tenantID}, tenantID, rec)
	})
}

// ReconcileCompletion settles a completed job against the warehouse:
// add back what the point-of-sale deduction took, remove what the crew
// actually used, log the variances, and bump the lifetime counters by
// actual usage. A job whose processed gate is already set is left
// untouched.
func (e *Engine) ReconcileCompletion(ctx context.Context, tenantID string, rec *jobrecord.Record) error {
	if rec.InventoryProcessed {
		return nil
	}
	return e.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		return e.reconcile(ctx, &pgStockTx{tx: tx, tenantID: tenantID}, tenantID, rec)
	})
}

func (e *Engine) deduct(ctx context.Context, tx StockTx, tenantID string, rec *jobrecord.Record) error {
	run := e.newRun(tx, tenantID, rec, "System (Work Order)", e.now().UTC().Format(time.RFC3339))

	counts, err := tx.Counts(ctx)
	if err != nil {
		return err
	}
	plannedOC := rec.Materials.OpenCellSets
	plannedCC := rec.Materials.ClosedCellSets
	if plannedOC > 0 {
		prev := counts.OpenCellSets
		counts.OpenCellSets -= plannedOC
		if err := run.log(ctx, openCellName, plannedOC, setsUnit, ledger.ActionDeduction, prev, counts.OpenCellSets); err != nil {
			return err
		}
	}
	if plannedCC > 0 {
		prev := counts.ClosedCellSets
		counts.ClosedCellSets -= plannedCC
		if err := run.log(ctx, closedCellName, plannedCC, setsUnit, ledger.ActionDeduction, prev, counts.ClosedCellSets); err != nil {
			return err
		}
	}
	if err := tx.PutCounts(ctx, counts); err != nil {
		return err
	}

	deducted := jobrecord.DeductedValues{OpenCellSets: plannedOC, ClosedCellSets: plannedCC}
	for _, line := range rec.Materials.Inventory {
		applied, err := run.moveItem(ctx, line, -line.Quantity, ledger.ActionDeduction)
		if err != nil {
			return err
		}
		if applied {
			deducted.Inventory = append(deducted.Inventory, jobrecord.InventoryLine{
				ID: line.ID, Name: line.Name, Quantity: line.Quantity, Unit: line.Unit,
			})
		}
	}

	rec.InventoryDeducted = true
	rec.DeductedValues = &deducted
	return tx.PutJob(ctx, *rec)
}

func (e *Engine) reconcile(ctx context.Context, tx StockTx, tenantID string, rec *jobrecord.Record) error {
	actuals := rec.Actuals
	if actuals == nil {
		actuals = &jobrecord.Actuals{
			OpenCellSets:   rec.Materials.OpenCellSets,
			ClosedCellSets: rec.Materials.ClosedCellSets,
			Inventory:      rec.Materials.Inventory,
		}
	}
	when := actuals.CompletionDate
	if when == "" {
		when = e.now().UTC().Format(time.RFC3339)
	}
	loggedBy := actuals.CompletedBy
	if loggedBy == "" {
		loggedBy = "Crew"
	}
	run := e.newRun(tx, tenantID, rec, loggedBy, when)

	counts, err := tx.Counts(ctx)
	if err != nil {
		return err
	}

	// Undo the point-of-sale guess in full before charging actuals, so
	// stock ends up reflecting only true consumption.
	if rec.InventoryDeducted && rec.DeductedValues != nil {
		ded := rec.DeductedValues
		if ded.OpenCellSets > 0 {
			prev := counts.OpenCellSets
			counts.OpenCellSets += ded.OpenCellSets
			if err := run.log(ctx, openCellName, ded.OpenCellSets, setsUnit, ledger.ActionRestock, prev, counts.OpenCellSets); err != nil {
				return err
			}
		}
		if ded.ClosedCellSets > 0 {
			prev := counts.ClosedCellSets
			counts.ClosedCellSets += ded.ClosedCellSets
			if err := run.log(ctx, closedCellName, ded.ClosedCellSets, setsUnit, ledger.ActionRestock, prev, counts.ClosedCellSets); err != nil {
				return err
			}
		}
		for _, line := range ded.Inventory {
			if _, err := run.moveItem(ctx, line, line.Quantity, ledger.ActionRestock); err != nil {
				return err
			}
		}
	}

	usedOC := actuals.OpenCellSets
	usedCC := actuals.ClosedCellSets
	counts.OpenCellSets -= usedOC
	counts.ClosedCellSets -= usedCC
	if usedOC > 0 {
		if err := run.usage(ctx, openCellName, usedOC, setsUnit); err != nil {
			return err
		}
	}
	if usedCC > 0 {
		if err := run.usage(ctx, closedCellName, usedCC, setsUnit); err != nil {
			return err
		}
	}
	if err := tx.PutCounts(ctx, counts); err != nil {
		return err
	}

	usedInventory := actuals.Inventory
	if usedInventory == nil {
		usedInventory = rec.Materials.Inventory
	}
	for _, line := range usedInventory {
		if _, err := run.moveItem(ctx, line, -line.Quantity, ledger.ActionDeduction); err != nil {
			return err
		}
	}

	recon := jobrecord.Reconciliation{ReconciledAt: when}
	addVariance := func(name string, estimated, actual float64, unit string) error {
		variance := estimated - actual
		if variance == 0 {
			return nil
		}
		recon.Variances = append(recon.Variances, jobrecord.VarianceEntry{
			Item: name, Estimated: estimated, Actual: actual, Variance: variance, Unit: unit,
		})
		return run.variance(ctx, name, estimated, actual, variance, unit)
	}
	if err := addVariance(openCellName, rec.Materials.OpenCellSets, usedOC, setsUnit); err != nil {
		return err
	}
	if err := addVariance(closedCellName, rec.Materials.ClosedCellSets, usedCC, setsUnit); err != nil {
		return err
	}
	for _, planned := range rec.Materials.Inventory {
		var actualQty float64
		for _, act := range actuals.Inventory {
			if act.ID == planned.ID {
				actualQty = act.Quantity
				break
			}
		}
		if err := addVariance(planned.Name, planned.Quantity, actualQty, planned.Unit); err != nil {
			return err
		}
	}

	usage, err := tx.Lifetime(ctx)
	if err != nil {
		return err
	}
	usage.OpenCell += usedOC
	usage.ClosedCell += usedCC
	if err := tx.PutLifetime(ctx, usage); err != nil {
		return err
	}

	rec.InventoryProcessed = true
	rec.Reconciliation = &recon
	return tx.PutJob(ctx, *rec)
}

// run carries the per-call ledger context so every line shares the job,
// customer, operator, and timestamp.
type run struct {
	engine   *Engine
	tx       StockTx
	tenantID string
	jobID    string
	customer string
	loggedBy string
	when     string
}

func (e *Engine) newRun(tx StockTx, tenantID string, rec *jobrecord.Record, loggedBy, when string) *run {
	return &run{
		engine:   e,
		tx:       tx,
		tenantID: tenantID,
		jobID:    rec.ID,
		customer: rec.Customer.Name,
		loggedBy: loggedBy,
		when:     when,
	}
}

func (r *run) entry(name string, qty float64, unit string, action ledger.Action) ledger.MaterialEntry {
	return ledger.MaterialEntry{
		ID:           r.engine.newID(),
		Date:         r.when,
		JobID:        r.jobID,
		CustomerName: r.customer,
		MaterialName: name,
		Quantity:     qty,
		Unit:         unit,
		LoggedBy:     r.loggedBy,
		Action:       action,
	}
}

func (r *run) log(ctx context.Context, name string, qty float64, unit string, action ledger.Action, prev, next float64) error {
	entry := r.entry(name, qty, unit, action)
	entry.PrevQty = ledger.Float(prev)
	entry.NewQty = ledger.Float(next)
	return r.tx.AppendLog(ctx, entry)
}

func (r *run) usage(ctx context.Context, name string, qty float64, unit string) error {
	return r.tx.AppendLog(ctx, r.entry(name, qty, unit, ledger.ActionUsage))
}

func (r *run) variance(ctx context.Context, name string, estimated, actual, variance float64, unit string) error {
	action := ledger.ActionVarianceAddBack
	qty := variance
	if variance < 0 {
		action = ledger.ActionVarianceOveruse
		qty = -variance
	}
	entry := r.entry(name, qty, unit, action)
	entry.Estimated = ledger.Float(estimated)
	entry.Actual = ledger.Float(actual)
	entry.Variance = ledger.Float(variance)
	return r.tx.AppendLog(ctx, entry)
}

// moveItem adjusts one inventory item's quantity by delta, logging the
// movement. An id with no matching item writes a SystemError line and
// reports false; it never aborts the batch.
func (r *run) moveItem(ctx context.Context, line jobrecord.InventoryLine, delta float64, action ledger.Action) (bool, error) {
	if line.Quantity == 0 {
		return false, nil
	}
	item, found, err := r.tx.Item(ctx, line.ID)
	if err != nil {
		return false, err
	}
	if !found {
		name := line.Name
		if name == "" {
			name = "Unknown"
		}
		entry := r.entry(name, line.Quantity, line.Unit, ledger.ActionSystemError)
		entry.Error = fmt.Sprintf("inventory item %s not found", line.ID)
		if err := r.tx.AppendLog(ctx, entry); err != nil {
			return false, err
		}
		r.engine.logger.Warn("inventory line skipped",
			slog.String("tenant_id", r.tenantID),
			slog.String("job_id", r.jobID),
			slog.String("item_id", line.ID))
		return false, nil
	}
	prev := item.Quantity
	item.Quantity += delta
	if err := r.tx.PutItem(ctx, item); err != nil {
		return false, err
	}
	qty := delta
	if qty < 0 {
		qty = -qty
	}
	if err := r.log(ctx, item.Name, qty, item.Unit, action, prev, item.Quantity); err != nil {
		return false, err
	}
	return true, nil
}

// pgStockTx adapts a store transaction to the engine surface.
type pgStockTx struct {
	tx       *store.Tx
	tenantID string
}

func (p *pgStockTx) Counts(ctx context.Context) (warehouse.Counts, error) {
	return warehouse.CountsForUpdate(ctx, p.tx, p.tenantID)
}

func (p *pgStockTx) PutCounts(ctx context.Context, counts warehouse.Counts) error {
	return warehouse.PutCountsTx(ctx, p.tx, p.tenantID, counts)
}

func (p *pgStockTx) Lifetime(ctx context.Context) (warehouse.LifetimeUsage, error) {
	return warehouse.LifetimeForUpdate(ctx, p.tx, p.tenantID)
}

func (p *pgStockTx) PutLifetime(ctx context.Context, usage warehouse.LifetimeUsage) error {
	return warehouse.PutLifetimeTx(ctx, p.tx, p.tenantID, usage)
}

func (p *pgStockTx) Item(ctx context.Context, id string) (warehouse.Item, bool, error) {
	return warehouse.ItemForUpdate(ctx, p.tx, p.tenantID, id)
}

func (p *pgStockTx) PutItem(ctx context.Context, item warehouse.Item) error {
	return warehouse.PutItemTx(ctx, p.tx, p.tenantID, item)
}

func (p *pgStockTx) AppendLog(ctx context.Context, entry ledger.MaterialEntry) error {
	return ledger.AppendTx(ctx, p.tx, p.tenantID, entry)
}

func (p *pgStockTx) PutJob(ctx context.Context, rec jobrecord.Record) error {
	return jobrecord.PutTx(ctx, p.tx, p.tenantID, rec)
}
