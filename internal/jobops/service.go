// Package jobops implements the single-record job lifecycle operations:
// start, complete, mark paid, delete, and crew time logging. Writes here
// are compare-and-set on one record id looked up fresh at write time;
// nothing in this package replaces collections wholesale.
package jobops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/ledger"
	"github.com/foamcrew/foamcrew/internal/shared"
	"github.com/foamcrew/foamcrew/internal/warehouse"
)

// JobStore is the record surface the lifecycle needs.
type JobStore interface {
	Get(ctx context.Context, tenantID, id string) (jobrecord.Record, bool, error)
	Update(ctx context.Context, tenantID, id string, fn func(*jobrecord.Record) (bool, error)) (jobrecord.Record, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// WarehouseStore supplies pricing config and tool tracking.
type WarehouseStore interface {
	Costs(ctx context.Context, tenantID string) (warehouse.Costs, error)
	Equipment(ctx context.Context, tenantID string) ([]warehouse.Equipment, error)
	ReplaceEquipment(ctx context.Context, tenantID string, items []warehouse.Equipment) error
}

// Ledger appends the profit and time lines.
type Ledger interface {
	AppendPnL(ctx context.Context, tenantID string, entry ledger.PnLEntry) error
	AppendTime(ctx context.Context, tenantID string, entry ledger.TimeEntry) error
}

// Reconciler settles a completed job against the warehouse.
type Reconciler interface {
	ReconcileCompletion(ctx context.Context, tenantID string, rec *jobrecord.Record) error
}

// DirtyMarker refreshes the change-notification cache.
type DirtyMarker interface {
	Touch(ctx context.Context, tenantID string, at time.Time) error
}

// Service runs the lifecycle operations.
type Service struct {
	jobs   JobStore
	stock  WarehouseStore
	ledger Ledger
	engine Reconciler
	marker DirtyMarker
	logger *slog.Logger
	now    func() time.Time
}

func NewService(jobs JobStore, stock WarehouseStore, led Ledger, engine Reconciler, marker DirtyMarker, logger *slog.Logger) *Service {
	return &Service{
		jobs:   jobs,
		stock:  stock,
		ledger: led,
		engine: engine,
		marker: marker,
		logger: logger,
		now:    time.Now,
	}
}

// StartJob moves a record into In Progress and stamps the start time.
func (s *Service) StartJob(ctx context.Context, tenantID, estimateID string) (jobrecord.Record, error) {
	now := s.now().UTC()
	rec, err := s.jobs.Update(ctx, tenantID, estimateID, func(rec *jobrecord.Record) (bool, error) {
		rec.ExecutionStatus = jobrecord.ExecutionInProgress
		if rec.Actuals == nil {
			rec.Actuals = &jobrecord.Actuals{}
		}
		rec.Actuals.LastStartedAt = now.Format(time.RFC3339)
		rec.Touch(now)
		return true, nil
	})
	if err != nil {
		return jobrecord.Record{}, err
	}
	s.touch(ctx, tenantID, now)
	return rec, nil
}

// CompleteJob records the crew's actuals, marks the record Completed,
// and runs the warehouse reconciliation. Re-completing an already
// processed job succeeds without touching anything.
func (s *Service) CompleteJob(ctx context.Context, tenantID, estimateID string, actuals jobrecord.Actuals) (jobrecord.Record, error) {
	rec, found, err := s.jobs.Get(ctx, tenantID, estimateID)
	if err != nil {
		return jobrecord.Record{}, err
	}
	if !found {
		return jobrecord.Record{}, fmt.Errorf("jobops: job %s: %w", estimateID, shared.ErrNotFound)
	}
	if rec.InventoryProcessed {
		return rec, nil
	}

	now := s.now().UTC()
	if actuals.CompletionDate == "" {
		actuals.CompletionDate = now.Format(time.RFC3339)
	}
	rec.ExecutionStatus = jobrecord.ExecutionCompleted
	rec.Actuals = &actuals
	rec.Touch(now)

	// The engine persists the record together with the stock movement
	// and ledger lines, in one transaction.
	if err := s.engine.ReconcileCompletion(ctx, tenantID, &rec); err != nil {
		return jobrecord.Record{}, err
	}
	s.markEquipmentSeen(ctx, tenantID, rec, now)
	s.touch(ctx, tenantID, now)
	return rec, nil
}

// markEquipmentSeen releases the job's tools back to Available and
// stamps where they were last used. Best effort: the completion itself
// is already committed.
func (s *Service) markEquipmentSeen(ctx context.Context, tenantID string, rec jobrecord.Record, now time.Time) {
	if len(rec.Materials.Equipment) == 0 {
		return
	}
	tools, err := s.stock.Equipment(ctx, tenantID)
	if err != nil {
		s.logger.Warn("equipment read failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return
	}
	used := map[string]bool{}
	for _, ref := range rec.Materials.Equipment {
		used[ref.ID] = true
	}
	crewMember := ""
	if rec.Actuals != nil {
		crewMember = rec.Actuals.CompletedBy
	}
	sighting, err := json.Marshal(jobrecord.EquipmentSighting{
		JobID:        rec.ID,
		CustomerName: rec.Customer.Name,
		Date:         now.Format(time.RFC3339),
		CrewMember:   crewMember,
	})
	if err != nil {
		return
	}
	changed := false
	for i := range tools {
		if !used[tools[i].ID] {
			continue
		}
		tools[i].Status = "Available"
		tools[i].LastSeen = sighting
		changed = true
	}
	if !changed {
		return
	}
	if err := s.stock.ReplaceEquipment(ctx, tenantID, tools); err != nil {
		s.logger.Warn("equipment update failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
}

// MarkJobPaid freezes the job's financials and appends the profit line.
// An already-paid job with frozen financials is returned unchanged, so a
// client retry never recomputes the freeze or doubles the profit line.
func (s *Service) MarkJobPaid(ctx context.Context, tenantID, estimateID string) (jobrecord.Record, error) {
	rec, found, err := s.jobs.Get(ctx, tenantID, estimateID)
	if err != nil {
		return jobrecord.Record{}, err
	}
	if !found {
		return jobrecord.Record{}, fmt.Errorf("jobops: job %s: %w", estimateID, shared.ErrNotFound)
	}
	if rec.Status == jobrecord.StatusPaid && rec.Financials != nil {
		return rec, nil
	}

	costs, err := s.stock.Costs(ctx, tenantID)
	if err != nil {
		return jobrecord.Record{}, err
	}
	now := s.now().UTC()
	rec, err = s.jobs.Update(ctx, tenantID, estimateID, func(rec *jobrecord.Record) (bool, error) {
		rec.Status = jobrecord.StatusPaid
		fin := ComputeFinancials(*rec, costs)
		rec.Financials = &fin
		rec.Touch(now)
		return true, nil
	})
	if err != nil {
		return jobrecord.Record{}, err
	}

	entry := ledger.PnLEntry{
		DatePaid:      now.Format(time.RFC3339),
		JobID:         rec.ID,
		CustomerName:  rec.Customer.Name,
		InvoiceNumber: rec.InvoiceNumber,
		Revenue:       rec.Financials.Revenue,
		ChemicalCost:  rec.Financials.ChemicalCost,
		LaborCost:     rec.Financials.LaborCost,
		InventoryCost: rec.Financials.InventoryCost,
		MiscCost:      rec.Financials.MiscCost,
		TotalCOGS:     rec.Financials.TotalCOGS,
		NetProfit:     rec.Financials.NetProfit,
		Margin:        rec.Financials.Margin,
	}
	if err := s.ledger.AppendPnL(ctx, tenantID, entry); err != nil {
		return jobrecord.Record{}, err
	}
	s.touch(ctx, tenantID, now)
	return rec, nil
}

// DeleteEstimate removes a record. Deleting a missing id succeeds, so a
// client retry after a lost response is harmless.
func (s *Service) DeleteEstimate(ctx context.Context, tenantID, estimateID string) error {
	if err := s.jobs.Delete(ctx, tenantID, estimateID); err != nil {
		return err
	}
	s.touch(ctx, tenantID, s.now().UTC())
	return nil
}

// LogTime appends one crew clock line.
func (s *Service) LogTime(ctx context.Context, tenantID string, entry ledger.TimeEntry) error {
	return s.ledger.AppendTime(ctx, tenantID, entry)
}

func (s *Service) touch(ctx context.Context, tenantID string, at time.Time) {
	if err := s.marker.Touch(ctx, tenantID, at); err != nil {
		s.logger.Warn("dirty marker refresh failed",
			slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
}

// ComputeFinancials derives the frozen profit breakdown from actuals
// when present, planned materials otherwise.
func ComputeFinancials(rec jobrecord.Record, costs warehouse.Costs) jobrecord.Financials {
	var ocSets, ccSets, laborHours float64
	var inventory []jobrecord.InventoryLine
	if rec.Actuals != nil {
		ocSets = rec.Actuals.OpenCellSets
		ccSets = rec.Actuals.ClosedCellSets
		laborHours = rec.Actuals.LaborHours
		inventory = rec.Actuals.Inventory
	} else {
		ocSets = rec.Materials.OpenCellSets
		ccSets = rec.Materials.ClosedCellSets
	}
	if laborHours == 0 {
		laborHours = rec.Expenses.ManHours
	}
	if inventory == nil {
		inventory = rec.Materials.Inventory
	}

	chemCost := ocSets*costs.OpenCell + ccSets*costs.ClosedCell
	rate := rec.Expenses.LaborRate
	if rate == 0 {
		rate = costs.LaborRate
	}
	laborCost := laborHours * rate

	var invCost float64
	for _, line := range inventory {
		invCost += line.Quantity * line.UnitCost
	}
	misc := rec.Expenses.TripCharge + rec.Expenses.FuelSurcharge

	revenue := rec.TotalValue
	totalCOGS := chemCost + laborCost + invCost + misc
	fin := jobrecord.Financials{
		Revenue:       revenue,
		ChemicalCost:  chemCost,
		LaborCost:     laborCost,
		InventoryCost: invCost,
		MiscCost:      misc,
		TotalCOGS:     totalCOGS,
		NetProfit:     revenue - totalCOGS,
	}
	if revenue != 0 {
		fin.Margin = fin.NetProfit / revenue
	}
	return fin
}
