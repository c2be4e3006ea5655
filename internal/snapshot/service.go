// Package snapshot implements the two bulk sync operations: the full
// state download a client boots from, and the full state upload that
// folds an office snapshot back into the server without clobbering
// field-reported progress.
package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/foamcrew/foamcrew/internal/customers"
	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/ledger"
	"github.com/foamcrew/foamcrew/internal/messages"
	"github.com/foamcrew/foamcrew/internal/warehouse"
)

// logTailLimit bounds the material log slice in a full download.
const logTailLimit = 200

// JobStore is the job record surface the sync pipeline needs.
type JobStore interface {
	All(ctx context.Context, tenantID string) ([]jobrecord.Record, error)
	ReplaceAll(ctx context.Context, tenantID string, recs []jobrecord.Record) error
}

// CustomerStore is the customer surface.
type CustomerStore interface {
	All(ctx context.Context, tenantID string) ([]customers.Profile, error)
	ReplaceAll(ctx context.Context, tenantID string, profiles []customers.Profile) error
}

// WarehouseStore is the stock and settings-adjacent surface.
type WarehouseStore interface {
	Snapshot(ctx context.Context, tenantID string) (warehouse.Snapshot, error)
	Lifetime(ctx context.Context, tenantID string) (warehouse.LifetimeUsage, error)
	Equipment(ctx context.Context, tenantID string) ([]warehouse.Equipment, error)
	PutCounts(ctx context.Context, tenantID string, counts warehouse.Counts) error
	ReplaceItems(ctx context.Context, tenantID string, items []warehouse.Item) error
	ReplaceEquipment(ctx context.Context, tenantID string, items []warehouse.Equipment) error
}

// SettingsStore is the flat settings map. *store.Store satisfies it.
type SettingsStore interface {
	AllSettings(ctx context.Context, tenantID string) (map[string]json.RawMessage, error)
	PutSetting(ctx context.Context, tenantID, key string, value any) error
}

// LogStore reads the recent material ledger.
type LogStore interface {
	Tail(ctx context.Context, tenantID string, limit int) ([]ledger.MaterialEntry, error)
}

// MessageStore reads the recent chat window.
type MessageStore interface {
	Tail(ctx context.Context, tenantID string) ([]messages.Message, error)
}

// Reconciler settles completed jobs against the warehouse.
type Reconciler interface {
	ReconcileCompletion(ctx context.Context, tenantID string, rec *jobrecord.Record) error
}

// PinPropagator pushes crew PIN changes into the account registry.
type PinPropagator interface {
	PropagateCrewPin(ctx context.Context, tenantID, pin string) error
}

// DirtyMarker refreshes the change-notification cache.
type DirtyMarker interface {
	Touch(ctx context.Context, tenantID string, at time.Time) error
}

// Service assembles downloads and applies uploads.
type Service struct {
	jobs      JobStore
	customers CustomerStore
	warehouse WarehouseStore
	settings  SettingsStore
	ledger    LogStore
	messages  MessageStore
	engine    Reconciler
	pins      PinPropagator
	marker    DirtyMarker
	logger    *slog.Logger
	now       func() time.Time
	flight    singleflight.Group
}

func NewService(jobs JobStore, custs CustomerStore, wh WarehouseStore, settings SettingsStore, led LogStore, msgs MessageStore, engine Reconciler, pins PinPropagator, marker DirtyMarker, logger *slog.Logger) *Service {
	return &Service{
		jobs:      jobs,
		customers: custs,
		warehouse: wh,
		settings:  settings,
		ledger:    led,
		messages:  msgs,
		engine:    engine,
		pins:      pins,
		marker:    marker,
		logger:    logger,
		now:       time.Now,
	}
}

// FullState is the aggregate download: the tenant's settings flattened
// into the top level next to the assembled collections.
type FullState map[string]any

// SyncDown assembles the whole tenant state. Concurrent downloads for
// the same tenant collapse into one assembly.
func (s *Service) SyncDown(ctx context.Context, tenantID string) (FullState, error) {
	v, err, _ := s.flight.Do(tenantID, func() (any, error) {
		return s.assemble(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(FullState), nil
}

func (s *Service) assemble(ctx context.Context, tenantID string) (FullState, error) {
	state := FullState{}

	settings, err := s.settings.AllSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for key, value := range settings {
		// Counts and lifetime ship under their assembled names below.
		if key == warehouse.SettingCounts || key == warehouse.SettingLifetime {
			continue
		}
		state[key] = value
	}

	snap, err := s.warehouse.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	state["warehouse"] = snap

	usage, err := s.warehouse.Lifetime(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	state["lifetimeUsage"] = usage

	equipment, err := s.warehouse.Equipment(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	state["equipment"] = equipment

	recs, err := s.jobs.All(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	state["savedEstimates"] = recs

	profiles, err := s.customers.All(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	state["customers"] = profiles

	logs, err := s.ledger.Tail(ctx, tenantID, logTailLimit)
	if err != nil {
		return nil, err
	}
	// Tail reads newest first; clients want chronological order.
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	state["materialLogs"] = logs

	msgs, err := s.messages.Tail(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	state["messages"] = msgs

	state["serverTime"] = s.now().UTC().Format(time.RFC3339)
	return state, nil
}

// ClientState is the upload payload: one flat object holding the office
// client's settings keys and collections.
type ClientState struct {
	CompanyProfile json.RawMessage `json:"companyProfile,omitempty"`
	Yields         json.RawMessage `json:"yields,omitempty"`
	Costs          json.RawMessage `json:"costs,omitempty"`
	Expenses       json.RawMessage `json:"expenses,omitempty"`
	JobNotes       json.RawMessage `json:"jobNotes,omitempty"`
	PurchaseOrders json.RawMessage `json:"purchaseOrders,omitempty"`
	SqFtRates      json.RawMessage `json:"sqFtRates,omitempty"`
	PricingMode    json.RawMessage `json:"pricingMode,omitempty"`

	Warehouse      *warehouse.Snapshot   `json:"warehouse,omitempty"`
	Equipment      []warehouse.Equipment `json:"equipment,omitempty"`
	Customers      []customers.Profile   `json:"customers,omitempty"`
	SavedEstimates []jobrecord.Record    `json:"savedEstimates,omitempty"`
}

// settingsPatch lists the client-owned settings keys present in the
// upload. Counts and lifetime stats are engine-owned and never patched
// through here.
func (c ClientState) settingsPatch() map[string]json.RawMessage {
	patch := map[string]json.RawMessage{}
	add := func(key string, raw json.RawMessage) {
		if len(raw) > 0 {
			patch[key] = raw
		}
	}
	add("companyProfile", c.CompanyProfile)
	add("yields", c.Yields)
	add("costs", c.Costs)
	add("expenses", c.Expenses)
	add("jobNotes", c.JobNotes)
	add("purchaseOrders", c.PurchaseOrders)
	add("sqFtRates", c.SqFtRates)
	add("pricingMode", c.PricingMode)
	return patch
}

// SyncUp folds the client snapshot into the server. Merge runs before
// any wholesale replacement because replacement is destructive of
// field-reported progress.
func (s *Service) SyncUp(ctx context.Context, tenantID string, state ClientState) error {
	serverRecs, err := s.jobs.All(ctx, tenantID)
	if err != nil {
		return err
	}
	merged := jobrecord.MergeAll(serverRecs, state.SavedEstimates)

	for key, value := range state.settingsPatch() {
		if err := s.settings.PutSetting(ctx, tenantID, key, value); err != nil {
			return err
		}
	}

	if state.Warehouse != nil {
		counts := warehouse.Counts{
			OpenCellSets:   state.Warehouse.OpenCellSets,
			ClosedCellSets: state.Warehouse.ClosedCellSets,
		}
		// Office wins on manual stock edits: last writer takes the
		// counts and the item list wholesale.
		if err := s.warehouse.PutCounts(ctx, tenantID, counts); err != nil {
			return err
		}
		if state.Warehouse.Items != nil {
			if err := s.warehouse.ReplaceItems(ctx, tenantID, state.Warehouse.Items); err != nil {
				return err
			}
		}
	}
	if state.Equipment != nil {
		if err := s.warehouse.ReplaceEquipment(ctx, tenantID, state.Equipment); err != nil {
			return err
		}
	}

	// Completed jobs the engine has not settled yet get reconciled
	// after the warehouse replacement above, so the engine's stock
	// adjustments land on the final counts instead of being overwritten,
	// and the ledger lines agree with what is persisted.
	for i := range merged {
		rec := &merged[i]
		if rec.ExecutionStatus != jobrecord.ExecutionCompleted || rec.InventoryProcessed {
			continue
		}
		if err := s.engine.ReconcileCompletion(ctx, tenantID, rec); err != nil {
			return err
		}
	}

	if len(state.Customers) > 0 {
		if err := s.customers.ReplaceAll(ctx, tenantID, state.Customers); err != nil {
			return err
		}
	}
	if len(state.SavedEstimates) > 0 {
		if err := s.jobs.ReplaceAll(ctx, tenantID, merged); err != nil {
			return err
		}
	}

	if len(state.CompanyProfile) > 0 {
		var profile warehouse.CompanyProfile
		if json.Unmarshal(state.CompanyProfile, &profile) == nil && profile.CrewAccessPin != "" {
			if err := s.pins.PropagateCrewPin(ctx, tenantID, profile.CrewAccessPin); err != nil {
				s.logger.Warn("crew pin propagation failed",
					slog.String("tenant_id", tenantID), slog.Any("error", err))
			}
		}
	}

	if err := s.marker.Touch(ctx, tenantID, s.now().UTC()); err != nil {
		s.logger.Warn("dirty marker refresh failed",
			slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
	return nil
}
