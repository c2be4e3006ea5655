package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foamcrew/foamcrew/internal/customers"
	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/ledger"
	"github.com/foamcrew/foamcrew/internal/messages"
	"github.com/foamcrew/foamcrew/internal/warehouse"
)

type memState struct {
	jobs         map[string]jobrecord.Record
	jobOrder     []string
	customers    []customers.Profile
	counts       warehouse.Counts
	items        []warehouse.Item
	equipment    []warehouse.Equipment
	lifetime     warehouse.LifetimeUsage
	settings     map[string]json.RawMessage
	logs         []ledger.MaterialEntry
	msgs         []messages.Message
	reconciled   []string
	reconciledAt []warehouse.Counts
	pins         []string
	touched      int
}

func newMemState() *memState {
	return &memState{
		jobs:     make(map[string]jobrecord.Record),
		settings: make(map[string]json.RawMessage),
	}
}

func (m *memState) All(_ context.Context, _ string) ([]jobrecord.Record, error) {
	out := make([]jobrecord.Record, 0, len(m.jobOrder))
	for _, id := range m.jobOrder {
		out = append(out, m.jobs[id])
	}
	return out, nil
}

func (m *memState) ReplaceAll(_ context.Context, _ string, recs []jobrecord.Record) error {
	m.jobs = make(map[string]jobrecord.Record)
	m.jobOrder = nil
	for _, rec := range recs {
		m.jobs[rec.ID] = rec
		m.jobOrder = append(m.jobOrder, rec.ID)
	}
	return nil
}

type memCustomers struct{ state *memState }

func (m memCustomers) All(_ context.Context, _ string) ([]customers.Profile, error) {
	return m.state.customers, nil
}

func (m memCustomers) ReplaceAll(_ context.Context, _ string, profiles []customers.Profile) error {
	m.state.customers = profiles
	return nil
}

type memWarehouse struct{ state *memState }

func (m memWarehouse) Snapshot(_ context.Context, _ string) (warehouse.Snapshot, error) {
	return warehouse.Snapshot{
		OpenCellSets:   m.state.counts.OpenCellSets,
		ClosedCellSets: m.state.counts.ClosedCellSets,
		Items:          m.state.items,
	}, nil
}

func (m memWarehouse) Lifetime(_ context.Context, _ string) (warehouse.LifetimeUsage, error) {
	return m.state.lifetime, nil
}

func (m memWarehouse) Equipment(_ context.Context, _ string) ([]warehouse.Equipment, error) {
	return m.state.equipment, nil
}

func (m memWarehouse) PutCounts(_ context.Context, _ string, counts warehouse.Counts) error {
	m.state.counts = counts
	return nil
}

func (m memWarehouse) ReplaceItems(_ context.Context, _ string, items []warehouse.Item) error {
	m.state.items = items
	return nil
}

func (m memWarehouse) ReplaceEquipment(_ context.Context, _ string, items []warehouse.Equipment) error {
	m.state.equipment = items
	return nil
}

type memSettings struct{ state *memState }

func (m memSettings) AllSettings(_ context.Context, _ string) (map[string]json.RawMessage, error) {
	return m.state.settings, nil
}

func (m memSettings) PutSetting(_ context.Context, _ string, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.state.settings[key] = raw
	return nil
}

type memLogs struct{ state *memState }

func (m memLogs) Tail(_ context.Context, _ string, limit int) ([]ledger.MaterialEntry, error) {
	logs := m.state.logs
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

type memMessages struct{ state *memState }

func (m memMessages) Tail(_ context.Context, _ string) ([]messages.Message, error) {
	return m.state.msgs, nil
}

type memReconciler struct{ state *memState }

func (m memReconciler) ReconcileCompletion(_ context.Context, _ string, rec *jobrecord.Record) error {
	m.state.reconciled = append(m.state.reconciled, rec.ID)
	m.state.reconciledAt = append(m.state.reconciledAt, m.state.counts)
	rec.InventoryProcessed = true
	return nil
}

type memPins struct{ state *memState }

func (m memPins) PropagateCrewPin(_ context.Context, _ string, pin string) error {
	m.state.pins = append(m.state.pins, pin)
	return nil
}

type memMarker struct{ state *memState }

func (m memMarker) Touch(_ context.Context, _ string, _ time.Time) error {
	m.state.touched++
	return nil
}

func testService(state *memState) *Service {
	return NewService(
		state,
		memCustomers{state},
		memWarehouse{state},
		memSettings{state},
		memLogs{state},
		memMessages{state},
		memReconciler{state},
		memPins{state},
		memMarker{state},
		slog.New(slog.DiscardHandler),
	)
}

func TestSyncDownAssemblesEverything(t *testing.T) {
	state := newMemState()
	state.settings["companyProfile"] = json.RawMessage(`{"companyName":"Hartley Spray Foam"}`)
	state.settings["warehouse_counts"] = json.RawMessage(`{"openCellSets":9}`)
	state.settings["lifetime_usage"] = json.RawMessage(`{"openCell":44}`)
	state.counts = warehouse.Counts{OpenCellSets: 9}
	state.lifetime = warehouse.LifetimeUsage{OpenCell: 44}
	state.jobs["job-1"] = jobrecord.Record{ID: "job-1"}
	state.jobOrder = []string{"job-1"}
	state.customers = []customers.Profile{{ID: "c-1", Name: "Maple Farm"}}
	state.logs = []ledger.MaterialEntry{{ID: "log-2"}, {ID: "log-1"}}
	state.msgs = []messages.Message{{ID: "m-1"}}

	got, err := testService(state).SyncDown(context.Background(), "t1")
	require.NoError(t, err)

	require.Contains(t, got, "companyProfile")
	// Counts and lifetime ship assembled, not as raw settings rows.
	require.NotContains(t, got, "warehouse_counts")
	require.NotContains(t, got, "lifetime_usage")
	require.Equal(t, warehouse.Snapshot{OpenCellSets: 9, Items: nil}, got["warehouse"])
	require.Equal(t, warehouse.LifetimeUsage{OpenCell: 44}, got["lifetimeUsage"])
	require.Len(t, got["savedEstimates"], 1)
	require.Len(t, got["customers"], 1)
	require.NotEmpty(t, got["serverTime"])

	// Material logs come back oldest first.
	logs := got["materialLogs"].([]ledger.MaterialEntry)
	require.Equal(t, "log-1", logs[0].ID)
	require.Equal(t, "log-2", logs[1].ID)
}

func TestSyncUpMergesBeforeReplacing(t *testing.T) {
	state := newMemState()
	state.jobs["job-1"] = jobrecord.Record{
		ID:              "job-1",
		ExecutionStatus: jobrecord.ExecutionCompleted,
		Actuals:         &jobrecord.Actuals{CompletedBy: "Dale", CompletionDate: "2026-03-01T18:00:00Z"},
	}
	state.jobOrder = []string{"job-1"}

	// The office snapshot is stale: it predates the crew's completion.
	incoming := ClientState{
		SavedEstimates: []jobrecord.Record{{
			ID:              "job-1",
			ExecutionStatus: jobrecord.ExecutionNotStarted,
			Notes:           "updated pricing",
		}},
	}

	require.NoError(t, testService(state).SyncUp(context.Background(), "t1", incoming))

	rec := state.jobs["job-1"]
	require.Equal(t, jobrecord.ExecutionCompleted, rec.ExecutionStatus)
	require.NotNil(t, rec.Actuals)
	require.Equal(t, "Dale", rec.Actuals.CompletedBy)
	require.Equal(t, "updated pricing", rec.Notes)
	require.Equal(t, 1, state.touched)
}

func TestSyncUpReconcilesCompletedJobs(t *testing.T) {
	state := newMemState()

	incoming := ClientState{
		SavedEstimates: []jobrecord.Record{
			{ID: "job-1", ExecutionStatus: jobrecord.ExecutionCompleted},
			{ID: "job-2", ExecutionStatus: jobrecord.ExecutionCompleted, InventoryProcessed: true},
			{ID: "job-3", ExecutionStatus: jobrecord.ExecutionInProgress},
		},
	}

	require.NoError(t, testService(state).SyncUp(context.Background(), "t1", incoming))

	// Only the completed, unprocessed job goes through the engine, and
	// the persisted copy carries the gate it set.
	require.Equal(t, []string{"job-1"}, state.reconciled)
	require.True(t, state.jobs["job-1"].InventoryProcessed)
}

func TestSyncUpReconcilesAgainstReplacedCounts(t *testing.T) {
	state := newMemState()
	state.counts = warehouse.Counts{OpenCellSets: 3}

	incoming := ClientState{
		Warehouse: &warehouse.Snapshot{OpenCellSets: 11, ClosedCellSets: 4},
		SavedEstimates: []jobrecord.Record{
			{ID: "job-1", ExecutionStatus: jobrecord.ExecutionCompleted},
		},
	}

	require.NoError(t, testService(state).SyncUp(context.Background(), "t1", incoming))

	// The engine must settle against the counts the sync just took,
	// not against the pre-replacement stock it would then clobber.
	require.Equal(t, []warehouse.Counts{{OpenCellSets: 11, ClosedCellSets: 4}}, state.reconciledAt)
	require.Equal(t, warehouse.Counts{OpenCellSets: 11, ClosedCellSets: 4}, state.counts)
}

func TestSyncUpSettingsMergeByKey(t *testing.T) {
	state := newMemState()
	state.settings["jobNotes"] = json.RawMessage(`"existing notes"`)
	state.settings["sqFtRates"] = json.RawMessage(`{"wall":1.2}`)

	incoming := ClientState{
		JobNotes: json.RawMessage(`"new notes"`),
		Costs:    json.RawMessage(`{"openCell":2100}`),
	}

	require.NoError(t, testService(state).SyncUp(context.Background(), "t1", incoming))

	require.JSONEq(t, `"new notes"`, string(state.settings["jobNotes"]))
	require.JSONEq(t, `{"openCell":2100}`, string(state.settings["costs"]))
	// Unrelated keys survive the merge untouched.
	require.JSONEq(t, `{"wall":1.2}`, string(state.settings["sqFtRates"]))
}

func TestSyncUpWarehouseLastWriterWins(t *testing.T) {
	state := newMemState()
	state.counts = warehouse.Counts{OpenCellSets: 3}
	state.items = []warehouse.Item{{ID: "itm-old", Name: "Old", Quantity: 1}}

	incoming := ClientState{
		Warehouse: &warehouse.Snapshot{
			OpenCellSets:   11,
			ClosedCellSets: 4,
			Items:          []warehouse.Item{{ID: "itm-new", Name: "New", Quantity: 7}},
		},
	}

	require.NoError(t, testService(state).SyncUp(context.Background(), "t1", incoming))

	require.Equal(t, warehouse.Counts{OpenCellSets: 11, ClosedCellSets: 4}, state.counts)
	require.Len(t, state.items, 1)
	require.Equal(t, "itm-new", state.items[0].ID)
}

func TestSyncUpPropagatesCrewPin(t *testing.T) {
	state := newMemState()
	incoming := ClientState{
		CompanyProfile: json.RawMessage(`{"companyName":"Hartley Spray Foam","crewAccessPin":"7777"}`),
	}

	require.NoError(t, testService(state).SyncUp(context.Background(), "t1", incoming))
	require.Equal(t, []string{"7777"}, state.pins)
}

func TestSyncUpEmptyJobListDoesNotWipeServer(t *testing.T) {
	state := newMemState()
	state.jobs["job-1"] = jobrecord.Record{ID: "job-1"}
	state.jobOrder = []string{"job-1"}

	require.NoError(t, testService(state).SyncUp(context.Background(), "t1", ClientState{}))
	require.Len(t, state.jobs, 1)
}
