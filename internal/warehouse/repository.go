package warehouse

import (
	"context"

	"github.com/foamcrew/foamcrew/internal/store"
)

// Repository reads and writes warehouse state: the counts and lifetime
// settings keys plus the inventory and equipment collections.
type Repository struct {
	store *store.Store
}

func NewRepository(s *store.Store) *Repository {
	return &Repository{store: s}
}

// SeedDefaults writes the signup-time settings rows. Existing keys are
// left alone so a retried signup cannot reset a live warehouse.
func (r *Repository) SeedDefaults(ctx context.Context, tenantID string, profile CompanyProfile) error {
	seeds := []struct {
		key   string
		value any
	}{
		{SettingCompanyProfile, profile},
		{SettingCounts, Counts{}},
		{SettingLifetime, LifetimeUsage{}},
		{SettingCosts, DefaultCosts()},
		{SettingYields, DefaultYields()},
	}
	for _, seed := range seeds {
		_, found, err := r.store.GetSetting(ctx, tenantID, seed.key)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		if err := r.store.PutSetting(ctx, tenantID, seed.key, seed.value); err != nil {
			return err
		}
	}
	return nil
}

// Counts returns the foam stock, zero when unset.
func (r *Repository) Counts(ctx context.Context, tenantID string) (Counts, error) {
	var counts Counts
	raw, found, err := r.store.GetSetting(ctx, tenantID, SettingCounts)
	if err != nil || !found {
		return counts, err
	}
	store.Decode(raw, &counts)
	return counts, nil
}

func (r *Repository) PutCounts(ctx context.Context, tenantID string, counts Counts) error {
	return r.store.PutSetting(ctx, tenantID, SettingCounts, counts)
}

// Lifetime returns the cumulative usage stats, zero when unset.
func (r *Repository) Lifetime(ctx context.Context, tenantID string) (LifetimeUsage, error) {
	var usage LifetimeUsage
	raw, found, err := r.store.GetSetting(ctx, tenantID, SettingLifetime)
	if err != nil || !found {
		return usage, err
	}
	store.Decode(raw, &usage)
	return usage, nil
}

// Costs returns the pricing config, defaults when unset.
func (r *Repository) Costs(ctx context.Context, tenantID string) (Costs, error) {
	costs := DefaultCosts()
	raw, found, err := r.store.GetSetting(ctx, tenantID, SettingCosts)
	if err != nil {
		return costs, err
	}
	if found {
		store.Decode(raw, &costs)
	}
	return costs, nil
}

// Profile returns the company profile, empty when unset.
func (r *Repository) Profile(ctx context.Context, tenantID string) (CompanyProfile, error) {
	var profile CompanyProfile
	raw, found, err := r.store.GetSetting(ctx, tenantID, SettingCompanyProfile)
	if err != nil || !found {
		return profile, err
	}
	store.Decode(raw, &profile)
	return profile, nil
}

func (r *Repository) PutProfile(ctx context.Context, tenantID string, profile CompanyProfile) error {
	return r.store.PutSetting(ctx, tenantID, SettingCompanyProfile, profile)
}

// Items lists the loose inventory. Rows without an id are skipped.
func (r *Repository) Items(ctx context.Context, tenantID string) ([]Item, error) {
	docs, err := r.store.Scan(ctx, store.Inventory, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(docs))
	for _, doc := range docs {
		var item Item
		if store.Decode(doc, &item) && item.ID != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// ReplaceItems swaps the tenant's inventory list wholesale.
func (r *Repository) ReplaceItems(ctx context.Context, tenantID string, items []Item) error {
	rows := make([]store.Row, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		rows = append(rows, store.Row{Key: item.ID, Doc: item, Fields: itemFields(item)})
	}
	return r.store.Replace(ctx, store.Inventory, tenantID, rows)
}

// Equipment lists tracked tools.
func (r *Repository) Equipment(ctx context.Context, tenantID string) ([]Equipment, error) {
	docs, err := r.store.Scan(ctx, store.Equipment, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]Equipment, 0, len(docs))
	for _, doc := range docs {
		var eq Equipment
		if store.Decode(doc, &eq) && eq.ID != "" {
			out = append(out, eq)
		}
	}
	return out, nil
}

// ReplaceEquipment swaps the tenant's equipment list wholesale.
func (r *Repository) ReplaceEquipment(ctx context.Context, tenantID string, items []Equipment) error {
	rows := make([]store.Row, 0, len(items))
	for _, eq := range items {
		if eq.ID == "" {
			continue
		}
		rows = append(rows, store.Row{Key: eq.ID, Doc: eq, Fields: store.Fields{"name": eq.Name, "status": eq.Status}})
	}
	return r.store.Replace(ctx, store.Equipment, tenantID, rows)
}

// Snapshot assembles the client-facing warehouse view.
func (r *Repository) Snapshot(ctx context.Context, tenantID string) (Snapshot, error) {
	counts, err := r.Counts(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	items, err := r.Items(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{OpenCellSets: counts.OpenCellSets, ClosedCellSets: counts.ClosedCellSets, Items: items}, nil
}

// CountsForUpdate row-locks and returns the foam stock inside a
// reconciliation transaction. Absent key reads as zero but still locks
// nothing; the subsequent put creates the row.
func CountsForUpdate(ctx context.Context, tx *store.Tx, tenantID string) (Counts, error) {
	var counts Counts
	raw, found, err := tx.GetSettingForUpdate(ctx, tenantID, SettingCounts)
	if err != nil || !found {
		return counts, err
	}
	store.Decode(raw, &counts)
	return counts, nil
}

func PutCountsTx(ctx context.Context, tx *store.Tx, tenantID string, counts Counts) error {
	return tx.PutSetting(ctx, tenantID, SettingCounts, counts)
}

// LifetimeForUpdate row-locks and returns the lifetime stats inside a
// reconciliation transaction.
func LifetimeForUpdate(ctx context.Context, tx *store.Tx, tenantID string) (LifetimeUsage, error) {
	var usage LifetimeUsage
	raw, found, err := tx.GetSettingForUpdate(ctx, tenantID, SettingLifetime)
	if err != nil || !found {
		return usage, err
	}
	store.Decode(raw, &usage)
	return usage, nil
}

func PutLifetimeTx(ctx context.Context, tx *store.Tx, tenantID string, usage LifetimeUsage) error {
	return tx.PutSetting(ctx, tenantID, SettingLifetime, usage)
}

// ItemForUpdate row-locks one inventory item by id.
func ItemForUpdate(ctx context.Context, tx *store.Tx, tenantID, id string) (Item, bool, error) {
	raw, found, err := tx.GetForUpdate(ctx, store.Inventory, tenantID, id)
	if err != nil || !found {
		return Item{}, false, err
	}
	var item Item
	if !store.Decode(raw, &item) {
		return Item{}, false, nil
	}
	return item, true, nil
}

func PutItemTx(ctx context.Context, tx *store.Tx, tenantID string, item Item) error {
	return tx.Put(ctx, store.Inventory, tenantID, item.ID, item, itemFields(item))
}

func itemFields(item Item) store.Fields {
	return store.Fields{"name": item.Name, "quantity": item.Quantity, "unit": item.Unit, "unit_cost": item.UnitCost}
}
