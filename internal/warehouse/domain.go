// Package warehouse tracks foam set counts, loose inventory items,
// equipment, and the tenant settings map they live in.
package warehouse

import "encoding/json"

// Settings keys. Uniqueness per tenant is enforced by the settings
// table's primary key.
const (
	SettingCompanyProfile = "companyProfile"
	SettingCounts         = "warehouse_counts"
	SettingLifetime       = "lifetime_usage"
	SettingCosts          = "costs"
	SettingYields         = "yields"
)

// Counts is the bulk foam stock, in sets. Counts may go negative; the
// ledger records the overdraw rather than blocking the crew.
type Counts struct {
	OpenCellSets   float64 `json:"openCellSets"`
	ClosedCellSets float64 `json:"closedCellSets"`
}

// LifetimeUsage is the cumulative sets ever sprayed, used for rig
// maintenance scheduling. Only ever incremented.
type LifetimeUsage struct {
	OpenCell   float64 `json:"openCell"`
	ClosedCell float64 `json:"closedCell"`
}

// Costs is the per-set chemical pricing plus the shop labor rate.
type Costs struct {
	OpenCell   float64 `json:"openCell"`
	ClosedCell float64 `json:"closedCell"`
	LaborRate  float64 `json:"laborRate"`
}

// Yields maps one foam set to board feet and gun strokes.
type Yields struct {
	OpenCell          float64 `json:"openCell"`
	ClosedCell        float64 `json:"closedCell"`
	OpenCellStrokes   float64 `json:"openCellStrokes"`
	ClosedCellStrokes float64 `json:"closedCellStrokes"`
}

// CompanyProfile is the tenant's business identity, including the
// shared crew access PIN.
type CompanyProfile struct {
	CompanyName   string `json:"companyName"`
	CrewAccessPin string `json:"crewAccessPin"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	AddressLine1  string `json:"addressLine1"`
	AddressLine2  string `json:"addressLine2"`
	City          string `json:"city"`
	State         string `json:"state"`
	Zip           string `json:"zip"`
	Website       string `json:"website"`
	LogoURL       string `json:"logoUrl"`
}

// Item is one loose inventory line item. Identity is ID, never name.
type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
	UnitCost float64 `json:"unitCost,omitempty"`
}

// Equipment is one tracked tool. LastSeen stays opaque; the engine only
// stores it.
type Equipment struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Status   string          `json:"status,omitempty"`
	LastSeen json.RawMessage `json:"lastSeen,omitempty"`
}

// Snapshot is the assembled warehouse view shipped to clients.
type Snapshot struct {
	OpenCellSets   float64 `json:"openCellSets"`
	ClosedCellSets float64 `json:"closedCellSets"`
	Items          []Item  `json:"items"`
}

// DefaultCosts are seeded at signup.
func DefaultCosts() Costs {
	return Costs{OpenCell: 2000, ClosedCell: 2600, LaborRate: 85}
}

// DefaultYields are seeded at signup.
func DefaultYields() Yields {
	return Yields{OpenCell: 16000, ClosedCell: 4000, OpenCellStrokes: 6600, ClosedCellStrokes: 6600}
}
