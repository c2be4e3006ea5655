// Package ledger is the append-only audit trail of material movement and
// realised profit. Entries are never updated or deleted by ordinary
// operations; corrections appear as new entries.
package ledger

import "time"

// Action classifies one material movement.
type Action string

const (
	// ActionDeduction is the point-of-sale stock removal when a work
	// order is created.
	ActionDeduction Action = "Deduction"
	// ActionRestock is the add-back of a prior deduction during
	// completion reconciliation.
	ActionRestock Action = "Restock"
	// ActionUsage is the actual consumption reported at completion.
	ActionUsage Action = "Usage"
	// ActionVarianceAddBack records planned exceeding actual.
	ActionVarianceAddBack Action = "VarianceAddBack"
	// ActionVarianceOveruse records actual exceeding planned.
	ActionVarianceOveruse Action = "VarianceOveruse"
	// ActionSystemError records a line the engine could not apply, such
	// as an unknown inventory id.
	ActionSystemError Action = "SystemError"
)

// MaterialEntry is one ledger line.
type MaterialEntry struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	JobID        string  `json:"jobId"`
	CustomerName string  `json:"customerName"`
	MaterialName string  `json:"materialName"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit,omitempty"`
	LoggedBy     string  `json:"loggedBy"`
	Action       Action  `json:"action"`

	// Stock movement context, set for Deduction and Restock.
	PrevQty *float64 `json:"prevQty,omitempty"`
	NewQty  *float64 `json:"newQty,omitempty"`

	// Variance context, set for the variance actions.
	Estimated *float64 `json:"estimated,omitempty"`
	Actual    *float64 `json:"actual,omitempty"`
	Variance  *float64 `json:"variance,omitempty"`

	Error string `json:"error,omitempty"`
}

// PnLEntry is one realised profit line, appended when a job is paid.
type PnLEntry struct {
	DatePaid      string  `json:"datePaid"`
	JobID         string  `json:"jobId"`
	CustomerName  string  `json:"customerName"`
	InvoiceNumber string  `json:"invoiceNumber,omitempty"`
	Revenue       float64 `json:"revenue"`
	ChemicalCost  float64 `json:"chemicalCost"`
	LaborCost     float64 `json:"laborCost"`
	InventoryCost float64 `json:"inventoryCost"`
	MiscCost      float64 `json:"miscCost"`
	TotalCOGS     float64 `json:"totalCOGS"`
	NetProfit     float64 `json:"netProfit"`
	Margin        float64 `json:"margin"`
}

// TimeEntry is one crew clock line against a work order.
type TimeEntry struct {
	JobID     string `json:"jobId"`
	TechName  string `json:"techName"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime,omitempty"`
}

// Float returns a pointer for the optional numeric fields.
func Float(v float64) *float64 { return &v }

// When parses the entry date, falling back to the supplied default.
func (e MaterialEntry) When(fallback time.Time) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, e.Date); err == nil {
			return t
		}
	}
	return fallback
}
