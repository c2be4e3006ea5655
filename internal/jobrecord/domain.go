// Package jobrecord models the estimate/work-order/invoice record tracked
// through its status lifecycle, and the merge rules that keep
// field-reported progress authoritative during snapshot sync.
package jobrecord

import (
	"encoding/json"
	"time"

	"github.com/foamcrew/foamcrew/internal/customers"
)

// Status is the billing lifecycle of a job record.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusWorkOrder Status = "Work Order"
	StatusInvoiced  Status = "Invoiced"
	StatusPaid      Status = "Paid"
	StatusArchived  Status = "Archived"
)

// ExecutionStatus is the crew-side execution lifecycle.
type ExecutionStatus string

const (
	ExecutionNotStarted ExecutionStatus = "Not Started"
	ExecutionInProgress ExecutionStatus = "In Progress"
	ExecutionCompleted  ExecutionStatus = "Completed"
)

// InventoryLine is one planned or actually-consumed material line.
// Identity is the warehouse item id, never the name.
type InventoryLine struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
	UnitCost float64 `json:"unitCost,omitempty"`
}

// EquipmentSighting records where a tool was last used.
type EquipmentSighting struct {
	JobID        string `json:"jobId"`
	CustomerName string `json:"customerName"`
	Date         string `json:"date"`
	CrewMember   string `json:"crewMember"`
}

// EquipmentRef is a tool assigned to the job.
type EquipmentRef struct {
	ID       string             `json:"id"`
	Name     string             `json:"name,omitempty"`
	Status   string             `json:"status,omitempty"`
	LastSeen *EquipmentSighting `json:"lastSeen,omitempty"`
}

// Materials is the planned load-out for the job.
type Materials struct {
	OpenCellSets   float64         `json:"openCellSets"`
	ClosedCellSets float64         `json:"closedCellSets"`
	Inventory      []InventoryLine `json:"inventory,omitempty"`
	Equipment      []EquipmentRef  `json:"equipment,omitempty"`
}

// Actuals holds field-reported consumption, populated at completion.
type Actuals struct {
	OpenCellSets      float64         `json:"openCellSets"`
	ClosedCellSets    float64         `json:"closedCellSets"`
	OpenCellStrokes   float64         `json:"openCellStrokes,omitempty"`
	ClosedCellStrokes float64         `json:"closedCellStrokes,omitempty"`
	LaborHours        float64         `json:"laborHours,omitempty"`
	Inventory         []InventoryLine `json:"inventory,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	CompletedBy       string          `json:"completedBy,omitempty"`
	CompletionDate    string          `json:"completionDate,omitempty"`
	LastStartedAt     string          `json:"lastStartedAt,omitempty"`
}

// Financials is the frozen profit breakdown computed when a job is paid.
type Financials struct {
	Revenue       float64 `json:"revenue"`
	ChemicalCost  float64 `json:"chemicalCost"`
	LaborCost     float64 `json:"laborCost"`
	InventoryCost float64 `json:"inventoryCost"`
	MiscCost      float64 `json:"miscCost"`
	TotalCOGS     float64 `json:"totalCOGS"`
	NetProfit     float64 `json:"netProfit"`
	Margin        float64 `json:"margin"`
}

// Expenses carries the estimate-side labor and misc charges used for the
// financials calculation.
type Expenses struct {
	ManHours      float64         `json:"manHours,omitempty"`
	LaborRate     float64         `json:"laborRate,omitempty"`
	TripCharge    float64         `json:"tripCharge,omitempty"`
	FuelSurcharge float64         `json:"fuelSurcharge,omitempty"`
	Other         json.RawMessage `json:"other,omitempty"`
}

// DeductedValues snapshots what the point-of-sale deduction removed from
// stock, so completion can add it back exactly.
type DeductedValues struct {
	OpenCellSets   float64         `json:"openCellSets"`
	ClosedCellSets float64         `json:"closedCellSets"`
	Inventory      []InventoryLine `json:"inventory,omitempty"`
}

// VarianceEntry is one planned-vs-actual difference found at completion.
type VarianceEntry struct {
	Item      string  `json:"item"`
	Estimated float64 `json:"estimated"`
	Actual    float64 `json:"actual"`
	Variance  float64 `json:"variance"`
	Unit      string  `json:"unit,omitempty"`
}

// Reconciliation stores the full variance breakdown for later inspection.
type Reconciliation struct {
	Variances    []VarianceEntry `json:"variances"`
	ReconciledAt string          `json:"reconciledAt"`
}

// Record is one job record. Calculator inputs and results stay opaque:
// the engine consumes only the planned/actual quantities.
type Record struct {
	ID         string            `json:"id"`
	CustomerID string            `json:"customerId,omitempty"`
	Date       string            `json:"date,omitempty"`
	Customer   customers.Profile `json:"customer"`

	Status          Status          `json:"status"`
	ExecutionStatus ExecutionStatus `json:"executionStatus"`

	Inputs       json.RawMessage `json:"inputs,omitempty"`
	Results      json.RawMessage `json:"results,omitempty"`
	Materials    Materials       `json:"materials"`
	TotalValue   float64         `json:"totalValue"`
	WallSettings json.RawMessage `json:"wallSettings,omitempty"`
	RoofSettings json.RawMessage `json:"roofSettings,omitempty"`
	Expenses     Expenses        `json:"expenses"`

	Notes       string          `json:"notes,omitempty"`
	PricingMode string          `json:"pricingMode,omitempty"`
	SqFtRates   json.RawMessage `json:"sqFtRates,omitempty"`

	ScheduledDate string `json:"scheduledDate,omitempty"`
	InvoiceDate   string `json:"invoiceDate,omitempty"`
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	PaymentTerms  string `json:"paymentTerms,omitempty"`

	EstimateLines  json.RawMessage `json:"estimateLines,omitempty"`
	InvoiceLines   json.RawMessage `json:"invoiceLines,omitempty"`
	WorkOrderLines json.RawMessage `json:"workOrderLines,omitempty"`

	Actuals    *Actuals    `json:"actuals,omitempty"`
	Financials *Financials `json:"financials,omitempty"`

	WorkOrderSheetURL    string   `json:"workOrderSheetUrl,omitempty"`
	PDFLink              string   `json:"pdfLink,omitempty"`
	InvoicePDFLink       string   `json:"invoicePdfLink,omitempty"`
	CompletionReportLink string   `json:"completionReportLink,omitempty"`
	SitePhotos           []string `json:"sitePhotos,omitempty"`

	InventoryDeducted  bool            `json:"inventoryDeducted,omitempty"`
	InventoryProcessed bool            `json:"inventoryProcessed,omitempty"`
	DeductedValues     *DeductedValues `json:"deductedValues,omitempty"`
	Reconciliation     *Reconciliation `json:"reconciliation,omitempty"`

	LastModified string `json:"lastModified,omitempty"`
}

// MaterialCost reads the denormalized material cost out of the opaque
// calculator results, zero when absent.
func (r Record) MaterialCost() float64 {
	var res struct {
		MaterialCost float64 `json:"materialCost"`
	}
	if len(r.Results) == 0 {
		return 0
	}
	if err := json.Unmarshal(r.Results, &res); err != nil {
		return 0
	}
	return res.MaterialCost
}

// Touch stamps LastModified with now in RFC3339.
func (r *Record) Touch(now time.Time) {
	r.LastModified = now.UTC().Format(time.RFC3339)
}

// ParseTime parses the ISO timestamps used on the wire, zero on failure.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
