package store

// Kind distinguishes the two physical layouts a collection can have.
type Kind int

const (
	// KindKeyed stores one row per record key, upserted in place.
	KindKeyed Kind = iota
	// KindLog stores append-only rows ordered by insertion.
	KindLog
)

// Column is a denormalized index column kept alongside the serialized
// record for fast lookup and sorting.
type Column struct {
	Name string
	Type string
}

// Collection describes one named record collection. Every record is held
// whole in the doc column; the index columns mirror a few fields of it.
type Collection struct {
	Name    string
	Table   string
	Kind    Kind
	Columns []Column
	// Indexed lists column names that get a secondary index.
	Indexed []string
	// TailColumn orders Tail scans for keyed collections that are
	// chronologically appended (messages). Log collections order by id.
	TailColumn string
}

var (
	// Jobs holds estimate/work-order/invoice records.
	Jobs = Collection{
		Name:  "Jobs",
		Table: "job_records",
		Kind:  KindKeyed,
		Columns: []Column{
			{Name: "customer_name", Type: "TEXT"},
			{Name: "total_value", Type: "NUMERIC"},
			{Name: "status", Type: "TEXT"},
			{Name: "execution_status", Type: "TEXT"},
			{Name: "invoice_number", Type: "TEXT"},
			{Name: "material_cost", Type: "NUMERIC"},
			{Name: "pdf_link", Type: "TEXT"},
			{Name: "last_modified", Type: "TIMESTAMPTZ"},
		},
		Indexed: []string{"status", "execution_status", "last_modified"},
	}

	// Customers holds customer profile records.
	Customers = Collection{
		Name:  "Customers",
		Table: "customer_records",
		Kind:  KindKeyed,
		Columns: []Column{
			{Name: "name", Type: "TEXT"},
			{Name: "city", Type: "TEXT"},
			{Name: "state", Type: "TEXT"},
			{Name: "phone", Type: "TEXT"},
			{Name: "email", Type: "TEXT"},
			{Name: "status", Type: "TEXT"},
		},
		Indexed: []string{"name"},
	}

	// Inventory holds warehouse line items, identified by id.
	Inventory = Collection{
		Name:  "Inventory",
		Table: "inventory_items",
		Kind:  KindKeyed,
		Columns: []Column{
			{Name: "name", Type: "TEXT"},
			{Name: "quantity", Type: "NUMERIC"},
			{Name: "unit", Type: "TEXT"},
			{Name: "unit_cost", Type: "NUMERIC"},
		},
	}

	// Equipment holds tracked tools and rigs.
	Equipment = Collection{
		Name:  "Equipment",
		Table: "equipment_items",
		Kind:  KindKeyed,
		Columns: []Column{
			{Name: "name", Type: "TEXT"},
			{Name: "status", Type: "TEXT"},
		},
	}

	// Messages holds the admin/crew chat, appended chronologically.
	Messages = Collection{
		Name:  "Messages",
		Table: "messages",
		Kind:  KindKeyed,
		Columns: []Column{
			{Name: "estimate_id", Type: "TEXT"},
			{Name: "sender", Type: "TEXT"},
			{Name: "created_at", Type: "TIMESTAMPTZ"},
		},
		Indexed:    []string{"estimate_id", "created_at"},
		TailColumn: "created_at",
	}

	// MaterialLog is the append-only material movement ledger.
	MaterialLog = Collection{
		Name:  "MaterialLog",
		Table: "material_log",
		Kind:  KindLog,
		Columns: []Column{
			{Name: "job_id", Type: "TEXT"},
			{Name: "customer_name", Type: "TEXT"},
			{Name: "material_name", Type: "TEXT"},
			{Name: "quantity", Type: "NUMERIC"},
			{Name: "unit", Type: "TEXT"},
			{Name: "logged_by", Type: "TEXT"},
		},
		Indexed: []string{"job_id"},
	}

	// ProfitAndLoss is the append-only realised P&L ledger.
	ProfitAndLoss = Collection{
		Name:  "ProfitAndLoss",
		Table: "profit_loss",
		Kind:  KindLog,
		Columns: []Column{
			{Name: "job_id", Type: "TEXT"},
			{Name: "customer_name", Type: "TEXT"},
			{Name: "invoice_number", Type: "TEXT"},
			{Name: "revenue", Type: "NUMERIC"},
			{Name: "net_profit", Type: "NUMERIC"},
		},
	}

	// CrewTimeLog records crew clock in/out lines per work order.
	CrewTimeLog = Collection{
		Name:  "CrewTimeLog",
		Table: "crew_time_log",
		Kind:  KindLog,
		Columns: []Column{
			{Name: "job_id", Type: "TEXT"},
			{Name: "tech_name", Type: "TEXT"},
			{Name: "started_at", Type: "TIMESTAMPTZ"},
			{Name: "ended_at", Type: "TIMESTAMPTZ"},
		},
	}
)

// All enumerates every collection, used by Ensure at startup and tests.
var All = []Collection{Jobs, Customers, Inventory, Equipment, Messages, MaterialLog, ProfitAndLoss, CrewTimeLog}
