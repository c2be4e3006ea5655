package report

import (
	"bytes"
	"fmt"
	"html/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/warehouse"
)

// WorkOrderData feeds the printable work-order sheet handed to the crew.
type WorkOrderData struct {
	Company   warehouse.CompanyProfile
	Job       jobrecord.Record
	CrewNotes string
}

var usd = message.NewPrinter(language.AmericanEnglish)

var workOrderTmpl = template.Must(template.New("workorder").Funcs(template.FuncMap{
	"money": func(v float64) string { return usd.Sprintf("$%.2f", v) },
	"qty":   func(v float64) string { return usd.Sprintf("%v", v) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Work Order {{.Job.ID}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #222; margin: 32px; }
h1 { background: #E30613; color: #fff; padding: 8px 12px; font-size: 18px; }
h2 { border-bottom: 2px solid #E30613; padding-bottom: 4px; font-size: 14px; margin-top: 24px; }
table { width: 100%; border-collapse: collapse; margin-top: 8px; }
th, td { border: 1px solid #ccc; padding: 6px 8px; text-align: left; }
th { background: #f4f4f4; }
.meta td { border: none; padding: 2px 8px 2px 0; }
.notes { white-space: pre-wrap; border: 1px solid #ccc; padding: 8px; min-height: 48px; }
</style>
</head>
<body>
<h1>{{.Company.CompanyName}} — Work Order</h1>
<table class="meta">
<tr><td><strong>Job:</strong> {{.Job.ID}}</td><td><strong>Scheduled:</strong> {{.Job.ScheduledDate}}</td></tr>
<tr><td><strong>Customer:</strong> {{.Job.Customer.Name}}</td><td><strong>Phone:</strong> {{.Job.Customer.Phone}}</td></tr>
<tr><td colspan="2"><strong>Site:</strong> {{.Job.Customer.Address}}, {{.Job.Customer.City}} {{.Job.Customer.State}} {{.Job.Customer.Zip}}</td></tr>
</table>

<h2>Foam Load-Out</h2>
<table>
<tr><th>Material</th><th>Planned Sets</th></tr>
<tr><td>Open Cell Foam</td><td>{{qty .Job.Materials.OpenCellSets}}</td></tr>
<tr><td>Closed Cell Foam</td><td>{{qty .Job.Materials.ClosedCellSets}}</td></tr>
</table>

{{if .Job.Materials.Inventory}}
<h2>Inventory</h2>
<table>
<tr><th>Item</th><th>Quantity</th><th>Unit</th></tr>
{{range .Job.Materials.Inventory}}
<tr><td>{{.Name}}</td><td>{{qty .Quantity}}</td><td>{{.Unit}}</td></tr>
{{end}}
</table>
{{end}}

{{if .Job.Materials.Equipment}}
<h2>Equipment</h2>
<table>
<tr><th>Tool</th><th>Status</th></tr>
{{range .Job.Materials.Equipment}}
<tr><td>{{.Name}}</td><td>{{.Status}}</td></tr>
{{end}}
</table>
{{end}}

<h2>Job Value</h2>
<table>
<tr><th>Total Value</th><td>{{money .Job.TotalValue}}</td></tr>
</table>

<h2>Job Notes</h2>
<div class="notes">{{if .CrewNotes}}{{.CrewNotes}}{{else}}No notes.{{end}}</div>

<h2>Daily Crew Log</h2>
<table>
<tr><th>Date</th><th>Tech</th><th>Start</th><th>End</th><th>Notes</th></tr>
{{range $i := .LogRows}}
<tr><td>&nbsp;</td><td></td><td></td><td></td><td></td></tr>
{{end}}
</table>
</body>
</html>`))

// logRowCount is the number of blank crew log lines on the sheet.
const logRowCount = 6

// WorkOrderHTML renders the printable sheet.
func WorkOrderHTML(data WorkOrderData) (string, error) {
	if data.CrewNotes == "" {
		data.CrewNotes = data.Job.Notes
	}
	var buf bytes.Buffer
	payload := struct {
		WorkOrderData
		LogRows []int
	}{WorkOrderData: data, LogRows: make([]int, logRowCount)}
	if err := workOrderTmpl.Execute(&buf, payload); err != nil {
		return "", fmt.Errorf("report: render work order: %w", err)
	}
	return buf.String(), nil
}
