package jobrecord

import "time"

// Merge resolves one incoming client copy against the server's current
// copy of the same job. Field-side progress is sticky: a stale office
// snapshot must never roll back completion, payment, or the idempotence
// gates that guard the inventory ledger. Additive fields (document links,
// photos) are filled from the server copy when the incoming one lacks
// them, never regressed.
func Merge(existing, incoming Record) Record {
	merged := incoming

	if existing.ExecutionStatus == ExecutionCompleted && incoming.ExecutionStatus != ExecutionCompleted {
		merged.ExecutionStatus = ExecutionCompleted
		merged.Actuals = existing.Actuals
	}
	if existing.ExecutionStatus == ExecutionCompleted && incoming.ExecutionStatus == ExecutionCompleted {
		existingDate := completionTime(existing.Actuals)
		incomingDate := completionTime(incoming.Actuals)
		if existingDate.After(incomingDate) {
			merged.Actuals = existing.Actuals
		}
	}
	if existing.ExecutionStatus == ExecutionInProgress && incoming.ExecutionStatus == ExecutionNotStarted {
		merged.ExecutionStatus = ExecutionInProgress
		if merged.Actuals == nil {
			merged.Actuals = existing.Actuals
		}
	}

	if existing.Status == StatusPaid && incoming.Status != StatusPaid {
		merged.Status = StatusPaid
		if merged.Financials == nil {
			merged.Financials = existing.Financials
		}
	}

	// The ledger gates are monotone: once set on the server they survive
	// every merge, or a client retry could deduct stock twice.
	if existing.InventoryDeducted && !merged.InventoryDeducted {
		merged.InventoryDeducted = true
		if merged.DeductedValues == nil {
			merged.DeductedValues = existing.DeductedValues
		}
	}
	if existing.InventoryProcessed && !merged.InventoryProcessed {
		merged.InventoryProcessed = true
		if merged.Reconciliation == nil {
			merged.Reconciliation = existing.Reconciliation
		}
	}

	if existing.PDFLink != "" && merged.PDFLink == "" {
		merged.PDFLink = existing.PDFLink
	}
	if existing.InvoicePDFLink != "" && merged.InvoicePDFLink == "" {
		merged.InvoicePDFLink = existing.InvoicePDFLink
	}
	if existing.CompletionReportLink != "" && merged.CompletionReportLink == "" {
		merged.CompletionReportLink = existing.CompletionReportLink
	}
	if existing.WorkOrderSheetURL != "" && merged.WorkOrderSheetURL == "" {
		merged.WorkOrderSheetURL = existing.WorkOrderSheetURL
	}
	if len(existing.SitePhotos) > 0 && len(merged.SitePhotos) == 0 {
		merged.SitePhotos = existing.SitePhotos
	}

	return merged
}

// MergeAll folds a client job set into the server's, returning the full
// merged set. Server records absent from the payload survive untouched.
func MergeAll(serverRecords []Record, incoming []Record) []Record {
	byID := make(map[string]Record, len(serverRecords))
	order := make([]string, 0, len(serverRecords)+len(incoming))
	for _, rec := range serverRecords {
		if rec.ID == "" {
			continue
		}
		byID[rec.ID] = rec
		order = append(order, rec.ID)
	}
	for _, in := range incoming {
		if in.ID == "" {
			continue
		}
		if existing, ok := byID[in.ID]; ok {
			byID[in.ID] = Merge(existing, in)
		} else {
			byID[in.ID] = in
			order = append(order, in.ID)
		}
	}
	out := make([]Record, 0, len(byID))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func completionTime(a *Actuals) time.Time {
	if a == nil {
		return time.Time{}
	}
	return ParseTime(a.CompletionDate)
}
