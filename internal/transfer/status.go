package transfer

// ItemStatusOf derives the fulfilment status of one line from its planned
// quantity and the ledger sums. Completion is judged against goods actually
// received; issues only mark the line as in progress. Pure function.
func ItemStatusOf(plannedQty, issuedQty, receivedQty float64) ItemStatus {
	switch {
	case receivedQty > plannedQty:
		return ItemStatusOver
	case receivedQty == plannedQty && plannedQty > 0:
		return ItemStatusDone
	case issuedQty > 0 || receivedQty > 0:
		return ItemStatusPartial
	default:
		return ItemStatusPending
	}
}

// AggregatesOf folds the complete issue and receipt ledgers of an item into
// its derived quantities and status. There is deliberately a single code
// path for append, edit and removal: callers always replay the full current
// set of entries.
func AggregatesOf(plannedQty float64, issues, receipts []Entry) ItemAggregates {
	var issued, received float64
	for _, e := range issues {
		issued += e.Qty
	}
	for _, e := range receipts {
		received += e.Qty
	}
	return ItemAggregates{
		IssuedQty:   issued,
		ReceivedQty: received,
		DiffQty:     received - plannedQty,
		Status:      ItemStatusOf(plannedQty, issued, received),
	}
}

// Summarize rolls item aggregates up into document-level counters. Recomputed
// on every read that needs it.
func Summarize(items []ItemDetails) Summary {
	s := Summary{ItemsCount: len(items)}
	for _, it := range items {
		s.PlannedQtyTotal += it.PlannedQty
		s.IssuedQtyTotal += it.IssuedQty
		s.ReceivedQtyTotal += it.ReceivedQty
		if it.Status == ItemStatusDone || it.Status == ItemStatusOver {
			s.CompletedItemsCount++
		}
	}
	return s
}
