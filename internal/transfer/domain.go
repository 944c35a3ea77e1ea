package transfer

import "time"

// Document lifecycle statuses.
type DocumentStatus string

const (
	DocumentStatusOpen   DocumentStatus = "OPEN"
	DocumentStatusClosed DocumentStatus = "CLOSED"
)

// Item fulfilment statuses, derived from the ledgers and never persisted as truth.
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "PENDING"
	ItemStatusPartial ItemStatus = "PARTIAL"
	ItemStatusDone    ItemStatus = "DONE"
	ItemStatusOver    ItemStatus = "OVER"
)

// Line priorities.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Document is a warehouse transfer document header.
type Document struct {
	ID              int64
	Number          string
	SourceWarehouse string
	TargetWarehouse string
	Note            string
	Status          DocumentStatus
	CreatedBy       string
	CreatedAt       time.Time
	ClosedAt        *time.Time
	ClosedByName    string
}

// Item is one planned transfer line. Immutable after creation; its two
// ledgers (issues, receipts) accumulate against it over time.
type Item struct {
	ID         int64
	DocumentID int64
	LineNo     int
	Priority   Priority
	IndexCode  string
	IndexCode2 string
	Name       string
	Batch      string
	Location   string
	Unit       string
	PlannedQty float64
	Note       string
}

// Entry is a single ledger event: a partial issue (dispatch) or a partial
// receipt (goods-in) recorded against one item.
type Entry struct {
	ID        int64
	ItemID    int64
	Qty       float64
	Note      string
	ActorID   string
	ActorName string
	CreatedAt time.Time
}

// ItemAggregates carries quantities recomputed from the ledgers.
type ItemAggregates struct {
	IssuedQty   float64
	ReceivedQty float64
	DiffQty     float64
	Status      ItemStatus
}

// ItemDetails is an item together with its live aggregates and ledgers.
type ItemDetails struct {
	Item
	ItemAggregates
	Issues   []Entry
	Receipts []Entry
}

// DocumentDetails is the full read model for one document.
type DocumentDetails struct {
	Document
	Items   []ItemDetails
	Summary Summary
}

// DocumentSummary is the listing row: header plus rollup counters.
type DocumentSummary struct {
	Document
	Summary
}

// Summary holds document-level rollup counters over the current items.
type Summary struct {
	ItemsCount          int
	CompletedItemsCount int
	PlannedQtyTotal     float64
	IssuedQtyTotal      float64
	ReceivedQtyTotal    float64
}

// Actor identifies who performs a mutation. Identity is established by the
// external auth gateway and forwarded with the request.
type Actor struct {
	ID   string
	Name string
}
