package transfer

import "time"

// Request payloads. Structural validation runs through the validator; the
// domain rules (positive quantities, open document) stay in the service so
// callers other than HTTP get the same coded errors.

type createDocumentRequest struct {
	Number          string              `json:"number" validate:"required"`
	SourceWarehouse string              `json:"source_warehouse"`
	TargetWarehouse string              `json:"target_warehouse"`
	Note            string              `json:"note"`
	Items           []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createItemRequest struct {
	LineNo     int      `json:"line_no"`
	Priority   Priority `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH CRITICAL"`
	IndexCode  string   `json:"index_code" validate:"required"`
	IndexCode2 string   `json:"index_code2"`
	Name       string   `json:"name" validate:"required"`
	Batch      string   `json:"batch"`
	Location   string   `json:"location"`
	Unit       string   `json:"unit" validate:"required"`
	PlannedQty float64  `json:"planned_qty" validate:"required,gt=0"`
	Note       string   `json:"note"`
}

type entryRequest struct {
	Qty  float64 `json:"qty" validate:"required,gt=0"`
	Note string  `json:"note"`
}

// Response views.

type documentView struct {
	ID              int64      `json:"id"`
	Number          string     `json:"number"`
	SourceWarehouse string     `json:"source_warehouse,omitempty"`
	TargetWarehouse string     `json:"target_warehouse,omitempty"`
	Note            string     `json:"note,omitempty"`
	Status          string     `json:"status"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ClosedByName    string     `json:"closed_by_name,omitempty"`
}

type summaryView struct {
	ItemsCount          int     `json:"items_count"`
	CompletedItemsCount int     `json:"completed_items_count"`
	PlannedQtyTotal     float64 `json:"planned_qty_total"`
	IssuedQtyTotal      float64 `json:"issued_qty_total"`
	ReceivedQtyTotal    float64 `json:"received_qty_total"`
}

type entryView struct {
	ID        int64     `json:"id"`
	Qty       float64   `json:"qty"`
	Note      string    `json:"note,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	ActorName string    `json:"actor_name"`
	CreatedAt time.Time `json:"created_at"`
}

type itemView struct {
	ID          int64       `json:"id"`
	LineNo      int         `json:"line_no"`
	Priority    string      `json:"priority"`
	IndexCode   string      `json:"index_code"`
	IndexCode2  string      `json:"index_code2,omitempty"`
	Name        string      `json:"name"`
	Batch       string      `json:"batch,omitempty"`
	Location    string      `json:"location,omitempty"`
	Unit        string      `json:"unit"`
	PlannedQty  float64     `json:"planned_qty"`
	IssuedQty   float64     `json:"issued_qty"`
	ReceivedQty float64     `json:"received_qty"`
	DiffQty     float64     `json:"diff_qty"`
	Status      string      `json:"status"`
	Note        string      `json:"note,omitempty"`
	Issues      []entryView `json:"issues"`
	Receipts    []entryView `json:"receipts"`
}

type documentDetailsView struct {
	documentView
	Items   []itemView  `json:"items"`
	Summary summaryView `json:"summary"`
}

type documentSummaryView struct {
	documentView
	summaryView
}

type entryResponse struct {
	Entry entryView `json:"entry"`
	Item  itemView  `json:"item"`
}

type listResponse struct {
	Documents  []documentSummaryView `json:"documents"`
	Page       int                   `json:"page"`
	PerPage    int                   `json:"per_page"`
	Total      int                   `json:"total"`
	TotalPages int                   `json:"total_pages"`
}

func toDocumentView(d Document) documentView {
	return documentView{
		ID:              d.ID,
		Number:          d.Number,
		SourceWarehouse: d.SourceWarehouse,
		TargetWarehouse: d.TargetWarehouse,
		Note:            d.Note,
		Status:          string(d.Status),
		CreatedBy:       d.CreatedBy,
		CreatedAt:       d.CreatedAt,
		ClosedAt:        d.ClosedAt,
		ClosedByName:    d.ClosedByName,
	}
}

func toSummaryView(s Summary) summaryView {
	return summaryView{
		ItemsCount:          s.ItemsCount,
		CompletedItemsCount: s.CompletedItemsCount,
		PlannedQtyTotal:     s.PlannedQtyTotal,
		IssuedQtyTotal:      s.IssuedQtyTotal,
		ReceivedQtyTotal:    s.ReceivedQtyTotal,
	}
}

func toEntryViews(entries []Entry) []entryView {
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{
			ID:        e.ID,
			Qty:       e.Qty,
			Note:      e.Note,
			ActorID:   e.ActorID,
			ActorName: e.ActorName,
			CreatedAt: e.CreatedAt,
		})
	}
	return views
}

func toItemView(it ItemDetails) itemView {
	return itemView{
		ID:          it.ID,
		LineNo:      it.LineNo,
		Priority:    string(it.Priority),
		IndexCode:   it.IndexCode,
		IndexCode2:  it.IndexCode2,
		Name:        it.Name,
		Batch:       it.Batch,
		Location:    it.Location,
		Unit:        it.Unit,
		PlannedQty:  it.PlannedQty,
		IssuedQty:   it.IssuedQty,
		ReceivedQty: it.ReceivedQty,
		DiffQty:     it.DiffQty,
		Status:      string(it.Status),
		Note:        it.Note,
		Issues:      toEntryViews(it.Issues),
		Receipts:    toEntryViews(it.Receipts),
	}
}

func toDetailsView(d DocumentDetails) documentDetailsView {
	items := make([]itemView, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, toItemView(it))
	}
	return documentDetailsView{
		documentView: toDocumentView(d.Document),
		Items:        items,
		Summary:      toSummaryView(d.Summary),
	}
}
