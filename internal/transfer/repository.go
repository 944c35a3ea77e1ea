package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-wms/atlas-wms/internal/platform/db"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// Repository provides PostgreSQL backed persistence for transfer documents
// and their issue/receipt ledgers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service. Every
// ledger mutation goes through LockItem first so concurrent writers to the
// same item serialize on the item row.
type TxRepository interface {
	GetDocument(ctx context.Context, id int64) (Document, error)
	GetDocumentForUpdate(ctx context.Context, id int64) (Document, error)
	InsertDocument(ctx context.Context, doc Document) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	SetClosed(ctx context.Context, id int64, closedBy string, at time.Time) error
	DeleteDocument(ctx context.Context, id int64) (bool, error)

	LockItem(ctx context.Context, documentID, itemID int64) (Item, error)
	InsertEntry(ctx context.Context, ledger Ledger, e Entry) (int64, error)
	GetEntry(ctx context.Context, ledger Ledger, itemID, entryID int64) (Entry, error)
	UpdateEntry(ctx context.Context, ledger Ledger, e Entry) (bool, error)
	DeleteEntry(ctx context.Context, ledger Ledger, itemID, entryID int64) (bool, error)
	ListEntries(ctx context.Context, ledger Ledger, itemID int64) ([]Entry, error)
	SaveAggregates(ctx context.Context, itemID int64, agg ItemAggregates) error
	CachedAggregates(ctx context.Context, itemID int64) (ItemAggregates, error)
}

// Ledger selects which of the two event logs an operation targets.
type Ledger string

const (
	LedgerIssues   Ledger = "issues"
	LedgerReceipts Ledger = "receipts"
)

func (l Ledger) table() string {
	if l == LedgerReceipts {
		return "transfer_receipts"
	}
	return "transfer_issues"
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction and retries
// serialization failures, so lost updates between concurrent ledger writers
// surface as transparent retries rather than silent drops.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const documentColumns = `id, number, source_warehouse, target_warehouse, note, status, created_by, created_at, closed_at, closed_by_name`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Number, &d.SourceWarehouse, &d.TargetWarehouse, &d.Note, &d.Status, &d.CreatedBy, &d.CreatedAt, &d.ClosedAt, &d.ClosedByName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return d, nil
}

func (r *txRepo) GetDocument(ctx context.Context, id int64) (Document, error) {
	return scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM transfer_documents WHERE id=$1`, id))
}

func (r *txRepo) GetDocumentForUpdate(ctx context.Context, id int64) (Document, error) {
	return scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM transfer_documents WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transfer_documents (number, source_warehouse, target_warehouse, note, status, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		doc.Number, doc.SourceWarehouse, doc.TargetWarehouse, doc.Note, doc.Status, doc.CreatedBy, doc.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transfer_items (document_id, line_no, priority, index_code, index_code2, name, batch, location, unit, planned_qty, note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		item.DocumentID, item.LineNo, item.Priority, item.IndexCode, item.IndexCode2, item.Name, item.Batch, item.Location, item.Unit, item.PlannedQty, item.Note).Scan(&id)
	return id, err
}

func (r *txRepo) SetClosed(ctx context.Context, id int64, closedBy string, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE transfer_documents SET status=$2, closed_at=$3, closed_by_name=$4 WHERE id=$1`,
		id, DocumentStatusClosed, at, closedBy)
	return err
}

func (r *txRepo) DeleteDocument(ctx context.Context, id int64) (bool, error) {
	// Ledger rows and items cascade via foreign keys.
	tag, err := r.tx.Exec(ctx, `DELETE FROM transfer_documents WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const itemColumns = `id, document_id, line_no, priority, index_code, index_code2, name, batch, location, unit, planned_qty, note`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.DocumentID, &it.LineNo, &it.Priority, &it.IndexCode, &it.IndexCode2, &it.Name, &it.Batch, &it.Location, &it.Unit, &it.PlannedQty, &it.Note)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return it, nil
}

// LockItem takes a row lock on the item so "read entries, mutate, recompute,
// write" runs once at a time per item. Items of the same document do not
// block each other.
func (r *txRepo) LockItem(ctx context.Context, documentID, itemID int64) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM transfer_items WHERE id=$1 AND document_id=$2 FOR UPDATE`, itemID, documentID))
}

func (r *txRepo) InsertEntry(ctx context.Context, ledger Ledger, e Entry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO `+ledger.table()+` (item_id, qty, note, actor_id, actor_name, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		e.ItemID, e.Qty, e.Note, e.ActorID, e.ActorName, e.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) GetEntry(ctx context.Context, ledger Ledger, itemID, entryID int64) (Entry, error) {
	var e Entry
	err := r.tx.QueryRow(ctx, `SELECT id, item_id, qty, note, actor_id, actor_name, created_at FROM `+ledger.table()+` WHERE id=$1 AND item_id=$2`, entryID, itemID).
		Scan(&e.ID, &e.ItemID, &e.Qty, &e.Note, &e.ActorID, &e.ActorName, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *txRepo) UpdateEntry(ctx context.Context, ledger Ledger, e Entry) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE `+ledger.table()+` SET qty=$3, note=$4 WHERE id=$1 AND item_id=$2`, e.ID, e.ItemID, e.Qty, e.Note)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *txRepo) DeleteEntry(ctx context.Context, ledger Ledger, itemID, entryID int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM `+ledger.table()+` WHERE id=$1 AND item_id=$2`, entryID, itemID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *txRepo) ListEntries(ctx context.Context, ledger Ledger, itemID int64) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, item_id, qty, note, actor_id, actor_name, created_at FROM `+ledger.table()+` WHERE item_id=$1 ORDER BY created_at, id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// SaveAggregates rewrites the cached aggregate columns on the item row. The
// columns are a read optimization for listings; the ledgers stay the only
// source of truth.
func (r *txRepo) SaveAggregates(ctx context.Context, itemID int64, agg ItemAggregates) error {
	_, err := r.tx.Exec(ctx, `UPDATE transfer_items SET issued_qty=$2, received_qty=$3, status=$4 WHERE id=$1`,
		itemID, agg.IssuedQty, agg.ReceivedQty, agg.Status)
	return err
}

// CachedAggregates reads the cached aggregate columns as last written.
func (r *txRepo) CachedAggregates(ctx context.Context, itemID int64) (ItemAggregates, error) {
	var agg ItemAggregates
	err := r.tx.QueryRow(ctx, `SELECT issued_qty, received_qty, status FROM transfer_items WHERE id=$1`, itemID).
		Scan(&agg.IssuedQty, &agg.ReceivedQty, &agg.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemAggregates{}, ErrItemNotFound
		}
		return ItemAggregates{}, err
	}
	return agg, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.Qty, &e.Note, &e.ActorID, &e.ActorName, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Read-side helpers outside transactions.

// GetDocumentDetails loads the document, its items and both complete ledgers
// per item. Aggregates are left zeroed; the service recomputes them from the
// returned entries instead of trusting cached columns.
func (r *Repository) GetDocumentDetails(ctx context.Context, id int64) (Document, []ItemDetails, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM transfer_documents WHERE id=$1`, id))
	if err != nil {
		return Document{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM transfer_items WHERE document_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Document{}, nil, err
	}
	defer rows.Close()

	var items []ItemDetails
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.DocumentID, &it.LineNo, &it.Priority, &it.IndexCode, &it.IndexCode2, &it.Name, &it.Batch, &it.Location, &it.Unit, &it.PlannedQty, &it.Note); err != nil {
			return Document{}, nil, err
		}
		items = append(items, ItemDetails{Item: it})
	}
	if err := rows.Err(); err != nil {
		return Document{}, nil, err
	}

	for i := range items {
		issues, err := r.listEntries(ctx, LedgerIssues, items[i].ID)
		if err != nil {
			return Document{}, nil, err
		}
		receipts, err := r.listEntries(ctx, LedgerReceipts, items[i].ID)
		if err != nil {
			return Document{}, nil, err
		}
		items[i].Issues = issues
		items[i].Receipts = receipts
	}
	return doc, items, nil
}

func (r *Repository) listEntries(ctx context.Context, ledger Ledger, itemID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, qty, note, actor_id, actor_name, created_at FROM `+ledger.table()+` WHERE item_id=$1 ORDER BY created_at, id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListFilter narrows and pages the document listing.
type ListFilter struct {
	Status  DocumentStatus
	Page    int
	PerPage int
}

// ItemRollup carries per-item ledger sums for the listing; statuses are
// derived in the service so the status engine stays the single code path.
type ItemRollup struct {
	DocumentID  int64
	PlannedQty  float64
	IssuedQty   float64
	ReceivedQty float64
}

// ListDocuments returns one page of document headers plus the total count.
func (r *Repository) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, shared.Pagination, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)

	var total int
	countQuery := `SELECT COUNT(*) FROM transfer_documents WHERE ($1 = '' OR status = $1)`
	if err := r.pool.QueryRow(ctx, countQuery, string(filter.Status)).Scan(&total); err != nil {
		return nil, page, err
	}
	page = shared.NewPagination(filter.Page, filter.PerPage, total)

	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM transfer_documents
WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		string(filter.Status), page.PerPage, page.Offset())
	if err != nil {
		return nil, page, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Number, &d.SourceWarehouse, &d.TargetWarehouse, &d.Note, &d.Status, &d.CreatedBy, &d.CreatedAt, &d.ClosedAt, &d.ClosedByName); err != nil {
			return nil, page, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, page, err
	}
	return docs, page, nil
}

// ListItemRefs returns every item id with its document, for the integrity sweep.
func (r *Repository) ListItemRefs(ctx context.Context) ([]ItemRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT document_id, id FROM transfer_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []ItemRef
	for rows.Next() {
		var ref ItemRef
		if err := rows.Scan(&ref.DocumentID, &ref.ItemID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// ListItemRollups sums both ledgers per item for the given documents.
func (r *Repository) ListItemRollups(ctx context.Context, documentIDs []int64) ([]ItemRollup, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT i.document_id, i.planned_qty,
COALESCE((SELECT SUM(qty) FROM transfer_issues WHERE item_id = i.id), 0),
COALESCE((SELECT SUM(qty) FROM transfer_receipts WHERE item_id = i.id), 0)
FROM transfer_items i WHERE i.document_id = ANY($1) ORDER BY i.document_id, i.line_no`, documentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rollups []ItemRollup
	for rows.Next() {
		var ru ItemRollup
		if err := rows.Scan(&ru.DocumentID, &ru.PlannedQty, &ru.IssuedQty, &ru.ReceivedQty); err != nil {
			return nil, err
		}
		rollups = append(rollups, ru)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rollups, nil
}
