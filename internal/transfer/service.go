package transfer

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocumentDetails(ctx context.Context, id int64) (Document, []ItemDetails, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, shared.Pagination, error)
	ListItemRollups(ctx context.Context, documentIDs []int64) ([]ItemRollup, error)
}

// AuditPort records administrative actions for the compliance trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards retried creation requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key string) error
}

const idempotencyScope = "transfer"

// Service owns the transfer document lifecycle and the ledger aggregation.
// All mutation goes through here, never through direct field writes, so the
// invariants hold at a single choke point.
type Service struct {
	repo     RepositoryPort
	notifier Notifier
	audit    AuditPort
	idem     IdempotencyPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the transfer service. Audit and idempotency
// collaborators are optional.
func NewService(repo RepositoryPort, notifier Notifier, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, audit: audit, idem: idem, logger: logger, now: time.Now}
}

// recordAudit persists the compliance record best-effort; a write failure is
// logged and never fails the triggering mutation.
func (s *Service) recordAudit(ctx context.Context, actor Actor, action string, documentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    action,
		Entity:    "transfer_document",
		EntityID:  strconv.FormatInt(documentID, 10),
		Meta:      meta,
		At:        s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed",
			slog.String("action", action),
			slog.Int64("document_id", documentID),
			slog.Any("error", err))
	}
}

// CreateDocumentInput describes the creation payload. IdempotencyKey is
// optional; when present a retried request with the same key is rejected
// instead of creating a second document.
type CreateDocumentInput struct {
	Number          string
	SourceWarehouse string
	TargetWarehouse string
	Note            string
	IdempotencyKey  string
	Items           []CreateItemInput
}

// CreateItemInput describes one planned line.
type CreateItemInput struct {
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

// EntryInput carries the payload for appending or editing a ledger entry.
type EntryInput struct {
	DocumentID int64
	ItemID     int64
	EntryID    int64
	Qty        float64
	Note       string
}

// CreateDocument validates and persists a document with its planned lines.
// All items start PENDING with empty ledgers. Creation is announced to the
// notification collaborator best-effort.
func (s *Service) CreateDocument(ctx context.Context, actor Actor, input CreateDocumentInput) (DocumentDetails, error) {
	if strings.TrimSpace(input.Number) == "" {
		return DocumentDetails{}, ErrDocumentNumberRequired
	}
	if len(input.Items) == 0 {
		return DocumentDetails{}, ItemInvalid(0, "at least one item is required")
	}
	for i, item := range input.Items {
		lineNo := item.LineNo
		if lineNo == 0 {
			lineNo = i + 1
		}
		if strings.TrimSpace(item.IndexCode) == "" {
			return DocumentDetails{}, ItemInvalid(lineNo, "index code is required")
		}
		if strings.TrimSpace(item.Name) == "" {
			return DocumentDetails{}, ItemInvalid(lineNo, "name is required")
		}
		if strings.TrimSpace(item.Unit) == "" {
			return DocumentDetails{}, ItemInvalid(lineNo, "unit is required")
		}
		if item.PlannedQty <= 0 {
			return DocumentDetails{}, ItemInvalid(lineNo, "planned quantity must be positive")
		}
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyScope)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return DocumentDetails{}, ErrDuplicateRequest
		}
		if err != nil {
			return DocumentDetails{}, err
		}
	}

	doc := Document{
		Number:          strings.TrimSpace(input.Number),
		SourceWarehouse: input.SourceWarehouse,
		TargetWarehouse: input.TargetWarehouse,
		Note:            input.Note,
		Status:          DocumentStatusOpen,
		CreatedBy:       actor.Name,
		CreatedAt:       s.now(),
	}
	var details DocumentDetails
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		docID, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = docID
		items := make([]ItemDetails, 0, len(input.Items))
		for i, in := range input.Items {
			lineNo := in.LineNo
			if lineNo == 0 {
				lineNo = i + 1
			}
			priority := in.Priority
			if priority == "" {
				priority = PriorityNormal
			}
			item := Item{
				DocumentID: docID,
				LineNo:     lineNo,
				Priority:   priority,
				IndexCode:  in.IndexCode,
				IndexCode2: in.IndexCode2,
				Name:       in.Name,
				Batch:      in.Batch,
				Location:   in.Location,
				Unit:       in.Unit,
				PlannedQty: in.PlannedQty,
				Note:       in.Note,
			}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			items = append(items, ItemDetails{
				Item:           item,
				ItemAggregates: ItemAggregates{DiffQty: -item.PlannedQty, Status: ItemStatusPending},
			})
		}
		details = DocumentDetails{Document: doc, Items: items, Summary: Summarize(items)}
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			// Free the key so the client may retry the failed request.
			if derr := s.idem.Delete(ctx, input.IdempotencyKey); derr != nil {
				s.logger.Warn("idempotency key rollback failed", slog.Any("error", derr))
			}
		}
		return DocumentDetails{}, err
	}

	s.recordAudit(ctx, actor, "document.create", doc.ID, map[string]any{
		"number": doc.Number,
		"items":  len(details.Items),
	})
	s.logger.Info("transfer document created",
		slog.Int64("document_id", doc.ID),
		slog.String("number", doc.Number),
		slog.Int("items", len(details.Items)))
	s.notifier.Notify(ctx, DocumentEvent{
		Kind:            EventDocumentCreated,
		DocumentID:      doc.ID,
		DocumentNumber:  doc.Number,
		SourceWarehouse: doc.SourceWarehouse,
		TargetWarehouse: doc.TargetWarehouse,
		ActorID:         actor.ID,
	})
	return details, nil
}

// AddIssue appends a dispatch event to the item's issue ledger.
func (s *Service) AddIssue(ctx context.Context, actor Actor, input EntryInput) (Entry, ItemDetails, error) {
	return s.addEntry(ctx, LedgerIssues, actor, input)
}

// AddReceipt appends a goods-in event to the item's receipt ledger.
func (s *Service) AddReceipt(ctx context.Context, actor Actor, input EntryInput) (Entry, ItemDetails, error) {
	return s.addEntry(ctx, LedgerReceipts, actor, input)
}

func (s *Service) addEntry(ctx context.Context, ledger Ledger, actor Actor, input EntryInput) (Entry, ItemDetails, error) {
	if input.Qty <= 0 {
		return Entry{}, ItemDetails{}, ErrInvalidQty
	}
	var (
		entry   Entry
		details ItemDetails
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := s.lockOpenItem(ctx, tx, input.DocumentID, input.ItemID)
		if err != nil {
			return err
		}
		entry = Entry{
			ItemID:    item.ID,
			Qty:       input.Qty,
			Note:      input.Note,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			CreatedAt: s.now(),
		}
		id, err := tx.InsertEntry(ctx, ledger, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		details, err = s.recompute(ctx, tx, item)
		return err
	})
	if err != nil {
		return Entry{}, ItemDetails{}, err
	}
	return entry, details, nil
}

// UpdateIssue replaces quantity and note of one issue entry, then recomputes.
func (s *Service) UpdateIssue(ctx context.Context, input EntryInput) (Entry, ItemDetails, error) {
	return s.updateEntry(ctx, LedgerIssues, input)
}

// UpdateReceipt replaces quantity and note of one receipt entry, then recomputes.
func (s *Service) UpdateReceipt(ctx context.Context, input EntryInput) (Entry, ItemDetails, error) {
	return s.updateEntry(ctx, LedgerReceipts, input)
}

func (s *Service) updateEntry(ctx context.Context, ledger Ledger, input EntryInput) (Entry, ItemDetails, error) {
	if input.Qty <= 0 {
		return Entry{}, ItemDetails{}, ErrInvalidQty
	}
	var (
		entry   Entry
		details ItemDetails
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := s.lockOpenItem(ctx, tx, input.DocumentID, input.ItemID)
		if err != nil {
			return err
		}
		entry, err = tx.GetEntry(ctx, ledger, item.ID, input.EntryID)
		if err != nil {
			return err
		}
		entry.Qty = input.Qty
		entry.Note = input.Note
		ok, err := tx.UpdateEntry(ctx, ledger, entry)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		details, err = s.recompute(ctx, tx, item)
		return err
	})
	if err != nil {
		return Entry{}, ItemDetails{}, err
	}
	return entry, details, nil
}

// RemoveIssue deletes one issue entry, then recomputes.
func (s *Service) RemoveIssue(ctx context.Context, input EntryInput) (ItemDetails, error) {
	return s.removeEntry(ctx, LedgerIssues, input)
}

// RemoveReceipt deletes one receipt entry, then recomputes.
func (s *Service) RemoveReceipt(ctx context.Context, input EntryInput) (ItemDetails, error) {
	return s.removeEntry(ctx, LedgerReceipts, input)
}

func (s *Service) removeEntry(ctx context.Context, ledger Ledger, input EntryInput) (ItemDetails, error) {
	var details ItemDetails
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := s.lockOpenItem(ctx, tx, input.DocumentID, input.ItemID)
		if err != nil {
			return err
		}
		ok, err := tx.DeleteEntry(ctx, ledger, item.ID, input.EntryID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		details, err = s.recompute(ctx, tx, item)
		return err
	})
	if err != nil {
		return ItemDetails{}, err
	}
	return details, nil
}

// lockOpenItem checks the document is OPEN and takes the per-item row lock
// that serializes concurrent ledger writers on the same line.
func (s *Service) lockOpenItem(ctx context.Context, tx TxRepository, documentID, itemID int64) (Item, error) {
	doc, err := tx.GetDocument(ctx, documentID)
	if err != nil {
		return Item{}, err
	}
	if doc.Status == DocumentStatusClosed {
		return Item{}, ErrDocumentClosed
	}
	return tx.LockItem(ctx, documentID, itemID)
}

// recompute folds the complete current ledgers of the item and persists the
// cached aggregate columns inside the same transaction.
func (s *Service) recompute(ctx context.Context, tx TxRepository, item Item) (ItemDetails, error) {
	issues, err := tx.ListEntries(ctx, LedgerIssues, item.ID)
	if err != nil {
		return ItemDetails{}, err
	}
	receipts, err := tx.ListEntries(ctx, LedgerReceipts, item.ID)
	if err != nil {
		return ItemDetails{}, err
	}
	agg := AggregatesOf(item.PlannedQty, issues, receipts)
	if err := tx.SaveAggregates(ctx, item.ID, agg); err != nil {
		return ItemDetails{}, err
	}
	return ItemDetails{Item: item, ItemAggregates: agg, Issues: issues, Receipts: receipts}, nil
}

// MarkIssued signals the document is ready for receiving. Idempotent: it
// changes no state and only re-fires the notification; duplicate suppression
// belongs to the notifier.
func (s *Service) MarkIssued(ctx context.Context, actor Actor, documentID int64) (Document, error) {
	return s.signal(ctx, actor, documentID, EventDocumentIssued)
}

// RequestPackage asks the fulfilment collaborator for a physical pick/pack
// action. Like MarkIssued it records nothing in this core.
func (s *Service) RequestPackage(ctx context.Context, actor Actor, documentID int64) (Document, error) {
	return s.signal(ctx, actor, documentID, EventPackageRequested)
}

func (s *Service) signal(ctx context.Context, actor Actor, documentID int64, kind string) (Document, error) {
	doc, _, err := s.repo.GetDocumentDetails(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.Status == DocumentStatusClosed {
		return Document{}, ErrDocumentClosed
	}
	s.notifier.Notify(ctx, DocumentEvent{
		Kind:            kind,
		DocumentID:      doc.ID,
		DocumentNumber:  doc.Number,
		SourceWarehouse: doc.SourceWarehouse,
		TargetWarehouse: doc.TargetWarehouse,
		ActorID:         actor.ID,
	})
	return doc, nil
}

// Close sets the document CLOSED. Closing is an administrative action and is
// permitted regardless of item completion; afterwards all ledger mutations
// are rejected.
func (s *Service) Close(ctx context.Context, actor Actor, documentID int64) (Document, error) {
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetDocumentForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.Status == DocumentStatusClosed {
			return ErrAlreadyClosed
		}
		closedAt := s.now()
		if err := tx.SetClosed(ctx, documentID, actor.Name, closedAt); err != nil {
			return err
		}
		doc.Status = DocumentStatusClosed
		doc.ClosedAt = &closedAt
		doc.ClosedByName = actor.Name
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, actor, "document.close", doc.ID, map[string]any{"number": doc.Number})
	s.logger.Info("transfer document closed",
		slog.Int64("document_id", doc.ID),
		slog.String("closed_by", actor.Name))
	return doc, nil
}

// RemoveDocument deletes the document with its items and both ledgers.
func (s *Service) RemoveDocument(ctx context.Context, actor Actor, documentID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.DeleteDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "document.remove", documentID, nil)
	return nil
}

// GetDocument returns the full detail view with aggregates recomputed from
// the ledgers; cached columns are never consulted.
func (s *Service) GetDocument(ctx context.Context, documentID int64) (DocumentDetails, error) {
	doc, items, err := s.repo.GetDocumentDetails(ctx, documentID)
	if err != nil {
		return DocumentDetails{}, err
	}
	for i := range items {
		items[i].ItemAggregates = AggregatesOf(items[i].PlannedQty, items[i].Issues, items[i].Receipts)
	}
	return DocumentDetails{Document: doc, Items: items, Summary: Summarize(items)}, nil
}

// ListDocuments returns one page of document summaries with rollup counters.
func (s *Service) ListDocuments(ctx context.Context, filter ListFilter) ([]DocumentSummary, shared.Pagination, error) {
	docs, page, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, page, err
	}
	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	rollups, err := s.repo.ListItemRollups(ctx, ids)
	if err != nil {
		return nil, page, err
	}
	byDoc := make(map[int64][]ItemDetails, len(docs))
	for _, ru := range rollups {
		byDoc[ru.DocumentID] = append(byDoc[ru.DocumentID], ItemDetails{
			Item: Item{PlannedQty: ru.PlannedQty},
			ItemAggregates: ItemAggregates{
				IssuedQty:   ru.IssuedQty,
				ReceivedQty: ru.ReceivedQty,
				Status:      ItemStatusOf(ru.PlannedQty, ru.IssuedQty, ru.ReceivedQty),
			},
		})
	}
	summaries := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, DocumentSummary{Document: d, Summary: Summarize(byDoc[d.ID])})
	}
	return summaries, page, nil
}
