package transfer

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// memoryRepo is an in-memory RepositoryPort. WithTx serializes on a mutex,
// which stands in for the per-item row lock of the real store.
type memoryRepo struct {
	mu      sync.Mutex
	docs    map[int64]Document
	items   map[int64]Item
	ledgers map[Ledger]map[int64][]Entry
	cached  map[int64]ItemAggregates
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		docs:  make(map[int64]Document),
		items: make(map[int64]Item),
		ledgers: map[Ledger]map[int64][]Entry{
			LedgerIssues:   {},
			LedgerReceipts: {},
		},
		cached: make(map[int64]ItemAggregates),
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (t *memoryTx) GetDocument(ctx context.Context, id int64) (Document, error) {
	doc, ok := t.repo.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (t *memoryTx) GetDocumentForUpdate(ctx context.Context, id int64) (Document, error) {
	return t.GetDocument(ctx, id)
}

func (t *memoryTx) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	t.repo.nextID++
	doc.ID = t.repo.nextID
	t.repo.docs[doc.ID] = doc
	return doc.ID, nil
}

func (t *memoryTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	t.repo.nextID++
	item.ID = t.repo.nextID
	t.repo.items[item.ID] = item
	t.repo.cached[item.ID] = ItemAggregates{DiffQty: -item.PlannedQty, Status: ItemStatusPending}
	return item.ID, nil
}

func (t *memoryTx) SetClosed(ctx context.Context, id int64, closedBy string, at time.Time) error {
	doc, ok := t.repo.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = DocumentStatusClosed
	doc.ClosedAt = &at
	doc.ClosedByName = closedBy
	t.repo.docs[id] = doc
	return nil
}

func (t *memoryTx) DeleteDocument(ctx context.Context, id int64) (bool, error) {
	if _, ok := t.repo.docs[id]; !ok {
		return false, nil
	}
	delete(t.repo.docs, id)
	for itemID, item := range t.repo.items {
		if item.DocumentID == id {
			delete(t.repo.items, itemID)
			delete(t.repo.cached, itemID)
			delete(t.repo.ledgers[LedgerIssues], itemID)
			delete(t.repo.ledgers[LedgerReceipts], itemID)
		}
	}
	return true, nil
}

func (t *memoryTx) LockItem(ctx context.Context, documentID, itemID int64) (Item, error) {
	item, ok := t.repo.items[itemID]
	if !ok || item.DocumentID != documentID {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (t *memoryTx) InsertEntry(ctx context.Context, ledger Ledger, e Entry) (int64, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	t.repo.ledgers[ledger][e.ItemID] = append(t.repo.ledgers[ledger][e.ItemID], e)
	return e.ID, nil
}

func (t *memoryTx) GetEntry(ctx context.Context, ledger Ledger, itemID, entryID int64) (Entry, error) {
	for _, e := range t.repo.ledgers[ledger][itemID] {
		if e.ID == entryID {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (t *memoryTx) UpdateEntry(ctx context.Context, ledger Ledger, entry Entry) (bool, error) {
	entries := t.repo.ledgers[ledger][entry.ItemID]
	for i, e := range entries {
		if e.ID == entry.ID {
			entries[i].Qty = entry.Qty
			entries[i].Note = entry.Note
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) DeleteEntry(ctx context.Context, ledger Ledger, itemID, entryID int64) (bool, error) {
	entries := t.repo.ledgers[ledger][itemID]
	for i, e := range entries {
		if e.ID == entryID {
			t.repo.ledgers[ledger][itemID] = append(entries[:i:i], entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) ListEntries(ctx context.Context, ledger Ledger, itemID int64) ([]Entry, error) {
	return append([]Entry(nil), t.repo.ledgers[ledger][itemID]...), nil
}

func (t *memoryTx) SaveAggregates(ctx context.Context, itemID int64, agg ItemAggregates) error {
	t.repo.cached[itemID] = agg
	return nil
}

func (t *memoryTx) CachedAggregates(ctx context.Context, itemID int64) (ItemAggregates, error) {
	agg, ok := t.repo.cached[itemID]
	if !ok {
		return ItemAggregates{}, ErrItemNotFound
	}
	return agg, nil
}

func (r *memoryRepo) GetDocumentDetails(ctx context.Context, id int64) (Document, []ItemDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return Document{}, nil, ErrNotFound
	}
	var items []ItemDetails
	for _, item := range r.items {
		if item.DocumentID != id {
			continue
		}
		items = append(items, ItemDetails{
			Item:     item,
			Issues:   append([]Entry(nil), r.ledgers[LedgerIssues][item.ID]...),
			Receipts: append([]Entry(nil), r.ledgers[LedgerReceipts][item.ID]...),
		})
	}
	sort.Slice(items, func(a, b int) bool { return items[a].LineNo < items[b].LineNo })
	return doc, items, nil
}

func (r *memoryRepo) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, shared.Pagination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var docs []Document
	for _, d := range r.docs {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(a, b int) bool { return docs[a].ID < docs[b].ID })
	return docs, shared.NewPagination(filter.Page, filter.PerPage, len(docs)), nil
}

func (r *memoryRepo) ListItemRollups(ctx context.Context, documentIDs []int64) ([]ItemRollup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[int64]bool, len(documentIDs))
	for _, id := range documentIDs {
		wanted[id] = true
	}
	var rollups []ItemRollup
	for _, item := range r.items {
		if !wanted[item.DocumentID] {
			continue
		}
		agg := AggregatesOf(item.PlannedQty, r.ledgers[LedgerIssues][item.ID], r.ledgers[LedgerReceipts][item.ID])
		rollups = append(rollups, ItemRollup{
			DocumentID:  item.DocumentID,
			PlannedQty:  item.PlannedQty,
			IssuedQty:   agg.IssuedQty,
			ReceivedQty: agg.ReceivedQty,
		})
	}
	return rollups, nil
}

func (r *memoryRepo) ListItemRefs(ctx context.Context) ([]ItemRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var refs []ItemRef
	for _, item := range r.items {
		refs = append(refs, ItemRef{DocumentID: item.DocumentID, ItemID: item.ID})
	}
	sort.Slice(refs, func(a, b int) bool { return refs[a].ItemID < refs[b].ItemID })
	return refs, nil
}

// recordingNotifier collects emitted events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []DocumentEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, evt DocumentEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []string
	for _, e := range n.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// memoryAudit collects audit records.
type memoryAudit struct {
	mu      sync.Mutex
	records []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, log)
	return nil
}

// memoryIdem mimics the unique-key semantics of the real store.
type memoryIdem struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryIdem() *memoryIdem {
	return &memoryIdem{seen: make(map[string]bool)}
}

func (i *memoryIdem) CheckAndInsert(ctx context.Context, key, scope string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	i.seen[key] = true
	return nil
}

func (i *memoryIdem) Delete(ctx context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.seen, key)
	return nil
}

func newTestService() (*Service, *memoryRepo, *recordingNotifier) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	return NewService(repo, notifier, nil, nil, nil), repo, notifier
}

var testActor = Actor{ID: "u-17", Name: "J. Kowalski"}

func createTestDocument(t *testing.T, svc *Service, plannedQty float64) DocumentDetails {
	t.Helper()
	details, err := svc.CreateDocument(context.Background(), testActor, CreateDocumentInput{
		Number:          "MM/2025/08/001",
		SourceWarehouse: "WH-CENTRAL",
		TargetWarehouse: "WH-NORTH",
		Items: []CreateItemInput{
			{IndexCode: "IDX-1", Name: "Hex bolt M8x40", Unit: "pcs", PlannedQty: plannedQty},
		},
	})
	require.NoError(t, err)
	return details
}

func TestCreateDocument(t *testing.T) {
	svc, _, notifier := newTestService()

	details, err := svc.CreateDocument(context.Background(), testActor, CreateDocumentInput{
		Number: "MM/2025/08/001",
		Items: []CreateItemInput{
			{IndexCode: "IDX-1", Name: "Bolt", Unit: "pcs", PlannedQty: 100},
			{LineNo: 7, IndexCode: "IDX-2", Name: "Nut", Unit: "pcs", PlannedQty: 50},
		},
	})
	require.NoError(t, err)
	require.Equal(t, DocumentStatusOpen, details.Status)
	require.Len(t, details.Items, 2)
	require.Equal(t, 1, details.Items[0].LineNo)
	require.Equal(t, 7, details.Items[1].LineNo)
	require.Equal(t, PriorityNormal, details.Items[0].Priority)
	for _, item := range details.Items {
		require.Equal(t, ItemStatusPending, item.Status)
		require.Zero(t, item.IssuedQty)
		require.Zero(t, item.ReceivedQty)
	}
	require.Equal(t, 2, details.Summary.ItemsCount)
	require.Equal(t, 0, details.Summary.CompletedItemsCount)
	require.Equal(t, 150.0, details.Summary.PlannedQtyTotal)

	require.Equal(t, []string{EventDocumentCreated}, notifier.kinds())
}

func TestCreateDocumentValidation(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.CreateDocument(ctx, testActor, CreateDocumentInput{Number: "  "})
	require.Equal(t, CodeDocumentNumberRequired, CodeOf(err))

	_, err = svc.CreateDocument(ctx, testActor, CreateDocumentInput{Number: "MM/1"})
	require.Equal(t, CodeItemInvalid, CodeOf(err))

	_, err = svc.CreateDocument(ctx, testActor, CreateDocumentInput{
		Number: "MM/1",
		Items:  []CreateItemInput{{IndexCode: "IDX-1", Name: "Bolt", Unit: "pcs", PlannedQty: 0}},
	})
	require.Equal(t, CodeItemInvalid, CodeOf(err))
	require.ErrorContains(t, err, "line 1")

	_, err = svc.CreateDocument(ctx, testActor, CreateDocumentInput{
		Number: "MM/1",
		Items: []CreateItemInput{
			{IndexCode: "IDX-1", Name: "Bolt", Unit: "pcs", PlannedQty: 5},
			{IndexCode: "", Name: "Nut", Unit: "pcs", PlannedQty: 5},
		},
	})
	require.Equal(t, CodeItemInvalid, CodeOf(err))
	require.ErrorContains(t, err, "line 2")

	// Nothing was persisted, nothing was announced.
	require.Empty(t, notifier.kinds())
}

// Scenario: plan 100, issue 40, receive 40, receive 60.
func TestIssueThenReceiveLifecycle(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	details := createTestDocument(t, svc, 100)
	docID := details.ID
	itemID := details.Items[0].ID

	_, item, err := svc.AddIssue(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 40})
	require.NoError(t, err)
	require.Equal(t, 40.0, item.IssuedQty)
	require.Equal(t, ItemStatusPartial, item.Status)

	_, item, err = svc.AddReceipt(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 40})
	require.NoError(t, err)
	require.Equal(t, 40.0, item.ReceivedQty)
	require.Equal(t, ItemStatusPartial, item.Status)

	_, item, err = svc.AddReceipt(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 60})
	require.NoError(t, err)
	require.Equal(t, 100.0, item.ReceivedQty)
	require.Equal(t, 0.0, item.DiffQty)
	require.Equal(t, ItemStatusDone, item.Status)
}

// Scenario: plan 50, receive 70 with no prior issue.
func TestOverDeliveryIsStatusNotError(t *testing.T) {
	svc, _, _ := newTestService()
	details := createTestDocument(t, svc, 50)

	_, item, err := svc.AddReceipt(context.Background(), testActor, EntryInput{
		DocumentID: details.ID, ItemID: details.Items[0].ID, Qty: 70,
	})
	require.NoError(t, err)
	require.Equal(t, 70.0, item.ReceivedQty)
	require.Equal(t, 20.0, item.DiffQty)
	require.Equal(t, ItemStatusOver, item.Status)
}

func TestAddEntryValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	details := createTestDocument(t, svc, 100)

	_, _, err := svc.AddIssue(ctx, testActor, EntryInput{DocumentID: details.ID, ItemID: details.Items[0].ID, Qty: 0})
	require.Equal(t, CodeInvalidQty, CodeOf(err))

	_, _, err = svc.AddIssue(ctx, testActor, EntryInput{DocumentID: details.ID, ItemID: details.Items[0].ID, Qty: -3})
	require.Equal(t, CodeInvalidQty, CodeOf(err))

	_, _, err = svc.AddIssue(ctx, testActor, EntryInput{DocumentID: details.ID, ItemID: 9999, Qty: 5})
	require.Equal(t, CodeItemNotFound, CodeOf(err))

	_, _, err = svc.AddIssue(ctx, testActor, EntryInput{DocumentID: 9999, ItemID: details.Items[0].ID, Qty: 5})
	require.Equal(t, CodeNotFound, CodeOf(err))
}

func TestUpdateAndRemoveEntryRecompute(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	details := createTestDocument(t, svc, 100)
	docID := details.ID
	itemID := details.Items[0].ID

	receipt, item, err := svc.AddReceipt(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 100})
	require.NoError(t, err)
	require.Equal(t, ItemStatusDone, item.Status)

	// Editing the historical entry reflows the aggregate.
	_, item, err = svc.UpdateReceipt(ctx, EntryInput{DocumentID: docID, ItemID: itemID, EntryID: receipt.ID, Qty: 30, Note: "corrected"})
	require.NoError(t, err)
	require.Equal(t, 30.0, item.ReceivedQty)
	require.Equal(t, ItemStatusPartial, item.Status)

	_, _, err = svc.UpdateReceipt(ctx, EntryInput{DocumentID: docID, ItemID: itemID, EntryID: 9999, Qty: 10})
	require.Equal(t, CodeNotFound, CodeOf(err))

	item, err = svc.RemoveReceipt(ctx, EntryInput{DocumentID: docID, ItemID: itemID, EntryID: receipt.ID})
	require.NoError(t, err)
	require.Equal(t, 0.0, item.ReceivedQty)
	require.Equal(t, ItemStatusPending, item.Status)

	_, err = svc.RemoveReceipt(ctx, EntryInput{DocumentID: docID, ItemID: itemID, EntryID: receipt.ID})
	require.Equal(t, CodeNotFound, CodeOf(err))
}

// An item whose entries were all added and then removed is PENDING again.
func TestEmptiedLedgersReturnToPending(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	details := createTestDocument(t, svc, 100)
	docID := details.ID
	itemID := details.Items[0].ID

	for round := 0; round < 3; round++ {
		issue, _, err := svc.AddIssue(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 10})
		require.NoError(t, err)
		receipt, _, err := svc.AddReceipt(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 10})
		require.NoError(t, err)

		_, err = svc.RemoveIssue(ctx, EntryInput{DocumentID: docID, ItemID: itemID, EntryID: issue.ID})
		require.NoError(t, err)
		item, err := svc.RemoveReceipt(ctx, EntryInput{DocumentID: docID, ItemID: itemID, EntryID: receipt.ID})
		require.NoError(t, err)
		require.Equal(t, ItemStatusPending, item.Status)
	}
}

// Two concurrent receipts on the same item must both survive.
func TestConcurrentReceiptsNoLostUpdate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	details := createTestDocument(t, svc, 100)
	docID := details.ID
	itemID := details.Items[0].ID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = svc.AddReceipt(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 10})
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got, err := svc.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, 20.0, got.Items[0].ReceivedQty)
	require.Len(t, got.Items[0].Receipts, 2)
}

func TestMarkIssuedIsIdempotentSignal(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()
	details := createTestDocument(t, svc, 100)

	doc, err := svc.MarkIssued(ctx, testActor, details.ID)
	require.NoError(t, err)
	require.Equal(t, DocumentStatusOpen, doc.Status)

	// Second call is not a state error; it simply re-fires the event.
	_, err = svc.MarkIssued(ctx, testActor, details.ID)
	require.NoError(t, err)

	require.Equal(t, []string{EventDocumentCreated, EventDocumentIssued, EventDocumentIssued}, notifier.kinds())

	_, err = svc.MarkIssued(ctx, testActor, 9999)
	require.Equal(t, CodeNotFound, CodeOf(err))
}

func TestRequestPackageSignal(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()
	details := createTestDocument(t, svc, 100)

	doc, err := svc.RequestPackage(ctx, testActor, details.ID)
	require.NoError(t, err)
	require.Equal(t, DocumentStatusOpen, doc.Status)
	require.Equal(t, []string{EventDocumentCreated, EventPackageRequested}, notifier.kinds())
}

// Scenario: closing with unfinished items succeeds, further mutation fails.
func TestCloseIsAdministrative(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	details := createTestDocument(t, svc, 100)
	docID := details.ID
	itemID := details.Items[0].ID

	issue, _, err := svc.AddIssue(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 10})
	require.NoError(t, err)

	doc, err := svc.Close(ctx, testActor, docID)
	require.NoError(t, err)
	require.Equal(t, DocumentStatusClosed, doc.Status)
	require.NotNil(t, doc.ClosedAt)
	require.Equal(t, testActor.Name, doc.ClosedByName)

	_, err = svc.Close(ctx, testActor, docID)
	require.Equal(t, CodeAlreadyClosed, CodeOf(err))

	_, _, err = svc.AddIssue(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 5})
	require.Equal(t, CodeDocumentClosed, CodeOf(err))
	_, _, err = svc.AddReceipt(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 5})
	require.Equal(t, CodeDocumentClosed, CodeOf(err))
	_, _, err = svc.UpdateIssue(ctx, EntryInput{DocumentID: docID, ItemID: itemID, EntryID: issue.ID, Qty: 5})
	require.Equal(t, CodeDocumentClosed, CodeOf(err))
	_, err = svc.RemoveIssue(ctx, EntryInput{DocumentID: docID, ItemID: itemID, EntryID: issue.ID})
	require.Equal(t, CodeDocumentClosed, CodeOf(err))

	_, err = svc.MarkIssued(ctx, testActor, docID)
	require.Equal(t, CodeDocumentClosed, CodeOf(err))
	_, err = svc.RequestPackage(ctx, testActor, docID)
	require.Equal(t, CodeDocumentClosed, CodeOf(err))
}

func TestRemoveDocument(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	details := createTestDocument(t, svc, 100)

	_, _, err := svc.AddReceipt(ctx, testActor, EntryInput{DocumentID: details.ID, ItemID: details.Items[0].ID, Qty: 10})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveDocument(ctx, testActor, details.ID))
	require.Empty(t, repo.items)
	require.Empty(t, repo.ledgers[LedgerReceipts])

	err = svc.RemoveDocument(ctx, testActor, details.ID)
	require.Equal(t, CodeNotFound, CodeOf(err))
}

func TestGetDocumentRecomputesFromLedgers(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	details := createTestDocument(t, svc, 100)
	docID := details.ID
	itemID := details.Items[0].ID

	_, _, err := svc.AddIssue(ctx, testActor, EntryInput{DocumentID: docID, ItemID: itemID, Qty: 25})
	require.NoError(t, err)

	// Corrupt the cached aggregates; the read path must not echo them.
	repo.mu.Lock()
	repo.cached[itemID] = ItemAggregates{IssuedQty: 999, ReceivedQty: 999, Status: ItemStatusOver}
	repo.mu.Unlock()

	got, err := svc.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, 25.0, got.Items[0].IssuedQty)
	require.Equal(t, ItemStatusPartial, got.Items[0].Status)
	require.Equal(t, 25.0, got.Summary.IssuedQtyTotal)
}

func TestCreateDocumentIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdem()
	svc := NewService(repo, nil, nil, idem, nil)
	ctx := context.Background()

	input := CreateDocumentInput{
		Number:         "MM/1",
		IdempotencyKey: "req-abc",
		Items:          []CreateItemInput{{IndexCode: "IDX-1", Name: "Bolt", Unit: "pcs", PlannedQty: 5}},
	}
	_, err := svc.CreateDocument(ctx, testActor, input)
	require.NoError(t, err)

	_, err = svc.CreateDocument(ctx, testActor, input)
	require.Equal(t, CodeDuplicateRequest, CodeOf(err))
	require.Len(t, repo.docs, 1)

	// A fresh key is a fresh request.
	input.IdempotencyKey = "req-def"
	_, err = svc.CreateDocument(ctx, testActor, input)
	require.NoError(t, err)
	require.Len(t, repo.docs, 2)
}

func TestAuditTrailRecorded(t *testing.T) {
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, nil, audit, nil, nil)
	ctx := context.Background()

	details, err := svc.CreateDocument(ctx, testActor, CreateDocumentInput{
		Number: "MM/1",
		Items:  []CreateItemInput{{IndexCode: "IDX-1", Name: "Bolt", Unit: "pcs", PlannedQty: 5}},
	})
	require.NoError(t, err)
	_, err = svc.Close(ctx, testActor, details.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveDocument(ctx, testActor, details.ID))

	require.Len(t, audit.records, 3)
	require.Equal(t, "document.create", audit.records[0].Action)
	require.Equal(t, "document.close", audit.records[1].Action)
	require.Equal(t, "document.remove", audit.records[2].Action)
	for _, rec := range audit.records {
		require.Equal(t, testActor.ID, rec.ActorID)
		require.Equal(t, "transfer_document", rec.Entity)
	}
}

func TestListDocumentsSummaries(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.CreateDocument(ctx, testActor, CreateDocumentInput{
		Number: "MM/1",
		Items: []CreateItemInput{
			{IndexCode: "IDX-1", Name: "Bolt", Unit: "pcs", PlannedQty: 10},
			{IndexCode: "IDX-2", Name: "Nut", Unit: "pcs", PlannedQty: 20},
		},
	})
	require.NoError(t, err)
	second, err := svc.CreateDocument(ctx, testActor, CreateDocumentInput{
		Number: "MM/2",
		Items:  []CreateItemInput{{IndexCode: "IDX-3", Name: "Oil", Unit: "l", PlannedQty: 5}},
	})
	require.NoError(t, err)

	_, _, err = svc.AddReceipt(ctx, testActor, EntryInput{DocumentID: first.ID, ItemID: first.Items[0].ID, Qty: 10})
	require.NoError(t, err)
	_, err = svc.Close(ctx, testActor, second.ID)
	require.NoError(t, err)

	summaries, page, err := svc.ListDocuments(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, 2, page.Total)

	require.Equal(t, 2, summaries[0].ItemsCount)
	require.Equal(t, 1, summaries[0].CompletedItemsCount)
	require.Equal(t, 30.0, summaries[0].PlannedQtyTotal)
	require.Equal(t, 10.0, summaries[0].ReceivedQtyTotal)

	closed, _, err := svc.ListDocuments(ctx, ListFilter{Status: DocumentStatusClosed})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.Equal(t, "MM/2", closed[0].Number)
}
