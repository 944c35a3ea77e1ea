package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// PDFRenderer converts the printout HTML into a PDF document.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Handler exposes the transfer document API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	pdf      PDFRenderer
	validate *validator.Validate
}

// NewHandler builds a Handler instance. The PDF renderer is optional; without
// it the printout endpoint answers 503.
func NewHandler(logger *slog.Logger, service *Service, pdf PDFRenderer) *Handler {
	return &Handler{logger: logger, service: service, pdf: pdf, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents", h.createDocument)
	r.Get("/documents", h.listDocuments)
	r.Get("/documents/{docID}", h.getDocument)
	r.Get("/documents/{docID}/pdf", h.documentPDF)
	r.Delete("/documents/{docID}", h.removeDocument)
	r.Post("/documents/{docID}/close", h.closeDocument)
	r.Post("/documents/{docID}/issued", h.markIssued)
	r.Post("/documents/{docID}/package-request", h.requestPackage)

	r.Route("/documents/{docID}/items/{itemID}", func(r chi.Router) {
		r.Post("/issues", h.addEntry(LedgerIssues))
		r.Put("/issues/{entryID}", h.updateEntry(LedgerIssues))
		r.Delete("/issues/{entryID}", h.removeEntry(LedgerIssues))
		r.Post("/receipts", h.addEntry(LedgerReceipts))
		r.Put("/receipts/{entryID}", h.updateEntry(LedgerReceipts))
		r.Delete("/receipts/{entryID}", h.removeEntry(LedgerReceipts))
	})
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	items := make([]CreateItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, CreateItemInput{
			LineNo:     it.LineNo,
			Priority:   it.Priority,
			IndexCode:  it.IndexCode,
			IndexCode2: it.IndexCode2,
			Name:       it.Name,
			Batch:      it.Batch,
			Location:   it.Location,
			Unit:       it.Unit,
			PlannedQty: it.PlannedQty,
			Note:       it.Note,
		})
	}

	details, err := h.service.CreateDocument(r.Context(), h.actor(r), CreateDocumentInput{
		Number:          req.Number,
		SourceWarehouse: req.SourceWarehouse,
		TargetWarehouse: req.TargetWarehouse,
		Note:            req.Note,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
		Items:           items,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDetailsView(details))
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.pathID(w, r, "docID")
	if !ok {
		return
	}
	details, err := h.service.GetDocument(r.Context(), docID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDetailsView(details))
}

func (h *Handler) documentPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Printing Unavailable", "PDF rendering is not configured")
		return
	}
	docID, ok := h.pathID(w, r, "docID")
	if !ok {
		return
	}
	details, err := h.service.GetDocument(r.Context(), docID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	html, err := PrintoutHTML(details)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render document pdf",
			slog.Int64("document_id", docID),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "PDF rendering backend failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", safeFilename(details.Number)+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// safeFilename flattens the slashes document numbers carry (MM/2025/08/001).
func safeFilename(number string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"':
			return '-'
		}
		return r
	}, number)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	filter := ListFilter{
		Status:  DocumentStatus(r.URL.Query().Get("status")),
		Page:    page,
		PerPage: perPage,
	}
	summaries, pagination, err := h.service.ListDocuments(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	views := make([]documentSummaryView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, documentSummaryView{
			documentView: toDocumentView(s.Document),
			summaryView:  toSummaryView(s.Summary),
		})
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Documents:  views,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		Total:      pagination.Total,
		TotalPages: pagination.TotalPages,
	})
}

func (h *Handler) removeDocument(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.pathID(w, r, "docID")
	if !ok {
		return
	}
	if err := h.service.RemoveDocument(r.Context(), h.actor(r), docID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) closeDocument(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.pathID(w, r, "docID")
	if !ok {
		return
	}
	doc, err := h.service.Close(r.Context(), h.actor(r), docID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentView(doc))
}

func (h *Handler) markIssued(w http.ResponseWriter, r *http.Request) {
	h.signal(w, r, h.service.MarkIssued)
}

func (h *Handler) requestPackage(w http.ResponseWriter, r *http.Request) {
	h.signal(w, r, h.service.RequestPackage)
}

func (h *Handler) signal(w http.ResponseWriter, r *http.Request, fn func(context.Context, Actor, int64) (Document, error)) {
	docID, ok := h.pathID(w, r, "docID")
	if !ok {
		return
	}
	doc, err := fn(r.Context(), h.actor(r), docID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentView(doc))
}

func (h *Handler) addEntry(ledger Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, ok := h.entryInput(w, r, false)
		if !ok {
			return
		}
		var (
			entry Entry
			item  ItemDetails
			err   error
		)
		if ledger == LedgerIssues {
			entry, item, err = h.service.AddIssue(r.Context(), h.actor(r), input)
		} else {
			entry, item, err = h.service.AddReceipt(r.Context(), h.actor(r), input)
		}
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, entryResponse{Entry: toEntryViews([]Entry{entry})[0], Item: toItemView(item)})
	}
}

func (h *Handler) updateEntry(ledger Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, ok := h.entryInput(w, r, true)
		if !ok {
			return
		}
		var (
			entry Entry
			item  ItemDetails
			err   error
		)
		if ledger == LedgerIssues {
			entry, item, err = h.service.UpdateIssue(r.Context(), input)
		} else {
			entry, item, err = h.service.UpdateReceipt(r.Context(), input)
		}
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, entryResponse{Entry: toEntryViews([]Entry{entry})[0], Item: toItemView(item)})
	}
}

func (h *Handler) removeEntry(ledger Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID, ok := h.pathID(w, r, "docID")
		if !ok {
			return
		}
		itemID, ok := h.pathID(w, r, "itemID")
		if !ok {
			return
		}
		entryID, ok := h.pathID(w, r, "entryID")
		if !ok {
			return
		}
		input := EntryInput{DocumentID: docID, ItemID: itemID, EntryID: entryID}
		var (
			item ItemDetails
			err  error
		)
		if ledger == LedgerIssues {
			item, err = h.service.RemoveIssue(r.Context(), input)
		} else {
			item, err = h.service.RemoveReceipt(r.Context(), input)
		}
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toItemView(item))
	}
}

func (h *Handler) entryInput(w http.ResponseWriter, r *http.Request, withEntryID bool) (EntryInput, bool) {
	docID, ok := h.pathID(w, r, "docID")
	if !ok {
		return EntryInput{}, false
	}
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return EntryInput{}, false
	}
	input := EntryInput{DocumentID: docID, ItemID: itemID}
	if withEntryID {
		entryID, ok := h.pathID(w, r, "entryID")
		if !ok {
			return EntryInput{}, false
		}
		input.EntryID = entryID
	}
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return EntryInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return EntryInput{}, false
	}
	input.Qty = req.Qty
	input.Note = req.Note
	return input, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) actor(r *http.Request) Actor {
	identity := shared.ActorFromContext(r.Context())
	return Actor{ID: identity.ID, Name: identity.Name}
}

// respondError maps domain codes to HTTP statuses; the code travels in the
// problem type so API clients can branch without parsing messages.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := CodeOf(err)
	switch code {
	case CodeDocumentNumberRequired, CodeItemInvalid, CodeInvalidQty:
		httpx.ProblemCode(w, http.StatusBadRequest, string(code), err.Error())
	case CodeItemNotFound, CodeNotFound:
		httpx.ProblemCode(w, http.StatusNotFound, string(code), err.Error())
	case CodeDocumentClosed, CodeAlreadyClosed, CodeDuplicateRequest:
		httpx.ProblemCode(w, http.StatusConflict, string(code), err.Error())
	default:
		h.logger.Error("transfer request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
