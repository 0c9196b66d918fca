package voucher

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/platform/httpx"
	"github.com/tallybook/tallybook/internal/shared"
)

const defaultPerPage = 20

// Handler wires HTTP endpoints for voucher posting, editing, reversal
// and printing.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	printer  *Printer
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, printer *Printer) *Handler {
	return &Handler{logger: logger, service: service, printer: printer, validate: validator.New()}
}

// MountRoutes registers voucher routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.post)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.edit)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/revert", h.revert)
	r.Get("/{id}/print", h.print)
}

type lineRequest struct {
	StockItemID int64  `json:"stock_item_id" validate:"required,gt=0"`
	Quantity    string `json:"quantity" validate:"required"`
	Rate        string `json:"rate" validate:"required"`
	DiscountPct string `json:"discount_percent"`
}

type entryRequest struct {
	LedgerID int64  `json:"ledger_id" validate:"required,gt=0"`
	Debit    string `json:"debit"`
	Credit   string `json:"credit"`
}

type voucherRequest struct {
	Type      string         `json:"type" validate:"required"`
	Date      string         `json:"date"`
	PartyID   int64          `json:"party_ledger_id"`
	Reference string         `json:"reference" validate:"omitempty,max=100"`
	Narration string         `json:"narration" validate:"omitempty,max=500"`
	Amount    string         `json:"amount"`
	Items     []lineRequest  `json:"items" validate:"omitempty,dive"`
	Entries   []entryRequest `json:"entries" validate:"omitempty,dive"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}
	posted, err := h.service.Post(r.Context(), draft)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posted)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	draft, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Edit(r.Context(), id, draft)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Type: Type(r.URL.Query().Get("type"))}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "from must be a date")
			return
		}
		filter.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "to must be a date")
			return
		}
		filter.To = t
	}
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if filter.PerPage <= 0 {
		filter.PerPage = defaultPerPage
	}
	vouchers, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"vouchers":   vouchers,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	found, err := h.service.Delete(r.Context(), id, shared.Actor(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !found {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "voucher does not exist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	found, err := h.service.Revert(r.Context(), id, shared.Actor(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !found {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "voucher does not exist")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reverted": true})
}

func (h *Handler) print(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	view, err := h.printer.Render(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) decodeDraft(w http.ResponseWriter, r *http.Request) (Draft, bool) {
	var req voucherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return Draft{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Draft{}, false
	}
	draft, err := h.toDraft(r, req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Draft{}, false
	}
	return draft, true
}

func (h *Handler) toDraft(r *http.Request, req voucherRequest) (Draft, error) {
	draft := Draft{
		Type:      Type(req.Type),
		PartyID:   req.PartyID,
		Reference: req.Reference,
		Narration: req.Narration,
		Actor:     shared.Actor(r.Context()),
	}
	if req.Date != "" {
		t, err := parseDate(req.Date)
		if err != nil {
			return Draft{}, fmt.Errorf("date: %w", err)
		}
		draft.Date = t
	}
	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			return Draft{}, fmt.Errorf("amount: %w", err)
		}
		draft.Amount = amount
	}
	for i, line := range req.Items {
		parsed := DraftLine{StockItemID: line.StockItemID}
		var err error
		if parsed.Quantity, err = decimal.NewFromString(line.Quantity); err != nil {
			return Draft{}, fmt.Errorf("items[%d].quantity: %w", i, err)
		}
		if parsed.Rate, err = decimal.NewFromString(line.Rate); err != nil {
			return Draft{}, fmt.Errorf("items[%d].rate: %w", i, err)
		}
		if line.DiscountPct != "" {
			if parsed.DiscountPct, err = decimal.NewFromString(line.DiscountPct); err != nil {
				return Draft{}, fmt.Errorf("items[%d].discount_percent: %w", i, err)
			}
		}
		draft.Items = append(draft.Items, parsed)
	}
	for i, entry := range req.Entries {
		parsed := DraftEntry{LedgerID: entry.LedgerID}
		var err error
		if entry.Debit != "" {
			if parsed.Debit, err = decimal.NewFromString(entry.Debit); err != nil {
				return Draft{}, fmt.Errorf("entries[%d].debit: %w", i, err)
			}
		}
		if entry.Credit != "" {
			if parsed.Credit, err = decimal.NewFromString(entry.Credit); err != nil {
				return Draft{}, fmt.Errorf("entries[%d].credit: %w", i, err)
			}
		}
		draft.Entries = append(draft.Entries, parsed)
	}
	return draft, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "voucher id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient InsufficientStockError
	var unknownParty UnknownPartyError
	var unknownItem UnknownItemError
	var badQty InvalidQuantityError
	var noControl MissingControlLedgerError
	switch {
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrNoItems), errors.Is(err, ErrUnbalanced):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &badQty):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &unknownParty), errors.As(err, &unknownItem):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Reference", err.Error())
	case errors.As(err, &noControl):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Missing Control Ledger", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrTypeMismatch):
		httpx.Problem(w, http.StatusConflict, "Type Mismatch", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("voucher request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
