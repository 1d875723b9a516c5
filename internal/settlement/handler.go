package settlement

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/momo-settlement/internal/core/datamodel/payment"
	"github.com/frahmantamala/momo-settlement/internal/transport"
)

const summaryDateLayout = "2006-01-02"

// ServiceAPI is the settlement surface the HTTP layer calls.
type ServiceAPI interface {
	Initiate(ctx context.Context, req *InitiateRequest) (*payment.Payment, error)
	GetByTransactionID(ref string) (*PaymentView, error)
	Summary(ctx context.Context, from, to time.Time) (*SummaryView, error)
	HandleCallback(ctx context.Context, cb *CallbackRequest) error
}

type Handler struct {
	*transport.BaseHandler
	service ServiceAPI
}

func NewHandler(logger *slog.Logger, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		service:     service,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/payments", h.CreatePayment)
	r.Get("/payments/summary", h.GetSummary)
	r.Get("/payments/{transactionID}", h.GetPayment)
}

// CreatePayment starts a new settlement. A 201 means the collect leg was
// accepted and the record is PENDING; the final outcome arrives asynchronously.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("cannot decode payment request", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.service.Initiate(r.Context(), &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, ToView(record))
}

// GetPayment looks a record up by any of its transaction ids.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")
	if transactionID == "" {
		h.WriteError(w, http.StatusBadRequest, "transaction id is required")
		return
	}

	view, err := h.service.GetByTransactionID(transactionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// GetSummary reports aggregate settlement volume; from/to are dates, defaulting
// to the trailing 30 days.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(summaryDateLayout, raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(summaryDateLayout, raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
			return
		}
		// Inclusive end of day.
		to = parsed.AddDate(0, 0, 1)
	}

	if to.Before(from) {
		h.WriteError(w, http.StatusBadRequest, "to must not precede from")
		return
	}

	summary, err := h.service.Summary(r.Context(), from, to)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, summary)
}
