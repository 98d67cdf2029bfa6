package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tumaini/pesaflow/pkg/config"
	"github.com/tumaini/pesaflow/pkg/httpx"
	"github.com/tumaini/pesaflow/pkg/model"
	"github.com/tumaini/pesaflow/pkg/store"
)

// ConfirmationRequest is the provider's C2B callback payload. Field names
// follow the provider's PascalCase JSON.
type ConfirmationRequest struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	InvoiceNumber     string `json:"InvoiceNumber"`
	OrgAccountBalance string `json:"OrgAccountBalance"`
	ThirdPartyTransID string `json:"ThirdPartyTransID"`
	MSISDN            string `json:"MSISDN"`
	FirstName         string `json:"FirstName"`
	MiddleName        string `json:"MiddleName"`
	LastName          string `json:"LastName"`
}

func (r ConfirmationRequest) toTransaction() model.RawTransaction {
	return model.RawTransaction{
		TransactionType:         r.TransactionType,
		TransactionID:           r.TransID,
		TransactionTime:         r.TransTime,
		TransactionAmount:       r.TransAmount,
		BusinessShortCode:       r.BusinessShortCode,
		BillRefNumber:           r.BillRefNumber,
		InvoiceNumber:           r.InvoiceNumber,
		OrgAccountBalance:       r.OrgAccountBalance,
		ThirdPartyTransactionID: r.ThirdPartyTransID,
		MSISDN:                  r.MSISDN,
		FirstName:               r.FirstName,
		MiddleName:              r.MiddleName,
		LastName:                r.LastName,
	}
}

// Result is the acknowledgement shape the provider expects back.
type Result struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Handler receives provider callbacks and appends confirmed rows to the
// source table. It never aggregates; the pipeline picks the rows up on its
// next run.
type Handler struct {
	store store.Store
	log   zerolog.Logger
}

// NewHandler creates a webhook handler over the given store.
func NewHandler(st store.Store, log zerolog.Logger) *Handler {
	return &Handler{store: st, log: log.With().Str("component", "webhook").Logger()}
}

// HandleConfirmation handles POST /api/confirmation: the provider's final
// notice that a transaction completed. The row is stored as-is; malformed
// amounts or times are an aggregation-time concern.
func (h *Handler) HandleConfirmation(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.TransID == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "missing TransID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.WebhookTimeout)
	defer cancel()

	if err := h.store.AppendTransactions(ctx, []model.RawTransaction{req.toTransaction()}); err != nil {
		h.log.Error().Err(err).Str("trans_id", req.TransID).Msg("failed to store confirmation")
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	h.log.Info().Str("trans_id", req.TransID).Str("msisdn", req.MSISDN).
		Msg("confirmation stored")
	httpx.RespondJSON(w, http.StatusOK, Result{ResultCode: 0, ResultDesc: "Accepted"})
}

// HandleValidation handles POST /api/validation: the provider's pre-check
// before completing a transaction. Nothing is stored; the row is accepted
// if its amount and time would survive aggregation.
func (h *Handler) HandleValidation(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	txn := req.toTransaction()
	if _, err := txn.Amount(); err != nil {
		httpx.RespondJSON(w, http.StatusOK, Result{ResultCode: 1, ResultDesc: "Rejected: invalid amount"})
		return
	}
	if _, err := txn.Time(); err != nil {
		httpx.RespondJSON(w, http.StatusOK, Result{ResultCode: 1, ResultDesc: "Rejected: invalid transaction time"})
		return
	}

	httpx.RespondJSON(w, http.StatusOK, Result{ResultCode: 0, ResultDesc: "Accepted"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (ConfirmationRequest, bool) {
	var req ConfirmationRequest
	body := http.MaxBytesReader(w, r.Body, config.WebhookMaxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid JSON payload")
		return req, false
	}
	return req, true
}
