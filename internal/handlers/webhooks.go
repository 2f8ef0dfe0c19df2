package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/merchline/api/internal/platform/httpx"
	"github.com/merchline/api/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// PayloadArchiver stores raw webhook payloads for audit.
type PayloadArchiver interface {
	ArchiveWebhookPayload(ctx context.Context, externalID string, payload []byte) (string, error)
}

// WebhookHandlers consumes payment gateway notifications.
type WebhookHandlers struct {
	payments services.PaymentService
	archiver PayloadArchiver
}

// WebhookOption customises the webhook handlers.
type WebhookOption func(*WebhookHandlers)

// WithPayloadArchiver stores a copy of every accepted notification payload.
func WithPayloadArchiver(archiver PayloadArchiver) WebhookOption {
	return func(h *WebhookHandlers) {
		h.archiver = archiver
	}
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(payments services.PaymentService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{payments: payments}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the webhook endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/transfer", h.transferNotification)
}

// transferNotificationRequest mirrors the bank gateway payload. The gateway
// sends the transaction id as a JSON number.
type transferNotificationRequest struct {
	ID              flexibleID `json:"id"`
	Code            string     `json:"code"`
	TransferType    string     `json:"transferType"`
	TransferAmount  int64      `json:"transferAmount"`
	Gateway         string     `json:"gateway"`
	AccountNumber   string     `json:"accountNumber"`
	Content         string     `json:"content"`
	TransactionDate string     `json:"transactionDate"`
}

type transferNotificationResponse struct {
	Success bool   `json:"success"`
	Handled bool   `json:"handled"`
	OrderID string `json:"order_id,omitempty"`
}

func (h *WebhookHandlers) transferNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req transferNotificationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	externalID := strings.TrimSpace(string(req.ID))
	if externalID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "transaction id is required", http.StatusBadRequest))
		return
	}

	transactionDate, err := parseGatewayTimestamp(req.TransactionDate)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "transactionDate is not a recognised timestamp", http.StatusBadRequest))
		return
	}

	// Best effort; a missing archive copy never rejects a valid payment.
	if h.archiver != nil {
		_, _ = h.archiver.ArchiveWebhookPayload(ctx, externalID, body)
	}

	confirmation, err := h.payments.Confirm(ctx, services.PaymentNotificationCommand{
		ExternalID:      externalID,
		Code:            req.Code,
		TransferType:    req.TransferType,
		TransferAmount:  req.TransferAmount,
		Gateway:         req.Gateway,
		AccountNumber:   req.AccountNumber,
		Content:         req.Content,
		TransactionDate: transactionDate,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	resp := transferNotificationResponse{
		Success: true,
		Handled: confirmation.Handled,
	}
	if confirmation.Handled {
		resp.OrderID = confirmation.Order.ID
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "no order matches the payment code", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentAlreadyRecorded):
		// A replayed delivery; the first one already confirmed the order.
		writeJSONResponse(w, http.StatusOK, transferNotificationResponse{Success: true, Handled: false})
	case errors.Is(err, services.ErrPaymentNotAwaiting):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_awaiting_payment", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentAmountTooLow):
		httpx.WriteError(ctx, w, httpx.NewError("payment_amount_too_low", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment notification", http.StatusInternalServerError))
	}
}

// flexibleID accepts both JSON string and number encodings of the gateway
// transaction id.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

var gatewayTimestampFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseGatewayTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	for _, layout := range gatewayTimestampFormats {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.New("unrecognised timestamp format")
}
