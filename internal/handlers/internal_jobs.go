package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/merchline/api/internal/platform/httpx"
	"github.com/merchline/api/internal/services"
)

// InternalJobHandlers consumes Pub/Sub push deliveries for background jobs.
// Responses follow push-subscription semantics: a 2xx acks the message, a
// non-2xx schedules a redelivery with backoff.
type InternalJobHandlers struct {
	orders services.OrderService
	clock  func() time.Time
}

// InternalJobOption customises internal job handler behaviour.
type InternalJobOption func(*InternalJobHandlers)

// WithInternalJobClock overrides the clock used for fire-time checks.
func WithInternalJobClock(clock func() time.Time) InternalJobOption {
	return func(h *InternalJobHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewInternalJobHandlers constructs internal job handlers.
func NewInternalJobHandlers(orders services.OrderService, opts ...InternalJobOption) *InternalJobHandlers {
	h := &InternalJobHandlers{
		orders: orders,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the internal job endpoints.
func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/order-expiry", h.orderExpiry)
}

type pubsubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type orderExpiryMessage struct {
	OrderID string    `json:"orderId"`
	FireAt  time.Time `json:"fireAt"`
}

type orderExpiryResponse struct {
	OrderID string `json:"order_id,omitempty"`
	Expired bool   `json:"expired"`
}

func (h *InternalJobHandlers) orderExpiry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var envelope pubsubPushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid push envelope", http.StatusBadRequest))
		return
	}

	// Cancel markers need no work here; the expiry check below is the
	// authoritative guard either way.
	if envelope.Message.Attributes["action"] == "cancel" {
		writeJSONResponse(w, http.StatusOK, orderExpiryResponse{Expired: false})
		return
	}

	var msg orderExpiryMessage
	if len(envelope.Message.Data) > 0 {
		if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid expiry message", http.StatusBadRequest))
			return
		}
	}
	orderID := strings.TrimSpace(msg.OrderID)
	if orderID == "" {
		orderID = strings.TrimSpace(envelope.Message.Attributes["orderId"])
	}
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	// Push subscriptions deliver immediately after publish. A job that has
	// not reached its fire time is nacked so Pub/Sub redelivers it with
	// backoff until the payment window has actually elapsed.
	if !msg.FireAt.IsZero() && h.clock().Before(msg.FireAt) {
		httpx.WriteError(ctx, w, httpx.NewError("expiry_not_due", "expiry job delivered before its fire time", http.StatusServiceUnavailable))
		return
	}

	_, expired, err := h.orders.ExpireUnpaid(ctx, services.ExpireOrderCommand{OrderID: orderID})
	if err != nil {
		// A vanished order must not wedge the subscription in redelivery.
		if errors.Is(err, services.ErrOrderNotFound) {
			writeJSONResponse(w, http.StatusOK, orderExpiryResponse{OrderID: orderID, Expired: false})
			return
		}
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderExpiryResponse{OrderID: orderID, Expired: expired})
}
