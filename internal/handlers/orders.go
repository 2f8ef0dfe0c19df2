package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/merchline/api/internal/domain"
	"github.com/merchline/api/internal/platform/auth"
	"github.com/merchline/api/internal/platform/httpx"
	"github.com/merchline/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

// OrderHandlers exposes order placement and lifecycle endpoints for
// authenticated customers.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:confirm-received", h.confirmReceived)
}

type placeOrderRequest struct {
	Items         []placeOrderItemRequest `json:"items"`
	VoucherCodes  []string                `json:"voucher_codes"`
	PaymentMethod string                  `json:"payment_method"`
	Recipient     recipientPayload        `json:"recipient"`
	Locale        string                  `json:"locale"`
}

type placeOrderItemRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
	DesignID  string `json:"design_id,omitempty"`
}

type recipientPayload struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type confirmReceivedRequest struct {
	Feedback string `json:"feedback"`
	Rating   *int   `json:"rating"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req placeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	lines := make([]services.OrderLineInput, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, services.OrderLineInput{
			VariantID: strings.TrimSpace(item.VariantID),
			Quantity:  item.Quantity,
			DesignID:  strings.TrimSpace(item.DesignID),
		})
	}

	cmd := services.PlaceOrderCommand{
		UserID:        strings.TrimSpace(identity.UID),
		Lines:         lines,
		VoucherCodes:  req.VoucherCodes,
		PaymentMethod: domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		Recipient: domain.Recipient{
			Name:    strings.TrimSpace(req.Recipient.Name),
			Phone:   strings.TrimSpace(req.Recipient.Phone),
			Address: strings.TrimSpace(req.Recipient.Address),
		},
		Locale: strings.TrimSpace(req.Locale),
	}

	order, err := h.orders.Place(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	filter, err := parseOrderListFilter(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.UserID = strings.TrimSpace(identity.UID)

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, services.OrderQuery{
		OrderID: orderID,
		UserID:  strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		UserID:  strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) confirmReceived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req confirmReceivedRequest
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.ConfirmReceived(ctx, services.ConfirmReceivedCommand{
		OrderID:  orderID,
		UserID:   strings.TrimSpace(identity.UID),
		Feedback: req.Feedback,
		Rating:   req.Rating,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method"`
	Total         int64  `json:"total"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	OrderNumber   string             `json:"order_number"`
	UserID        string             `json:"user_id"`
	Status        string             `json:"status"`
	PaymentStatus string             `json:"payment_status"`
	PaymentMethod string             `json:"payment_method"`
	PaymentCode   string             `json:"payment_code,omitempty"`
	Recipient     recipientPayload   `json:"recipient"`
	Locale        string             `json:"locale,omitempty"`
	Subtotal      int64              `json:"subtotal"`
	Discount      int64              `json:"discount"`
	Total         int64              `json:"total"`
	Feedback      string             `json:"feedback,omitempty"`
	Rating        *int               `json:"rating,omitempty"`
	Items         []orderItemPayload `json:"items"`
	CreatedAt     string             `json:"created_at"`
	UpdatedAt     string             `json:"updated_at,omitempty"`
	PaidAt        string             `json:"paid_at,omitempty"`
	ClosedAt      string             `json:"closed_at,omitempty"`
}

type orderItemPayload struct {
	ID             string `json:"id"`
	VariantID      string `json:"variant_id"`
	DesignID       string `json:"design_id,omitempty"`
	VoucherCode    string `json:"voucher_code,omitempty"`
	ProductName    string `json:"product_name"`
	SKU            string `json:"sku"`
	ImageURL       string `json:"image_url,omitempty"`
	UnitPrice      int64  `json:"unit_price"`
	Quantity       int64  `json:"quantity"`
	Subtotal       int64  `json:"subtotal"`
	DiscountAmount int64  `json:"discount_amount"`
	TotalAmount    int64  `json:"total_amount"`
}

func buildOrderListResponse(page domain.CursorPage[services.Order]) orderListResponse {
	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	return orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            strings.TrimSpace(order.ID),
		OrderNumber:   strings.TrimSpace(order.OrderNumber),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		Total:         order.Total,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            strings.TrimSpace(order.ID),
		OrderNumber:   strings.TrimSpace(order.OrderNumber),
		UserID:        strings.TrimSpace(order.UserID),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		PaymentCode:   strings.TrimSpace(order.PaymentCode),
		Recipient: recipientPayload{
			Name:    order.Recipient.Name,
			Phone:   order.Recipient.Phone,
			Address: order.Recipient.Address,
		},
		Locale:    order.Locale,
		Subtotal:  order.Subtotal,
		Discount:  order.Discount,
		Total:     order.Total,
		Feedback:  order.Feedback,
		Rating:    order.Rating,
		Items:     make([]orderItemPayload, 0, len(order.Items)),
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
		PaidAt:    formatTime(pointerTime(order.PaidAt)),
		ClosedAt:  formatTime(pointerTime(order.ClosedAt)),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:             item.ID,
			VariantID:      item.VariantID,
			DesignID:       item.DesignID,
			VoucherCode:    item.VoucherCode,
			ProductName:    item.ProductName,
			SKU:            item.SKU,
			ImageURL:       item.ImageURL,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal,
			DiscountAmount: item.DiscountAmount,
			TotalAmount:    item.TotalAmount,
		})
	}

	return payload
}

// parseOrderListFilter translates list query parameters into the domain
// filter. Caller scoping (UserID) is applied afterwards by each handler.
func parseOrderListFilter(query url.Values) (domain.OrderListFilter, error) {
	var filter domain.OrderListFilter

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.OrderStatus(strings.ToLower(raw))
		if !status.Valid() {
			return filter, errors.New("status must be a valid order status")
		}
		filter.Status = &status
	}

	if raw := strings.TrimSpace(query.Get("payment_status")); raw != "" {
		status := domain.PaymentStatus(strings.ToLower(raw))
		if !status.Valid() {
			return filter, errors.New("payment_status must be a valid payment status")
		}
		filter.PaymentStatus = &status
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return filter, errors.New("created_after must be a valid RFC3339 timestamp")
		}
		filter.CreatedAt.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return filter, errors.New("created_before must be a valid RFC3339 timestamp")
		}
		filter.CreatedAt.To = &ts
	}

	pageSize := defaultOrderPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			return filter, errors.New("page_size must be an integer")
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}
	filter.Pagination = domain.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}

	switch sort := strings.ToLower(strings.TrimSpace(query.Get("sort"))); sort {
	case "":
	case string(domain.SortAsc):
		filter.Sort = domain.SortAsc
	case string(domain.SortDesc):
		filter.Sort = domain.SortDesc
	default:
		return filter, errors.New("sort must be asc or desc")
	}

	return filter, nil
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var pricingErr *services.PricingValidationError
	switch {
	case errors.As(err, &pricingErr):
		httpx.WriteError(ctx, w, pricingViolationError(pricingErr))
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingOverflow):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

// pricingViolationError renders the aggregated pricing violations so the
// client sees every offending id in one response. Stock shortages are a
// conflict with current inventory; everything else is a bad request.
func pricingViolationError(err *services.PricingValidationError) httpx.Error {
	violations := err.Violations

	code := "order_validation_failed"
	status := http.StatusBadRequest
	if len(violations.StockShortages) > 0 {
		code = "insufficient_stock"
		status = http.StatusConflict
	}

	details := make(map[string]any)
	if len(violations.MissingVariants) > 0 {
		details["missing_variants"] = violations.MissingVariants
	}
	if len(violations.StockShortages) > 0 {
		shortages := make([]map[string]any, 0, len(violations.StockShortages))
		for _, shortage := range violations.StockShortages {
			shortages = append(shortages, map[string]any{
				"variant_id": shortage.VariantID,
				"requested":  shortage.Requested,
				"available":  shortage.Available,
			})
		}
		details["stock_shortages"] = shortages
	}
	if len(violations.UnknownVouchers) > 0 {
		details["unknown_vouchers"] = violations.UnknownVouchers
	}
	if len(violations.ExpiredVouchers) > 0 {
		details["expired_vouchers"] = violations.ExpiredVouchers
	}
	if len(violations.MissingDesigns) > 0 {
		details["missing_designs"] = violations.MissingDesigns
	}

	return httpx.NewError(code, err.Error(), status).WithDetails(details)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxOrderBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func parseTimeParam(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(value))
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
