package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/merchline/api/internal/domain"
	"github.com/merchline/api/internal/platform/auth"
	"github.com/merchline/api/internal/services"
)

type stubOrderService struct {
	placeFn      func(context.Context, services.PlaceOrderCommand) (services.Order, error)
	transitionFn func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (services.Order, error)
	confirmFn    func(context.Context, services.ConfirmReceivedCommand) (services.Order, error)
	expireFn     func(context.Context, services.ExpireOrderCommand) (services.Order, bool, error)
	getFn        func(context.Context, services.OrderQuery) (services.Order, error)
	listFn       func(context.Context, domain.OrderListFilter) (domain.CursorPage[services.Order], error)
}

func (s *stubOrderService) Place(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ConfirmReceived(ctx context.Context, cmd services.ConfirmReceivedCommand) (services.Order, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ExpireUnpaid(ctx context.Context, cmd services.ExpireOrderCommand) (services.Order, bool, error) {
	if s.expireFn != nil {
		return s.expireFn(ctx, cmd)
	}
	return services.Order{}, false, errors.New("not implemented")
}

func (s *stubOrderService) Get(ctx context.Context, query services.OrderQuery) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) List(ctx context.Context, filter domain.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func sampleOrder(now time.Time) services.Order {
	return services.Order{
		ID:            "ord_123",
		OrderNumber:   "ML-2025-000123",
		UserID:        "user-1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusAwaiting,
		PaymentMethod: domain.PaymentMethodOnline,
		PaymentCode:   "ORDABC123",
		Recipient: domain.Recipient{
			Name:    "Linh Tran",
			Phone:   "+84901234567",
			Address: "12 Hang Bac, Hanoi",
		},
		Subtotal: 3000,
		Discount: 0,
		Total:    3000,
		Items: []services.OrderItem{
			{
				ID:          "item-1",
				VariantID:   "var-1",
				ProductName: "Classic Tee",
				SKU:         "TEE-01-M",
				UnitPrice:   1000,
				Quantity:    3,
				Subtotal:    3000,
				TotalAmount: 3000,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderHandlersPlaceOrder(t *testing.T) {
	now := time.Date(2025, time.April, 7, 10, 0, 0, 0, time.UTC)

	var captured services.PlaceOrderCommand
	service := &stubOrderService{
		placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(now), nil
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := `{
		"items":[{"variant_id":"var-1","quantity":3,"design_id":"des-9"}],
		"voucher_codes":["SPRING10"],
		"payment_method":"online_payment",
		"recipient":{"name":"Linh Tran","phone":"+84901234567","address":"12 Hang Bac, Hanoi"},
		"locale":"vi-VN"
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", captured.UserID)
	}
	if len(captured.Lines) != 1 || captured.Lines[0].VariantID != "var-1" || captured.Lines[0].Quantity != 3 || captured.Lines[0].DesignID != "des-9" {
		t.Fatalf("unexpected lines: %#v", captured.Lines)
	}
	if len(captured.VoucherCodes) != 1 || captured.VoucherCodes[0] != "SPRING10" {
		t.Fatalf("unexpected voucher codes: %#v", captured.VoucherCodes)
	}
	if captured.PaymentMethod != domain.PaymentMethodOnline {
		t.Fatalf("unexpected payment method %q", captured.PaymentMethod)
	}
	if captured.Recipient.Name != "Linh Tran" || captured.Locale != "vi-VN" {
		t.Fatalf("unexpected recipient/locale: %#v %q", captured.Recipient, captured.Locale)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.ID != "ord_123" || resp.Order.OrderNumber != "ML-2025-000123" {
		t.Fatalf("unexpected order payload: %#v", resp.Order)
	}
	if resp.Order.PaymentCode != "ORDABC123" {
		t.Fatalf("expected payment code in payload, got %q", resp.Order.PaymentCode)
	}
	if len(resp.Order.Items) != 1 || resp.Order.Items[0].SKU != "TEE-01-M" {
		t.Fatalf("unexpected items: %#v", resp.Order.Items)
	}
}

func TestOrderHandlersPlaceOrderInsufficientStock(t *testing.T) {
	service := &stubOrderService{
		placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInsufficientStock
		},
	}
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := `{"items":[{"variant_id":"var-1","quantity":99}],"payment_method":"cod","recipient":{"name":"A","phone":"1","address":"B"}}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "insufficient_stock") {
		t.Fatalf("expected insufficient_stock code, got %s", rr.Body.String())
	}
}

func TestOrderHandlersPlaceOrderPricingViolations(t *testing.T) {
	service := &stubOrderService{
		placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
			return services.Order{}, &services.PricingValidationError{
				Violations: services.PricingViolations{
					StockShortages: []services.StockShortage{
						{VariantID: "var-1", Requested: 10, Available: 5},
					},
					UnknownVouchers: []string{"NOPE"},
				},
			}
		},
	}
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := `{"items":[{"variant_id":"var-1","quantity":10}],"voucher_codes":["NOPE"],"payment_method":"cod","recipient":{"name":"A","phone":"1","address":"B"}}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}

	var resp struct {
		Error          string `json:"error"`
		StockShortages []struct {
			VariantID string `json:"variant_id"`
			Requested int64  `json:"requested"`
			Available int64  `json:"available"`
		} `json:"stock_shortages"`
		UnknownVouchers []string `json:"unknown_vouchers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock code, got %q", resp.Error)
	}
	if len(resp.StockShortages) != 1 {
		t.Fatalf("expected 1 stock shortage, got %#v", resp.StockShortages)
	}
	if s := resp.StockShortages[0]; s.VariantID != "var-1" || s.Requested != 10 || s.Available != 5 {
		t.Fatalf("unexpected shortage detail: %#v", s)
	}
	if len(resp.UnknownVouchers) != 1 || resp.UnknownVouchers[0] != "NOPE" {
		t.Fatalf("expected unknown voucher NOPE, got %#v", resp.UnknownVouchers)
	}
}

func TestOrderHandlersPlaceOrderVoucherViolationsOnly(t *testing.T) {
	service := &stubOrderService{
		placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
			return services.Order{}, &services.PricingValidationError{
				Violations: services.PricingViolations{
					UnknownVouchers: []string{"NOPE"},
					ExpiredVouchers: []string{"LASTYEAR"},
				},
			}
		},
	}
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := `{"items":[{"variant_id":"var-1","quantity":1}],"voucher_codes":["NOPE","LASTYEAR"],"payment_method":"cod","recipient":{"name":"A","phone":"1","address":"B"}}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "order_validation_failed") {
		t.Fatalf("expected order_validation_failed code, got %s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "LASTYEAR") {
		t.Fatalf("expected expired voucher code in body, got %s", rr.Body.String())
	}
}

func TestOrderHandlersPlaceOrderPricingInputError(t *testing.T) {
	service := &stubOrderService{
		placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrPricingInvalidInput
		},
	}
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := `{"items":[{"variant_id":"var-1","quantity":1}],"payment_method":"cod","recipient":{"name":"A","phone":"1","address":"B"}}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersPlaceOrderEmptyBody(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{})
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	now := time.Date(2025, time.April, 7, 10, 0, 0, 0, time.UTC)
	fromExpected := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	var captured domain.OrderListFilter
	service := &stubOrderService{
		listFn: func(ctx context.Context, filter domain.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{sampleOrder(now)},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders?status=pending&payment_status=online_payment_awaiting&page_size=10&page_token=tok123&created_after=2025-04-01T00:00:00Z&sort=asc", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected owner scope user-1, got %q", captured.UserID)
	}
	if captured.Status == nil || *captured.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status filter, got %#v", captured.Status)
	}
	if captured.PaymentStatus == nil || *captured.PaymentStatus != domain.PaymentStatusAwaiting {
		t.Fatalf("expected awaiting payment filter, got %#v", captured.PaymentStatus)
	}
	if captured.CreatedAt.From == nil || !captured.CreatedAt.From.Equal(fromExpected) {
		t.Fatalf("unexpected date range: %#v", captured.CreatedAt.From)
	}
	if captured.Pagination.PageSize != 10 || captured.Pagination.PageToken != "tok123" {
		t.Fatalf("unexpected pagination: %#v", captured.Pagination)
	}
	if captured.Sort != domain.SortAsc {
		t.Fatalf("expected asc sort, got %q", captured.Sort)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].OrderNumber != "ML-2025-000123" {
		t.Fatalf("unexpected items: %#v", resp.Items)
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token, got %q", resp.NextPageToken)
	}
}

func TestOrderHandlersListOrdersInvalidStatus(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{})
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders?status=bogus", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderScopesOwner(t *testing.T) {
	now := time.Date(2025, time.April, 7, 10, 0, 0, 0, time.UTC)

	var captured services.OrderQuery
	service := &stubOrderService{
		getFn: func(ctx context.Context, query services.OrderQuery) (services.Order, error) {
			captured = query
			return sampleOrder(now), nil
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_123", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "ord_123" || captured.UserID != "user-1" {
		t.Fatalf("expected owner-scoped query, got %#v", captured)
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, query services.OrderQuery) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_missing", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	now := time.Date(2025, time.April, 7, 10, 0, 0, 0, time.UTC)

	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			cancelled := sampleOrder(now)
			cancelled.Status = domain.OrderStatusCancelled
			return cancelled, nil
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123:cancel", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" || captured.UserID != "user-1" {
		t.Fatalf("unexpected cancel command: %#v", captured)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.Status != string(domain.OrderStatusCancelled) {
		t.Fatalf("expected cancelled status, got %q", resp.Order.Status)
	}
}

func TestOrderHandlersCancelOrderWrongState(t *testing.T) {
	service := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123:cancel", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestOrderHandlersConfirmReceived(t *testing.T) {
	now := time.Date(2025, time.April, 7, 10, 0, 0, 0, time.UTC)

	var captured services.ConfirmReceivedCommand
	service := &stubOrderService{
		confirmFn: func(ctx context.Context, cmd services.ConfirmReceivedCommand) (services.Order, error) {
			captured = cmd
			confirmed := sampleOrder(now)
			confirmed.Status = domain.OrderStatusConfirmReceived
			confirmed.Feedback = cmd.Feedback
			confirmed.Rating = cmd.Rating
			return confirmed, nil
		},
	}

	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := `{"feedback":"Great quality!","rating":5}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123:confirm-received", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" || captured.UserID != "user-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.Feedback != "Great quality!" || captured.Rating == nil || *captured.Rating != 5 {
		t.Fatalf("unexpected feedback/rating: %#v", captured)
	}
}

func TestOrderHandlersConfirmReceivedEmptyBodyAllowed(t *testing.T) {
	now := time.Date(2025, time.April, 7, 10, 0, 0, 0, time.UTC)

	service := &stubOrderService{
		confirmFn: func(ctx context.Context, cmd services.ConfirmReceivedCommand) (services.Order, error) {
			if cmd.Feedback != "" || cmd.Rating != nil {
				t.Fatalf("expected empty feedback, got %#v", cmd)
			}
			return sampleOrder(now), nil
		},
	}
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123:confirm-received", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestOrderHandlersUnauthenticated(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{})
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rr := httptest.NewRecorder()
	handler.listOrders(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersServiceUnavailable(t *testing.T) {
	handler := NewOrderHandlers(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()

	handler.listOrders(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
