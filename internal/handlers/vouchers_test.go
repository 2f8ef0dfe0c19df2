package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/merchline/api/internal/domain"
	"github.com/merchline/api/internal/services"
)

type stubVoucherService struct {
	getFn func(context.Context, string) (services.VoucherPublic, error)
}

func (s *stubVoucherService) GetPublicVoucher(ctx context.Context, code string) (services.VoucherPublic, error) {
	if s.getFn != nil {
		return s.getFn(ctx, code)
	}
	return services.VoucherPublic{}, services.ErrVoucherNotFound
}

func TestVoucherHandlersGetVoucher(t *testing.T) {
	startsAt := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	endsAt := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	var captured string
	service := &stubVoucherService{
		getFn: func(ctx context.Context, code string) (services.VoucherPublic, error) {
			captured = code
			return services.VoucherPublic{
				Code:          "SPRING10",
				IsAvailable:   true,
				DiscountType:  domain.DiscountPercent,
				DiscountValue: 10,
				StartsAt:      startsAt,
				EndsAt:        endsAt,
			}, nil
		},
	}

	handler := NewVoucherHandlers(service)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/vouchers/SPRING10", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured != "SPRING10" {
		t.Fatalf("expected code forwarded, got %q", captured)
	}

	var resp voucherPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Code != "SPRING10" || !resp.IsAvailable || resp.DiscountType != "percent" || resp.DiscountValue != 10 {
		t.Fatalf("unexpected payload: %#v", resp)
	}
	if resp.StartsAt == "" || resp.EndsAt == "" {
		t.Fatalf("expected validity window in payload: %#v", resp)
	}
}

func TestVoucherHandlersGetVoucherNotFound(t *testing.T) {
	handler := NewVoucherHandlers(&stubVoucherService{})
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/vouchers/NOPE", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestVoucherHandlersGetVoucherInvalidCode(t *testing.T) {
	service := &stubVoucherService{
		getFn: func(ctx context.Context, code string) (services.VoucherPublic, error) {
			return services.VoucherPublic{}, services.ErrVoucherInvalidCode
		},
	}
	handler := NewVoucherHandlers(service)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/vouchers/%20", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestVoucherHandlersRateLimit(t *testing.T) {
	now := time.Date(2025, time.April, 7, 10, 0, 0, 0, time.UTC)
	service := &stubVoucherService{
		getFn: func(ctx context.Context, code string) (services.VoucherPublic, error) {
			return services.VoucherPublic{Code: code, IsAvailable: true}, nil
		},
	}

	handler := NewVoucherHandlers(service, WithVoucherRateLimit(2, time.Minute, func() time.Time { return now }))
	router := chi.NewRouter()
	handler.Routes(router)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/vouchers/SPRING10", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/vouchers/SPRING10", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}

	// A different client is unaffected.
	other := httptest.NewRequest(http.MethodGet, "/vouchers/SPRING10", nil)
	other.RemoteAddr = "198.51.100.4:9999"
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, other)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for other client, got %d", rr.Code)
	}
}
