package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/merchline/api/internal/platform/httpx"
	"github.com/merchline/api/internal/services"
)

// VoucherHandlers exposes the unauthenticated voucher preview endpoint. The
// endpoint is throttled per client IP because voucher codes are guessable.
type VoucherHandlers struct {
	vouchers services.VoucherService
	limiter  rateLimiter
}

// VoucherOption customises the voucher handlers.
type VoucherOption func(*VoucherHandlers)

// WithVoucherRateLimit throttles voucher lookups per client within the window.
func WithVoucherRateLimit(limit int, window time.Duration, clock func() time.Time) VoucherOption {
	return func(h *VoucherHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, clock)
	}
}

// NewVoucherHandlers constructs voucher handlers.
func NewVoucherHandlers(vouchers services.VoucherService, opts ...VoucherOption) *VoucherHandlers {
	h := &VoucherHandlers{vouchers: vouchers}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the public voucher endpoints.
func (h *VoucherHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/vouchers/{code}", h.getVoucher)
}

type voucherPayload struct {
	Code          string `json:"code"`
	IsAvailable   bool   `json:"is_available"`
	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
	StartsAt      string `json:"starts_at,omitempty"`
	EndsAt        string `json:"ends_at,omitempty"`
}

func (h *VoucherHandlers) getVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_service_unavailable", "voucher service unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many voucher lookups", http.StatusTooManyRequests))
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	voucher, err := h.vouchers.GetPublicVoucher(ctx, code)
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, voucherPayload{
		Code:          voucher.Code,
		IsAvailable:   voucher.IsAvailable,
		DiscountType:  string(voucher.DiscountType),
		DiscountValue: voucher.DiscountValue,
		StartsAt:      formatTime(voucher.StartsAt),
		EndsAt:        formatTime(voucher.EndsAt),
	})
}

func writeVoucherError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrVoucherInvalidCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "voucher code is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrVoucherNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_not_found", "voucher not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("voucher_error", "failed to look up voucher", http.StatusInternalServerError))
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
