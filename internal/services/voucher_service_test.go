package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/merchline/api/internal/domain"
)

func voucherNow() time.Time {
	return time.Date(2025, time.April, 7, 12, 0, 0, 0, time.UTC)
}

func newVoucherServiceFixture(t *testing.T, repo *stubVoucherRepository) VoucherService {
	t.Helper()
	if repo == nil {
		repo = &stubVoucherRepository{}
	}
	service, err := NewVoucherService(VoucherServiceDeps{Vouchers: repo, Clock: voucherNow})
	if err != nil {
		t.Fatalf("NewVoucherService: %v", err)
	}
	return service
}

func TestVoucherService_GetPublicVoucher(t *testing.T) {
	repo := &stubVoucherRepository{vouchers: map[string]domain.Voucher{
		"SPRING10": {
			ID:            "vch-1",
			Code:          "SPRING10",
			DiscountType:  domain.DiscountPercent,
			DiscountValue: 10,
			StartsAt:      voucherNow().Add(-time.Hour),
			EndsAt:        voucherNow().Add(time.Hour),
			Active:        true,
		},
	}}
	service := newVoucherServiceFixture(t, repo)

	public, err := service.GetPublicVoucher(context.Background(), "  spring10 ")
	if err != nil {
		t.Fatalf("GetPublicVoucher returned error: %v", err)
	}
	if public.Code != "SPRING10" {
		t.Fatalf("unexpected code %s", public.Code)
	}
	if !public.IsAvailable {
		t.Fatal("voucher inside its window must be available")
	}
	if public.DiscountType != domain.DiscountPercent || public.DiscountValue != 10 {
		t.Fatalf("discount terms must be exposed, got %s/%d", public.DiscountType, public.DiscountValue)
	}
}

func TestVoucherService_GetPublicVoucher_Expired(t *testing.T) {
	repo := &stubVoucherRepository{vouchers: map[string]domain.Voucher{
		"LASTYEAR": {
			ID:            "vch-2",
			Code:          "LASTYEAR",
			DiscountType:  domain.DiscountFixedAmount,
			DiscountValue: 500,
			StartsAt:      voucherNow().Add(-48 * time.Hour),
			EndsAt:        voucherNow().Add(-24 * time.Hour),
			Active:        true,
		},
	}}
	service := newVoucherServiceFixture(t, repo)

	public, err := service.GetPublicVoucher(context.Background(), "LASTYEAR")
	if err != nil {
		t.Fatalf("GetPublicVoucher returned error: %v", err)
	}
	if public.IsAvailable {
		t.Fatal("expired vouchers must report unavailable, not missing")
	}
}

func TestVoucherService_GetPublicVoucher_NotFound(t *testing.T) {
	service := newVoucherServiceFixture(t, nil)

	if _, err := service.GetPublicVoucher(context.Background(), "NOPE"); !errors.Is(err, ErrVoucherNotFound) {
		t.Fatalf("expected ErrVoucherNotFound, got %v", err)
	}
}

func TestVoucherService_GetPublicVoucher_InvalidCode(t *testing.T) {
	service := newVoucherServiceFixture(t, nil)

	if _, err := service.GetPublicVoucher(context.Background(), "   "); !errors.Is(err, ErrVoucherInvalidCode) {
		t.Fatalf("expected ErrVoucherInvalidCode, got %v", err)
	}
}
