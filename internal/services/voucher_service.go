package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/merchline/api/internal/repositories"
)

// VoucherServiceDeps bundles dependencies required to construct a VoucherService implementation.
type VoucherServiceDeps struct {
	Vouchers repositories.VoucherRepository
	Clock    func() time.Time
}

type voucherService struct {
	repo  repositories.VoucherRepository
	clock func() time.Time
}

// NewVoucherService wires a VoucherService backed by the provided repository.
func NewVoucherService(deps VoucherServiceDeps) (VoucherService, error) {
	if deps.Vouchers == nil {
		return nil, ErrVoucherRepositoryMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &voucherService{
		repo:  deps.Vouchers,
		clock: func() time.Time { return clock().UTC() },
	}, nil
}

func (s *voucherService) GetPublicVoucher(ctx context.Context, code string) (VoucherPublic, error) {
	if s == nil || s.repo == nil {
		return VoucherPublic{}, ErrVoucherRepositoryMissing
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return VoucherPublic{}, ErrVoucherInvalidCode
	}

	voucher, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok {
			switch {
			case repoErr.IsNotFound():
				return VoucherPublic{}, ErrVoucherNotFound
			case repoErr.IsUnavailable():
				return VoucherPublic{}, ErrVoucherRepositoryMissing
			}
		}
		var voucherErr *repositories.VoucherError
		if errors.As(err, &voucherErr) && voucherErr.Code == repositories.VoucherErrorNotFound {
			return VoucherPublic{}, ErrVoucherNotFound
		}
		return VoucherPublic{}, err
	}

	result := VoucherPublic{
		Code:          voucher.Code,
		IsAvailable:   voucher.ValidAt(s.clock()),
		DiscountType:  voucher.DiscountType,
		DiscountValue: voucher.DiscountValue,
	}
	if !voucher.StartsAt.IsZero() {
		result.StartsAt = voucher.StartsAt.UTC()
	}
	if !voucher.EndsAt.IsZero() {
		result.EndsAt = voucher.EndsAt.UTC()
	}
	return result, nil
}
