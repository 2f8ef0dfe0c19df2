package services

import "errors"

var (
	// ErrVoucherRepositoryMissing indicates the voucher repository dependency is absent.
	ErrVoucherRepositoryMissing = errors.New("voucher service: repository is not configured")
	// ErrVoucherInvalidCode signals the supplied voucher code is missing or invalid.
	ErrVoucherInvalidCode = errors.New("voucher service: invalid voucher code")
	// ErrVoucherNotFound indicates no voucher exists for the provided code.
	ErrVoucherNotFound = errors.New("voucher service: voucher not found")
)
