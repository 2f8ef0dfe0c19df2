package repositories

import "fmt"

// VoucherErrorCode enumerates repository error causes for voucher lookups.
type VoucherErrorCode string

const (
	// VoucherErrorUnknown represents an unspecified failure.
	VoucherErrorUnknown VoucherErrorCode = "voucher_unknown"
	// VoucherErrorNotFound indicates no voucher carries the requested code.
	VoucherErrorNotFound VoucherErrorCode = "voucher_not_found"
)

// VoucherError wraps voucher-specific failures with machine readable codes.
type VoucherError struct {
	Op      string
	Code    VoucherErrorCode
	Message string
	Codes   []string
	Err     error
}

// Error implements the error interface.
func (e *VoucherError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *VoucherError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewVoucherError constructs a typed voucher error.
func NewVoucherError(code VoucherErrorCode, message string, codes []string, err error) *VoucherError {
	if message == "" {
		message = string(code)
	}
	return &VoucherError{
		Code:    code,
		Message: message,
		Codes:   codes,
		Err:     err,
	}
}
