package repositories

import (
	"context"
	"time"

	domain "github.com/merchline/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Variants() VariantRepository
	Vouchers() VoucherRepository
	Designs() DesignRepository
	Orders() OrderRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// VariantRepository reads product variants for pricing. Stock writes happen
// only through the transactional order operations below.
type VariantRepository interface {
	FindByID(ctx context.Context, variantID string) (domain.ProductVariant, error)
	// FindByIDs bulk-loads the given variants in one pass. Missing ids are
	// simply absent from the result; the caller decides whether that is an
	// error.
	FindByIDs(ctx context.Context, variantIDs []string) (map[string]domain.ProductVariant, error)
}

// VoucherRepository reads voucher definitions by their normalised codes.
type VoucherRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Voucher, error)
	// FindByCodes bulk-loads vouchers keyed by code. Unknown codes are
	// absent from the result.
	FindByCodes(ctx context.Context, codes []string) (map[string]domain.Voucher, error)
}

// DesignRepository reads customer designs referenced by order lines.
type DesignRepository interface {
	FindByID(ctx context.Context, designID string) (domain.Design, error)
	// FindByIDs bulk-loads designs. Missing ids are absent from the result.
	FindByIDs(ctx context.Context, designIDs []string) (map[string]domain.Design, error)
}

// OrderRepository persists orders and executes the transactional lifecycle
// mutations. Each mutating method is a single atomic unit: it re-reads every
// touched document inside the transaction immediately before writing it, so
// concurrent checkouts, webhooks and cancellations serialise at the store.
type OrderRepository interface {
	// Place atomically inserts the order with its items, applies the stock
	// debits (failing the whole transaction if any variant no longer covers
	// its quantity) and increments the winning vouchers' usage counters.
	Place(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)

	// TransitionStatus atomically moves the order to a new status. The
	// expected fields guard against concurrent writers: when the re-read
	// order no longer matches them the transaction fails with a conflict
	// and the caller must re-evaluate. Stock deltas, when present, are
	// applied in the same transaction.
	TransitionStatus(ctx context.Context, req OrderStatusTransitionRequest) (domain.Order, error)

	// ConfirmPayment atomically flips the order to paid and creates the
	// transaction record keyed by the external payment id. A duplicate
	// external id fails with TransactionErrorAlreadyRecorded.
	ConfirmPayment(ctx context.Context, req PaymentConfirmationRequest) (domain.Order, error)

	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByPaymentCode(ctx context.Context, paymentCode string) (domain.Order, error)
	List(ctx context.Context, filter domain.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// PlaceOrderRequest carries the order insert plus the delta lists produced
// by the pricing computation. Stock deltas are negative (debits); voucher
// usage deltas are positive increments.
type PlaceOrderRequest struct {
	Order              domain.Order
	StockDeltas        []domain.StockDelta
	VoucherUsageDeltas []domain.VoucherUsageDelta
	Now                time.Time
}

// OrderStatusTransitionRequest describes one guarded status mutation. The
// transition legality is decided by the caller against the expected state;
// the repository only verifies the state is still what the caller saw.
type OrderStatusTransitionRequest struct {
	OrderID               string
	ExpectedStatus        domain.OrderStatus
	ExpectedPaymentStatus domain.PaymentStatus
	Status                domain.OrderStatus
	// PaymentStatus, when set, is written together with the status (for
	// the paid-to-refunding flip on cancellation and rejection).
	PaymentStatus *domain.PaymentStatus
	// StockDeltas carry the restoration credits, one positive entry per
	// variant, applied atomically with the status write.
	StockDeltas []domain.StockDelta
	Feedback    *string
	Rating      *int
	Now         time.Time
}

// PaymentConfirmationRequest flips an awaiting order to paid and records the
// inbound transaction in the same transaction.
type PaymentConfirmationRequest struct {
	OrderID     string
	Transaction domain.Transaction
	Now         time.Time
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
