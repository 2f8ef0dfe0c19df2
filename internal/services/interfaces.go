package services

import (
	"context"
	"time"

	domain "github.com/merchline/api/internal/domain"
)

// Type aliases expose domain models to the services package without
// reversing dependency direction.
type (
	Pagination     = domain.Pagination
	SortOrder      = domain.SortOrder
	Order          = domain.Order
	OrderItem      = domain.OrderItem
	ProductVariant = domain.ProductVariant
	Voucher        = domain.Voucher
	Transaction    = domain.Transaction
	PricedOrder    = domain.PricedOrder
)

// OrderLineInput is one requested line of a new order.
type OrderLineInput struct {
	VariantID string
	Quantity  int64
	DesignID  string
}

// PriceOrderInput carries everything the pricing engine needs. Now is
// injected so validity windows and price snapshots are evaluated against one
// consistent instant.
type PriceOrderInput struct {
	Lines        []OrderLineInput
	VoucherCodes []string
	Now          time.Time
}

// OrderPricingEngine converts requested lines into priced item snapshots,
// aggregate totals and the delta lists the write phase applies. It performs
// no writes itself.
type OrderPricingEngine interface {
	Price(ctx context.Context, input PriceOrderInput) (domain.PricedOrder, error)
}

// OrderService drives order placement and the order lifecycle.
type OrderService interface {
	// Place prices the requested lines and persists the order, its stock
	// debits and voucher usage increments as one atomic unit.
	Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	// TransitionStatus applies a staff-driven status change, including the
	// compensating stock restoration and refund flip where the target
	// requires them.
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	// Cancel is the customer-facing escape hatch for fresh orders.
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	// ConfirmReceived lets the owner acknowledge a delivered order with
	// optional feedback and rating.
	ConfirmReceived(ctx context.Context, cmd ConfirmReceivedCommand) (Order, error)
	// ExpireUnpaid is the payment-timeout callback. The bool result reports
	// whether the order was actually expired; false with a nil error means
	// the order was paid or closed before the timeout fired.
	ExpireUnpaid(ctx context.Context, cmd ExpireOrderCommand) (Order, bool, error)
	Get(ctx context.Context, query OrderQuery) (Order, error)
	List(ctx context.Context, filter domain.OrderListFilter) (domain.CursorPage[Order], error)
}

// PlaceOrderCommand captures one checkout submission.
type PlaceOrderCommand struct {
	UserID        string
	Lines         []OrderLineInput
	VoucherCodes  []string
	PaymentMethod domain.PaymentMethod
	Recipient     domain.Recipient
	Locale        string
}

// OrderStatusTransitionCommand is a staff-driven status change request.
type OrderStatusTransitionCommand struct {
	OrderID string
	Target  domain.OrderStatus
	ActorID string
}

// CancelOrderCommand is the customer cancellation request.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
}

// ConfirmReceivedCommand acknowledges delivery with optional feedback.
type ConfirmReceivedCommand struct {
	OrderID  string
	UserID   string
	Feedback string
	Rating   *int
}

// ExpireOrderCommand identifies the order whose payment window lapsed.
type ExpireOrderCommand struct {
	OrderID string
}

// OrderQuery scopes a single-order read. UserID is empty for staff reads
// and enforced as the owner otherwise.
type OrderQuery struct {
	OrderID string
	UserID  string
}

// PaymentService consumes inbound bank-transfer notifications.
type PaymentService interface {
	// Confirm processes one webhook delivery. Notifications that are not
	// inbound transfers, or whose code does not carry the order payment
	// prefix, are filtered (Handled=false) without error.
	Confirm(ctx context.Context, cmd PaymentNotificationCommand) (PaymentConfirmation, error)
}

// PaymentNotificationCommand mirrors the webhook payload field for field.
type PaymentNotificationCommand struct {
	ExternalID      string
	Code            string
	TransferType    string
	TransferAmount  int64
	Gateway         string
	AccountNumber   string
	Content         string
	TransactionDate time.Time
}

// PaymentConfirmation reports the outcome of one notification.
type PaymentConfirmation struct {
	Handled bool
	Order   Order
}

// VoucherService exposes the public read-only voucher surface.
type VoucherService interface {
	GetPublicVoucher(ctx context.Context, code string) (VoucherPublic, error)
}

// VoucherPublic is the sanitised voucher view for unauthenticated callers.
type VoucherPublic struct {
	Code          string
	IsAvailable   bool
	DiscountType  domain.DiscountType
	DiscountValue int64
	StartsAt      time.Time
	EndsAt        time.Time
}

// ExpiryScheduler schedules and cancels the payment-timeout callback for
// online-payment orders.
type ExpiryScheduler interface {
	Schedule(ctx context.Context, orderID string, fireAt time.Time) error
	Cancel(ctx context.Context, orderID string) error
}

// SystemService aggregates operational health for the health endpoints.
type SystemService interface {
	Health(ctx context.Context) (domain.SystemHealthReport, error)
}
