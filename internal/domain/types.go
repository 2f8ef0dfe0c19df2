package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage wraps a page of results plus the token for fetching the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// ProductVariant identifies a purchasable SKU together with its live stock
// level. Stock is mutated only through the inventory operations on the
// variant repository, never written directly.
type ProductVariant struct {
	ID             string
	ProductID      string
	ProductName    string
	Name           string
	SKU            string
	ImageURL       string
	UnitPrice      int64
	Stock          int64
	Deleted        bool
	ProductDeleted bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Purchasable reports whether the variant may appear on a new order.
func (v ProductVariant) Purchasable() bool {
	return !v.Deleted && !v.ProductDeleted
}

// DiscountType enumerates the supported voucher discount shapes.
type DiscountType string

const (
	// DiscountPercent discounts a percentage (0-100) of the unit price.
	DiscountPercent DiscountType = "percent"
	// DiscountFixedAmount discounts a fixed amount in minor currency units.
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Voucher is a discount code with a validity window and per-product
// eligibility. UsedCount tracks how many order lines the voucher has won;
// no usage cap is enforced on top of it.
type Voucher struct {
	ID            string
	Code          string
	DiscountType  DiscountType
	DiscountValue int64
	StartsAt      time.Time
	EndsAt        time.Time
	UsedCount     int64
	Active        bool
	ProductIDs    []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidAt reports whether the voucher may be applied at the given instant.
func (v Voucher) ValidAt(now time.Time) bool {
	if !v.Active {
		return false
	}
	if now.Before(v.StartsAt) {
		return false
	}
	if !v.EndsAt.IsZero() && now.After(v.EndsAt) {
		return false
	}
	return true
}

// AppliesTo reports whether the voucher is eligible for the given product.
func (v Voucher) AppliesTo(productID string) bool {
	for _, id := range v.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Design is a customer-owned artwork that an order line may reference.
type Design struct {
	ID        string
	OwnerID   string
	Name      string
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recipient holds the delivery contact captured at checkout. The fields are
// immutable for the lifetime of the order.
type Recipient struct {
	Name    string
	Phone   string
	Address string
}

// Order is the aggregate root for a placed order. Status and payment status
// mutate over time through the transition operations; everything else is
// fixed at creation. Orders are never hard-deleted.
type Order struct {
	ID            string
	OrderNumber   string
	UserID        string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	PaymentCode   string
	Recipient     Recipient
	Locale        string
	Subtotal      int64
	Discount      int64
	Total         int64
	Feedback      string
	Rating        *int
	Items         []OrderItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
	ClosedAt      *time.Time
}

// OrderItem is an immutable priced snapshot of one variant within an order.
// Product name, SKU, image and unit price are copied at order time so later
// catalog edits do not rewrite history.
type OrderItem struct {
	ID             string
	VariantID      string
	DesignID       string
	VoucherID      string
	VoucherCode    string
	ProductName    string
	SKU            string
	ImageURL       string
	UnitPrice      int64
	Quantity       int64
	Subtotal       int64
	DiscountAmount int64
	TotalAmount    int64
}

// Transaction records a confirmed inbound payment notification. The external
// payment id doubles as the document key, which is what makes webhook
// retries idempotent.
type Transaction struct {
	ExternalID      string
	OrderID         string
	UserID          string
	Code            string
	Gateway         string
	AccountNumber   string
	Amount          int64
	Content         string
	TransactionDate time.Time
	RecordedAt      time.Time
}

// OrderListFilter narrows order listings for the customer and admin queues.
type OrderListFilter struct {
	UserID        string
	Status        *OrderStatus
	PaymentStatus *PaymentStatus
	CreatedAt     RangeQuery[time.Time]
	Pagination    Pagination
	Sort          SortOrder
}
