package domain

// OrderStatus enumerates the order fulfilment states.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing marks an order accepted by staff.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped marks an order handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered marks an order received by the carrier's recipient.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusConfirmReceived marks delivery acknowledged by the customer.
	OrderStatusConfirmReceived OrderStatus = "confirm_received"
	// OrderStatusRejected marks an order refused by staff.
	OrderStatusRejected OrderStatus = "rejected"
	// OrderStatusCancelled marks an order withdrawn before shipping.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusExpired marks an order whose payment window lapsed.
	OrderStatusExpired OrderStatus = "expired"
)

// Valid reports whether the value is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusConfirmReceived,
		OrderStatusRejected, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusConfirmReceived, OrderStatusRejected,
		OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// orderStatusRank orders the fulfilment pipeline stages. Rejected shares
// rank 1 with pending so a rejection never counts as forward progress.
// Cancelled and expired carry no rank; they are escape states, not stages.
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:         1,
	OrderStatusRejected:        1,
	OrderStatusProcessing:      2,
	OrderStatusShipped:         3,
	OrderStatusDelivered:       4,
	OrderStatusConfirmReceived: 5,
}

var allOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusConfirmReceived,
	OrderStatusRejected,
	OrderStatusCancelled,
	OrderStatusExpired,
}

// forbiddenOrderTransitions is the explicit deny table: every exit from a
// terminal state, plus shipped orders escaping through cancellation instead
// of rejection.
var forbiddenOrderTransitions = buildForbiddenOrderTransitions()

func buildForbiddenOrderTransitions() map[OrderStatus]map[OrderStatus]bool {
	forbidden := map[OrderStatus]map[OrderStatus]bool{
		OrderStatusShipped: {OrderStatusCancelled: true},
	}
	for _, from := range allOrderStatuses {
		if !from.Terminal() {
			continue
		}
		exits := make(map[OrderStatus]bool, len(allOrderStatuses)-1)
		for _, to := range allOrderStatuses {
			if to != from {
				exits[to] = true
			}
		}
		forbidden[from] = exits
	}
	return forbidden
}

// CanTransition reports whether an order may move between the two statuses
// under the staff-driven rules: delivered and acknowledged orders are frozen
// for staff, the deny table is consulted next, escapes to cancelled or
// rejected are always forward moves, and everything else must strictly
// increase the pipeline rank. The customer-only actions have their own
// guards below.
func CanTransition(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if from == OrderStatusDelivered || from == OrderStatusConfirmReceived {
		return false
	}
	if forbiddenOrderTransitions[from][to] {
		return false
	}
	if to == OrderStatusCancelled || to == OrderStatusRejected {
		return true
	}
	fromRank, ok := orderStatusRank[from]
	if !ok {
		return false
	}
	toRank, ok := orderStatusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// CanCustomerCancel reports whether the order's owner may cancel it. Only
// fresh orders qualify: still pending, and either unpaid online orders or
// cash on delivery.
func CanCustomerCancel(status OrderStatus, payment PaymentStatus) bool {
	if status != OrderStatusPending {
		return false
	}
	return payment == PaymentStatusAwaiting || payment == PaymentStatusCOD
}

// CanConfirmReceived reports whether the order's owner may acknowledge
// delivery.
func CanConfirmReceived(status OrderStatus) bool {
	return status == OrderStatusDelivered
}

// RequiresStockRestoration reports whether entering the target status from
// the given previous status must credit the debited stock back. Only exits
// from the active pipeline qualify; a rejection of an already-expired order
// must not credit stock twice.
func RequiresStockRestoration(previous, target OrderStatus) bool {
	switch target {
	case OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
	default:
		return false
	}
	switch previous {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped:
		return true
	}
	return false
}

// PaymentStatus enumerates the payment states of an order.
type PaymentStatus string

const (
	// PaymentStatusAwaiting marks an online payment not yet confirmed.
	PaymentStatusAwaiting PaymentStatus = "online_payment_awaiting"
	// PaymentStatusPaid marks a confirmed online payment.
	PaymentStatusPaid PaymentStatus = "online_payment_paid"
	// PaymentStatusCOD marks payment collected on delivery.
	PaymentStatusCOD PaymentStatus = "cod"
	// PaymentStatusRefunding marks a refund in progress.
	PaymentStatusRefunding PaymentStatus = "refunding"
	// PaymentStatusRefunded marks a completed refund. No transition leaves it.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Valid reports whether the value is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusAwaiting, PaymentStatusPaid, PaymentStatusCOD,
		PaymentStatusRefunding, PaymentStatusRefunded:
		return true
	}
	return false
}

// forbiddenPaymentTransitions is the deny table for payment status moves.
var forbiddenPaymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentStatusPaid: {
		PaymentStatusAwaiting: true,
	},
	PaymentStatusCOD: {
		PaymentStatusAwaiting: true,
		PaymentStatusPaid:     true,
	},
	PaymentStatusRefunded: {
		PaymentStatusAwaiting: true,
		PaymentStatusPaid:     true,
		PaymentStatusCOD:      true,
	},
}

// CanTransitionPayment reports whether the payment status may move between
// the two values. Refunded is a sink regardless of the deny table.
func CanTransitionPayment(from, to PaymentStatus) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if from == PaymentStatusRefunded {
		return false
	}
	return !forbiddenPaymentTransitions[from][to]
}

// PaymentMethod enumerates how the customer pays for an order.
type PaymentMethod string

const (
	// PaymentMethodCOD collects cash on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodOnline collects payment through a bank transfer
	// correlated back by the order's payment code.
	PaymentMethodOnline PaymentMethod = "online_payment"
)

// Valid reports whether the value is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

// InitialPaymentStatus returns the payment status a new order starts in for
// the given method.
func InitialPaymentStatus(method PaymentMethod) PaymentStatus {
	if method == PaymentMethodCOD {
		return PaymentStatusCOD
	}
	return PaymentStatusAwaiting
}
