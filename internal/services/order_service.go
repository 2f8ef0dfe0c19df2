package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	domain "github.com/merchline/api/internal/domain"
	"github.com/merchline/api/internal/repositories"
)

const (
	orderEventPlaced           = "order.placed"
	orderEventStatusChanged    = "order.status.changed"
	orderEventExpired          = "order.expired"
	orderEventPaymentConfirmed = "order.payment.confirmed"

	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"

	// paymentCodePrefix marks payment codes belonging to orders. The
	// webhook handler ignores notifications whose code carries a different
	// prefix (those belong to sibling product lines).
	paymentCodePrefix = "ORD"

	defaultPaymentTimeout = 15 * time.Minute

	maxFeedbackLength = 2000
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located (or is not
	// visible to the requesting user).
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates the order changed underneath the caller.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderInsufficientStock indicates a variant no longer covers the
	// requested quantity.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
)

// feedbackPolicy strips all markup from customer feedback before storage.
var feedbackPolicy = bluemonday.StrictPolicy()

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders         repositories.OrderRepository
	Counters       repositories.CounterRepository
	Pricing        OrderPricingEngine
	Scheduler      ExpiryScheduler
	PaymentTimeout time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Events         OrderEventPublisher
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	counters       repositories.CounterRepository
	pricing        OrderPricingEngine
	scheduler      ExpiryScheduler
	paymentTimeout time.Duration
	clock          func() time.Time
	newID          func() string
	events         OrderEventPublisher
	logger         func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	timeout := deps.PaymentTimeout
	if timeout <= 0 {
		timeout = defaultPaymentTimeout
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:         deps.Orders,
		counters:       deps.Counters,
		pricing:        deps.Pricing,
		scheduler:      deps.Scheduler,
		paymentTimeout: timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: at least one line is required", ErrOrderInvalidInput)
	}
	if !cmd.PaymentMethod.Valid() {
		return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	recipient, err := normalizeRecipient(cmd.Recipient)
	if err != nil {
		return Order{}, err
	}
	locale := strings.TrimSpace(cmd.Locale)
	if locale != "" {
		tag, parseErr := language.Parse(locale)
		if parseErr != nil {
			return Order{}, fmt.Errorf("%w: unknown locale %q", ErrOrderInvalidInput, locale)
		}
		locale = tag.String()
	}

	now := s.now()

	priced, err := s.pricing.Price(ctx, PriceOrderInput{
		Lines:        cmd.Lines,
		VoucherCodes: cmd.VoucherCodes,
		Now:          now,
	})
	if err != nil {
		return Order{}, err
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	items := make([]domain.OrderItem, len(priced.Items))
	copy(items, priced.Items)
	for i := range items {
		items[i].ID = orderItemIDPrefix + s.newID()
	}

	order := domain.Order{
		ID:            s.nextOrderID(),
		OrderNumber:   number,
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.InitialPaymentStatus(cmd.PaymentMethod),
		PaymentMethod: cmd.PaymentMethod,
		PaymentCode:   s.nextPaymentCode(),
		Recipient:     recipient,
		Locale:        locale,
		Subtotal:      priced.Subtotal,
		Discount:      priced.Discount,
		Total:         priced.Total,
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	placed, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		Order:              order,
		StockDeltas:        priced.StockDeltas,
		VoucherUsageDeltas: priced.VoucherUsageDeltas,
		Now:                now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if placed.PaymentMethod == domain.PaymentMethodOnline && s.scheduler != nil {
		if schedErr := s.scheduler.Schedule(ctx, placed.ID, now.Add(s.paymentTimeout)); schedErr != nil {
			s.logger(ctx, "order.expiry.schedule.failed", map[string]any{
				"order": placed.ID,
				"error": schedErr.Error(),
			})
		}
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPlaced,
		OrderID:       placed.ID,
		OrderNumber:   placed.OrderNumber,
		CurrentStatus: string(placed.Status),
		ActorID:       userID,
		OccurredAt:    now,
	})

	return placed, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Target)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !domain.CanTransition(order.Status, cmd.Target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, cmd.Target)
	}

	now := s.now()
	req := repositories.OrderStatusTransitionRequest{
		OrderID:               order.ID,
		ExpectedStatus:        order.Status,
		ExpectedPaymentStatus: order.PaymentStatus,
		Status:                cmd.Target,
		Now:                   now,
	}
	if domain.RequiresStockRestoration(order.Status, cmd.Target) {
		req.StockDeltas = domain.RestorationDeltas(order.Items)
	}
	if (cmd.Target == domain.OrderStatusCancelled || cmd.Target == domain.OrderStatusRejected) &&
		order.PaymentStatus == domain.PaymentStatusPaid &&
		domain.CanTransitionPayment(order.PaymentStatus, domain.PaymentStatusRefunding) {
		refunding := domain.PaymentStatusRefunding
		req.PaymentStatus = &refunding
	}

	updated, err := s.orders.TransitionStatus(ctx, req)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(updated.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
	})

	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.findOwnedOrder(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return Order{}, err
	}

	if !domain.CanCustomerCancel(order.Status, order.PaymentStatus) {
		return Order{}, fmt.Errorf("%w: %s order cannot be cancelled by its owner", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	updated, err := s.orders.TransitionStatus(ctx, repositories.OrderStatusTransitionRequest{
		OrderID:               order.ID,
		ExpectedStatus:        order.Status,
		ExpectedPaymentStatus: order.PaymentStatus,
		Status:                domain.OrderStatusCancelled,
		StockDeltas:           domain.RestorationDeltas(order.Items),
		Now:                   now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.PaymentMethod == domain.PaymentMethodOnline && s.scheduler != nil {
		if cancelErr := s.scheduler.Cancel(ctx, order.ID); cancelErr != nil {
			s.logger(ctx, "order.expiry.cancel.failed", map[string]any{
				"order": order.ID,
				"error": cancelErr.Error(),
			})
		}
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(updated.Status),
		ActorID:        strings.TrimSpace(cmd.UserID),
		OccurredAt:     now,
	})

	return updated, nil
}

func (s *orderService) ConfirmReceived(ctx context.Context, cmd ConfirmReceivedCommand) (Order, error) {
	order, err := s.findOwnedOrder(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return Order{}, err
	}

	if !domain.CanConfirmReceived(order.Status) {
		return Order{}, fmt.Errorf("%w: only delivered orders can be confirmed", ErrOrderInvalidState)
	}
	if cmd.Rating != nil && (*cmd.Rating < 1 || *cmd.Rating > 5) {
		return Order{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrOrderInvalidInput)
	}
	feedback, err := sanitizeFeedback(cmd.Feedback)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	req := repositories.OrderStatusTransitionRequest{
		OrderID:               order.ID,
		ExpectedStatus:        order.Status,
		ExpectedPaymentStatus: order.PaymentStatus,
		Status:                domain.OrderStatusConfirmReceived,
		Rating:                cmd.Rating,
		Now:                   now,
	}
	if feedback != "" {
		req.Feedback = valuePtr(feedback)
	}

	updated, err := s.orders.TransitionStatus(ctx, req)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(updated.Status),
		ActorID:        strings.TrimSpace(cmd.UserID),
		OccurredAt:     now,
	})

	return updated, nil
}

func (s *orderService) ExpireUnpaid(ctx context.Context, cmd ExpireOrderCommand) (Order, bool, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, false, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, false, s.mapRepositoryError(err)
	}
	if !orderAwaitingPayment(order) {
		return order, false, nil
	}

	now := s.now()
	updated, err := s.orders.TransitionStatus(ctx, repositories.OrderStatusTransitionRequest{
		OrderID:               order.ID,
		ExpectedStatus:        order.Status,
		ExpectedPaymentStatus: order.PaymentStatus,
		Status:                domain.OrderStatusExpired,
		StockDeltas:           domain.RestorationDeltas(order.Items),
		Now:                   now,
	})
	if err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrOrderConflict) {
			// The order was paid or cancelled while the timeout was in
			// flight; the callback is a no-op.
			current, findErr := s.orders.FindByID(ctx, order.ID)
			if findErr == nil && !orderAwaitingPayment(current) {
				return current, false, nil
			}
		}
		return Order{}, false, mapped
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventExpired,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(updated.Status),
		OccurredAt:     now,
	})

	return updated, true, nil
}

func (s *orderService) Get(ctx context.Context, query OrderQuery) (Order, error) {
	userID := strings.TrimSpace(query.UserID)
	if userID != "" {
		return s.findOwnedOrder(ctx, query.OrderID, userID)
	}
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter domain.OrderListFilter) (domain.CursorPage[Order], error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *filter.Status)
	}
	if filter.PaymentStatus != nil && !filter.PaymentStatus.Valid() {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, *filter.PaymentStatus)
	}
	if filter.Pagination.PageSize <= 0 {
		filter.Pagination.PageSize = 20
	}
	if filter.Pagination.PageSize > 100 {
		filter.Pagination.PageSize = 100
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// findOwnedOrder loads the order and hides it behind not-found when the
// requesting user is not its owner.
func (s *orderService) findOwnedOrder(ctx context.Context, orderID, userID string) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	owner := strings.TrimSpace(userID)
	if owner == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.UserID != owner {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return order, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %w", ErrOrderInsufficientStock, err)
		case repositories.InventoryErrorVariantNotFound:
			return fmt.Errorf("%w: %w", ErrOrderInvalidState, err)
		}
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repositories.OrderErrorStatusConflict, repositories.OrderErrorDuplicateTransaction:
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ML-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) nextPaymentCode() string {
	return paymentCodePrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func orderAwaitingPayment(order Order) bool {
	return order.Status == domain.OrderStatusPending &&
		order.PaymentStatus == domain.PaymentStatusAwaiting
}

func normalizeRecipient(r domain.Recipient) (domain.Recipient, error) {
	name := strings.TrimSpace(r.Name)
	phone := strings.TrimSpace(r.Phone)
	address := strings.TrimSpace(r.Address)
	if name == "" || phone == "" || address == "" {
		return domain.Recipient{}, fmt.Errorf("%w: recipient name, phone and address are required", ErrOrderInvalidInput)
	}
	return domain.Recipient{Name: name, Phone: phone, Address: address}, nil
}

// sanitizeFeedback strips markup, normalises the text to NFC and bounds its
// length.
func sanitizeFeedback(feedback string) (string, error) {
	cleaned := strings.TrimSpace(feedbackPolicy.Sanitize(norm.NFC.String(feedback)))
	if len(cleaned) > maxFeedbackLength {
		return "", fmt.Errorf("%w: feedback exceeds %d characters", ErrOrderInvalidInput, maxFeedbackLength)
	}
	return cleaned, nil
}

func valuePtr[T any](v T) *T {
	return &v
}
