package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/merchline/api/internal/domain"
	"github.com/merchline/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals a malformed notification payload.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentOrderNotFound indicates no order carries the notified code.
	ErrPaymentOrderNotFound = errors.New("payment: order not found")
	// ErrPaymentNotAwaiting indicates the order is not awaiting an online
	// payment (already paid, COD, or refunded).
	ErrPaymentNotAwaiting = errors.New("payment: order not awaiting payment")
	// ErrPaymentAmountTooLow indicates the transferred amount does not cover
	// the order total. Partial payments are not accepted.
	ErrPaymentAmountTooLow = errors.New("payment: amount below order total")
	// ErrPaymentAlreadyRecorded indicates the external payment id was seen
	// before. Retried webhook deliveries land here, distinguishable from
	// every other rejection.
	ErrPaymentAlreadyRecorded = errors.New("payment: transaction already recorded")
)

// PaymentServiceDeps bundles collaborators for the payment confirmation handler.
type PaymentServiceDeps struct {
	Orders    repositories.OrderRepository
	Scheduler ExpiryScheduler
	Events    OrderEventPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders    repositories.OrderRepository
	scheduler ExpiryScheduler
	events    OrderEventPublisher
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		orders:    deps.Orders,
		scheduler: deps.Scheduler,
		events:    deps.Events,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

func (s *paymentService) Confirm(ctx context.Context, cmd PaymentNotificationCommand) (PaymentConfirmation, error) {
	// Only inbound transfers carrying the order payment prefix belong to
	// this handler; anything else is filtered without error.
	if !strings.EqualFold(strings.TrimSpace(cmd.TransferType), "in") {
		return PaymentConfirmation{}, nil
	}
	code := strings.TrimSpace(cmd.Code)
	if !strings.HasPrefix(code, paymentCodePrefix) {
		return PaymentConfirmation{}, nil
	}

	externalID := strings.TrimSpace(cmd.ExternalID)
	if externalID == "" {
		return PaymentConfirmation{}, fmt.Errorf("%w: external payment id is required", ErrPaymentInvalidInput)
	}
	if cmd.TransferAmount <= 0 {
		return PaymentConfirmation{}, fmt.Errorf("%w: transfer amount must be positive", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByPaymentCode(ctx, code)
	if err != nil {
		return PaymentConfirmation{}, s.mapRepositoryError(err)
	}

	if order.PaymentStatus != domain.PaymentStatusAwaiting ||
		!domain.CanTransitionPayment(order.PaymentStatus, domain.PaymentStatusPaid) {
		return PaymentConfirmation{}, fmt.Errorf("%w: order %s is %s", ErrPaymentNotAwaiting, order.ID, order.PaymentStatus)
	}
	if cmd.TransferAmount < order.Total {
		return PaymentConfirmation{}, fmt.Errorf("%w: got %d, need %d", ErrPaymentAmountTooLow, cmd.TransferAmount, order.Total)
	}

	now := s.clock()
	transactionDate := cmd.TransactionDate
	if transactionDate.IsZero() {
		transactionDate = now
	}

	updated, err := s.orders.ConfirmPayment(ctx, repositories.PaymentConfirmationRequest{
		OrderID: order.ID,
		Transaction: domain.Transaction{
			ExternalID:      externalID,
			OrderID:         order.ID,
			UserID:          order.UserID,
			Code:            code,
			Gateway:         strings.TrimSpace(cmd.Gateway),
			AccountNumber:   strings.TrimSpace(cmd.AccountNumber),
			Amount:          cmd.TransferAmount,
			Content:         strings.TrimSpace(cmd.Content),
			TransactionDate: transactionDate,
			RecordedAt:      now,
		},
		Now: now,
	})
	if err != nil {
		return PaymentConfirmation{}, s.mapRepositoryError(err)
	}

	// Payment beat the timeout; the pending expiry job must not fire.
	if s.scheduler != nil {
		if cancelErr := s.scheduler.Cancel(ctx, updated.ID); cancelErr != nil {
			s.logger(ctx, "payment.expiry.cancel.failed", map[string]any{
				"order": updated.ID,
				"error": cancelErr.Error(),
			})
		}
	}

	if s.events != nil {
		if pubErr := s.events.PublishOrderEvent(ctx, OrderEvent{
			Type:          orderEventPaymentConfirmed,
			OrderID:       updated.ID,
			OrderNumber:   updated.OrderNumber,
			CurrentStatus: string(updated.Status),
			OccurredAt:    now,
			Metadata: map[string]any{
				"externalId": externalID,
				"gateway":    strings.TrimSpace(cmd.Gateway),
				"amount":     cmd.TransferAmount,
			},
		}); pubErr != nil {
			s.logger(ctx, "payment.event.publish.failed", map[string]any{
				"order": updated.ID,
				"error": pubErr.Error(),
			})
		}
	}

	return PaymentConfirmation{Handled: true, Order: updated}, nil
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %v", ErrPaymentOrderNotFound, err)
		case repositories.OrderErrorDuplicateTransaction:
			return fmt.Errorf("%w: %v", ErrPaymentAlreadyRecorded, err)
		case repositories.OrderErrorStatusConflict:
			return fmt.Errorf("%w: %v", ErrPaymentNotAwaiting, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentAlreadyRecorded, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}
