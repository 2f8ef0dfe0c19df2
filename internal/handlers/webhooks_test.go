package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/merchline/api/internal/services"
)

type stubPaymentService struct {
	confirmFn func(context.Context, services.PaymentNotificationCommand) (services.PaymentConfirmation, error)
}

func (s *stubPaymentService) Confirm(ctx context.Context, cmd services.PaymentNotificationCommand) (services.PaymentConfirmation, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.PaymentConfirmation{}, errors.New("not implemented")
}

type stubArchiver struct {
	externalIDs []string
	payloads    [][]byte
	err         error
}

func (s *stubArchiver) ArchiveWebhookPayload(ctx context.Context, externalID string, payload []byte) (string, error) {
	s.externalIDs = append(s.externalIDs, externalID)
	s.payloads = append(s.payloads, payload)
	if s.err != nil {
		return "", s.err
	}
	return "webhooks/payments/2025/04/07/" + externalID + ".json", nil
}

const transferBody = `{
	"id": 100200,
	"code": "ORDABC123",
	"transferType": "in",
	"transferAmount": 3000,
	"gateway": "VCB",
	"accountNumber": "0123456789",
	"content": "ORDABC123 thanh toan don hang",
	"transactionDate": "2025-04-07 10:29:00"
}`

func TestWebhookHandlersTransferNotification(t *testing.T) {
	var captured services.PaymentNotificationCommand
	service := &stubPaymentService{
		confirmFn: func(ctx context.Context, cmd services.PaymentNotificationCommand) (services.PaymentConfirmation, error) {
			captured = cmd
			return services.PaymentConfirmation{
				Handled: true,
				Order:   services.Order{ID: "ord_123"},
			}, nil
		},
	}
	archiver := &stubArchiver{}

	handler := NewWebhookHandlers(service, WithPayloadArchiver(archiver))
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/transfer", strings.NewReader(transferBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if captured.ExternalID != "100200" {
		t.Fatalf("expected numeric id coerced to string, got %q", captured.ExternalID)
	}
	if captured.Code != "ORDABC123" || captured.TransferType != "in" || captured.TransferAmount != 3000 {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.Gateway != "VCB" || captured.AccountNumber != "0123456789" {
		t.Fatalf("unexpected gateway fields: %#v", captured)
	}
	wantDate := time.Date(2025, time.April, 7, 10, 29, 0, 0, time.UTC)
	if !captured.TransactionDate.Equal(wantDate) {
		t.Fatalf("expected transaction date %s, got %s", wantDate, captured.TransactionDate)
	}

	if len(archiver.externalIDs) != 1 || archiver.externalIDs[0] != "100200" {
		t.Fatalf("expected payload archived once, got %#v", archiver.externalIDs)
	}

	var resp transferNotificationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Success || !resp.Handled || resp.OrderID != "ord_123" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestWebhookHandlersUnrelatedNotificationAcked(t *testing.T) {
	service := &stubPaymentService{
		confirmFn: func(ctx context.Context, cmd services.PaymentNotificationCommand) (services.PaymentConfirmation, error) {
			return services.PaymentConfirmation{Handled: false}, nil
		},
	}
	handler := NewWebhookHandlers(service)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	body := strings.Replace(transferBody, `"transferType": "in"`, `"transferType": "out"`, 1)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/transfer", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp transferNotificationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Success || resp.Handled || resp.OrderID != "" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestWebhookHandlersDuplicateDeliveryAcked(t *testing.T) {
	service := &stubPaymentService{
		confirmFn: func(ctx context.Context, cmd services.PaymentNotificationCommand) (services.PaymentConfirmation, error) {
			return services.PaymentConfirmation{}, services.ErrPaymentAlreadyRecorded
		},
	}
	handler := NewWebhookHandlers(service)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/transfer", strings.NewReader(transferBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected duplicate delivery acked with 200, got %d", rr.Code)
	}
}

func TestWebhookHandlersUnknownCode(t *testing.T) {
	service := &stubPaymentService{
		confirmFn: func(ctx context.Context, cmd services.PaymentNotificationCommand) (services.PaymentConfirmation, error) {
			return services.PaymentConfirmation{}, services.ErrPaymentOrderNotFound
		},
	}
	handler := NewWebhookHandlers(service)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/transfer", strings.NewReader(transferBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestWebhookHandlersAmountTooLow(t *testing.T) {
	service := &stubPaymentService{
		confirmFn: func(ctx context.Context, cmd services.PaymentNotificationCommand) (services.PaymentConfirmation, error) {
			return services.PaymentConfirmation{}, services.ErrPaymentAmountTooLow
		},
	}
	handler := NewWebhookHandlers(service)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/transfer", strings.NewReader(transferBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestWebhookHandlersArchiveFailureDoesNotReject(t *testing.T) {
	service := &stubPaymentService{
		confirmFn: func(ctx context.Context, cmd services.PaymentNotificationCommand) (services.PaymentConfirmation, error) {
			return services.PaymentConfirmation{Handled: true, Order: services.Order{ID: "ord_123"}}, nil
		},
	}
	archiver := &stubArchiver{err: errors.New("bucket unavailable")}

	handler := NewWebhookHandlers(service, WithPayloadArchiver(archiver))
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/transfer", strings.NewReader(transferBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 despite archive failure, got %d", rr.Code)
	}
}

func TestWebhookHandlersInvalidPayloads(t *testing.T) {
	handler := NewWebhookHandlers(&stubPaymentService{})
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	cases := map[string]string{
		"not json":   `{{`,
		"missing id": `{"code":"ORDABC123","transferType":"in","transferAmount":3000,"transactionDate":"2025-04-07 10:29:00"}`,
		"bad date":   strings.Replace(transferBody, "2025-04-07 10:29:00", "yesterday-ish", 1),
	}
	for name, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/transfer", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", name, rr.Code)
		}
	}
}
