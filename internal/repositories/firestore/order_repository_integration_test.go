//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/merchline/api/internal/domain"
	pconfig "github.com/merchline/api/internal/platform/config"
	pfirestore "github.com/merchline/api/internal/platform/firestore"
	"github.com/merchline/api/internal/repositories"
)

func TestOrderRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "orders-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	variants, err := NewVariantRepository(provider)
	if err != nil {
		t.Fatalf("new variant repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	seedVariant := map[string]any{
		"productRef":  "prod_001",
		"productName": "Canvas Tote",
		"name":        "Natural / L",
		"sku":         "TOTE-NAT-L",
		"unitPrice":   int64(1000),
		"stock":       int64(5),
		"deleted":     false,
		"createdAt":   now,
		"updatedAt":   now,
	}
	if _, err := client.Collection(variantsCollection).Doc("var_001").Set(ctx, seedVariant); err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	seedVoucher := map[string]any{
		"code":          "TEN",
		"discountType":  "percent",
		"discountValue": int64(10),
		"startsAt":      now.Add(-time.Hour),
		"usedCount":     int64(0),
		"active":        true,
		"createdAt":     now,
		"updatedAt":     now,
	}
	if _, err := client.Collection(vouchersCollection).Doc("vch_001").Set(ctx, seedVoucher); err != nil {
		t.Fatalf("seed voucher: %v", err)
	}

	order := domain.Order{
		ID:            "ord_it_1",
		OrderNumber:   "ML-2025-000001",
		UserID:        "user_1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusAwaiting,
		PaymentMethod: domain.PaymentMethodOnline,
		PaymentCode:   "ORDIT1",
		Recipient:     domain.Recipient{Name: "Test", Phone: "+1 555 0100", Address: "1 Main St"},
		Subtotal:      3000,
		Discount:      300,
		Total:         2700,
		Items: []domain.OrderItem{{
			ID:             "itm_1",
			VariantID:      "var_001",
			VoucherID:      "vch_001",
			VoucherCode:    "TEN",
			ProductName:    "Canvas Tote",
			SKU:            "TOTE-NAT-L",
			UnitPrice:      1000,
			Quantity:       3,
			Subtotal:       3000,
			DiscountAmount: 300,
			TotalAmount:    2700,
		}},
	}

	placed, err := repo.Place(ctx, repositories.PlaceOrderRequest{
		Order:              order,
		StockDeltas:        []domain.StockDelta{{VariantID: "var_001", Delta: -3}},
		VoucherUsageDeltas: []domain.VoucherUsageDelta{{VoucherID: "vch_001", Delta: 1}},
		Now:                now,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if placed.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", placed.Status)
	}

	variant, err := variants.FindByID(ctx, "var_001")
	if err != nil {
		t.Fatalf("find variant: %v", err)
	}
	if variant.Stock != 2 {
		t.Fatalf("expected stock debited to 2, got %d", variant.Stock)
	}

	// A second placement exceeding the remaining stock must fail atomically.
	over := order
	over.ID = "ord_it_2"
	_, err = repo.Place(ctx, repositories.PlaceOrderRequest{
		Order:       over,
		StockDeltas: []domain.StockDelta{{VariantID: "var_001", Delta: -3}},
		Now:         now,
	})
	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	confirmed, err := repo.ConfirmPayment(ctx, repositories.PaymentConfirmationRequest{
		OrderID: "ord_it_1",
		Transaction: domain.Transaction{
			ExternalID:      "tx_100",
			OrderID:         "ord_it_1",
			UserID:          "user_1",
			Code:            "ORDIT1",
			Amount:          2700,
			TransactionDate: now,
		},
		Now: now,
	})
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if confirmed.PaymentStatus != domain.PaymentStatusPaid || confirmed.PaidAt == nil {
		t.Fatalf("expected paid order, got %+v", confirmed)
	}

	// Replayed webhook: the transaction document key collides.
	_, err = repo.ConfirmPayment(ctx, repositories.PaymentConfirmationRequest{
		OrderID: "ord_it_1",
		Transaction: domain.Transaction{
			ExternalID: "tx_100",
			OrderID:    "ord_it_1",
			Amount:     2700,
		},
		Now: now,
	})
	var orderErr *repositories.OrderError
	if !errors.As(err, &orderErr) || orderErr.Code != repositories.OrderErrorStatusConflict {
		t.Fatalf("expected status conflict on replay, got %v", err)
	}

	// Stale expected state loses the optimistic check.
	_, err = repo.TransitionStatus(ctx, repositories.OrderStatusTransitionRequest{
		OrderID:               "ord_it_1",
		ExpectedStatus:        domain.OrderStatusPending,
		ExpectedPaymentStatus: domain.PaymentStatusAwaiting,
		Status:                domain.OrderStatusExpired,
		Now:                   now,
	})
	if !errors.As(err, &orderErr) || orderErr.Code != repositories.OrderErrorStatusConflict {
		t.Fatalf("expected conflict for stale expectation, got %v", err)
	}

	cancelled, err := repo.TransitionStatus(ctx, repositories.OrderStatusTransitionRequest{
		OrderID:               "ord_it_1",
		ExpectedStatus:        domain.OrderStatusPending,
		ExpectedPaymentStatus: domain.PaymentStatusPaid,
		Status:                domain.OrderStatusCancelled,
		PaymentStatus:         paymentStatusPtr(domain.PaymentStatusRefunding),
		StockDeltas:           []domain.StockDelta{{VariantID: "var_001", Delta: 3}},
		Now:                   now,
	})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.PaymentStatus != domain.PaymentStatusRefunding {
		t.Fatalf("expected cancelled refunding order, got %+v", cancelled)
	}
	if cancelled.ClosedAt == nil {
		t.Fatalf("terminal order must carry closedAt")
	}

	variant, err = variants.FindByID(ctx, "var_001")
	if err != nil {
		t.Fatalf("find variant after restore: %v", err)
	}
	if variant.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", variant.Stock)
	}

	byCode, err := repo.FindByPaymentCode(ctx, "ORDIT1")
	if err != nil {
		t.Fatalf("find by payment code: %v", err)
	}
	if byCode.ID != "ord_it_1" {
		t.Fatalf("expected ord_it_1, got %s", byCode.ID)
	}

	page, err := repo.List(ctx, domain.OrderListFilter{UserID: "user_1"})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one order, got %d", len(page.Items))
	}

	// An external transaction id already recorded for another order
	// collides on the transaction document at commit.
	dup := order
	dup.ID = "ord_it_3"
	dup.PaymentCode = "ORDIT3"
	if _, err := repo.Place(ctx, repositories.PlaceOrderRequest{
		Order:       dup,
		StockDeltas: []domain.StockDelta{{VariantID: "var_001", Delta: -3}},
		Now:         now,
	}); err != nil {
		t.Fatalf("place second order: %v", err)
	}
	_, err = repo.ConfirmPayment(ctx, repositories.PaymentConfirmationRequest{
		OrderID: "ord_it_3",
		Transaction: domain.Transaction{
			ExternalID: "tx_100",
			OrderID:    "ord_it_3",
			Amount:     2700,
		},
		Now: now,
	})
	if !errors.As(err, &orderErr) || orderErr.Code != repositories.OrderErrorDuplicateTransaction {
		t.Fatalf("expected duplicate transaction, got %v", err)
	}

	// A reused order id collides on the order document at commit.
	_, err = repo.Place(ctx, repositories.PlaceOrderRequest{
		Order:       dup,
		StockDeltas: []domain.StockDelta{{VariantID: "var_001", Delta: -1}},
		Now:         now,
	})
	if !errors.As(err, &orderErr) || orderErr.Code != repositories.OrderErrorStatusConflict {
		t.Fatalf("expected conflict for duplicate order id, got %v", err)
	}
}

func paymentStatusPtr(status domain.PaymentStatus) *domain.PaymentStatus {
	return &status
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
