package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/merchline/api/internal/domain"
)

type stubSystemService struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubSystemService) Health(ctx context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestHealthHandlersHealthz(t *testing.T) {
	handler := NewHealthHandlers(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", payload["status"])
	}
}

func TestHealthHandlersReadyzHealthy(t *testing.T) {
	now := time.Date(2025, time.April, 7, 10, 0, 0, 0, time.UTC)
	system := &stubSystemService{
		report: domain.SystemHealthReport{
			Status: domain.HealthStatusOK,
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond, CheckedAt: now},
			},
			Version:     "1.4.0",
			Environment: "production",
			GeneratedAt: now,
		},
	}

	handler := NewHealthHandlers(system)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var payload healthReportPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Status != domain.HealthStatusOK || payload.Version != "1.4.0" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
	check, ok := payload.Checks["firestore"]
	if !ok || check.Status != domain.HealthStatusOK || check.LatencyMS != 12 {
		t.Fatalf("unexpected firestore check: %#v", payload.Checks)
	}
}

func TestHealthHandlersReadyzDegradedStaysGreen(t *testing.T) {
	system := &stubSystemService{
		report: domain.SystemHealthReport{Status: domain.HealthStatusDegraded},
	}

	handler := NewHealthHandlers(system)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected degraded to stay 200, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzErrorGoesRed(t *testing.T) {
	system := &stubSystemService{
		report: domain.SystemHealthReport{Status: domain.HealthStatusError},
	}

	handler := NewHealthHandlers(system)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzReportFailure(t *testing.T) {
	system := &stubSystemService{err: errors.New("probe timeout")}

	handler := NewHealthHandlers(system)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
