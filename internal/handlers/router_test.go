package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestNewRouterHealthEndpoints(t *testing.T) {
	router := NewRouter()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rr.Code)
		}
	}
}

func TestNewRouterUnknownRoute(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nothing-here", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestNewRouterUnconfiguredGroupsReturnNotImplemented(t *testing.T) {
	router := NewRouter()

	paths := []string{
		"/api/v1/orders/",
		"/api/v1/admin/orders/",
		"/api/v1/webhooks/payments/transfer",
		"/internal/jobs/order-expiry",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("%s: expected status 501, got %d", path, rr.Code)
		}
	}
}

func TestNewRouterMountsRegistrars(t *testing.T) {
	var publicHit, orderHit, webhookHit, internalHit bool

	router := NewRouter(
		WithPublicRoutes(func(r chi.Router) {
			r.Get("/vouchers/{code}", func(w http.ResponseWriter, r *http.Request) {
				publicHit = true
				w.WriteHeader(http.StatusOK)
			})
		}),
		WithOrderRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				orderHit = true
				w.WriteHeader(http.StatusOK)
			})
		}),
		WithWebhookRoutes(func(r chi.Router) {
			r.Post("/payments/transfer", func(w http.ResponseWriter, r *http.Request) {
				webhookHit = true
				w.WriteHeader(http.StatusOK)
			})
		}),
		WithInternalRoutes(func(r chi.Router) {
			r.Post("/jobs/order-expiry", func(w http.ResponseWriter, r *http.Request) {
				internalHit = true
				w.WriteHeader(http.StatusOK)
			})
		}),
	)

	requests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/vouchers/SPRING10"},
		{http.MethodGet, "/api/v1/orders/"},
		{http.MethodPost, "/api/v1/webhooks/payments/transfer"},
		{http.MethodPost, "/internal/jobs/order-expiry"},
	}
	for _, tc := range requests {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s %s: expected status 200, got %d", tc.method, tc.path, rr.Code)
		}
	}
	if !publicHit || !orderHit || !webhookHit || !internalHit {
		t.Fatalf("expected all registrars hit: public=%t orders=%t webhooks=%t internal=%t", publicHit, orderHit, webhookHit, internalHit)
	}
}

func TestNewRouterGroupMiddlewares(t *testing.T) {
	var ordered []string

	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ordered = append(ordered, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	router := NewRouter(
		WithWebhookRoutes(func(r chi.Router) {
			r.Post("/payments/transfer", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}),
		WithWebhookMiddlewares(mw("hmac"), mw("idempotency")),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/transfer", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(ordered) != 2 || ordered[0] != "hmac" || ordered[1] != "idempotency" {
		t.Fatalf("expected middleware chain ordered, got %#v", ordered)
	}
}
