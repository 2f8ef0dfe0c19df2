package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/merchline/api/internal/platform/config"
	"github.com/merchline/api/internal/repositories"
	"github.com/merchline/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Payments services.PaymentService
	Vouchers services.VoucherService
	System   services.SystemService
}

// Infrastructure carries the runtime collaborators that live outside the
// repository registry: the expiry scheduler, the order event publisher and
// build metadata injected at link time.
type Infrastructure struct {
	Scheduler services.ExpiryScheduler
	Events    services.OrderEventPublisher
	Build     services.BuildInfo
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring will provide real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(ctx context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	pricing, err := services.NewOrderPricingEngine(services.OrderPricingEngineDeps{
		Variants: reg.Variants(),
		Vouchers: reg.Vouchers(),
		Designs:  reg.Designs(),
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:         reg.Orders(),
		Counters:       reg.Counters(),
		Pricing:        pricing,
		Scheduler:      infra.Scheduler,
		PaymentTimeout: cfg.Payments.Timeout,
		Clock:          time.Now,
		Events:         infra.Events,
		Logger:         infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:    reg.Orders(),
		Scheduler: infra.Scheduler,
		Events:    infra.Events,
		Clock:     time.Now,
		Logger:    infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	voucherSvc, err := services.NewVoucherService(services.VoucherServiceDeps{
		Vouchers: reg.Vouchers(),
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build voucher service: %w", err)
	}
	svc.Vouchers = voucherSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = time.Now().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
