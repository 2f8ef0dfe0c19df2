package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/merchline/api/internal/platform/firestore"
	"github.com/merchline/api/internal/repositories"
)

// Registry bundles the Firestore-backed repository implementations behind the
// repositories.Registry contract used by dependency injection.
type Registry struct {
	provider *pfirestore.Provider

	variants *VariantRepository
	vouchers *VoucherRepository
	designs  *DesignRepository
	orders   *OrderRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

// NewRegistry constructs all Firestore repositories over one shared provider.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	variants, err := NewVariantRepository(provider)
	if err != nil {
		return nil, err
	}
	vouchers, err := NewVoucherRepository(provider)
	if err != nil {
		return nil, err
	}
	designs, err := NewDesignRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{
		Name: "firestore",
		Check: func(ctx context.Context) error {
			_, err := provider.Client(ctx)
			return err
		},
	}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(5*time.Second))
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		variants: variants,
		vouchers: vouchers,
		designs:  designs,
		orders:   orders,
		counters: counters,
		health:   health,
	}, nil
}

var _ repositories.Registry = (*Registry)(nil)

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Variants() repositories.VariantRepository { return r.variants }

func (r *Registry) Vouchers() repositories.VoucherRepository { return r.vouchers }

func (r *Registry) Designs() repositories.DesignRepository { return r.designs }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
