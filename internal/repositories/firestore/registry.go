package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/cotidiano/api/internal/platform/firestore"
	"github.com/cotidiano/api/internal/repositories"
)

// Registry wires every Firestore-backed repository behind the
// repositories.Registry interface. All repositories share one provider so the
// client connection is established lazily and torn down once.
type Registry struct {
	provider   *pfirestore.Provider
	products   *ProductRepository
	categories *CategoryRepository
	offers     *OfferRepository
	orders     *OrderRepository
	users      *UserRepository
	counters   *CounterRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry construction.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	extraChecks []repositories.DependencyCheck
}

// WithHealthChecks appends dependency probes beyond the built-in Firestore
// check, e.g. Pub/Sub or SMTP reachability.
func WithHealthChecks(checks ...repositories.DependencyCheck) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.extraChecks = append(cfg.extraChecks, checks...)
	}
}

// NewRegistry constructs the full repository set on top of the provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	cfg := registryConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	categories, err := NewCategoryRepository(provider)
	if err != nil {
		return nil, err
	}
	offers, err := NewOfferRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
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
	}}, cfg.extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:   provider,
		products:   products,
		categories: categories,
		offers:     offers,
		orders:     orders,
		users:      users,
		counters:   counters,
		health:     health,
	}, nil
}

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }

func (r *Registry) Offers() repositories.OfferRepository { return r.offers }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Users() repositories.UserRepository { return r.users }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn inside a Firestore transaction. The transaction is
// stashed on the context so repository calls made through fn participate in it.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is nil")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.WithTx(ctx, tx))
	})
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
