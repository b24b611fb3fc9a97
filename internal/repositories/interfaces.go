package repositories

import (
	"context"
	"time"

	domain "github.com/cotidiano/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Categories() CategoryRepository
	Offers() OfferRepository
	Orders() OrderRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalog products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
}

// ProductListFilter narrows product listings. Search is a substring match
// over name, description, and slug applied after the stored filters.
type ProductListFilter struct {
	CategoryID string
	ActiveOnly bool
	Search     string
	Limit      int
}

// CategoryRepository persists product categories.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	Delete(ctx context.Context, categoryID string) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	FindBySlug(ctx context.Context, slug string) (domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

// OfferRepository persists percentage discount offers.
type OfferRepository interface {
	Insert(ctx context.Context, offer domain.Offer) error
	Update(ctx context.Context, offer domain.Offer) error
	Delete(ctx context.Context, offerID string) error
	FindByID(ctx context.Context, offerID string) (domain.Offer, error)
	// ListByTarget returns active offers referencing the given product or its
	// category. Window filtering is left to the caller.
	ListByTarget(ctx context.Context, productID, categoryID string) ([]domain.Offer, error)
	List(ctx context.Context, filter OfferListFilter) ([]domain.Offer, error)
}

// OfferListFilter narrows offer listings.
type OfferListFilter struct {
	ActiveOnly bool
	Limit      int
}

// OrderRepository persists orders with their embedded line items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	// ExistsWithProduct reports whether any order line still references the
	// product. Used to protect products from deletion.
	ExistsWithProduct(ctx context.Context, productID string) (bool, error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID       string
	Status       []domain.OrderStatus
	CreatedAfter *time.Time
	Limit        int
}

// UserRepository persists storefront accounts.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	List(ctx context.Context, filter UserListFilter) ([]domain.User, error)
}

// UserListFilter narrows account listings for the admin surface. Search is a
// substring match over name and email.
type UserListFilter struct {
	PendingOnly bool
	Search      string
	Limit       int
}

// CounterRepository provides monotonically increasing sequences, e.g. for order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig captures optional counter settings.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
