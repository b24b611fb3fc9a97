package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product            = domain.Product
	Category           = domain.Category
	Offer              = domain.Offer
	Discount           = domain.Discount
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	ShippingInfo       = domain.ShippingInfo
	User               = domain.User
	UserRole           = domain.UserRole
	SystemHealthReport = domain.SystemHealthReport
)

// Repository filters are reused verbatim at the service boundary.
type (
	ProductListFilter = repositories.ProductListFilter
	OfferListFilter   = repositories.OfferListFilter
	OrderListFilter   = repositories.OrderListFilter
	UserListFilter    = repositories.UserListFilter
)

// CatalogService manages products and categories for the public listing and
// the staff surface.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error)
	// GetProduct resolves ref as a product ID first and falls back to slug.
	GetProduct(ctx context.Context, ref string) (Product, error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	// DeleteProduct refuses to remove products still referenced by order lines.
	DeleteProduct(ctx context.Context, productID string) error
	SetProductImage(ctx context.Context, productID string, imagePath string) (Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpdateCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
}

// OfferService resolves catalog discounts and manages the offer records
// behind them.
type OfferService interface {
	// ResolveDiscount picks the best currently applicable offer for the
	// product. The boolean reports whether any offer applied; absence is
	// not an error.
	ResolveDiscount(ctx context.Context, product Product) (Discount, bool, error)
	// ListActiveOffers returns in-window offers sorted by percent descending
	// with their product/category summaries attached.
	ListActiveOffers(ctx context.Context) ([]OfferListing, error)
	ListOffers(ctx context.Context, filter OfferListFilter) ([]Offer, error)
	CreateOffer(ctx context.Context, cmd CreateOfferCommand) (Offer, error)
	UpdateOffer(ctx context.Context, cmd UpdateOfferCommand) (Offer, error)
	DeleteOffer(ctx context.Context, offerID string) error
}

// OrderService covers order creation, customer reads, payment marking, and
// the staff edit path.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	ListMine(ctx context.Context, userID string) ([]Order, error)
	Get(ctx context.Context, cmd GetOrderCommand) (Order, error)
	MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error)
	AdminList(ctx context.Context, filter OrderListFilter) ([]Order, error)
	AdminUpdate(ctx context.Context, cmd AdminUpdateOrderCommand) (Order, error)
	// InvoiceDocument renders the order's invoice for download, applying the
	// same owner-or-staff access rule as Get.
	InvoiceDocument(ctx context.Context, cmd GetOrderCommand) (Order, []byte, error)
}

// UserService manages storefront accounts for customers and the staff
// surface.
type UserService interface {
	Register(ctx context.Context, cmd RegisterCommand) (User, error)
	// Authenticate validates credentials; token issuance stays at the
	// transport layer.
	Authenticate(ctx context.Context, cmd LoginCommand) (User, error)
	GetByID(ctx context.Context, userID string) (User, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (User, error)
	ChangePassword(ctx context.Context, cmd ChangePasswordCommand) error
	SetAvatar(ctx context.Context, userID string, avatarPath string) (User, error)
	AdminList(ctx context.Context, filter UserListFilter) ([]User, error)
	AdminCreate(ctx context.Context, cmd AdminCreateUserCommand) (User, error)
	AdminUpdate(ctx context.Context, cmd AdminUpdateUserCommand) (User, error)
	SetActive(ctx context.Context, cmd SetUserActiveCommand) (User, error)
}

// SystemService aggregates utility surfaces: health probes and the staff
// dashboard overview.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	Overview(ctx context.Context) (AdminOverview, error)
}

// OfferListing pairs an offer with summaries of its targets for the public
// offers feed.
type OfferListing struct {
	Offer    Offer
	Product  *ProductSummary
	Category *CategorySummary
}

// ProductSummary is the nested product shape embedded in offer listings.
type ProductSummary struct {
	ID    string
	Slug  string
	Name  string
	Price decimal.Decimal
}

// CategorySummary is the nested category shape embedded in offer listings.
type CategorySummary struct {
	ID   string
	Slug string
	Name string
}

// AdminOverview is the staff dashboard aggregate.
type AdminOverview struct {
	Counts     OverviewCounts
	Last30Days OverviewWindow
	LastOrders []Order
}

// OverviewCounts holds whole-table entity counts.
type OverviewCounts struct {
	Users    int
	Products int
	Orders   int
}

// OverviewWindow summarises revenue-bearing orders inside a trailing window.
type OverviewWindow struct {
	Revenue decimal.Decimal
	Orders  int
	Items   int
}

// Command and DTO definitions ------------------------------------------------

type CreateProductCommand struct {
	Name        string
	Description string
	Price       decimal.Decimal
	CategoryID  string
	Stock       int
	Active      bool
}

type UpdateProductCommand struct {
	ProductID   string
	Name        *string
	Description *string
	Price       *decimal.Decimal
	CategoryID  *string
	Stock       *int
	Active      *bool
}

type CreateCategoryCommand struct {
	Name        string
	Description string
	ParentID    string
}

type UpdateCategoryCommand struct {
	CategoryID  string
	Name        *string
	Description *string
	ParentID    *string
}

type CreateOfferCommand struct {
	Name        string
	Description string
	Percent     decimal.Decimal
	ProductID   string
	CategoryID  string
	Active      bool
	StartsAt    *time.Time
	EndsAt      *time.Time
}

type UpdateOfferCommand struct {
	OfferID     string
	Name        *string
	Description *string
	Percent     *decimal.Decimal
	ProductID   *string
	CategoryID  *string
	Active      *bool
	StartsAt    *time.Time
	EndsAt      *time.Time
	ClearWindow bool
}

// OrderLineInput is one raw cart line. ProductRef may be an ID or a slug;
// Name and UnitPrice override the product snapshot when supplied.
type OrderLineInput struct {
	ProductRef string
	Name       string
	Quantity   int
	UnitPrice  *decimal.Decimal
}

// ShippingInput is the address block submitted with an order.
type ShippingInput struct {
	Name    string
	Address string
	City    string
	Zip     string
	Phone   string
}

type CreateOrderCommand struct {
	UserID   string
	Lines    []OrderLineInput
	Shipping ShippingInput
}

// GetOrderCommand identifies an order read along with the requesting actor.
type GetOrderCommand struct {
	OrderID      string
	ActorID      string
	ActorIsStaff bool
}

type MarkPaidCommand struct {
	OrderID      string
	ActorID      string
	ActorIsStaff bool
}

type AdminUpdateOrderCommand struct {
	OrderID string
	Status  OrderStatus
	Lines   []OrderLineInput
	ActorID string
}

type RegisterCommand struct {
	Name     string
	Email    string
	Password string
}

type LoginCommand struct {
	Email    string
	Password string
}

type UpdateProfileCommand struct {
	UserID   string
	Name     *string
	Email    *string
	Phone    *string
	Address  *string
	City     *string
	Zip      *string
	ShipName *string
}

type ChangePasswordCommand struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
}

type AdminCreateUserCommand struct {
	Name     string
	Email    string
	Password string
	Role     UserRole
}

type AdminUpdateUserCommand struct {
	UserID   string
	Name     *string
	Email    *string
	Password *string
	Role     *UserRole
}

type SetUserActiveCommand struct {
	UserID  string
	Active  bool
	ActorID string
}
