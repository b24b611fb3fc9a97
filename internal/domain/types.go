package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the lifecycle states an order moves through.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every valid status value in declaration order.
var OrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusApproved,
	OrderStatusDraft,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusCreated:   "Creado",
	OrderStatusApproved:  "Aprobado",
	OrderStatusDraft:     "Borrador",
	OrderStatusPaid:      "Pagado",
	OrderStatusShipped:   "Enviado",
	OrderStatusDelivered: "Entregado",
	OrderStatusCancelled: "Cancelado",
}

// Valid reports whether the status is one of the enumerated values.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusLabels[s]
	return ok
}

// Label returns the human-readable (Spanish) label shown to customers.
// Unknown statuses fall back to the raw value.
func (s OrderStatus) Label() string {
	if label, ok := orderStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// UserRole distinguishes customers from staff accounts.
type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleStaff    UserRole = "staff"
)

// Category groups products. Parent references form a tree; cycle
// prevention is the caller's responsibility.
type Category struct {
	ID          string
	Name        string
	Slug        string
	Description string
	ParentID    string
}

// Product is a sellable catalog entry. Price is a fixed-point decimal
// with two fraction digits.
type Product struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Price       decimal.Decimal
	CategoryID  string
	ImagePath   string
	Stock       int
	Active      bool
	CreatedAt   time.Time
}

// Offer is a percentage discount targeting a single product, a whole
// category, or (when both references are empty) nothing at all.
type Offer struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Percent     decimal.Decimal
	ProductID   string
	CategoryID  string
	Active      bool
	StartsAt    *time.Time
	EndsAt      *time.Time
	CreatedAt   time.Time
}

// InWindow reports whether the offer is active and its optional time
// window contains now. Unset bounds are open-ended; bounds are inclusive.
func (o Offer) InWindow(now time.Time) bool {
	if !o.Active {
		return false
	}
	if o.StartsAt != nil && now.Before(*o.StartsAt) {
		return false
	}
	if o.EndsAt != nil && now.After(*o.EndsAt) {
		return false
	}
	return true
}

// Discount is the result of resolving the best applicable offer for a
// product. FinalPrice is never negative.
type Discount struct {
	FinalPrice decimal.Decimal
	Percent    decimal.Decimal
	OfferID    string
	OfferSlug  string
	Label      string
}

// OrderItem is one product/quantity/captured-price line belonging to an
// order. Name and UnitPrice are snapshots taken at order time so later
// product edits never rewrite history.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns UnitPrice multiplied by Quantity. It is derived, never
// stored.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShippingInfo is the address snapshot captured when an order is created.
type ShippingInfo struct {
	Name       string
	Address    string
	City       string
	PostalCode string
	Phone      string
}

// Order is a customer purchase with embedded line items. Total must equal
// the sum of item subtotals after every item mutation; the order service
// enforces this by explicit recalculation.
type Order struct {
	ID           string
	Number       string
	UserID       string
	CustomerName string
	Email        string
	Shipping     ShippingInfo
	Status       OrderStatus
	Total        decimal.Decimal
	Items        []OrderItem
	CreatedAt    time.Time
}

// ItemsTotal folds the current line items into a total.
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total.Round(2)
}

// ItemCount returns the summed quantity across all line items.
func (o Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}

// User is a storefront account. The shipping profile doubles as the
// default source for order snapshots.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	Phone        string
	Address      string
	City         string
	PostalCode   string
	AvatarPath   string
	Active       bool
	CreatedAt    time.Time
}

// IsStaff reports whether the account may use the admin surface.
func (u User) IsStaff() bool {
	return u.Role == RoleStaff
}
