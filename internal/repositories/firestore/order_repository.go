package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/cotidiano/api/internal/domain"
	pfirestore "github.com/cotidiano/api/internal/platform/firestore"
	"github.com/cotidiano/api/internal/repositories"
)

const orderCollection = "orders"

type orderDocument struct {
	Number       string              `firestore:"number"`
	UserID       string              `firestore:"userId"`
	CustomerName string              `firestore:"customerName"`
	Email        string              `firestore:"email,omitempty"`
	Shipping     shippingDocument    `firestore:"shipping"`
	Status       string              `firestore:"status"`
	Total        string              `firestore:"total"`
	Items        []orderItemDocument `firestore:"items"`
	// ProductIDs duplicates the item references so array-contains queries can
	// answer "is this product still on an order" without scanning items.
	ProductIDs []string  `firestore:"productIds"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId,omitempty"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice string `firestore:"unitPrice"`
}

type shippingDocument struct {
	Name       string `firestore:"name,omitempty"`
	Address    string `firestore:"address,omitempty"`
	City       string `firestore:"city,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if err := requireID(order.ID, "order id"); err != nil {
		return err
	}
	_, err := r.base.Create(ctx, order.ID, fromDomainOrder(order))
	return err
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if err := requireID(order.ID, "order id"); err != nil {
		return err
	}
	_, err := r.base.Set(ctx, order.ID, fromDomainOrder(order))
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := requireID(orderID, "order id"); err != nil {
		return domain.Order{}, err
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.CreatedAfter != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAfter.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := toDomainOrder(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *OrderRepository) ExistsWithProduct(ctx context.Context, productID string) (bool, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return false, nil
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productIds", "array-contains", trimmed).Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	productIDs := make([]string, 0, len(order.Items))
	seen := map[string]struct{}{}
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
		})
		if item.ProductID == "" {
			continue
		}
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		productIDs = append(productIDs, item.ProductID)
	}

	return orderDocument{
		Number:       order.Number,
		UserID:       order.UserID,
		CustomerName: order.CustomerName,
		Email:        strings.TrimSpace(order.Email),
		Shipping: shippingDocument{
			Name:       order.Shipping.Name,
			Address:    order.Shipping.Address,
			City:       order.Shipping.City,
			PostalCode: order.Shipping.PostalCode,
			Phone:      order.Shipping.Phone,
		},
		Status:     string(order.Status),
		Total:      order.Total.String(),
		Items:      items,
		ProductIDs: productIDs,
		CreatedAt:  order.CreatedAt.UTC(),
	}
}

func toDomainOrder(doc pfirestore.Document[orderDocument]) (domain.Order, error) {
	total, err := parseStoredDecimal("orders", doc.ID, "total", doc.Data.Total)
	if err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.OrderItem, 0, len(doc.Data.Items))
	for _, item := range doc.Data.Items {
		unitPrice, err := parseStoredDecimal("orders", doc.ID, "items.unitPrice", item.UnitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: unitPrice,
		})
	}

	order := domain.Order{
		ID:           doc.ID,
		Number:       doc.Data.Number,
		UserID:       doc.Data.UserID,
		CustomerName: doc.Data.CustomerName,
		Email:        doc.Data.Email,
		Shipping: domain.ShippingInfo{
			Name:       doc.Data.Shipping.Name,
			Address:    doc.Data.Shipping.Address,
			City:       doc.Data.Shipping.City,
			PostalCode: doc.Data.Shipping.PostalCode,
			Phone:      doc.Data.Shipping.Phone,
		},
		Status:    domain.OrderStatus(doc.Data.Status),
		Total:     total,
		Items:     items,
		CreatedAt: doc.Data.CreatedAt,
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = doc.CreateTime
	}
	return order, nil
}
