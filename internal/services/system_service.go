package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/repositories"
)

const (
	overviewWindow     = 30 * 24 * time.Hour
	overviewLastOrders = 5
)

// revenueStatuses are the order states that count towards reported revenue.
var revenueStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPaid:      true,
	domain.OrderStatusShipped:   true,
	domain.OrderStatusDelivered: true,
}

// SystemServiceDeps bundles collaborators required to construct the system service.
type SystemServiceDeps struct {
	Health   repositories.HealthRepository
	Users    repositories.UserRepository
	Products repositories.ProductRepository
	Orders   repositories.OrderRepository
	Clock    func() time.Time
}

type systemService struct {
	health   repositories.HealthRepository
	users    repositories.UserRepository
	products repositories.ProductRepository
	orders   repositories.OrderRepository
	clock    func() time.Time
}

// NewSystemService wires dependencies into a concrete SystemService implementation.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	if deps.Users == nil || deps.Products == nil || deps.Orders == nil {
		return nil, errors.New("system service: user, product, and order repositories are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &systemService{
		health:   deps.Health,
		users:    deps.Users,
		products: deps.Products,
		orders:   deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	return s.health.Collect(ctx)
}

func (s *systemService) Overview(ctx context.Context) (AdminOverview, error) {
	users, err := s.users.List(ctx, repositories.UserListFilter{})
	if err != nil {
		return AdminOverview{}, err
	}
	products, err := s.products.List(ctx, repositories.ProductListFilter{})
	if err != nil {
		return AdminOverview{}, err
	}
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{})
	if err != nil {
		return AdminOverview{}, err
	}

	overview := AdminOverview{
		Counts: OverviewCounts{
			Users:    len(users),
			Products: len(products),
			Orders:   len(orders),
		},
		Last30Days: OverviewWindow{Revenue: decimal.Zero},
	}

	since := s.clock().Add(-overviewWindow)
	for _, order := range orders {
		if order.CreatedAt.Before(since) || !revenueStatuses[order.Status] {
			continue
		}
		overview.Last30Days.Revenue = overview.Last30Days.Revenue.Add(order.Total)
		overview.Last30Days.Orders++
		overview.Last30Days.Items += len(order.Items)
	}
	overview.Last30Days.Revenue = overview.Last30Days.Revenue.Round(2)

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if len(orders) > overviewLastOrders {
		orders = orders[:overviewLastOrders]
	}
	overview.LastOrders = orders

	return overview, nil
}
