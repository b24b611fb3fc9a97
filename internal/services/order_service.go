package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/invoice"
	"github.com/cotidiano/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix = "ord_"

	ordersCounterID = "orders"

	invoiceDispatchTimeout = 30 * time.Second
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the actor is neither the owner nor staff.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderConflict indicates duplicates or concurrent modification.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrEmptyCart indicates no usable line survived cart filtering.
	ErrEmptyCart = errors.New("order: empty cart")
	// ErrOrderProductNotFound aborts order creation when a line references a
	// product that does not exist.
	ErrOrderProductNotFound = errors.New("order: product not found")
	// ErrOrderNotApproved rejects payment marking while the order has not
	// been approved by staff.
	ErrOrderNotApproved = errors.New("order: not approved for payment")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// InvoiceMailer delivers the rendered invoice document for an order.
type InvoiceMailer interface {
	SendInvoice(ctx context.Context, order Order, pdf []byte) error
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Products      repositories.ProductRepository
	Users         repositories.UserRepository
	Counters      repositories.CounterRepository
	UnitOfWork    repositories.UnitOfWork
	Clock         func() time.Time
	IDGenerator   func() string
	Events        OrderEventPublisher
	Invoices      InvoiceMailer
	RenderInvoice func(domain.Order) []byte
	NumberPrefix  string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	products     repositories.ProductRepository
	users        repositories.UserRepository
	counters     repositories.CounterRepository
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	events       OrderEventPublisher
	invoices     InvoiceMailer
	render       func(domain.Order) []byte
	numberPrefix string
	logger       func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	render := deps.RenderInvoice
	if render == nil {
		render = invoice.Render
	}

	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = "CT"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		users:      deps.Users,
		counters:   deps.Counters,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:        idGen,
		events:       deps.Events,
		invoices:     deps.Invoices,
		render:       render,
		numberPrefix: prefix,
		logger:       logger,
	}, nil
}

// cartLine is an order line candidate before persistence. Product stays nil
// when the reference did not resolve; that only becomes an error inside the
// creation transaction so the whole attempt rolls back together.
type cartLine struct {
	product  *domain.Product
	name     string
	quantity int
	price    decimal.Decimal
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: no lines submitted", ErrEmptyCart)
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	now := s.now()

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	// Customer name and email come from the account; the shipping block only
	// overrides the name and phone when supplied.
	var account domain.User
	if s.users != nil {
		if found, err := s.users.FindByID(ctx, userID); err == nil {
			account = found
		} else if !isNotFound(err) {
			return Order{}, s.mapRepositoryError(err)
		}
	}

	customerName := strings.TrimSpace(cmd.Shipping.Name)
	if customerName == "" {
		customerName = account.Name
	}
	phone := strings.TrimSpace(cmd.Shipping.Phone)
	if phone == "" {
		phone = account.Phone
	}

	order := Order{
		ID:           orderIDPrefix + s.newID(),
		Number:       number,
		UserID:       userID,
		CustomerName: customerName,
		Email:        account.Email,
		Shipping: ShippingInfo{
			Name:       customerName,
			Address:    strings.TrimSpace(cmd.Shipping.Address),
			City:       strings.TrimSpace(cmd.Shipping.City),
			PostalCode: strings.TrimSpace(cmd.Shipping.Zip),
			Phone:      phone,
		},
		Status:    domain.OrderStatusCreated,
		Total:     decimal.Zero,
		CreatedAt: now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		lines, err := s.buildLines(txCtx, cmd.Lines)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("%w: no usable lines", ErrEmptyCart)
		}

		items := make([]OrderItem, 0, len(lines))
		for _, line := range lines {
			if line.product == nil {
				return fmt.Errorf("%w: unresolved line %q", ErrOrderProductNotFound, line.name)
			}
			items = append(items, OrderItem{
				ProductID: line.product.ID,
				Name:      line.name,
				Quantity:  line.quantity,
				UnitPrice: line.price,
			})
		}

		order.Items = items
		order.Total = order.ItemsTotal()

		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		OccurredAt:    now,
	})

	s.dispatchInvoice(ctx, order)

	return order, nil
}

// buildLines resolves raw cart lines against the catalog. Lines without a
// resolvable name are dropped; unresolved product references are kept so the
// caller can fail the whole attempt.
func (s *orderService) buildLines(ctx context.Context, inputs []OrderLineInput) ([]cartLine, error) {
	lines := make([]cartLine, 0, len(inputs))
	for _, input := range inputs {
		product, err := s.resolveProduct(ctx, input.ProductRef)
		if err != nil {
			return nil, err
		}

		name := strings.TrimSpace(input.Name)
		if name == "" && product != nil {
			name = product.Name
		}
		if name == "" {
			continue
		}

		quantity := input.Quantity
		if quantity < 1 {
			quantity = 1
		}

		price := decimal.Zero
		if input.UnitPrice != nil {
			price = input.UnitPrice.Round(2)
		} else if product != nil {
			price = product.Price
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("%w: negative unit price", ErrOrderInvalidInput)
		}

		lines = append(lines, cartLine{
			product:  product,
			name:     name,
			quantity: quantity,
			price:    price,
		})
	}
	return lines, nil
}

// resolveProduct looks a reference up by ID first and falls back to slug.
// A missing product yields nil without an error; infrastructure failures
// propagate.
func (s *orderService) resolveProduct(ctx context.Context, ref string) (*domain.Product, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	product, err := s.products.FindByID(ctx, ref)
	if err == nil {
		return &product, nil
	}
	if !isNotFound(err) {
		return nil, s.mapRepositoryError(err)
	}

	product, err = s.products.FindBySlug(ctx, ref)
	if err == nil {
		return &product, nil
	}
	if !isNotFound(err) {
		return nil, s.mapRepositoryError(err)
	}
	return nil, nil
}

func (s *orderService) ListMine(ctx context.Context, userID string) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.List(ctx, OrderListFilter{UserID: userID})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) Get(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	order, err := s.findAuthorized(ctx, cmd)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error) {
	order, err := s.findAuthorized(ctx, GetOrderCommand(cmd))
	if err != nil {
		return Order{}, err
	}

	if order.Status != domain.OrderStatusApproved {
		return Order{}, fmt.Errorf("%w: status is %q", ErrOrderNotApproved, order.Status)
	}

	now := s.now()
	prevStatus := order.Status
	order.Status = domain.OrderStatusPaid

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})

	s.dispatchInvoice(ctx, order)

	return order, nil
}

func (s *orderService) AdminList(ctx context.Context, filter OrderListFilter) ([]Order, error) {
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) AdminUpdate(ctx context.Context, cmd AdminUpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prevStatus := order.Status
	order.Status = cmd.Status

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if len(cmd.Lines) > 0 {
			items, err := s.buildReplacementItems(txCtx, cmd.Lines)
			if err != nil {
				return err
			}
			// An empty rebuilt set leaves the existing items alone.
			if len(items) > 0 {
				order.Items = items
				order.Total = order.ItemsTotal()
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if prevStatus != order.Status {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			OrderNumber:    order.Number,
			PreviousStatus: string(prevStatus),
			CurrentStatus:  string(order.Status),
			ActorID:        cmd.ActorID,
			OccurredAt:     now,
		})
	}

	return order, nil
}

// buildReplacementItems applies the staff edit rules: lines whose product
// does not resolve or whose name stays empty are skipped instead of failing.
func (s *orderService) buildReplacementItems(ctx context.Context, inputs []OrderLineInput) ([]OrderItem, error) {
	lines, err := s.buildLines(ctx, inputs)
	if err != nil {
		return nil, err
	}
	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		if line.product == nil {
			continue
		}
		items = append(items, OrderItem{
			ProductID: line.product.ID,
			Name:      line.name,
			Quantity:  line.quantity,
			UnitPrice: line.price,
		})
	}
	return items, nil
}

func (s *orderService) InvoiceDocument(ctx context.Context, cmd GetOrderCommand) (Order, []byte, error) {
	order, err := s.findAuthorized(ctx, cmd)
	if err != nil {
		return Order{}, nil, err
	}
	return order, s.render(order), nil
}

func (s *orderService) findAuthorized(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !cmd.ActorIsStaff && order.UserID != strings.TrimSpace(cmd.ActorID) {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}
	return order, nil
}

// dispatchInvoice sends the invoice email without blocking or failing the
// surrounding request. Orders without a customer email are skipped.
func (s *orderService) dispatchInvoice(ctx context.Context, order Order) {
	if s.invoices == nil || strings.TrimSpace(order.Email) == "" {
		return
	}

	pdf := s.render(order)

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), invoiceDispatchTimeout)
		defer cancel()
		if err := s.invoices.SendInvoice(sendCtx, order, pdf); err != nil {
			s.logger(ctx, "order.invoice.send.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		}
	}()
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, ordersCounterID, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%06d", s.numberPrefix, now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
