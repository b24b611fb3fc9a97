package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/cotidiano/api/internal/domain"
)

func fixedOrderClock() time.Time {
	return time.Date(2025, time.July, 14, 10, 30, 0, 0, time.UTC)
}

func testOrderDeps(t *testing.T) (OrderServiceDeps, *stubOrderRepository, *stubProductRepository, *stubEventPublisher) {
	t.Helper()

	products := newStubProductRepository(
		domain.Product{ID: "prd_1", Slug: "mate-imperial", Name: "Mate Imperial", Price: decimal.RequireFromString("1500.00"), Active: true},
		domain.Product{ID: "prd_2", Slug: "bombilla-pico", Name: "Bombilla Pico", Price: decimal.RequireFromString("800.50"), Active: true},
	)
	orders := newStubOrderRepository()
	users := newStubUserRepository(domain.User{
		ID:    "usr_1",
		Name:  "Ana Quiroga",
		Email: "ana@example.com",
		Phone: "11-5555",
	})
	events := &stubEventPublisher{}

	counter := 0
	deps := OrderServiceDeps{
		Orders:     orders,
		Products:   products,
		Users:      users,
		Counters:   &stubCounterRepository{value: 41},
		UnitOfWork: &snapshotUnitOfWork{orders: orders},
		Clock:      fixedOrderClock,
		IDGenerator: func() string {
			counter++
			return string(rune('A' + counter - 1))
		},
		Events: events,
	}
	return deps, orders, products, events
}

func TestOrderService_Create_Success(t *testing.T) {
	deps, orders, _, events := testOrderDeps(t)
	mailer := newStubInvoiceMailer()
	deps.Invoices = mailer

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	custom := decimal.RequireFromString("1200.00")
	order, err := svc.Create(context.Background(), CreateOrderCommand{
		UserID: "usr_1",
		Lines: []OrderLineInput{
			{ProductRef: "prd_1", Quantity: 2},
			{ProductRef: "bombilla-pico", Quantity: 0, UnitPrice: &custom},
		},
		Shipping: ShippingInput{Address: "Av. Siempreviva 742", City: "Rosario", Zip: "2000"},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if order.Number != "CT-2025-000042" {
		t.Fatalf("unexpected order number %s", order.Number)
	}
	if order.Status != domain.OrderStatusCreated {
		t.Fatalf("expected created status got %s", order.Status)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items got %d", len(order.Items))
	}
	// First line takes the product list price, second keeps the submitted
	// price, and a zero quantity clamps to 1.
	if !order.Items[0].UnitPrice.Equal(decimal.RequireFromString("1500.00")) {
		t.Fatalf("unexpected first unit price %s", order.Items[0].UnitPrice)
	}
	if order.Items[1].Quantity != 1 || !order.Items[1].UnitPrice.Equal(custom) {
		t.Fatalf("unexpected second line %+v", order.Items[1])
	}
	want := decimal.RequireFromString("4200.00")
	if !order.Total.Equal(want) {
		t.Fatalf("expected total %s got %s", want, order.Total)
	}
	if order.CustomerName != "Ana Quiroga" || order.Email != "ana@example.com" {
		t.Fatalf("account snapshot not applied: %+v", order)
	}
	if order.Shipping.Phone != "11-5555" {
		t.Fatalf("expected phone fallback, got %q", order.Shipping.Phone)
	}

	if _, err := orders.FindByID(context.Background(), order.ID); err != nil {
		t.Fatalf("order was not persisted: %v", err)
	}

	published := events.published()
	if len(published) != 1 || published[0].Type != "order.created" {
		t.Fatalf("unexpected events %+v", published)
	}
	if published[0].OrderNumber != order.Number {
		t.Fatalf("event order number mismatch: %s", published[0].OrderNumber)
	}

	select {
	case sent := <-mailer.sent:
		if sent.order.ID != order.ID {
			t.Fatalf("invoice sent for wrong order %s", sent.order.ID)
		}
		if len(sent.pdf) == 0 {
			t.Fatalf("expected rendered invoice bytes")
		}
	case <-time.After(time.Second):
		t.Fatalf("invoice email was not dispatched")
	}
}

func TestOrderService_Create_EmptyCart(t *testing.T) {
	deps, _, _, _ := testOrderDeps(t)
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.Create(context.Background(), CreateOrderCommand{UserID: "usr_1"}); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart got %v", err)
	}

	// Lines that resolve to nothing and carry no name collapse to an empty
	// cart as well.
	_, err = svc.Create(context.Background(), CreateOrderCommand{
		UserID: "usr_1",
		Lines:  []OrderLineInput{{ProductRef: "missing"}, {ProductRef: ""}},
	})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart for nameless lines got %v", err)
	}
}

func TestOrderService_Create_UnresolvedProductRollsBack(t *testing.T) {
	deps, orders, _, events := testOrderDeps(t)
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.Create(context.Background(), CreateOrderCommand{
		UserID: "usr_1",
		Lines: []OrderLineInput{
			{ProductRef: "prd_1", Quantity: 2},
			{ProductRef: "prd_999", Name: "Fantasma", Quantity: 1},
		},
	})
	if !errors.Is(err, ErrOrderProductNotFound) {
		t.Fatalf("expected ErrOrderProductNotFound got %v", err)
	}

	if len(orders.orders) != 0 {
		t.Fatalf("expected no persisted orders, got %d", len(orders.orders))
	}
	if len(events.published()) != 0 {
		t.Fatalf("no events should fire for a failed creation")
	}
}

func TestOrderService_Create_DropsNamelessLines(t *testing.T) {
	deps, _, _, _ := testOrderDeps(t)
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.Create(context.Background(), CreateOrderCommand{
		UserID: "usr_1",
		Lines: []OrderLineInput{
			{ProductRef: "prd_1"},
			// Unresolvable reference without a name: silently dropped rather
			// than failing the order.
			{ProductRef: "prd_404"},
		},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].ProductID != "prd_1" {
		t.Fatalf("unexpected items %+v", order.Items)
	}
}

func TestOrderService_MarkPaid_RequiresApproved(t *testing.T) {
	deps, orders, _, _ := testOrderDeps(t)
	orders.orders["ord_1"] = domain.Order{
		ID:     "ord_1",
		UserID: "usr_1",
		Status: domain.OrderStatusCreated,
	}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.MarkPaid(context.Background(), MarkPaidCommand{OrderID: "ord_1", ActorID: "usr_1"})
	if !errors.Is(err, ErrOrderNotApproved) {
		t.Fatalf("expected ErrOrderNotApproved got %v", err)
	}
	if got := orders.orders["ord_1"].Status; got != domain.OrderStatusCreated {
		t.Fatalf("status must stay unchanged, got %s", got)
	}
}

func TestOrderService_MarkPaid_Success(t *testing.T) {
	deps, orders, _, events := testOrderDeps(t)
	mailer := newStubInvoiceMailer()
	deps.Invoices = mailer
	orders.orders["ord_1"] = domain.Order{
		ID:     "ord_1",
		Number: "CT-2025-000007",
		UserID: "usr_1",
		Email:  "ana@example.com",
		Status: domain.OrderStatusApproved,
		Items:  []domain.OrderItem{{ProductID: "prd_1", Name: "Mate", Quantity: 1, UnitPrice: decimal.RequireFromString("1500.00")}},
		Total:  decimal.RequireFromString("1500.00"),
	}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.MarkPaid(context.Background(), MarkPaidCommand{OrderID: "ord_1", ActorID: "usr_1"})
	if err != nil {
		t.Fatalf("MarkPaid returned error: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid got %s", order.Status)
	}

	published := events.published()
	if len(published) != 1 {
		t.Fatalf("expected 1 event got %d", len(published))
	}
	if published[0].PreviousStatus != "approved" || published[0].CurrentStatus != "paid" {
		t.Fatalf("unexpected transition event %+v", published[0])
	}

	select {
	case <-mailer.sent:
	case <-time.After(time.Second):
		t.Fatalf("invoice email was not re-dispatched")
	}
}

func TestOrderService_MarkPaid_ForbiddenForStranger(t *testing.T) {
	deps, orders, _, _ := testOrderDeps(t)
	orders.orders["ord_1"] = domain.Order{ID: "ord_1", UserID: "usr_1", Status: domain.OrderStatusApproved}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.MarkPaid(context.Background(), MarkPaidCommand{OrderID: "ord_1", ActorID: "usr_2"})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden got %v", err)
	}

	// Staff may mark someone else's order paid.
	if _, err := svc.MarkPaid(context.Background(), MarkPaidCommand{OrderID: "ord_1", ActorID: "usr_9", ActorIsStaff: true}); err != nil {
		t.Fatalf("staff MarkPaid returned error: %v", err)
	}
}

func TestOrderService_Get_OwnerOrStaff(t *testing.T) {
	deps, orders, _, _ := testOrderDeps(t)
	orders.orders["ord_1"] = domain.Order{ID: "ord_1", UserID: "usr_1", Status: domain.OrderStatusCreated}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.Get(context.Background(), GetOrderCommand{OrderID: "ord_1", ActorID: "usr_1"}); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	if _, err := svc.Get(context.Background(), GetOrderCommand{OrderID: "ord_1", ActorID: "usr_2"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden got %v", err)
	}
	if _, err := svc.Get(context.Background(), GetOrderCommand{OrderID: "ord_1", ActorID: "usr_2", ActorIsStaff: true}); err != nil {
		t.Fatalf("staff read failed: %v", err)
	}
	if _, err := svc.Get(context.Background(), GetOrderCommand{OrderID: "ord_404", ActorID: "usr_1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound got %v", err)
	}
}

func TestOrderService_AdminUpdate_ReplacesItemsAndRecalculates(t *testing.T) {
	deps, orders, _, _ := testOrderDeps(t)
	orders.orders["ord_1"] = domain.Order{
		ID:     "ord_1",
		UserID: "usr_1",
		Status: domain.OrderStatusCreated,
		Items:  []domain.OrderItem{{ProductID: "prd_1", Name: "Mate Imperial", Quantity: 1, UnitPrice: decimal.RequireFromString("1500.00")}},
		Total:  decimal.RequireFromString("1500.00"),
	}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.AdminUpdate(context.Background(), AdminUpdateOrderCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatusApproved,
		Lines: []OrderLineInput{
			{ProductRef: "prd_2", Quantity: 3},
			// Unresolvable product: skipped, not fatal, on the staff path.
			{ProductRef: "prd_404", Name: "Descatalogado", Quantity: 1},
		},
		ActorID: "usr_admin",
	})
	if err != nil {
		t.Fatalf("AdminUpdate returned error: %v", err)
	}

	if order.Status != domain.OrderStatusApproved {
		t.Fatalf("expected approved got %s", order.Status)
	}
	if len(order.Items) != 1 || order.Items[0].ProductID != "prd_2" {
		t.Fatalf("unexpected items %+v", order.Items)
	}
	want := decimal.RequireFromString("2401.50")
	if !order.Total.Equal(want) {
		t.Fatalf("expected recalculated total %s got %s", want, order.Total)
	}
}

func TestOrderService_AdminUpdate_EmptyRebuildKeepsItems(t *testing.T) {
	deps, orders, _, _ := testOrderDeps(t)
	original := []domain.OrderItem{{ProductID: "prd_1", Name: "Mate Imperial", Quantity: 2, UnitPrice: decimal.RequireFromString("1500.00")}}
	orders.orders["ord_1"] = domain.Order{
		ID:     "ord_1",
		Status: domain.OrderStatusCreated,
		Items:  original,
		Total:  decimal.RequireFromString("3000.00"),
	}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.AdminUpdate(context.Background(), AdminUpdateOrderCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatusCancelled,
		Lines:   []OrderLineInput{{ProductRef: "prd_404", Name: "Fantasma"}},
	})
	if err != nil {
		t.Fatalf("AdminUpdate returned error: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].ProductID != "prd_1" {
		t.Fatalf("items should stay untouched, got %+v", order.Items)
	}
	if !order.Total.Equal(decimal.RequireFromString("3000.00")) {
		t.Fatalf("total should stay untouched, got %s", order.Total)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("status edit must still apply, got %s", order.Status)
	}
}

func TestOrderService_AdminUpdate_RejectsUnknownStatus(t *testing.T) {
	deps, _, _, _ := testOrderDeps(t)
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.AdminUpdate(context.Background(), AdminUpdateOrderCommand{OrderID: "ord_1", Status: "refunded"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput got %v", err)
	}
}

func TestOrderService_InvoiceFailureIsSwallowed(t *testing.T) {
	deps, _, _, _ := testOrderDeps(t)
	mailer := newStubInvoiceMailer()
	mailer.err = errors.New("smtp down")
	deps.Invoices = mailer

	logged := make(chan string, 1)
	deps.Logger = func(_ context.Context, event string, _ map[string]any) {
		select {
		case logged <- event:
		default:
		}
	}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.Create(context.Background(), CreateOrderCommand{
		UserID: "usr_1",
		Lines:  []OrderLineInput{{ProductRef: "prd_1"}},
	}); err != nil {
		t.Fatalf("Create must not surface mailer failures: %v", err)
	}

	select {
	case event := <-logged:
		if event != "order.invoice.send.failed" {
			t.Fatalf("unexpected log event %s", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("mailer failure was not logged")
	}
}

func TestOrderService_ListMineFiltersByUser(t *testing.T) {
	deps, orders, _, _ := testOrderDeps(t)
	orders.orders["ord_1"] = domain.Order{ID: "ord_1", UserID: "usr_1"}
	orders.orders["ord_2"] = domain.Order{ID: "ord_2", UserID: "usr_2"}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	mine, err := svc.ListMine(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("ListMine returned error: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "ord_1" {
		t.Fatalf("unexpected orders %+v", mine)
	}
}

func TestOrderService_InvoiceDocument(t *testing.T) {
	deps, orders, _, _ := testOrderDeps(t)
	orders.orders["ord_1"] = domain.Order{
		ID:     "ord_1",
		Number: "CT-2025-000001",
		UserID: "usr_1",
		Status: domain.OrderStatusCreated,
	}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, pdf, err := svc.InvoiceDocument(context.Background(), GetOrderCommand{OrderID: "ord_1", ActorID: "usr_1"})
	if err != nil {
		t.Fatalf("InvoiceDocument returned error: %v", err)
	}
	if len(pdf) == 0 || string(pdf[:8]) != "%PDF-1.4" {
		t.Fatalf("expected PDF bytes, got %q", pdf[:min(16, len(pdf))])
	}
}
