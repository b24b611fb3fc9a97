package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/platform/auth"
	"github.com/cotidiano/api/internal/services"
)

type stubOrderService struct {
	createFn      func(context.Context, services.CreateOrderCommand) (domain.Order, error)
	listMineFn    func(context.Context, string) ([]domain.Order, error)
	getFn         func(context.Context, services.GetOrderCommand) (domain.Order, error)
	markPaidFn    func(context.Context, services.MarkPaidCommand) (domain.Order, error)
	adminListFn   func(context.Context, services.OrderListFilter) ([]domain.Order, error)
	adminUpdateFn func(context.Context, services.AdminUpdateOrderCommand) (domain.Order, error)
	invoiceFn     func(context.Context, services.GetOrderCommand) (domain.Order, []byte, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListMine(ctx context.Context, userID string) ([]domain.Order, error) {
	if s.listMineFn != nil {
		return s.listMineFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubOrderService) Get(ctx context.Context, cmd services.GetOrderCommand) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) MarkPaid(ctx context.Context, cmd services.MarkPaidCommand) (domain.Order, error) {
	if s.markPaidFn != nil {
		return s.markPaidFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) AdminList(ctx context.Context, filter services.OrderListFilter) ([]domain.Order, error) {
	if s.adminListFn != nil {
		return s.adminListFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubOrderService) AdminUpdate(ctx context.Context, cmd services.AdminUpdateOrderCommand) (domain.Order, error) {
	if s.adminUpdateFn != nil {
		return s.adminUpdateFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) InvoiceDocument(ctx context.Context, cmd services.GetOrderCommand) (domain.Order, []byte, error) {
	if s.invoiceFn != nil {
		return s.invoiceFn(ctx, cmd)
	}
	return domain.Order{}, nil, errors.New("not implemented")
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:           "order-1",
		Number:       "1042",
		UserID:       "user-1",
		CustomerName: "Ana Diaz",
		Email:        "ana@example.com",
		Status:       domain.OrderStatusApproved,
		Total:        decimal.NewFromFloat(350.50),
		Items: []domain.OrderItem{
			{ProductID: "prod-1", Name: "Yerba 1kg", Quantity: 2, UnitPrice: decimal.NewFromFloat(120.25)},
			{ProductID: "prod-2", Name: "Azucar", Quantity: 1, UnitPrice: decimal.NewFromFloat(110)},
		},
		Shipping: domain.ShippingInfo{
			Name:       "Ana Diaz",
			Address:    "Calle Falsa 123",
			City:       "Rosario",
			PostalCode: "2000",
			Phone:      "341-555-0000",
		},
		CreatedAt: time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC),
	}
}

func newOrderRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1", Email: "ana@example.com", Role: auth.RoleCustomer}))
}

func TestOrderHandlersCreateSuccess(t *testing.T) {
	var captured services.CreateOrderCommand
	service := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}

	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := `{
		"items": [
			{"productId": "prod-1", "qty": 2, "price": "120.25", "name": "Yerba 1kg"},
			{"slug": "azucar", "cantidad": "1"}
		],
		"shipping": {"name": "Ana Diaz", "address": "Calle Falsa 123", "city": "Rosario", "zip": "2000", "phone": "341-555-0000"}
	}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newOrderRequest(http.MethodPost, "/orders", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if captured.UserID != "user-1" {
		t.Fatalf("expected command user user-1, got %s", captured.UserID)
	}
	if len(captured.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(captured.Lines))
	}
	first := captured.Lines[0]
	if first.ProductRef != "prod-1" || first.Quantity != 2 || first.Name != "Yerba 1kg" {
		t.Fatalf("unexpected first line: %#v", first)
	}
	if first.UnitPrice == nil || !first.UnitPrice.Equal(decimal.NewFromFloat(120.25)) {
		t.Fatalf("expected unit price override 120.25, got %#v", first.UnitPrice)
	}
	second := captured.Lines[1]
	if second.ProductRef != "azucar" || second.Quantity != 1 || second.UnitPrice != nil {
		t.Fatalf("unexpected second line: %#v", second)
	}
	if captured.Shipping.City != "Rosario" || captured.Shipping.Zip != "2000" {
		t.Fatalf("unexpected shipping: %#v", captured.Shipping)
	}

	var resp struct {
		Order orderPayload `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.ID != "order-1" || resp.Order.Number != "1042" {
		t.Fatalf("unexpected order payload: %#v", resp.Order)
	}
	if resp.Order.Totals.Items != 3 {
		t.Fatalf("expected 3 items in totals, got %d", resp.Order.Totals.Items)
	}
	if resp.Order.StatusLabel != "Aprobado" {
		t.Fatalf("expected status label Aprobado, got %s", resp.Order.StatusLabel)
	}
}

func TestOrderHandlersCreateEmptyCart(t *testing.T) {
	service := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrEmptyCart
		},
	}

	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newOrderRequest(http.MethodPost, "/orders", `{"items": []}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Carrito vacio") {
		t.Fatalf("expected empty cart message, got %s", rr.Body.String())
	}
}

func TestOrderHandlersCreateUnknownProduct(t *testing.T) {
	service := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderProductNotFound
		},
	}

	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newOrderRequest(http.MethodPost, "/orders", `{"items": [{"productId": "ghost", "qty": 1}]}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Producto no encontrado") {
		t.Fatalf("expected product message, got %s", rr.Body.String())
	}
}

func TestOrderHandlersCreateUnauthenticated(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[]}`))
	rr := httptest.NewRecorder()
	handler.createOrder(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersListMine(t *testing.T) {
	var capturedUser string
	service := &stubOrderService{
		listMineFn: func(ctx context.Context, userID string) ([]domain.Order, error) {
			capturedUser = userID
			return []domain.Order{sampleOrder()}, nil
		},
	}

	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newOrderRequest(http.MethodGet, "/orders/mine", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedUser != "user-1" {
		t.Fatalf("expected list for user-1, got %s", capturedUser)
	}

	var resp struct {
		Orders []orderPayload `json:"orders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp.Orders))
	}
	if resp.Orders[0].Totals.Amount != 350.5 {
		t.Fatalf("expected total 350.5, got %v", resp.Orders[0].Totals.Amount)
	}
}

func TestOrderHandlersGetForwardsActor(t *testing.T) {
	var captured services.GetOrderCommand
	service := &stubOrderService{
		getFn: func(ctx context.Context, cmd services.GetOrderCommand) (domain.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}

	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newOrderRequest(http.MethodGet, "/orders/order-1", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "order-1" || captured.ActorID != "user-1" || captured.ActorIsStaff {
		t.Fatalf("unexpected command: %#v", captured)
	}
}

func TestOrderHandlersGetForbidden(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, cmd services.GetOrderCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderForbidden
		},
	}

	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newOrderRequest(http.MethodGet, "/orders/order-9", ""))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Sin permiso") {
		t.Fatalf("expected forbidden message, got %s", rr.Body.String())
	}
}

func TestOrderHandlersGetNotFound(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, cmd services.GetOrderCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderNotFound
		},
	}

	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newOrderRequest(http.MethodGet, "/orders/missing", ""))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Pedido no encontrado") {
		t.Fatalf("expected not found message, got %s", rr.Body.String())
	}
}

func TestOrderHandlersMarkPaidSuccess(t *testing.T) {
	var captured services.MarkPaidCommand
	service := &stubOrderService{
		markPaidFn: func(ctx context.Context, cmd services.MarkPaidCommand) (domain.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusPaid
			return order, nil
		},
	}

	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newOrderRequest(http.MethodPatch, "/orders/order-1/pay", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "order-1" || captured.ActorID != "user-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}

	var resp struct {
		Order orderPayload `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.Status != string(domain.OrderStatusPaid) {
		t.Fatalf("expected paid status, got %s", resp.Order.Status)
	}
	if resp.Order.StatusLabel != "Pagado" {
		t.Fatalf("expected label Pagado, got %s", resp.Order.StatusLabel)
	}
}

func TestOrderHandlersMarkPaidRequiresApproval(t *testing.T) {
	service := &stubOrderService{
		markPaidFn: func(ctx context.Context, cmd services.MarkPaidCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderNotApproved
		},
	}

	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newOrderRequest(http.MethodPatch, "/orders/order-1/pay", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "aun no fue aprobado") {
		t.Fatalf("expected approval message, got %s", rr.Body.String())
	}
}

func TestOrderHandlersInvoiceDownload(t *testing.T) {
	service := &stubOrderService{
		invoiceFn: func(ctx context.Context, cmd services.GetOrderCommand) (domain.Order, []byte, error) {
			return sampleOrder(), []byte("%PDF-1.4 fake"), nil
		},
	}

	handler := NewOrderHandlers(nil, service, nil)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newOrderRequest(http.MethodGet, "/orders/order-1/invoice", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected pdf content type, got %s", got)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "pedido-1042.pdf") {
		t.Fatalf("unexpected disposition: %s", rr.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(rr.Body.String(), "%PDF") {
		t.Fatalf("expected pdf body, got %q", rr.Body.String())
	}
}

func TestOrderHandlersServiceUnavailable(t *testing.T) {
	handler := NewOrderHandlers(nil, nil, nil)
	rr := httptest.NewRecorder()
	handler.listMine(rr, newOrderRequest(http.MethodGet, "/orders/mine", ""))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
