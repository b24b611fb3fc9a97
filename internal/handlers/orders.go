package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/platform/auth"
	"github.com/cotidiano/api/internal/platform/httpx"
	"github.com/cotidiano/api/internal/services"
)

const maxOrderBodySize = 128 * 1024

// OrderHandlers exposes the authenticated order endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	users  services.UserService
}

// NewOrderHandlers constructs the order handler set.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, users services.UserService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
		users:  users,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/mine", h.listMine)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/invoice", h.downloadInvoice)
	r.Patch("/{orderID}/pay", h.markPaid)
}

// orderLineRequest tolerates the aliases different storefront clients use for
// the product reference and quantity.
type orderLineRequest struct {
	ProductID  string      `json:"productId"`
	ProductID2 string      `json:"product_id"`
	ID         string      `json:"id"`
	Slug       string      `json:"slug"`
	Name       string      `json:"name"`
	Qty        flexInt     `json:"qty"`
	Cantidad   flexInt     `json:"cantidad"`
	Price      flexDecimal `json:"price"`
}

func (l orderLineRequest) toInput() services.OrderLineInput {
	ref := strings.TrimSpace(l.ProductID)
	for _, candidate := range []string{l.ProductID2, l.ID, l.Slug} {
		if ref != "" {
			break
		}
		ref = strings.TrimSpace(candidate)
	}

	input := services.OrderLineInput{
		ProductRef: ref,
		Name:       strings.TrimSpace(l.Name),
	}
	if l.Qty.set {
		input.Quantity = l.Qty.value
	} else if l.Cantidad.set {
		input.Quantity = l.Cantidad.value
	}
	if l.Price.set {
		price := l.Price.value
		input.UnitPrice = &price
	}
	return input
}

type createOrderRequest struct {
	Items    []orderLineRequest `json:"items"`
	Shipping shippingSection    `json:"shipping"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Carrito vacio", http.StatusBadRequest))
		return
	}

	lines := make([]services.OrderLineInput, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, item.toInput())
	}

	cmd := services.CreateOrderCommand{
		UserID: identity.UID,
		Lines:  lines,
		Shipping: services.ShippingInput{
			Name:    deref(req.Shipping.Name),
			Address: deref(req.Shipping.Address),
			City:    deref(req.Shipping.City),
			Zip:     deref(req.Shipping.Zip),
			Phone:   deref(req.Shipping.Phone),
		},
	}

	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"order": buildOrderPayload(order, h.lookupUser(ctx, order.UserID)),
	})
}

func (h *OrderHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orders, err := h.orders.ListMine(ctx, identity.UID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	owner := h.lookupUser(ctx, identity.UID)
	payloads := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, buildOrderPayload(order, owner))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": payloads})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.Get(ctx, services.GetOrderCommand{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID:      identity.UID,
		ActorIsStaff: identity.IsStaff(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order": buildOrderPayload(order, h.lookupUser(ctx, order.UserID)),
	})
}

func (h *OrderHandlers) downloadInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	order, pdf, err := h.orders.InvoiceDocument(ctx, services.GetOrderCommand{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID:      identity.UID,
		ActorIsStaff: identity.IsStaff(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("pedido-%s.pdf", order.Number)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *OrderHandlers) markPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.MarkPaid(ctx, services.MarkPaidCommand{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID:      identity.UID,
		ActorIsStaff: identity.IsStaff(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order": buildOrderPayload(order, h.lookupUser(ctx, order.UserID)),
	})
}

// lookupUser loads the account nested inside order payloads. Missing or
// deleted accounts serialise as null rather than failing the order read.
func (h *OrderHandlers) lookupUser(ctx context.Context, userID string) *domain.User {
	if h.users == nil || strings.TrimSpace(userID) == "" {
		return nil
	}
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return nil
	}
	return &user
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "Carrito vacio", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "Producto no encontrado", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotApproved):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_approved", "Tu pedido aun no fue aprobado por el administrador", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "Pedido no encontrado", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "Sin permiso", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
