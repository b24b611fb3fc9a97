package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/platform/auth"
	"github.com/cotidiano/api/internal/platform/httpx"
	"github.com/cotidiano/api/internal/platform/storage"
	"github.com/cotidiano/api/internal/services"
)

const (
	maxAdminBodySize  = 256 * 1024
	maxUploadSize     = 5 << 20
	lastOrdersDisplay = 5
)

// ObjectUploader stores uploaded binaries and returns their object path.
type ObjectUploader interface {
	Upload(ctx context.Context, purpose storage.AssetPurpose, params storage.PathParams, contentType string, data []byte) (string, error)
}

// AdminHandlers exposes the staff-only management endpoints.
type AdminHandlers struct {
	authn    *auth.Authenticator
	catalog  services.CatalogService
	offers   services.OfferService
	orders   services.OrderService
	users    services.UserService
	system   services.SystemService
	uploader ObjectUploader
	// publicBaseURL prefixes uploaded object paths in responses.
	publicBaseURL string
}

// AdminHandlersDeps carries the collaborators AdminHandlers needs.
type AdminHandlersDeps struct {
	Authenticator *auth.Authenticator
	Catalog       services.CatalogService
	Offers        services.OfferService
	Orders        services.OrderService
	Users         services.UserService
	System        services.SystemService
	Uploader      ObjectUploader
	PublicBaseURL string
}

// NewAdminHandlers constructs the staff handler set.
func NewAdminHandlers(deps AdminHandlersDeps) *AdminHandlers {
	return &AdminHandlers{
		authn:         deps.Authenticator,
		catalog:       deps.Catalog,
		offers:        deps.Offers,
		orders:        deps.Orders,
		users:         deps.Users,
		system:        deps.System,
		uploader:      deps.Uploader,
		publicBaseURL: strings.TrimRight(deps.PublicBaseURL, "/"),
	}
}

// Routes registers the /admin endpoints behind the staff guard.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireStaff())
	}

	r.Get("/overview", h.overview)

	r.Get("/users", h.listUsers)
	r.Post("/users", h.createUser)
	r.Patch("/users/{userID}", h.updateUser)

	r.Get("/orders", h.listOrders)
	r.Patch("/orders/{orderID}", h.updateOrder)

	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Patch("/products/{ref}", h.updateProduct)
	r.Delete("/products/{ref}", h.deleteProduct)

	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
	r.Patch("/categories/{categoryID}", h.updateCategory)
	r.Delete("/categories/{categoryID}", h.deleteCategory)

	r.Get("/offers", h.listOffers)
	r.Post("/offers", h.createOffer)
	r.Patch("/offers/{offerID}", h.updateOffer)
	r.Delete("/offers/{offerID}", h.deleteOffer)

	r.Post("/upload-image", h.uploadImage)
}

func (h *AdminHandlers) overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_unavailable", "system service unavailable", http.StatusServiceUnavailable))
		return
	}

	overview, err := h.system.Overview(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("overview_error", "failed to build overview", http.StatusInternalServerError))
		return
	}

	lastOrders := overview.LastOrders
	if len(lastOrders) > lastOrdersDisplay {
		lastOrders = lastOrders[:lastOrdersDisplay]
	}
	orderPayloads := make([]orderPayload, 0, len(lastOrders))
	for _, order := range lastOrders {
		orderPayloads = append(orderPayloads, buildOrderPayload(order, h.lookupOrderUser(ctx, order.UserID)))
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"counts": map[string]any{
			"users":    overview.Counts.Users,
			"products": overview.Counts.Products,
			"orders":   overview.Counts.Orders,
		},
		"last30d": map[string]any{
			"revenue": overview.Last30Days.Revenue.InexactFloat64(),
			"orders":  overview.Last30Days.Orders,
			"items":   overview.Last30Days.Items,
		},
		"lastOrders": orderPayloads,
	})
}

// --- users -------------------------------------------------------------------

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	params := parsePageParams(r)
	filter := services.UserListFilter{
		Search:      strings.TrimSpace(query.Get("q")),
		PendingOnly: parseBoolParam(query.Get("pending")),
	}

	users, err := h.users.AdminList(ctx, filter)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	total := len(users)
	pageItems, pages := paginate(users, params)
	items := make([]userPayload, 0, len(pageItems))
	for _, user := range pageItems {
		items = append(items, buildUserPayload(user))
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"page":  params.page,
		"pages": pages,
	})
}

type adminCreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *AdminHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adminCreateUserRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Nombre, email y password requeridos", http.StatusBadRequest))
		return
	}

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	password := strings.TrimSpace(req.Password)
	if name == "" || email == "" || password == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Nombre, email y password requeridos", http.StatusBadRequest))
		return
	}

	role := domain.RoleCustomer
	if strings.EqualFold(strings.TrimSpace(req.Role), string(domain.RoleStaff)) {
		role = domain.RoleStaff
	}

	user, err := h.users.AdminCreate(ctx, services.AdminCreateUserCommand{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildUserPayload(user))
}

type adminUpdateUserRequest struct {
	Name     *string  `json:"name"`
	Email    *string  `json:"email"`
	Password *string  `json:"password"`
	Role     *string  `json:"role"`
	Active   flexBool `json:"active"`
}

func (h *AdminHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adminUpdateUserRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	cmd := services.AdminUpdateUserCommand{
		UserID:   userID,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}
	if req.Role != nil {
		role := domain.RoleCustomer
		if strings.EqualFold(strings.TrimSpace(*req.Role), string(domain.RoleStaff)) {
			role = domain.RoleStaff
		}
		cmd.Role = &role
	}

	user, err := h.users.AdminUpdate(ctx, cmd)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	if req.Active.set {
		actor, _ := auth.IdentityFromContext(ctx)
		user, err = h.users.SetActive(ctx, services.SetUserActiveCommand{
			UserID:  userID,
			Active:  req.Active.value,
			ActorID: actorID(actor),
		})
		if err != nil {
			writeUserError(ctx, w, err)
			return
		}
	}

	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

// --- orders ------------------------------------------------------------------

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	params := parsePageParams(r)
	filter := services.OrderListFilter{}
	if status := strings.TrimSpace(query.Get("status")); status != "" {
		filter.Status = []domain.OrderStatus{domain.OrderStatus(status)}
	}

	orders, err := h.orders.AdminList(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	total := len(orders)
	pageItems, pages := paginate(orders, params)
	items := make([]orderPayload, 0, len(pageItems))
	for _, order := range pageItems {
		items = append(items, buildOrderPayload(order, h.lookupOrderUser(ctx, order.UserID)))
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"page":  params.page,
		"pages": pages,
	})
}

type adminUpdateOrderRequest struct {
	Status string             `json:"status"`
	Items  []orderLineRequest `json:"items"`
}

func (h *AdminHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adminUpdateOrderRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Estado invalido", http.StatusBadRequest))
		return
	}

	status := domain.OrderStatus(strings.TrimSpace(req.Status))
	if !status.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", "Estado invalido", http.StatusBadRequest))
		return
	}

	var lines []services.OrderLineInput
	if req.Items != nil {
		lines = make([]services.OrderLineInput, 0, len(req.Items))
		for _, item := range req.Items {
			lines = append(lines, item.toInput())
		}
	}

	actor, _ := auth.IdentityFromContext(ctx)
	order, err := h.orders.AdminUpdate(ctx, services.AdminUpdateOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:  status,
		Lines:   lines,
		ActorID: actorID(actor),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order, h.lookupOrderUser(ctx, order.UserID)))
}

// --- products ----------------------------------------------------------------

func (h *AdminHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	params := parsePageParams(r)
	filter := services.ProductListFilter{
		Search:     strings.TrimSpace(query.Get("q")),
		CategoryID: strings.TrimSpace(query.Get("category")),
	}

	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	sortProductsNewestFirst(products)

	categories, err := h.loadCategoryIndex(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	total := len(products)
	pageItems, pages := paginate(products, params)
	items := make([]productPayload, 0, len(pageItems))
	for _, product := range pageItems {
		items = append(items, buildProductPayload(ctx, h.offers, categories, product))
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"page":  params.page,
		"pages": pages,
	})
}

type adminProductRequest struct {
	Name        *string     `json:"name"`
	Description *string     `json:"description"`
	Price       flexDecimal `json:"price"`
	CategoryID  *string     `json:"categoryId"`
	Category    *string     `json:"category"`
	Stock       flexInt     `json:"stock"`
	Active      flexBool    `json:"active"`
}

func (r adminProductRequest) categoryRef() *string {
	if r.CategoryID != nil {
		return r.CategoryID
	}
	return r.Category
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adminProductRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Nombre y precio requeridos", http.StatusBadRequest))
		return
	}

	name := deref(req.Name)
	if name == "" || !req.Price.set {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Nombre y precio requeridos", http.StatusBadRequest))
		return
	}

	cmd := services.CreateProductCommand{
		Name:        name,
		Description: deref(req.Description),
		Price:       req.Price.value,
		CategoryID:  deref(req.categoryRef()),
		Active:      true,
	}
	if req.Stock.set {
		cmd.Stock = req.Stock.value
	}
	if req.Active.set {
		cmd.Active = req.Active.value
	}

	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	categories, _ := h.loadCategoryIndex(ctx)
	writeJSONResponse(w, http.StatusCreated, buildProductPayload(ctx, h.offers, categories, product))
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adminProductRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	ref := strings.TrimSpace(chi.URLParam(r, "ref"))
	existing, err := h.catalog.GetProduct(ctx, ref)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:   existing.ID,
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  req.categoryRef(),
	}
	if req.Price.set {
		price := req.Price.value
		cmd.Price = &price
	}
	if req.Stock.set {
		stock := req.Stock.value
		cmd.Stock = &stock
	}
	if req.Active.set {
		active := req.Active.value
		cmd.Active = &active
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	categories, _ := h.loadCategoryIndex(ctx)
	writeJSONResponse(w, http.StatusOK, buildProductPayload(ctx, h.offers, categories, product))
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	ref := strings.TrimSpace(chi.URLParam(r, "ref"))
	existing, err := h.catalog.GetProduct(ctx, ref)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	if err := h.catalog.DeleteProduct(ctx, existing.ID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true})
}

// --- categories --------------------------------------------------------------

func (h *AdminHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]*categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

type adminCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ParentID    *string `json:"parentId"`
}

func (h *AdminHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adminCategoryRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Nombre requerido", http.StatusBadRequest))
		return
	}

	name := deref(req.Name)
	if name == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Nombre requerido", http.StatusBadRequest))
		return
	}

	category, err := h.catalog.CreateCategory(ctx, services.CreateCategoryCommand{
		Name:        name,
		Description: deref(req.Description),
		ParentID:    deref(req.ParentID),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildCategoryPayload(category))
}

func (h *AdminHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adminCategoryRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	category, err := h.catalog.UpdateCategory(ctx, services.UpdateCategoryCommand{
		CategoryID:  strings.TrimSpace(chi.URLParam(r, "categoryID")),
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCategoryPayload(category))
}

func (h *AdminHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.catalog.DeleteCategory(ctx, strings.TrimSpace(chi.URLParam(r, "categoryID"))); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true})
}

// --- offers ------------------------------------------------------------------

func (h *AdminHandlers) listOffers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offers_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	filter := services.OfferListFilter{
		ActiveOnly: parseBoolParam(r.URL.Query().Get("active")),
	}
	offers, err := h.offers.ListOffers(ctx, filter)
	if err != nil {
		writeOfferError(ctx, w, err)
		return
	}

	items := make([]offerPayload, 0, len(offers))
	for _, offer := range offers {
		items = append(items, buildOfferPayload(services.OfferListing{Offer: offer}))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

type adminOfferRequest struct {
	Name        *string     `json:"name"`
	Description *string     `json:"description"`
	Percent     flexDecimal `json:"percent"`
	ProductID   *string     `json:"productId"`
	CategoryID  *string     `json:"categoryId"`
	Active      flexBool    `json:"active"`
	Starts      *string     `json:"starts"`
	Ends        *string     `json:"ends"`
}

func parseOfferTime(raw *string) (*time.Time, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, true, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, false, err
	}
	return &parsed, false, nil
}

func (h *AdminHandlers) createOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offers_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adminOfferRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Nombre y porcentaje requeridos", http.StatusBadRequest))
		return
	}

	name := deref(req.Name)
	if name == "" || !req.Percent.set {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Nombre y porcentaje requeridos", http.StatusBadRequest))
		return
	}

	starts, _, err := parseOfferTime(req.Starts)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Fecha invalida", http.StatusBadRequest))
		return
	}
	ends, _, err := parseOfferTime(req.Ends)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Fecha invalida", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOfferCommand{
		Name:        name,
		Description: deref(req.Description),
		Percent:     req.Percent.value,
		ProductID:   deref(req.ProductID),
		CategoryID:  deref(req.CategoryID),
		Active:      true,
		StartsAt:    starts,
		EndsAt:      ends,
	}
	if req.Active.set {
		cmd.Active = req.Active.value
	}

	offer, err := h.offers.CreateOffer(ctx, cmd)
	if err != nil {
		writeOfferError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"id":   offer.ID,
		"name": offer.Name,
	})
}

func (h *AdminHandlers) updateOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offers_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adminOfferRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	starts, clearStarts, err := parseOfferTime(req.Starts)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Fecha invalida", http.StatusBadRequest))
		return
	}
	ends, clearEnds, err := parseOfferTime(req.Ends)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Fecha invalida", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateOfferCommand{
		OfferID:     strings.TrimSpace(chi.URLParam(r, "offerID")),
		Name:        req.Name,
		Description: req.Description,
		ProductID:   req.ProductID,
		CategoryID:  req.CategoryID,
		StartsAt:    starts,
		EndsAt:      ends,
		ClearWindow: clearStarts && clearEnds,
	}
	if req.Percent.set {
		percent := req.Percent.value
		cmd.Percent = &percent
	}
	if req.Active.set {
		active := req.Active.value
		cmd.Active = &active
	}

	if _, err := h.offers.UpdateOffer(ctx, cmd); err != nil {
		writeOfferError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *AdminHandlers) deleteOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offers_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.offers.DeleteOffer(ctx, strings.TrimSpace(chi.URLParam(r, "offerID"))); err != nil {
		writeOfferError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true})
}

// --- uploads -----------------------------------------------------------------

// uploadImage receives a multipart image and stores it. When productId or
// userId accompany the file the stored path is also linked to that record.
func (h *AdminHandlers) uploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploader == nil {
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "storage unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Archivo requerido", http.StatusBadRequest))
		return
	}

	var (
		file   io.ReadCloser
		name   string
		header string
	)
	for _, field := range []string{"file", "image", "avatar"} {
		f, fh, err := r.FormFile(field)
		if err != nil {
			continue
		}
		file = f
		name = fh.Filename
		header = fh.Header.Get("Content-Type")
		break
	}
	if file == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Archivo requerido", http.StatusBadRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil || len(data) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Archivo requerido", http.StatusBadRequest))
		return
	}
	if header == "" {
		header = http.DetectContentType(data)
	}

	productID := strings.TrimSpace(r.FormValue("productId"))
	userID := strings.TrimSpace(r.FormValue("userId"))

	var (
		purpose = storage.PurposeProductImage
		params  = storage.PathParams{FileName: name}
	)
	switch {
	case userID != "":
		purpose = storage.PurposeAvatar
		params.UserID = userID
	case productID != "":
		params.ProductID = productID
	default:
		// Unattached uploads still land under a product-image style path.
		params.ProductID = "shared"
	}

	objectPath, err := h.uploader.Upload(ctx, purpose, params, header, data)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_failed", "failed to store file", http.StatusInternalServerError))
		return
	}

	if productID != "" && h.catalog != nil {
		if _, err := h.catalog.SetProductImage(ctx, productID, objectPath); err != nil {
			writeCatalogError(ctx, w, err)
			return
		}
	}
	if userID != "" && h.users != nil {
		if _, err := h.users.SetAvatar(ctx, userID, objectPath); err != nil {
			writeUserError(ctx, w, err)
			return
		}
	}

	url := objectPath
	if h.publicBaseURL != "" {
		url = h.publicBaseURL + "/" + strings.TrimLeft(objectPath, "/")
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"url":  url,
		"path": objectPath,
	})
}

// --- shared helpers ----------------------------------------------------------

func (h *AdminHandlers) loadCategoryIndex(ctx context.Context) (map[string]domain.Category, error) {
	if h.catalog == nil {
		return nil, nil
	}
	listed, err := h.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	categories := make(map[string]domain.Category, len(listed))
	for _, category := range listed {
		categories[category.ID] = category
	}
	return categories, nil
}

func (h *AdminHandlers) lookupOrderUser(ctx context.Context, userID string) *domain.User {
	if h.users == nil || strings.TrimSpace(userID) == "" {
		return nil
	}
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return nil
	}
	return &user
}

func actorID(identity *auth.Identity) string {
	if identity == nil {
		return ""
	}
	return identity.UID
}

func parseBoolParam(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func writeOfferError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOfferNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("offer_not_found", "Oferta no encontrada", http.StatusNotFound))
	case errors.Is(err, services.ErrOfferInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOfferConflict):
		httpx.WriteError(ctx, w, httpx.NewError("offer_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("offer_error", "failed to process offer request", http.StatusInternalServerError))
	}
}
