package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/platform/httpx"
	"github.com/cotidiano/api/internal/scraper"
	"github.com/cotidiano/api/internal/services"
)

// PriceComparer is the scraping surface exposed publicly.
type PriceComparer interface {
	Compare(ctx context.Context, name string) (scraper.Comparison, error)
}

// PublicHandlers serves the unauthenticated storefront endpoints: catalog
// browsing, the offers feed, and the price-comparison stub.
type PublicHandlers struct {
	catalog  services.CatalogService
	offers   services.OfferService
	comparer PriceComparer
}

// NewPublicHandlers constructs the public handler set.
func NewPublicHandlers(catalog services.CatalogService, offers services.OfferService, comparer PriceComparer) *PublicHandlers {
	return &PublicHandlers{
		catalog:  catalog,
		offers:   offers,
		comparer: comparer,
	}
}

// Routes registers the public endpoints directly under the API prefix.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{ref}", h.getProduct)
	r.Get("/offers", h.listOffers)
	r.Get("/scraping/compare/{name}", h.comparePrices)
}

func (h *PublicHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	search := strings.TrimSpace(query.Get("q"))
	if search == "" {
		search = strings.TrimSpace(query.Get("search"))
	}
	categoryRef := strings.TrimSpace(query.Get("category"))
	if categoryRef == "" {
		categoryRef = strings.TrimSpace(query.Get("cat"))
	}
	params := parsePageParams(r)

	categories, err := h.loadCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	filter := services.ProductListFilter{ActiveOnly: true, Search: search}
	if categoryRef != "" {
		filter.CategoryID = resolveCategoryRef(categories, categoryRef)
	}

	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	sortProductsNewestFirst(products)

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

func (h *PublicHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	ref := strings.TrimSpace(chi.URLParam(r, "ref"))
	product, err := h.catalog.GetProduct(ctx, ref)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	categories, err := h.loadCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildProductPayload(ctx, h.offers, categories, product))
}

func (h *PublicHandlers) listOffers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("offers_unavailable", "offer service unavailable", http.StatusServiceUnavailable))
		return
	}

	listings, err := h.offers.ListActiveOffers(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("offer_error", "failed to list offers", http.StatusInternalServerError))
		return
	}

	items := make([]offerPayload, 0, len(listings))
	for _, listing := range listings {
		items = append(items, buildOfferPayload(listing))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *PublicHandlers) comparePrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.comparer == nil {
		httpx.WriteError(ctx, w, httpx.NewError("scraping_unavailable", "price comparison unavailable", http.StatusServiceUnavailable))
		return
	}

	name := strings.TrimSpace(chi.URLParam(r, "name"))
	comparison, err := h.comparer.Compare(ctx, name)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product name is required", http.StatusBadRequest))
		return
	}
	writeJSONResponse(w, http.StatusOK, comparison)
}

func (h *PublicHandlers) loadCategories(ctx context.Context) (map[string]domain.Category, error) {
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

// resolveCategoryRef maps a slug (or raw ID) from the query string to the
// stored category ID. Unknown refs filter to nothing, matching a slug
// mismatch in the catalog.
func resolveCategoryRef(categories map[string]domain.Category, ref string) string {
	if _, ok := categories[ref]; ok {
		return ref
	}
	for id, category := range categories {
		if strings.EqualFold(category.Slug, ref) {
			return id
		}
	}
	return ref
}

func sortProductsNewestFirst(products []domain.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "Producto no encontrado", http.StatusNotFound))
	case errors.Is(err, services.ErrProductInUse):
		httpx.WriteError(ctx, w, httpx.NewError("product_in_use", "El producto tiene pedidos asociados", http.StatusConflict))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
