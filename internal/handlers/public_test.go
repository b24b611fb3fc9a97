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
	"github.com/cotidiano/api/internal/scraper"
	"github.com/cotidiano/api/internal/services"
)

type stubCatalogService struct {
	listProductsFn   func(context.Context, services.ProductListFilter) ([]domain.Product, error)
	getProductFn     func(context.Context, string) (domain.Product, error)
	createProductFn  func(context.Context, services.CreateProductCommand) (domain.Product, error)
	updateProductFn  func(context.Context, services.UpdateProductCommand) (domain.Product, error)
	deleteProductFn  func(context.Context, string) error
	setImageFn       func(context.Context, string, string) (domain.Product, error)
	listCategoriesFn func(context.Context) ([]domain.Category, error)
	createCategoryFn func(context.Context, services.CreateCategoryCommand) (domain.Category, error)
	updateCategoryFn func(context.Context, services.UpdateCategoryCommand) (domain.Category, error)
	deleteCategoryFn func(context.Context, string) error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) ([]domain.Product, error) {
	if s.listProductsFn != nil {
		return s.listProductsFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, ref string) (domain.Product, error) {
	if s.getProductFn != nil {
		return s.getProductFn(ctx, ref)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (domain.Product, error) {
	if s.createProductFn != nil {
		return s.createProductFn(ctx, cmd)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (domain.Product, error) {
	if s.updateProductFn != nil {
		return s.updateProductFn(ctx, cmd)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.deleteProductFn != nil {
		return s.deleteProductFn(ctx, productID)
	}
	return errors.New("not implemented")
}

func (s *stubCatalogService) SetProductImage(ctx context.Context, productID, imagePath string) (domain.Product, error) {
	if s.setImageFn != nil {
		return s.setImageFn(ctx, productID, imagePath)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if s.listCategoriesFn != nil {
		return s.listCategoriesFn(ctx)
	}
	return nil, nil
}

func (s *stubCatalogService) CreateCategory(ctx context.Context, cmd services.CreateCategoryCommand) (domain.Category, error) {
	if s.createCategoryFn != nil {
		return s.createCategoryFn(ctx, cmd)
	}
	return domain.Category{}, errors.New("not implemented")
}

func (s *stubCatalogService) UpdateCategory(ctx context.Context, cmd services.UpdateCategoryCommand) (domain.Category, error) {
	if s.updateCategoryFn != nil {
		return s.updateCategoryFn(ctx, cmd)
	}
	return domain.Category{}, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	if s.deleteCategoryFn != nil {
		return s.deleteCategoryFn(ctx, categoryID)
	}
	return errors.New("not implemented")
}

type stubOfferService struct {
	resolveFn     func(context.Context, domain.Product) (domain.Discount, bool, error)
	listActiveFn  func(context.Context) ([]services.OfferListing, error)
	listOffersFn  func(context.Context, services.OfferListFilter) ([]domain.Offer, error)
	createOfferFn func(context.Context, services.CreateOfferCommand) (domain.Offer, error)
	updateOfferFn func(context.Context, services.UpdateOfferCommand) (domain.Offer, error)
	deleteOfferFn func(context.Context, string) error
}

func (s *stubOfferService) ResolveDiscount(ctx context.Context, product domain.Product) (domain.Discount, bool, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, product)
	}
	return domain.Discount{}, false, nil
}

func (s *stubOfferService) ListActiveOffers(ctx context.Context) ([]services.OfferListing, error) {
	if s.listActiveFn != nil {
		return s.listActiveFn(ctx)
	}
	return nil, nil
}

func (s *stubOfferService) ListOffers(ctx context.Context, filter services.OfferListFilter) ([]domain.Offer, error) {
	if s.listOffersFn != nil {
		return s.listOffersFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubOfferService) CreateOffer(ctx context.Context, cmd services.CreateOfferCommand) (domain.Offer, error) {
	if s.createOfferFn != nil {
		return s.createOfferFn(ctx, cmd)
	}
	return domain.Offer{}, errors.New("not implemented")
}

func (s *stubOfferService) UpdateOffer(ctx context.Context, cmd services.UpdateOfferCommand) (domain.Offer, error) {
	if s.updateOfferFn != nil {
		return s.updateOfferFn(ctx, cmd)
	}
	return domain.Offer{}, errors.New("not implemented")
}

func (s *stubOfferService) DeleteOffer(ctx context.Context, offerID string) error {
	if s.deleteOfferFn != nil {
		return s.deleteOfferFn(ctx, offerID)
	}
	return errors.New("not implemented")
}

type stubComparer struct {
	comparison scraper.Comparison
	err        error
	lastName   string
}

func (s *stubComparer) Compare(ctx context.Context, name string) (scraper.Comparison, error) {
	s.lastName = name
	return s.comparison, s.err
}

func sampleProduct(id string, created time.Time) domain.Product {
	return domain.Product{
		ID:         id,
		Slug:       "yerba-1kg-" + id,
		Name:       "Yerba 1kg",
		Price:      decimal.NewFromFloat(120.25),
		CategoryID: "cat-1",
		Stock:      10,
		Active:     true,
		CreatedAt:  created,
	}
}

func TestPublicHandlersListProductsPaginatesNewestFirst(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	var capturedFilter services.ProductListFilter
	catalog := &stubCatalogService{
		listProductsFn: func(ctx context.Context, filter services.ProductListFilter) ([]domain.Product, error) {
			capturedFilter = filter
			return []domain.Product{
				sampleProduct("p1", base),
				sampleProduct("p3", base.Add(48*time.Hour)),
				sampleProduct("p2", base.Add(24*time.Hour)),
			}, nil
		},
		listCategoriesFn: func(ctx context.Context) ([]domain.Category, error) {
			return []domain.Category{{ID: "cat-1", Name: "Almacen", Slug: "almacen"}}, nil
		},
	}

	handler := NewPublicHandlers(catalog, &stubOfferService{}, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/products?q=yerba&page=1&limit=2", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !capturedFilter.ActiveOnly || capturedFilter.Search != "yerba" {
		t.Fatalf("unexpected filter: %#v", capturedFilter)
	}

	var resp struct {
		Items []productPayload `json:"items"`
		Total int              `json:"total"`
		Page  int              `json:"page"`
		Pages int              `json:"pages"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 3 || resp.Pages != 2 || resp.Page != 1 {
		t.Fatalf("unexpected paging: %#v", resp)
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != "p3" || resp.Items[1].ID != "p2" {
		t.Fatalf("expected newest-first page, got %#v", resp.Items)
	}
	if resp.Items[0].Category == nil || resp.Items[0].Category.Slug != "almacen" {
		t.Fatalf("expected category embedded, got %#v", resp.Items[0].Category)
	}
}

func TestPublicHandlersListProductsResolvesCategorySlug(t *testing.T) {
	var capturedFilter services.ProductListFilter
	catalog := &stubCatalogService{
		listProductsFn: func(ctx context.Context, filter services.ProductListFilter) ([]domain.Product, error) {
			capturedFilter = filter
			return nil, nil
		},
		listCategoriesFn: func(ctx context.Context) ([]domain.Category, error) {
			return []domain.Category{{ID: "cat-1", Name: "Almacen", Slug: "almacen"}}, nil
		},
	}

	handler := NewPublicHandlers(catalog, &stubOfferService{}, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/products?category=almacen", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedFilter.CategoryID != "cat-1" {
		t.Fatalf("expected slug resolved to cat-1, got %s", capturedFilter.CategoryID)
	}
}

func TestPublicHandlersGetProductAppliesDiscount(t *testing.T) {
	created := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	catalog := &stubCatalogService{
		getProductFn: func(ctx context.Context, ref string) (domain.Product, error) {
			if ref != "yerba-1kg-p1" {
				t.Fatalf("unexpected ref %s", ref)
			}
			return sampleProduct("p1", created), nil
		},
		listCategoriesFn: func(ctx context.Context) ([]domain.Category, error) {
			return nil, nil
		},
	}
	offers := &stubOfferService{
		resolveFn: func(ctx context.Context, product domain.Product) (domain.Discount, bool, error) {
			return domain.Discount{
				FinalPrice: decimal.NewFromFloat(96.20),
				Percent:    decimal.NewFromInt(20),
				OfferID:    "off-1",
				OfferSlug:  "semana-yerba",
				Label:      "Semana de la yerba",
			}, true, nil
		},
	}

	handler := NewPublicHandlers(catalog, offers, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/products/yerba-1kg-p1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp productPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Price != 96.2 || resp.PriceOriginal != 120.25 {
		t.Fatalf("expected discounted price, got price=%v original=%v", resp.Price, resp.PriceOriginal)
	}
	if resp.Discount == nil || resp.Discount.Percent != 20 || resp.Discount.OfferSlug != "semana-yerba" {
		t.Fatalf("unexpected discount payload: %#v", resp.Discount)
	}
}

func TestPublicHandlersGetProductNotFound(t *testing.T) {
	catalog := &stubCatalogService{
		getProductFn: func(ctx context.Context, ref string) (domain.Product, error) {
			return domain.Product{}, services.ErrProductNotFound
		},
	}

	handler := NewPublicHandlers(catalog, &stubOfferService{}, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/products/ghost", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Producto no encontrado") {
		t.Fatalf("expected not found message, got %s", rr.Body.String())
	}
}

func TestPublicHandlersListOffers(t *testing.T) {
	starts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	offers := &stubOfferService{
		listActiveFn: func(ctx context.Context) ([]services.OfferListing, error) {
			return []services.OfferListing{
				{
					Offer: domain.Offer{
						ID:       "off-1",
						Slug:     "semana-yerba",
						Name:     "Semana de la yerba",
						Percent:  decimal.NewFromInt(20),
						Active:   true,
						StartsAt: &starts,
					},
					Product: &services.ProductSummary{
						ID:    "p1",
						Slug:  "yerba-1kg",
						Name:  "Yerba 1kg",
						Price: decimal.NewFromFloat(120.25),
					},
				},
			}, nil
		},
	}

	handler := NewPublicHandlers(&stubCatalogService{}, offers, nil)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/offers", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Items []offerPayload `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(resp.Items))
	}
	offer := resp.Items[0]
	if offer.Slug != "semana-yerba" || offer.Percent != 20 {
		t.Fatalf("unexpected offer payload: %#v", offer)
	}
	if offer.Product == nil || offer.Product.Price == nil || *offer.Product.Price != 120.25 {
		t.Fatalf("expected product target with price, got %#v", offer.Product)
	}
	if offer.Starts == nil || !strings.HasPrefix(*offer.Starts, "2025-06-01") {
		t.Fatalf("expected starts timestamp, got %#v", offer.Starts)
	}
}

func TestPublicHandlersComparePrices(t *testing.T) {
	comparer := &stubComparer{
		comparison: scraper.Comparison{
			Name:    "yerba",
			Summary: "Comparar precios de yerba: simulación de scraping en Cotidigital",
		},
	}

	handler := NewPublicHandlers(&stubCatalogService{}, &stubOfferService{}, comparer)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/scraping/compare/yerba", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if comparer.lastName != "yerba" {
		t.Fatalf("expected comparer called with yerba, got %s", comparer.lastName)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["nombre"] != "yerba" {
		t.Fatalf("expected nombre key, got %#v", resp)
	}
	if !strings.Contains(resp["resultado"], "Comparar precios") {
		t.Fatalf("unexpected resultado: %s", resp["resultado"])
	}
}

func TestPublicHandlersComparePricesRequiresName(t *testing.T) {
	comparer := &stubComparer{err: errors.New("name required")}

	handler := NewPublicHandlers(&stubCatalogService{}, &stubOfferService{}, comparer)
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/scraping/compare/%20", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
