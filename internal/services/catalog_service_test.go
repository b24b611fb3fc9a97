package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/cotidiano/api/internal/domain"
)

func newCatalogService(t *testing.T, products *stubProductRepository, categories *stubCategoryRepository, orders *stubOrderRepository) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:   products,
		Categories: categories,
		Orders:     orders,
		Clock: func() time.Time {
			return time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
		},
		IDGenerator: func() string { return "01TEST" },
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func TestCatalogService_GetProduct_IDThenSlugFallback(t *testing.T) {
	products := newStubProductRepository(
		domain.Product{ID: "prd_1", Slug: "mate-imperial", Name: "Mate Imperial"},
	)
	svc := newCatalogService(t, products, newStubCategoryRepository(), newStubOrderRepository())

	byID, err := svc.GetProduct(context.Background(), "prd_1")
	if err != nil || byID.Name != "Mate Imperial" {
		t.Fatalf("lookup by id failed: %v %+v", err, byID)
	}

	bySlug, err := svc.GetProduct(context.Background(), "mate-imperial")
	if err != nil || bySlug.ID != "prd_1" {
		t.Fatalf("lookup by slug failed: %v %+v", err, bySlug)
	}

	if _, err := svc.GetProduct(context.Background(), "inexistente"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound got %v", err)
	}
}

func TestCatalogService_CreateProduct_SanitisesAndSlugs(t *testing.T) {
	products := newStubProductRepository()
	svc := newCatalogService(t, products, newStubCategoryRepository(), newStubOrderRepository())

	product, err := svc.CreateProduct(context.Background(), CreateProductCommand{
		Name:        "Café Torrado",
		Description: `<p>Rico</p><script>alert("x")</script>`,
		Price:       decimal.RequireFromString("123.456"),
		Stock:       10,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("CreateProduct returned error: %v", err)
	}
	if product.Slug != "cafe-torrado" {
		t.Fatalf("unexpected slug %s", product.Slug)
	}
	if strings.Contains(product.Description, "<script>") {
		t.Fatalf("description was not sanitised: %q", product.Description)
	}
	if !product.Price.Equal(decimal.RequireFromString("123.46")) {
		t.Fatalf("expected rounded price, got %s", product.Price)
	}
}

func TestCatalogService_CreateProduct_Validation(t *testing.T) {
	svc := newCatalogService(t, newStubProductRepository(), newStubCategoryRepository(), newStubOrderRepository())

	if _, err := svc.CreateProduct(context.Background(), CreateProductCommand{Price: decimal.New(1, 0)}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected name validation error, got %v", err)
	}
	if _, err := svc.CreateProduct(context.Background(), CreateProductCommand{Name: "X", Price: decimal.RequireFromString("-1")}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected price validation error, got %v", err)
	}
}

func TestCatalogService_CreateProduct_ResolvesCategoryByName(t *testing.T) {
	categories := newStubCategoryRepository()
	svc := newCatalogService(t, newStubProductRepository(), categories, newStubOrderRepository())

	product, err := svc.CreateProduct(context.Background(), CreateProductCommand{
		Name:       "Bombilla",
		Price:      decimal.RequireFromString("800"),
		CategoryID: "Accesorios de Mate",
		Active:     true,
	})
	if err != nil {
		t.Fatalf("CreateProduct returned error: %v", err)
	}
	if len(categories.inserted) != 1 {
		t.Fatalf("expected category created on the fly, got %d", len(categories.inserted))
	}
	if categories.inserted[0].Slug != "accesorios-de-mate" {
		t.Fatalf("unexpected category slug %s", categories.inserted[0].Slug)
	}
	if product.CategoryID != categories.inserted[0].ID {
		t.Fatalf("product not linked to new category")
	}

	// A second product with the same category name reuses the record.
	if _, err := svc.CreateProduct(context.Background(), CreateProductCommand{
		Name:       "Termo",
		Price:      decimal.RequireFromString("5000"),
		CategoryID: "accesorios-de-mate",
	}); err != nil {
		t.Fatalf("CreateProduct returned error: %v", err)
	}
	if len(categories.inserted) != 1 {
		t.Fatalf("category should be reused, got %d inserts", len(categories.inserted))
	}
}

func TestCatalogService_DeleteProduct_ProtectsReferencedProducts(t *testing.T) {
	products := newStubProductRepository(domain.Product{ID: "prd_1", Slug: "mate", Name: "Mate"})
	orders := newStubOrderRepository(domain.Order{
		ID:    "ord_1",
		Items: []domain.OrderItem{{ProductID: "prd_1", Name: "Mate", Quantity: 1}},
	})
	svc := newCatalogService(t, products, newStubCategoryRepository(), orders)

	if err := svc.DeleteProduct(context.Background(), "prd_1"); !errors.Is(err, ErrProductInUse) {
		t.Fatalf("expected ErrProductInUse got %v", err)
	}
	if len(products.deleted) != 0 {
		t.Fatalf("product must not be deleted while referenced")
	}

	orders.orders = map[string]domain.Order{}
	if err := svc.DeleteProduct(context.Background(), "prd_1"); err != nil {
		t.Fatalf("DeleteProduct returned error: %v", err)
	}
	if len(products.deleted) != 1 {
		t.Fatalf("product was not deleted")
	}
}

func TestCatalogService_ListProducts_Search(t *testing.T) {
	products := newStubProductRepository(
		domain.Product{ID: "prd_1", Slug: "mate-imperial", Name: "Mate Imperial", Active: true},
		domain.Product{ID: "prd_2", Slug: "bombilla", Name: "Bombilla", Description: "Para el mate", Active: true},
		domain.Product{ID: "prd_3", Slug: "termo", Name: "Termo", Active: true},
	)
	svc := newCatalogService(t, products, newStubCategoryRepository(), newStubOrderRepository())

	found, err := svc.ListProducts(context.Background(), ProductListFilter{ActiveOnly: true, Search: "MATE"})
	if err != nil {
		t.Fatalf("ListProducts returned error: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches got %d", len(found))
	}
}

func TestCatalogService_UpdateProduct_PartialEdit(t *testing.T) {
	products := newStubProductRepository(domain.Product{
		ID:    "prd_1",
		Slug:  "mate",
		Name:  "Mate",
		Price: decimal.RequireFromString("1000.00"),
		Stock: 4,
	})
	svc := newCatalogService(t, products, newStubCategoryRepository(), newStubOrderRepository())

	price := decimal.RequireFromString("1100.00")
	product, err := svc.UpdateProduct(context.Background(), UpdateProductCommand{
		ProductID: "prd_1",
		Price:     &price,
		Active:    valuePtr(true),
	})
	if err != nil {
		t.Fatalf("UpdateProduct returned error: %v", err)
	}
	if !product.Price.Equal(price) || !product.Active {
		t.Fatalf("edit not applied: %+v", product)
	}
	if product.Name != "Mate" || product.Stock != 4 {
		t.Fatalf("untouched fields changed: %+v", product)
	}
}

func TestCatalogService_SetProductImage(t *testing.T) {
	products := newStubProductRepository(domain.Product{ID: "prd_1", Slug: "mate", Name: "Mate"})
	svc := newCatalogService(t, products, newStubCategoryRepository(), newStubOrderRepository())

	product, err := svc.SetProductImage(context.Background(), "prd_1", "products/prd_1/frente.jpg")
	if err != nil {
		t.Fatalf("SetProductImage returned error: %v", err)
	}
	if product.ImagePath != "products/prd_1/frente.jpg" {
		t.Fatalf("unexpected image path %s", product.ImagePath)
	}
}
