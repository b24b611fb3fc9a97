package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/repositories"
)

const (
	productIDPrefix  = "prd_"
	categoryIDPrefix = "cat_"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates the product could not be located.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrProductInUse protects products referenced by order lines from deletion.
	ErrProductInUse = errors.New("catalog: product referenced by orders")
	// ErrCatalogConflict indicates duplicate slugs or concurrent edits.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	orders     repositories.OrderRepository
	clock      func() time.Time
	newID      func() string
	sanitizer  *bluemonday.Policy
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
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

	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		orders:     deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitizer: bluemonday.UGCPolicy(),
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	filter.Search = ""

	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if search == "" {
		return products, nil
	}

	matched := make([]Product, 0, len(products))
	for _, product := range products {
		haystack := strings.ToLower(product.Name + " " + product.Description + " " + product.Slug)
		if strings.Contains(haystack, search) {
			matched = append(matched, product)
		}
	}
	return matched, nil
}

func (s *catalogService) GetProduct(ctx context.Context, ref string) (Product, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Product{}, fmt.Errorf("%w: product reference is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, ref)
	if err == nil {
		return product, nil
	}
	if !isNotFound(err) {
		return Product{}, s.mapRepositoryError(err)
	}

	product, err = s.products.FindBySlug(ctx, ref)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price cannot be negative", ErrCatalogInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
	}

	categoryID, err := s.resolveCategoryRef(ctx, cmd.CategoryID)
	if err != nil {
		return Product{}, err
	}

	product := Product{
		ID:          productIDPrefix + s.newID(),
		Slug:        domain.Slugify(name),
		Name:        name,
		Description: s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description)),
		Price:       cmd.Price.Round(2),
		CategoryID:  categoryID,
		Stock:       cmd.Stock,
		Active:      cmd.Active,
		CreatedAt:   s.clock(),
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	product, err := s.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return Product{}, err
	}

	if cmd.Name != nil {
		if name := strings.TrimSpace(*cmd.Name); name != "" {
			product.Name = name
			product.Slug = domain.Slugify(name)
		}
	}
	if cmd.Description != nil {
		product.Description = s.sanitizer.Sanitize(strings.TrimSpace(*cmd.Description))
	}
	if cmd.Price != nil {
		if cmd.Price.IsNegative() {
			return Product{}, fmt.Errorf("%w: price cannot be negative", ErrCatalogInvalidInput)
		}
		product.Price = cmd.Price.Round(2)
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
		}
		product.Stock = *cmd.Stock
	}
	if cmd.Active != nil {
		product.Active = *cmd.Active
	}
	if cmd.CategoryID != nil {
		categoryID, err := s.resolveCategoryRef(ctx, *cmd.CategoryID)
		if err != nil {
			return Product{}, err
		}
		product.CategoryID = categoryID
	}

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	if s.orders != nil {
		referenced, err := s.orders.ExistsWithProduct(ctx, product.ID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if referenced {
			return fmt.Errorf("%w: %s", ErrProductInUse, product.ID)
		}
	}

	if err := s.products.Delete(ctx, product.ID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) SetProductImage(ctx context.Context, productID string, imagePath string) (Product, error) {
	imagePath = strings.TrimSpace(imagePath)
	if imagePath == "" {
		return Product{}, fmt.Errorf("%w: image path is required", ErrCatalogInvalidInput)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return Product{}, err
	}

	product.ImagePath = imagePath
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return categories, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}

	category := Category{
		ID:          categoryIDPrefix + s.newID(),
		Name:        name,
		Slug:        domain.Slugify(name),
		Description: strings.TrimSpace(cmd.Description),
		ParentID:    strings.TrimSpace(cmd.ParentID),
	}

	if err := s.categories.Insert(ctx, category); err != nil {
		return Category{}, s.mapRepositoryError(err)
	}
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpdateCategoryCommand) (Category, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}

	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, s.mapRepositoryError(err)
	}

	if cmd.Name != nil {
		if name := strings.TrimSpace(*cmd.Name); name != "" {
			category.Name = name
			category.Slug = domain.Slugify(name)
		}
	}
	if cmd.Description != nil {
		category.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.ParentID != nil {
		category.ParentID = strings.TrimSpace(*cmd.ParentID)
	}

	if err := s.categories.Update(ctx, category); err != nil {
		return Category{}, s.mapRepositoryError(err)
	}
	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if err := s.categories.Delete(ctx, categoryID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// resolveCategoryRef accepts a category ID, slug, or free-form name. Unknown
// values create the category on the fly, mirroring how staff submit new
// category names from the product form.
func (s *catalogService) resolveCategoryRef(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}

	category, err := s.categories.FindByID(ctx, ref)
	if err == nil {
		return category.ID, nil
	}
	if !isNotFound(err) {
		return "", s.mapRepositoryError(err)
	}

	slug := domain.Slugify(ref)
	category, err = s.categories.FindBySlug(ctx, slug)
	if err == nil {
		return category.ID, nil
	}
	if !isNotFound(err) {
		return "", s.mapRepositoryError(err)
	}

	category = Category{
		ID:   categoryIDPrefix + s.newID(),
		Name: ref,
		Slug: slug,
	}
	if err := s.categories.Insert(ctx, category); err != nil {
		return "", s.mapRepositoryError(err)
	}
	return category.ID, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}

	return err
}
