package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/cotidiano/api/internal/domain"
	pfirestore "github.com/cotidiano/api/internal/platform/firestore"
	"github.com/cotidiano/api/internal/repositories"
)

const productCollection = "products"

type productDocument struct {
	Slug        string    `firestore:"slug"`
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	Price       string    `firestore:"price"`
	CategoryID  string    `firestore:"categoryId,omitempty"`
	ImagePath   string    `firestore:"imagePath,omitempty"`
	Stock       int       `firestore:"stock"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if err := requireID(product.ID, "product id"); err != nil {
		return err
	}
	_, err := r.base.Create(ctx, product.ID, fromDomainProduct(product))
	return err
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if err := requireID(product.ID, "product id"); err != nil {
		return err
	}
	_, err := r.base.Set(ctx, product.ID, fromDomainProduct(product))
	return err
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if err := requireID(productID, "product id"); err != nil {
		return err
	}
	return r.base.Delete(ctx, productID)
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if err := requireID(productID, "product id"); err != nil {
		return domain.Product{}, err
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc)
}

func (r *ProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return domain.Product{}, pfirestore.WrapError("products.findbyslug", status.Error(codes.NotFound, "product slug is empty"))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.WrapError("products.findbyslug", status.Errorf(codes.NotFound, "product %s not found", trimmed))
	}
	return toDomainProduct(docs[0])
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.CategoryID != "" {
			q = q.Where("categoryId", "==", filter.CategoryID)
		}
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		if filter.Limit > 0 && filter.Search == "" {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product, err := toDomainProduct(doc)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func fromDomainProduct(product domain.Product) productDocument {
	return productDocument{
		Slug:        strings.TrimSpace(product.Slug),
		Name:        strings.TrimSpace(product.Name),
		Description: product.Description,
		Price:       product.Price.String(),
		CategoryID:  strings.TrimSpace(product.CategoryID),
		ImagePath:   strings.TrimSpace(product.ImagePath),
		Stock:       product.Stock,
		Active:      product.Active,
		CreatedAt:   product.CreatedAt.UTC(),
	}
}

func toDomainProduct(doc pfirestore.Document[productDocument]) (domain.Product, error) {
	price, err := parseStoredDecimal("products", doc.ID, "price", doc.Data.Price)
	if err != nil {
		return domain.Product{}, err
	}
	product := domain.Product{
		ID:          doc.ID,
		Slug:        doc.Data.Slug,
		Name:        doc.Data.Name,
		Description: doc.Data.Description,
		Price:       price,
		CategoryID:  doc.Data.CategoryID,
		ImagePath:   doc.Data.ImagePath,
		Stock:       doc.Data.Stock,
		Active:      doc.Data.Active,
		CreatedAt:   doc.Data.CreatedAt,
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = doc.CreateTime
	}
	return product, nil
}

// parseStoredDecimal converts the string representation used for monetary
// fields. Empty values decode to zero so partially migrated documents remain
// readable.
func parseStoredDecimal(collection, docID, field, raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, pfirestore.WrapError(collection+".decode", status.Errorf(codes.DataLoss, "document %s field %s: %v", docID, field, err))
	}
	return value, nil
}

func requireID(id, what string) error {
	if strings.TrimSpace(id) == "" {
		return pfirestore.WrapError("firestore", status.Errorf(codes.InvalidArgument, "%s is required", what))
	}
	return nil
}
