package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/cotidiano/api/internal/domain"
	pfirestore "github.com/cotidiano/api/internal/platform/firestore"
	"github.com/cotidiano/api/internal/repositories"
)

const categoryCollection = "categories"

type categoryDocument struct {
	Name        string `firestore:"name"`
	Slug        string `firestore:"slug"`
	Description string `firestore:"description,omitempty"`
	ParentID    string `firestore:"parentId,omitempty"`
}

// CategoryRepository implements repositories.CategoryRepository backed by Firestore.
type CategoryRepository struct {
	base *pfirestore.BaseRepository[categoryDocument]
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoryCollection, nil, nil)
	return &CategoryRepository{base: base}, nil
}

func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	if err := requireID(category.ID, "category id"); err != nil {
		return err
	}
	_, err := r.base.Create(ctx, category.ID, fromDomainCategory(category))
	return err
}

func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	if err := requireID(category.ID, "category id"); err != nil {
		return err
	}
	_, err := r.base.Set(ctx, category.ID, fromDomainCategory(category))
	return err
}

func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if err := requireID(categoryID, "category id"); err != nil {
		return err
	}
	return r.base.Delete(ctx, categoryID)
}

func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if err := requireID(categoryID, "category id"); err != nil {
		return domain.Category{}, err
	}
	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return toDomainCategory(doc), nil
}

func (r *CategoryRepository) FindBySlug(ctx context.Context, slug string) (domain.Category, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return domain.Category{}, pfirestore.WrapError("categories.findbyslug", status.Error(codes.NotFound, "category slug is empty"))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) == 0 {
		return domain.Category{}, pfirestore.WrapError("categories.findbyslug", status.Errorf(codes.NotFound, "category %s not found", trimmed))
	}
	return toDomainCategory(docs[0]), nil
}

// List returns every category ordered by name. The catalog is small enough
// that paging is not worth the composite index.
func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}

	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, toDomainCategory(doc))
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}

func fromDomainCategory(category domain.Category) categoryDocument {
	return categoryDocument{
		Name:        strings.TrimSpace(category.Name),
		Slug:        strings.TrimSpace(category.Slug),
		Description: category.Description,
		ParentID:    strings.TrimSpace(category.ParentID),
	}
}

func toDomainCategory(doc pfirestore.Document[categoryDocument]) domain.Category {
	return domain.Category{
		ID:          doc.ID,
		Name:        doc.Data.Name,
		Slug:        doc.Data.Slug,
		Description: doc.Data.Description,
		ParentID:    doc.Data.ParentID,
	}
}
