package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/cotidiano/api/internal/domain"
	pfirestore "github.com/cotidiano/api/internal/platform/firestore"
	"github.com/cotidiano/api/internal/repositories"
)

const offerCollection = "offers"

type offerDocument struct {
	Slug        string     `firestore:"slug"`
	Name        string     `firestore:"name"`
	Description string     `firestore:"description,omitempty"`
	Percent     string     `firestore:"percent"`
	ProductID   string     `firestore:"productId,omitempty"`
	CategoryID  string     `firestore:"categoryId,omitempty"`
	Active      bool       `firestore:"active"`
	StartsAt    *time.Time `firestore:"startsAt,omitempty"`
	EndsAt      *time.Time `firestore:"endsAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
}

// OfferRepository implements repositories.OfferRepository backed by Firestore.
type OfferRepository struct {
	base *pfirestore.BaseRepository[offerDocument]
}

var _ repositories.OfferRepository = (*OfferRepository)(nil)

// NewOfferRepository constructs a Firestore-backed offer repository.
func NewOfferRepository(provider *pfirestore.Provider) (*OfferRepository, error) {
	if provider == nil {
		return nil, errors.New("offer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[offerDocument](provider, offerCollection, nil, nil)
	return &OfferRepository{base: base}, nil
}

func (r *OfferRepository) Insert(ctx context.Context, offer domain.Offer) error {
	if err := requireID(offer.ID, "offer id"); err != nil {
		return err
	}
	_, err := r.base.Create(ctx, offer.ID, fromDomainOffer(offer))
	return err
}

func (r *OfferRepository) Update(ctx context.Context, offer domain.Offer) error {
	if err := requireID(offer.ID, "offer id"); err != nil {
		return err
	}
	_, err := r.base.Set(ctx, offer.ID, fromDomainOffer(offer))
	return err
}

func (r *OfferRepository) Delete(ctx context.Context, offerID string) error {
	if err := requireID(offerID, "offer id"); err != nil {
		return err
	}
	return r.base.Delete(ctx, offerID)
}

func (r *OfferRepository) FindByID(ctx context.Context, offerID string) (domain.Offer, error) {
	if err := requireID(offerID, "offer id"); err != nil {
		return domain.Offer{}, err
	}
	doc, err := r.base.Get(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	return toDomainOffer(doc)
}

// ListByTarget merges the active offers pointing at the product with those
// pointing at its category. Firestore has no OR queries on different fields,
// so this issues one query per reference and de-duplicates by document ID.
func (r *OfferRepository) ListByTarget(ctx context.Context, productID, categoryID string) ([]domain.Offer, error) {
	seen := map[string]struct{}{}
	var offers []domain.Offer

	collect := func(field, value string) error {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where(field, "==", value).Where("active", "==", true)
		})
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if _, ok := seen[doc.ID]; ok {
				continue
			}
			seen[doc.ID] = struct{}{}
			offer, err := toDomainOffer(doc)
			if err != nil {
				return err
			}
			offers = append(offers, offer)
		}
		return nil
	}

	if err := collect("productId", productID); err != nil {
		return nil, err
	}
	if err := collect("categoryId", categoryID); err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *OfferRepository) List(ctx context.Context, filter repositories.OfferListFilter) ([]domain.Offer, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	offers := make([]domain.Offer, 0, len(docs))
	for _, doc := range docs {
		offer, err := toDomainOffer(doc)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func fromDomainOffer(offer domain.Offer) offerDocument {
	doc := offerDocument{
		Slug:        strings.TrimSpace(offer.Slug),
		Name:        strings.TrimSpace(offer.Name),
		Description: offer.Description,
		Percent:     offer.Percent.String(),
		ProductID:   strings.TrimSpace(offer.ProductID),
		CategoryID:  strings.TrimSpace(offer.CategoryID),
		Active:      offer.Active,
		CreatedAt:   offer.CreatedAt.UTC(),
	}
	if offer.StartsAt != nil {
		starts := offer.StartsAt.UTC()
		doc.StartsAt = &starts
	}
	if offer.EndsAt != nil {
		ends := offer.EndsAt.UTC()
		doc.EndsAt = &ends
	}
	return doc
}

func toDomainOffer(doc pfirestore.Document[offerDocument]) (domain.Offer, error) {
	percent, err := parseStoredDecimal("offers", doc.ID, "percent", doc.Data.Percent)
	if err != nil {
		return domain.Offer{}, err
	}
	offer := domain.Offer{
		ID:          doc.ID,
		Slug:        doc.Data.Slug,
		Name:        doc.Data.Name,
		Description: doc.Data.Description,
		Percent:     percent,
		ProductID:   doc.Data.ProductID,
		CategoryID:  doc.Data.CategoryID,
		Active:      doc.Data.Active,
		StartsAt:    doc.Data.StartsAt,
		EndsAt:      doc.Data.EndsAt,
		CreatedAt:   doc.Data.CreatedAt,
	}
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = doc.CreateTime
	}
	return offer, nil
}
