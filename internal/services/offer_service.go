package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/repositories"
)

const offerIDPrefix = "off_"

var (
	// ErrOfferInvalidInput signals the caller provided invalid data.
	ErrOfferInvalidInput = errors.New("offer: invalid input")
	// ErrOfferNotFound indicates the offer could not be located.
	ErrOfferNotFound = errors.New("offer: not found")
	// ErrOfferConflict indicates duplicate slugs or concurrent edits.
	ErrOfferConflict = errors.New("offer: conflict")
)

// OfferServiceDeps bundles collaborators required to construct the offer service.
type OfferServiceDeps struct {
	Offers      repositories.OfferRepository
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type offerService struct {
	offers     repositories.OfferRepository
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	clock      func() time.Time
	newID      func() string
}

// NewOfferService wires dependencies into a concrete OfferService implementation.
func NewOfferService(deps OfferServiceDeps) (OfferService, error) {
	if deps.Offers == nil {
		return nil, errors.New("offer service: offer repository is required")
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

	return &offerService{
		offers:     deps.Offers,
		products:   deps.Products,
		categories: deps.Categories,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (s *offerService) ResolveDiscount(ctx context.Context, product Product) (Discount, bool, error) {
	candidates, err := s.offers.ListByTarget(ctx, product.ID, product.CategoryID)
	if err != nil {
		return Discount{}, false, s.mapRepositoryError(err)
	}

	now := s.clock()
	best := bestOffer(candidates, now)
	if best == nil {
		return Discount{}, false, nil
	}

	return buildDiscount(*best, product.Price), true, nil
}

// bestOffer filters to in-window offers and picks the highest percentage.
// Ties keep the first candidate in input order.
func bestOffer(offers []domain.Offer, now time.Time) *domain.Offer {
	applicable := make([]domain.Offer, 0, len(offers))
	for _, offer := range offers {
		if offer.InWindow(now) {
			applicable = append(applicable, offer)
		}
	}
	if len(applicable) == 0 {
		return nil
	}
	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Percent.GreaterThan(applicable[j].Percent)
	})
	return &applicable[0]
}

func buildDiscount(offer domain.Offer, price decimal.Decimal) Discount {
	factor := decimal.NewFromInt(1).Sub(offer.Percent.Div(decimal.NewFromInt(100)))
	final := price.Mul(factor).Round(2)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return Discount{
		FinalPrice: final,
		Percent:    offer.Percent,
		OfferID:    offer.ID,
		OfferSlug:  offer.Slug,
		Label:      fmt.Sprintf("-%s%%", offer.Percent.String()),
	}
}

func (s *offerService) ListActiveOffers(ctx context.Context) ([]OfferListing, error) {
	offers, err := s.offers.List(ctx, OfferListFilter{ActiveOnly: true})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	now := s.clock()
	inWindow := make([]domain.Offer, 0, len(offers))
	for _, offer := range offers {
		if offer.InWindow(now) {
			inWindow = append(inWindow, offer)
		}
	}
	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].Percent.GreaterThan(inWindow[j].Percent)
	})

	listings := make([]OfferListing, 0, len(inWindow))
	for _, offer := range inWindow {
		listing := OfferListing{Offer: offer}
		if offer.ProductID != "" && s.products != nil {
			if product, err := s.products.FindByID(ctx, offer.ProductID); err == nil {
				listing.Product = &ProductSummary{
					ID:    product.ID,
					Slug:  product.Slug,
					Name:  product.Name,
					Price: product.Price,
				}
			} else if !isNotFound(err) {
				return nil, s.mapRepositoryError(err)
			}
		}
		if offer.CategoryID != "" && s.categories != nil {
			if category, err := s.categories.FindByID(ctx, offer.CategoryID); err == nil {
				listing.Category = &CategorySummary{
					ID:   category.ID,
					Slug: category.Slug,
					Name: category.Name,
				}
			} else if !isNotFound(err) {
				return nil, s.mapRepositoryError(err)
			}
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (s *offerService) ListOffers(ctx context.Context, filter OfferListFilter) ([]Offer, error) {
	offers, err := s.offers.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return offers, nil
}

func (s *offerService) CreateOffer(ctx context.Context, cmd CreateOfferCommand) (Offer, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Offer{}, fmt.Errorf("%w: name is required", ErrOfferInvalidInput)
	}
	if cmd.Percent.IsNegative() || cmd.Percent.GreaterThan(decimal.NewFromInt(100)) {
		return Offer{}, fmt.Errorf("%w: percent must be between 0 and 100", ErrOfferInvalidInput)
	}
	if cmd.StartsAt != nil && cmd.EndsAt != nil && cmd.EndsAt.Before(*cmd.StartsAt) {
		return Offer{}, fmt.Errorf("%w: window ends before it starts", ErrOfferInvalidInput)
	}

	now := s.clock()
	offer := Offer{
		ID:          offerIDPrefix + s.newID(),
		Slug:        domain.Slugify(name),
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		Percent:     cmd.Percent.Round(2),
		ProductID:   strings.TrimSpace(cmd.ProductID),
		CategoryID:  strings.TrimSpace(cmd.CategoryID),
		Active:      cmd.Active,
		StartsAt:    cmd.StartsAt,
		EndsAt:      cmd.EndsAt,
		CreatedAt:   now,
	}

	if err := s.offers.Insert(ctx, offer); err != nil {
		return Offer{}, s.mapRepositoryError(err)
	}
	return offer, nil
}

func (s *offerService) UpdateOffer(ctx context.Context, cmd UpdateOfferCommand) (Offer, error) {
	offerID := strings.TrimSpace(cmd.OfferID)
	if offerID == "" {
		return Offer{}, fmt.Errorf("%w: offer id is required", ErrOfferInvalidInput)
	}

	offer, err := s.offers.FindByID(ctx, offerID)
	if err != nil {
		return Offer{}, s.mapRepositoryError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Offer{}, fmt.Errorf("%w: name cannot be empty", ErrOfferInvalidInput)
		}
		offer.Name = name
		offer.Slug = domain.Slugify(name)
	}
	if cmd.Description != nil {
		offer.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Percent != nil {
		if cmd.Percent.IsNegative() || cmd.Percent.GreaterThan(decimal.NewFromInt(100)) {
			return Offer{}, fmt.Errorf("%w: percent must be between 0 and 100", ErrOfferInvalidInput)
		}
		offer.Percent = cmd.Percent.Round(2)
	}
	if cmd.ProductID != nil {
		offer.ProductID = strings.TrimSpace(*cmd.ProductID)
	}
	if cmd.CategoryID != nil {
		offer.CategoryID = strings.TrimSpace(*cmd.CategoryID)
	}
	if cmd.Active != nil {
		offer.Active = *cmd.Active
	}
	if cmd.ClearWindow {
		offer.StartsAt = nil
		offer.EndsAt = nil
	} else {
		if cmd.StartsAt != nil {
			offer.StartsAt = cmd.StartsAt
		}
		if cmd.EndsAt != nil {
			offer.EndsAt = cmd.EndsAt
		}
	}
	if offer.StartsAt != nil && offer.EndsAt != nil && offer.EndsAt.Before(*offer.StartsAt) {
		return Offer{}, fmt.Errorf("%w: window ends before it starts", ErrOfferInvalidInput)
	}

	if err := s.offers.Update(ctx, offer); err != nil {
		return Offer{}, s.mapRepositoryError(err)
	}
	return offer, nil
}

func (s *offerService) DeleteOffer(ctx context.Context, offerID string) error {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return fmt.Errorf("%w: offer id is required", ErrOfferInvalidInput)
	}
	if err := s.offers.Delete(ctx, offerID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *offerService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOfferNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOfferConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("offer: repository unavailable: %w", err)
		}
	}

	return err
}
