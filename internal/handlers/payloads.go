package handlers

import (
	"context"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/services"
)

// Payload shapes mirror the JSON contract the storefront frontend consumes.
// Monetary values serialise as JSON numbers.

type userPayload struct {
	MongoID   string             `json:"_id"`
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	Role      string             `json:"role"`
	Active    bool               `json:"active"`
	Profile   userProfilePayload `json:"profile"`
	Shipping  shippingPayload    `json:"shipping"`
	CreatedAt string             `json:"createdAt"`
}

type userProfilePayload struct {
	Phone  string  `json:"phone"`
	Avatar *string `json:"avatar"`
}

type shippingPayload struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Phone   string `json:"phone"`
}

type categoryPayload struct {
	MongoID string `json:"_id"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
}

type discountPayload struct {
	Percent   float64 `json:"percent"`
	Label     string  `json:"label"`
	OfferID   string  `json:"offerId"`
	OfferSlug string  `json:"offerSlug"`
}

type productPayload struct {
	MongoID       string           `json:"_id"`
	ID            string           `json:"id"`
	Slug          string           `json:"slug"`
	Name          string           `json:"name"`
	Price         float64          `json:"price"`
	PriceOriginal float64          `json:"priceOriginal"`
	Discount      *discountPayload `json:"discount"`
	Description   string           `json:"description"`
	Images        []string         `json:"images"`
	Category      *categoryPayload `json:"category"`
	Stock         int              `json:"stock"`
	Active        bool             `json:"active"`
	CreatedAt     string           `json:"createdAt"`
}

type orderItemPayload struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Qty       int     `json:"qty"`
	Subtotal  float64 `json:"subtotal"`
}

type orderTotalsPayload struct {
	Items  int     `json:"items"`
	Amount float64 `json:"amount"`
}

type orderPayload struct {
	MongoID     string             `json:"_id"`
	ID          string             `json:"id"`
	Number      string             `json:"number"`
	User        *userPayload       `json:"user"`
	Items       []orderItemPayload `json:"items"`
	Totals      orderTotalsPayload `json:"totals"`
	Status      string             `json:"status"`
	StatusLabel string             `json:"status_label"`
	Shipping    shippingPayload    `json:"shipping"`
	CreatedAt   string             `json:"createdAt"`
}

type offerTargetPayload struct {
	ID    string   `json:"id"`
	Slug  string   `json:"slug"`
	Name  string   `json:"name"`
	Price *float64 `json:"price,omitempty"`
}

type offerPayload struct {
	ID          string              `json:"id"`
	Slug        string              `json:"slug"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Percent     float64             `json:"percent"`
	Active      bool                `json:"active"`
	Product     *offerTargetPayload `json:"product"`
	Category    *offerTargetPayload `json:"category"`
	Starts      *string             `json:"starts"`
	Ends        *string             `json:"ends"`
}

func buildUserPayload(user domain.User) userPayload {
	var avatar *string
	if user.AvatarPath != "" {
		path := user.AvatarPath
		avatar = &path
	}
	return userPayload{
		MongoID: user.ID,
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Role:    string(user.Role),
		Active:  user.Active,
		Profile: userProfilePayload{
			Phone:  user.Phone,
			Avatar: avatar,
		},
		Shipping: shippingPayload{
			Name:    user.Name,
			Address: user.Address,
			City:    user.City,
			Zip:     user.PostalCode,
			Phone:   user.Phone,
		},
		CreatedAt: formatTime(user.CreatedAt),
	}
}

func buildCategoryPayload(category domain.Category) *categoryPayload {
	if category.ID == "" {
		return nil
	}
	return &categoryPayload{
		MongoID: category.ID,
		ID:      category.ID,
		Name:    category.Name,
		Slug:    category.Slug,
	}
}

// buildProductPayload resolves the product's current discount so the listing
// price reflects it while priceOriginal keeps the list price.
func buildProductPayload(ctx context.Context, offers services.OfferService, categories map[string]domain.Category, product domain.Product) productPayload {
	payload := productPayload{
		MongoID:       product.ID,
		ID:            product.ID,
		Slug:          product.Slug,
		Name:          product.Name,
		Price:         product.Price.InexactFloat64(),
		PriceOriginal: product.Price.InexactFloat64(),
		Description:   product.Description,
		Images:        []string{},
		Stock:         product.Stock,
		Active:        product.Active,
		CreatedAt:     formatTime(product.CreatedAt),
	}
	if product.ImagePath != "" {
		payload.Images = append(payload.Images, product.ImagePath)
	}
	if categories != nil {
		if category, ok := categories[product.CategoryID]; ok {
			payload.Category = buildCategoryPayload(category)
		}
	}
	if offers != nil {
		if discount, ok, err := offers.ResolveDiscount(ctx, product); err == nil && ok {
			payload.Price = discount.FinalPrice.InexactFloat64()
			payload.Discount = &discountPayload{
				Percent:   discount.Percent.InexactFloat64(),
				Label:     discount.Label,
				OfferID:   discount.OfferID,
				OfferSlug: discount.OfferSlug,
			}
		}
	}
	return payload
}

func buildOrderPayload(order domain.Order, user *domain.User) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.UnitPrice.InexactFloat64(),
			Qty:       item.Quantity,
			Subtotal:  item.Subtotal().InexactFloat64(),
		})
	}

	payload := orderPayload{
		MongoID: order.ID,
		ID:      order.ID,
		Number:  order.Number,
		Items:   items,
		Totals: orderTotalsPayload{
			Items:  order.ItemCount(),
			Amount: order.Total.InexactFloat64(),
		},
		Status:      string(order.Status),
		StatusLabel: order.Status.Label(),
		Shipping: shippingPayload{
			Name:    order.Shipping.Name,
			Address: order.Shipping.Address,
			City:    order.Shipping.City,
			Zip:     order.Shipping.PostalCode,
			Phone:   order.Shipping.Phone,
		},
		CreatedAt: formatTime(order.CreatedAt),
	}
	if user != nil {
		built := buildUserPayload(*user)
		payload.User = &built
	}
	return payload
}

func buildOfferPayload(listing services.OfferListing) offerPayload {
	payload := offerPayload{
		ID:          listing.Offer.ID,
		Slug:        listing.Offer.Slug,
		Name:        listing.Offer.Name,
		Description: listing.Offer.Description,
		Percent:     listing.Offer.Percent.InexactFloat64(),
		Active:      listing.Offer.Active,
		Starts:      formatTimePtr(listing.Offer.StartsAt),
		Ends:        formatTimePtr(listing.Offer.EndsAt),
	}
	if listing.Product != nil {
		price := listing.Product.Price.InexactFloat64()
		payload.Product = &offerTargetPayload{
			ID:    listing.Product.ID,
			Slug:  listing.Product.Slug,
			Name:  listing.Product.Name,
			Price: &price,
		}
	}
	if listing.Category != nil {
		payload.Category = &offerTargetPayload{
			ID:   listing.Category.ID,
			Slug: listing.Category.Slug,
			Name: listing.Category.Name,
		}
	}
	return payload
}
