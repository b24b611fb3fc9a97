package services

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	domain "github.com/cotidiano/api/internal/domain"
	"github.com/cotidiano/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string {
	switch {
	case e.notFound:
		return "stub: not found"
	case e.conflict:
		return "stub: conflict"
	case e.unavailable:
		return "stub: unavailable"
	}
	return "stub: error"
}

func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

var errStubNotFound = &stubRepoError{notFound: true}

type stubProductRepository struct {
	products  map[string]domain.Product
	insertErr error
	deleted   []string
	updated   []domain.Product
}

func newStubProductRepository(products ...domain.Product) *stubProductRepository {
	repo := &stubProductRepository{products: map[string]domain.Product{}}
	for _, product := range products {
		repo.products[product.ID] = product
	}
	return repo
}

func (r *stubProductRepository) Insert(_ context.Context, product domain.Product) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.products[product.ID] = product
	return nil
}

func (r *stubProductRepository) Update(_ context.Context, product domain.Product) error {
	if _, ok := r.products[product.ID]; !ok {
		return errStubNotFound
	}
	r.products[product.ID] = product
	r.updated = append(r.updated, product)
	return nil
}

func (r *stubProductRepository) Delete(_ context.Context, productID string) error {
	if _, ok := r.products[productID]; !ok {
		return errStubNotFound
	}
	delete(r.products, productID)
	r.deleted = append(r.deleted, productID)
	return nil
}

func (r *stubProductRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, errStubNotFound
	}
	return product, nil
}

func (r *stubProductRepository) FindBySlug(_ context.Context, slug string) (domain.Product, error) {
	for _, product := range r.products {
		if product.Slug == slug {
			return product, nil
		}
	}
	return domain.Product{}, errStubNotFound
}

func (r *stubProductRepository) List(_ context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(r.products))
	for _, product := range r.products {
		if filter.ActiveOnly && !product.Active {
			continue
		}
		if filter.CategoryID != "" && product.CategoryID != filter.CategoryID {
			continue
		}
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	if filter.Limit > 0 && len(products) > filter.Limit {
		products = products[:filter.Limit]
	}
	return products, nil
}

type stubCategoryRepository struct {
	categories map[string]domain.Category
	inserted   []domain.Category
}

func newStubCategoryRepository(categories ...domain.Category) *stubCategoryRepository {
	repo := &stubCategoryRepository{categories: map[string]domain.Category{}}
	for _, category := range categories {
		repo.categories[category.ID] = category
	}
	return repo
}

func (r *stubCategoryRepository) Insert(_ context.Context, category domain.Category) error {
	r.categories[category.ID] = category
	r.inserted = append(r.inserted, category)
	return nil
}

func (r *stubCategoryRepository) Update(_ context.Context, category domain.Category) error {
	if _, ok := r.categories[category.ID]; !ok {
		return errStubNotFound
	}
	r.categories[category.ID] = category
	return nil
}

func (r *stubCategoryRepository) Delete(_ context.Context, categoryID string) error {
	if _, ok := r.categories[categoryID]; !ok {
		return errStubNotFound
	}
	delete(r.categories, categoryID)
	return nil
}

func (r *stubCategoryRepository) FindByID(_ context.Context, categoryID string) (domain.Category, error) {
	category, ok := r.categories[categoryID]
	if !ok {
		return domain.Category{}, errStubNotFound
	}
	return category, nil
}

func (r *stubCategoryRepository) FindBySlug(_ context.Context, slug string) (domain.Category, error) {
	for _, category := range r.categories {
		if category.Slug == slug {
			return category, nil
		}
	}
	return domain.Category{}, errStubNotFound
}

func (r *stubCategoryRepository) List(_ context.Context) ([]domain.Category, error) {
	categories := make([]domain.Category, 0, len(r.categories))
	for _, category := range r.categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories, nil
}

type stubOfferRepository struct {
	offers   []domain.Offer
	listErr  error
	inserted []domain.Offer
	updated  []domain.Offer
	deleted  []string
}

func (r *stubOfferRepository) Insert(_ context.Context, offer domain.Offer) error {
	r.offers = append(r.offers, offer)
	r.inserted = append(r.inserted, offer)
	return nil
}

func (r *stubOfferRepository) Update(_ context.Context, offer domain.Offer) error {
	for i := range r.offers {
		if r.offers[i].ID == offer.ID {
			r.offers[i] = offer
			r.updated = append(r.updated, offer)
			return nil
		}
	}
	return errStubNotFound
}

func (r *stubOfferRepository) Delete(_ context.Context, offerID string) error {
	for i := range r.offers {
		if r.offers[i].ID == offerID {
			r.offers = append(r.offers[:i], r.offers[i+1:]...)
			r.deleted = append(r.deleted, offerID)
			return nil
		}
	}
	return errStubNotFound
}

func (r *stubOfferRepository) FindByID(_ context.Context, offerID string) (domain.Offer, error) {
	for _, offer := range r.offers {
		if offer.ID == offerID {
			return offer, nil
		}
	}
	return domain.Offer{}, errStubNotFound
}

func (r *stubOfferRepository) ListByTarget(_ context.Context, productID, categoryID string) ([]domain.Offer, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	matched := make([]domain.Offer, 0, len(r.offers))
	for _, offer := range r.offers {
		if !offer.Active {
			continue
		}
		if (offer.ProductID != "" && offer.ProductID == productID) ||
			(offer.CategoryID != "" && categoryID != "" && offer.CategoryID == categoryID) {
			matched = append(matched, offer)
		}
	}
	return matched, nil
}

func (r *stubOfferRepository) List(_ context.Context, filter repositories.OfferListFilter) ([]domain.Offer, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	offers := make([]domain.Offer, 0, len(r.offers))
	for _, offer := range r.offers {
		if filter.ActiveOnly && !offer.Active {
			continue
		}
		offers = append(offers, offer)
	}
	if filter.Limit > 0 && len(offers) > filter.Limit {
		offers = offers[:filter.Limit]
	}
	return offers, nil
}

type stubOrderRepository struct {
	orders            map[string]domain.Order
	insertErr         error
	existsWithProduct bool
}

func newStubOrderRepository(orders ...domain.Order) *stubOrderRepository {
	repo := &stubOrderRepository{orders: map[string]domain.Order{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *stubOrderRepository) Insert(_ context.Context, order domain.Order) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepository) Update(_ context.Context, order domain.Order) error {
	if _, ok := r.orders[order.ID]; !ok {
		return errStubNotFound
	}
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, errStubNotFound
	}
	return order, nil
}

func (r *stubOrderRepository) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, order.Status) {
			continue
		}
		if filter.CreatedAfter != nil && order.CreatedAt.Before(*filter.CreatedAfter) {
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func (r *stubOrderRepository) ExistsWithProduct(_ context.Context, productID string) (bool, error) {
	if r.existsWithProduct {
		return true, nil
	}
	for _, order := range r.orders {
		for _, item := range order.Items {
			if item.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func containsStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

type stubUserRepository struct {
	users map[string]domain.User
}

func newStubUserRepository(users ...domain.User) *stubUserRepository {
	repo := &stubUserRepository{users: map[string]domain.User{}}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *stubUserRepository) Insert(_ context.Context, user domain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *stubUserRepository) Update(_ context.Context, user domain.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return errStubNotFound
	}
	r.users[user.ID] = user
	return nil
}

func (r *stubUserRepository) FindByID(_ context.Context, userID string) (domain.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return domain.User{}, errStubNotFound
	}
	return user, nil
}

func (r *stubUserRepository) FindByEmail(_ context.Context, email string) (domain.User, error) {
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return domain.User{}, errStubNotFound
}

func (r *stubUserRepository) List(_ context.Context, filter repositories.UserListFilter) ([]domain.User, error) {
	users := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		if filter.PendingOnly && user.Active {
			continue
		}
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	if filter.Limit > 0 && len(users) > filter.Limit {
		users = users[:filter.Limit]
	}
	return users, nil
}

type stubCounterRepository struct {
	value int64
}

func (r *stubCounterRepository) Next(_ context.Context, _ string, step int64) (int64, error) {
	if step <= 0 {
		step = 1
	}
	r.value += step
	return r.value, nil
}

func (r *stubCounterRepository) Configure(_ context.Context, _ string, _ repositories.CounterConfig) error {
	return nil
}

// snapshotUnitOfWork restores the order repository to its pre-transaction
// state when the function fails, imitating a rollback.
type snapshotUnitOfWork struct {
	orders *stubOrderRepository
	calls  int
}

func (u *snapshotUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	u.calls++
	before := maps.Clone(u.orders.orders)
	if err := fn(ctx); err != nil {
		u.orders.orders = before
		return err
	}
	return nil
}

type stubEventPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *stubEventPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *stubEventPublisher) published() []OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]OrderEvent(nil), p.events...)
}

type sentInvoice struct {
	order Order
	pdf   []byte
}

type stubInvoiceMailer struct {
	sent chan sentInvoice
	err  error
}

func newStubInvoiceMailer() *stubInvoiceMailer {
	return &stubInvoiceMailer{sent: make(chan sentInvoice, 4)}
}

func (m *stubInvoiceMailer) SendInvoice(_ context.Context, order Order, pdf []byte) error {
	if m.err != nil {
		return m.err
	}
	m.sent <- sentInvoice{order: order, pdf: pdf}
	return nil
}

func valuePtr[T any](v T) *T {
	return &v
}

type stubHasher struct{}

func (stubHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (stubHasher) Compare(hash string, password string) error {
	if hash != "hashed:"+password {
		return fmt.Errorf("mismatch")
	}
	return nil
}
