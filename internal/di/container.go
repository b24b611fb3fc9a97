package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cotidiano/api/internal/invoice"
	"github.com/cotidiano/api/internal/platform/config"
	"github.com/cotidiano/api/internal/repositories"
	"github.com/cotidiano/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog services.CatalogService
	Offers  services.OfferService
	Orders  services.OrderService
	Users   services.UserService
	System  services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerOption customises optional collaborators such as event publishing
// and invoice delivery, which only exist in full production wiring.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	events   services.OrderEventPublisher
	invoices services.InvoiceMailer
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// WithOrderEvents routes order lifecycle events through the given publisher.
func WithOrderEvents(publisher services.OrderEventPublisher) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.events = publisher
	}
}

// WithInvoiceMailer enables invoice delivery after an order is marked paid.
func WithInvoiceMailer(mailer services.InvoiceMailer) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.invoices = mailer
	}
}

// WithServiceLogger forwards service-level structured events to the given sink.
func WithServiceLogger(logger func(ctx context.Context, event string, fields map[string]any)) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.logger = logger
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	var cc containerConfig
	for _, opt := range opts {
		opt(&cc)
	}

	svc, err := buildServices(cfg, reg, cc)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, cc containerConfig) (Services, error) {
	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Orders:     reg.Orders(),
		Clock:      time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	offerSvc, err := services.NewOfferService(services.OfferServiceDeps{
		Offers:     reg.Offers(),
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Clock:      time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build offer service: %w", err)
	}
	svc.Offers = offerSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users: reg.Users(),
		Clock: time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Products:      reg.Products(),
		Users:         reg.Users(),
		Counters:      reg.Counters(),
		UnitOfWork:    reg,
		Clock:         time.Now,
		Events:        cc.events,
		Invoices:      cc.invoices,
		RenderInvoice: invoice.Render,
		NumberPrefix:  cfg.Orders.NumberPrefix,
		Logger:        cc.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		Health:   reg.Health(),
		Users:    reg.Users(),
		Products: reg.Products(),
		Orders:   reg.Orders(),
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}
