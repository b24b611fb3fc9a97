package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cotidiano/api/internal/di"
	"github.com/cotidiano/api/internal/handlers"
	"github.com/cotidiano/api/internal/platform/auth"
	"github.com/cotidiano/api/internal/platform/config"
	pfirestore "github.com/cotidiano/api/internal/platform/firestore"
	"github.com/cotidiano/api/internal/platform/idempotency"
	"github.com/cotidiano/api/internal/platform/jobs"
	"github.com/cotidiano/api/internal/platform/mail"
	"github.com/cotidiano/api/internal/platform/observability"
	"github.com/cotidiano/api/internal/platform/secrets"
	platformstorage "github.com/cotidiano/api/internal/platform/storage"
	"github.com/cotidiano/api/internal/repositories"
	firestoreRepo "github.com/cotidiano/api/internal/repositories/firestore"
	"github.com/cotidiano/api/internal/scraper"
	"github.com/cotidiano/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	uploader, err := platformstorage.NewUploader(storageClient, cfg.Storage.AssetsBucket)
	if err != nil {
		logger.Fatal("failed to initialise asset uploader", zap.Error(err))
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	orderEventsTopic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
	defer orderEventsTopic.Stop()

	publisher, err := jobs.NewPubSubOrderEventPublisher(orderEventsTopic)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}
	dispatcher, err := services.NewAsyncEventDispatcher(services.AsyncEventDispatcherDeps{
		Publisher: publisher,
		Logger:    zapEventLogger(logger.Named("events")),
	})
	if err != nil {
		logger.Fatal("failed to initialise event dispatcher", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, firestoreRepo.WithHealthChecks(
		extraHealthChecks(orderEventsTopic, storageClient, cfg, fetcher)...,
	))
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	containerOpts := []di.ContainerOption{
		di.WithOrderEvents(dispatcher),
		di.WithServiceLogger(zapEventLogger(logger.Named("orders"))),
	}
	if cfg.Features.EnableInvoiceMail && cfg.SMTP.Enabled() {
		smtpMailer, err := mail.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			logger.Fatal("failed to initialise smtp mailer", zap.Error(err))
		}
		invoiceMailer, err := mail.NewInvoiceMailer(smtpMailer)
		if err != nil {
			logger.Fatal("failed to initialise invoice mailer", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithInvoiceMailer(invoiceMailer))
	} else {
		logger.Info("invoice mail disabled", zap.Bool("smtpConfigured", cfg.SMTP.Enabled()))
	}

	container, err := di.NewContainer(cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	tokens, err := auth.NewTokenManager(cfg.Auth.TokenSecret,
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
		auth.WithIssuer(cfg.Auth.Issuer),
	)
	if err != nil {
		logger.Fatal("failed to initialise token manager", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(tokens)

	var comparer handlers.PriceComparer
	if cfg.Features.EnableScraper {
		scraperOpts := []scraper.Option{
			scraper.WithClient(&http.Client{Timeout: cfg.Scraper.Timeout}),
		}
		if strings.TrimSpace(cfg.Scraper.BaseURL) != "" {
			scraperOpts = append(scraperOpts, scraper.WithSourceURL(cfg.Scraper.BaseURL))
		}
		comparer = scraper.NewPriceComparer(scraperOpts...)
	}

	publicHandlers := handlers.NewPublicHandlers(container.Services.Catalog, container.Services.Offers, comparer)
	authHandlers := handlers.NewAuthHandlers(authenticator, container.Services.Users, tokens,
		handlers.WithLoginRateLimit(cfg.RateLimits.AuthenticatedPerMinute, time.Minute),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders, container.Services.Users)
	adminHandlers := handlers.NewAdminHandlers(handlers.AdminHandlersDeps{
		Authenticator: authenticator,
		Catalog:       container.Services.Catalog,
		Offers:        container.Services.Offers,
		Orders:        container.Services.Orders,
		Users:         container.Services.Users,
		System:        container.Services.System,
		Uploader:      uploader,
		PublicBaseURL: publicAssetBaseURL(cfg),
	})
	healthHandlers := handlers.NewHealthHandlers(container.Services.System)

	checkoutDedup := idempotency.Middleware(
		idempotency.NewFirestoreStore(firestoreClient, idempotency.WithCollection(cfg.Idempotency.Collection)),
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(publicHandlers.Routes),
		handlers.WithAuthRoutes(authHandlers.AuthRoutes),
		handlers.WithAccountRoutes(authHandlers.AccountRoutes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithOrderMiddlewares(checkoutDedup),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("cotidiano api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := dispatcher.Close(); err != nil {
		logger.Warn("event dispatcher close error", zap.Error(err))
	}
}

// zapEventLogger adapts the service-layer event callback to structured logging.
func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}

// extraHealthChecks probes the dependencies the registry itself does not own:
// the order events topic, the asset bucket, and Secret Manager reachability.
func extraHealthChecks(topic *pubsub.Topic, storageClient *cloudstorage.Client, cfg config.Config, fetcher *secrets.Fetcher) []repositories.DependencyCheck {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				exists, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", t.ID())
				}
				return nil
			},
		})
	}
	if storageClient != nil && strings.TrimSpace(cfg.Storage.AssetsBucket) != "" {
		bucket := storageClient.Bucket(cfg.Storage.AssetsBucket)
		checks = append(checks, repositories.DependencyCheck{
			Name:    "storage",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				_, err := bucket.Attrs(ctx)
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return checks
}

// publicAssetBaseURL builds the browser-facing prefix for uploaded objects.
func publicAssetBaseURL(cfg config.Config) string {
	bucket := strings.TrimSpace(cfg.Storage.AssetsBucket)
	if bucket == "" {
		return ""
	}
	return "https://storage.googleapis.com/" + bucket
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := secretProjectMapFromEnv(env); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secret-backed config fields the process cannot
// start without. SMTP is optional, so its password is only required when a
// reference is actually configured.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Auth.TokenSecret"}
	if env != nil && strings.TrimSpace(env["API_SMTP_PASSWORD"]) != "" {
		required = append(required, "SMTP.Password")
	}
	return required
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}
