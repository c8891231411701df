package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gallotrack-backend/api/routes"
	"github.com/angelmondragon/gallotrack-backend/internal/auth"
	"github.com/angelmondragon/gallotrack-backend/internal/billing"
	"github.com/angelmondragon/gallotrack-backend/internal/marketplace"
	"github.com/angelmondragon/gallotrack-backend/internal/notifications"
	"github.com/angelmondragon/gallotrack-backend/internal/payments"
	"github.com/angelmondragon/gallotrack-backend/internal/pedigree"
	"github.com/angelmondragon/gallotrack-backend/internal/quota"
	"github.com/angelmondragon/gallotrack-backend/internal/records"
	"github.com/angelmondragon/gallotrack-backend/internal/users"
	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/db"
	"github.com/angelmondragon/gallotrack-backend/pkg/instance"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	"github.com/angelmondragon/gallotrack-backend/pkg/mercadopago"
	"github.com/angelmondragon/gallotrack-backend/pkg/metrics"
	"github.com/angelmondragon/gallotrack-backend/pkg/migrate"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox"
	"github.com/angelmondragon/gallotrack-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/gallotrack-backend/pkg/redis"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage/cloudinary"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage/gcs"
	"github.com/angelmondragon/gallotrack-backend/pkg/storage/imagekit"
)

// verificationTTL bounds how long an emailed confirmation code stays valid.
const verificationTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.Open(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	media, closeMedia, err := buildStorage(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap storage", err)
		os.Exit(1)
	}
	defer closeMedia()
	mediaLimits := storage.LimitsFromMB(cfg.Storage.MaxImageMB, cfg.Storage.MaxVideoMB)

	conn := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:              billing.NewRepository(conn),
		TransactionRunner: dbClient,
		Logger:            logg,
		Outbox:            events,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	quotaService, err := quota.NewService(quota.ServiceParams{
		Repo:          quota.NewRepository(conn),
		Subscriptions: billingService,
		Metrics:       metrics.NewQuotaMetrics(prometheus.DefaultRegisterer),
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create quota service", err)
		os.Exit(1)
	}

	engine, err := pedigree.NewEngine(pedigree.EngineParams{
		Repo:              pedigree.NewRepository(conn),
		TransactionRunner: dbClient,
		Quota:             quotaService,
		Media:             media,
		MediaLimits:       mediaLimits,
		RootFolder:        cfg.Storage.RootFolder,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pedigree engine", err)
		os.Exit(1)
	}

	recordService, err := records.NewService(records.ServiceParams{
		Repo:        records.NewRepository(conn),
		Quota:       quotaService,
		Media:       media,
		MediaLimits: mediaLimits,
		RootFolder:  cfg.Storage.RootFolder,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create records service", err)
		os.Exit(1)
	}

	marketplaceService, err := marketplace.NewService(marketplace.ServiceParams{
		Repo:              marketplace.NewRepository(conn),
		TransactionRunner: dbClient,
		Currency:          cfg.Payments.Currency,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create marketplace service", err)
		os.Exit(1)
	}

	webhookGuard, err := idempotency.NewManager(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}
	processor, err := mercadopago.New(cfg.MercadoPago)
	if err != nil {
		logg.Error(context.Background(), "failed to create mercadopago client", err)
		os.Exit(1)
	}
	paymentParams := payments.ServiceParams{
		Repo:              payments.NewRepository(conn),
		TransactionRunner: dbClient,
		Billing:           billingService,
		Outbox:            events,
		Idempotency:       webhookGuard,
		Receipts:          media,
		ReceiptLimits:     mediaLimits,
		RootFolder:        cfg.Storage.RootFolder,
		Payments:          cfg.Payments,
		WebhookSecret:     cfg.MercadoPago.WebhookSecret,
		Metrics:           metrics.NewPaymentMetrics(prometheus.DefaultRegisterer),
		Logger:            logg,
	}
	if processor.Available() {
		paymentParams.Processor = processor
	} else {
		logg.Warn(context.Background(), "mercadopago access token missing, processor webhooks disabled")
	}
	coordinator, err := payments.NewCoordinator(paymentParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment coordinator", err)
		os.Exit(1)
	}

	principals := users.NewRepository(conn)
	authService, err := auth.NewService(auth.ServiceParams{
		PrincipalRepo: principals,
		JWTConfig:     cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:              dbClient,
		Billing:         billingService,
		Codes:           redisClient,
		PasswordConfig:  cfg.Password,
		VerificationTTL: verificationTTL,
		Logger:          logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}
	adminRegisterService, err := auth.NewAdminRegisterService(auth.AdminRegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create admin register service", err)
		os.Exit(1)
	}
	accountService, err := auth.NewAccountService(principals, media, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create account service", err)
		os.Exit(1)
	}

	// the API only registers tokens; delivery happens in the notification worker
	deviceService, err := notifications.NewService(notifications.ServiceParams{
		Repo:   notifications.NewRepository(conn),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create device registry", err)
		os.Exit(1)
	}
	broadcaster, err := notifications.NewBroadcaster(dbClient, events, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create broadcaster", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"storage":  media.ActiveName(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Services{
			DB:            dbClient,
			Redis:         redisClient,
			Auth:          authService,
			Register:      registerService,
			AdminRegister: adminRegisterService,
			Accounts:      accountService,
			Cocks:         engine,
			Records:       recordService,
			Marketplace:   marketplaceService,
			Plans:         billingService,
			Quota:         quotaService,
			Payments:      coordinator,
			Devices:       deviceService,
			Broadcaster:   broadcaster,
			Storage:       media,
			Metrics:       routes.MetricsHandler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

// buildStorage registers every media adapter in fallback order. Adapters
// without credentials stay registered but unavailable.
func buildStorage(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*storage.Manager, func(), error) {
	cloud, err := cloudinary.New(cfg.Cloudinary, logg)
	if err != nil {
		return nil, nil, err
	}
	bucket, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return nil, nil, err
	}
	manager, err := storage.NewManager(ctx, cfg.Storage.Provider, logg,
		imagekit.New(cfg.ImageKit, logg),
		cloud,
		bucket,
	)
	if err != nil {
		_ = bucket.Close()
		return nil, nil, err
	}
	return manager, func() {
		if err := bucket.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs client", err)
		}
	}, nil
}
