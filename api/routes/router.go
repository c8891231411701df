package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gallotrack-backend/api/controllers"
	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/internal/auth"
	"github.com/angelmondragon/gallotrack-backend/pkg/config"
	"github.com/angelmondragon/gallotrack-backend/pkg/db"
	"github.com/angelmondragon/gallotrack-backend/pkg/enums"
	"github.com/angelmondragon/gallotrack-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/gallotrack-backend/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs: rate limiting,
// idempotency replay and readiness.
type Store interface {
	pkgredis.IdempotencyStore
	pkgredis.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Cocks groups the pedigree engine operations exposed over HTTP.
type Cocks interface {
	controllers.CockEngine
	controllers.PedigreeReader
	controllers.CockMediaEngine
}

// Payments is the coordinator surface used by owners, admins and the
// processor callback.
type Payments interface {
	controllers.PaymentCoordinator
	controllers.WebhookIngester
}

// Services bundles the collaborators mounted by NewRouter.
type Services struct {
	DB    db.Pinger
	Redis Store

	Auth          auth.Service
	Register      auth.RegisterService
	AdminRegister auth.AdminRegisterService
	Accounts      controllers.AccountService

	Cocks       Cocks
	Records     controllers.RecordService
	Marketplace controllers.MarketplaceService

	Plans    controllers.PlanCatalog
	Quota    controllers.QuotaReader
	Payments Payments

	Devices     controllers.DeviceRegistry
	Broadcaster controllers.Broadcaster
	Storage     controllers.StorageSwitcher

	// Metrics exposes /metrics when set.
	Metrics http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	limits := cfg.AuthRateLimit
	login := func(surface string) middleware.Throttle {
		return middleware.Throttle{Surface: surface, Window: limits.LoginWindow, PerAddr: limits.LoginIPLimit, PerAccount: limits.LoginEmailLimit}
	}
	signup := func(surface string) middleware.Throttle {
		return middleware.Throttle{Surface: surface, Window: limits.RegisterWindow, PerAddr: limits.RegisterIPLimit, PerAccount: limits.RegisterEmailLimit}
	}
	verifyCode := middleware.Throttle{Surface: "verify", Window: limits.VerifyWindow, PerAddr: limits.RegisterIPLimit, PerAccount: limits.VerifyEmailLimit}

	var limiter interface {
		IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	}
	var idempotency pkgredis.IdempotencyStore
	if svc.Redis != nil {
		limiter = svc.Redis
		idempotency = svc.Redis
	}

	// payment keys are held for a week, other creates for a day
	once := middleware.Idempotent(idempotency, 24*time.Hour, logg)
	moneyOnce := middleware.Idempotent(idempotency, 7*24*time.Hour, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessChecks(svc)...))
	})
	if svc.Metrics != nil {
		r.Handle("/metrics", svc.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mercadopago", controllers.MercadoPagoWebhook(svc.Payments, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.ThrottleAuth(login("login"), limiter, logg)).Post("/login", controllers.AuthLogin(svc.Auth, logg))
		r.With(middleware.ThrottleAuth(signup("register"), limiter, logg)).Post("/register", controllers.AuthRegister(svc.Register, logg))
		r.With(middleware.ThrottleAuth(verifyCode, limiter, logg)).Post("/verify", controllers.AuthVerify(svc.Register, logg))
		r.With(middleware.ThrottleAuth(signup("resend"), limiter, logg)).Post("/resend", controllers.AuthResendCode(svc.Register, logg))
	})

	r.Route("/api/v1/admin/auth", func(r chi.Router) {
		if !cfg.App.IsProd() {
			r.Post("/register", controllers.AdminAuthRegister(svc.AdminRegister, svc.Auth, logg))
		}
		r.With(middleware.ThrottleAuth(login("admin_login"), limiter, logg)).Post("/login", controllers.AdminAuthLogin(svc.Auth, logg))
	})

	r.Get("/api/v1/plans", controllers.PlansList(svc.Plans, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/me", func(r chi.Router) {
			r.Get("/", controllers.AccountMe(svc.Accounts, logg))
			r.Patch("/notifications", controllers.AccountNotifications(svc.Accounts, logg))
			r.Delete("/", controllers.AccountDelete(svc.Accounts, logg))
		})

		r.Get("/quota", controllers.QuotaState(svc.Quota, logg))
		r.Get("/quota/check", controllers.QuotaCheck(svc.Quota, logg))
		r.Get("/subscription", controllers.SubscriptionCurrent(svc.Plans, logg))
		r.Get("/subscription/history", controllers.SubscriptionHistory(svc.Plans, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", controllers.PaymentListMine(svc.Payments, logg))
			r.With(moneyOnce).Post("/", controllers.PaymentSubmit(svc.Payments, logg))
		})

		r.Route("/devices", func(r chi.Router) {
			r.Post("/", controllers.DeviceRegister(svc.Devices, logg))
			r.Delete("/", controllers.DeviceUnregister(svc.Devices, logg))
		})

		r.Get("/cohorts/{cohortKey}", controllers.CohortMembers(svc.Cocks, logg))
		r.Get("/vaccines/upcoming", controllers.VaccinesUpcoming(svc.Records, logg))
		r.Get("/marketplace", controllers.MarketplaceBrowse(svc.Marketplace, logg))
		r.Get("/marketplace/{listingID}", controllers.MarketplaceGet(svc.Marketplace, logg))

		r.Route("/cocks", func(r chi.Router) {
			r.Get("/", controllers.CockList(svc.Cocks, logg))
			r.With(middleware.RequireVerified(logg), once).Post("/", controllers.CockCreate(svc.Cocks, logg))

			r.Route("/{cockID}", func(r chi.Router) {
				r.Get("/", controllers.CockGet(svc.Cocks, logg))
				r.Patch("/", controllers.CockUpdate(svc.Cocks, logg))
				r.Delete("/", controllers.CockDelete(svc.Cocks, logg))

				r.Get("/tree", controllers.CockTree(svc.Cocks, logg))
				r.Get("/descendants", controllers.CockDescendants(svc.Cocks, logg))
				r.Get("/ancestors", controllers.CockAncestors(svc.Cocks, logg))
				r.With(once).Post("/ancestors", controllers.CockExtendAncestry(svc.Cocks, logg))

				r.With(once).Post("/media/principal", controllers.CockAttachPrincipal(svc.Cocks, logg))
				r.With(once).Post("/media/auxiliary", controllers.CockAppendAuxiliary(svc.Cocks, logg))
				r.Delete("/media", controllers.CockDetachMedia(svc.Cocks, logg))

				r.Get("/trainings", controllers.TrainingList(svc.Records, logg))
				r.With(once).Post("/trainings", controllers.TrainingCreate(svc.Records, logg))
				r.Get("/fights", controllers.FightList(svc.Records, logg))
				r.With(once).Post("/fights", controllers.FightCreate(svc.Records, logg))
				r.Get("/fights/stats", controllers.FightStats(svc.Records, logg))
				r.Get("/vaccines", controllers.VaccineList(svc.Records, logg))
				r.With(once).Post("/vaccines", controllers.VaccineCreate(svc.Records, logg))
			})
		})

		r.Delete("/trainings/{recordID}", controllers.RecordDelete(svc.Records, enums.ResourceTrainings, logg))
		r.Delete("/fights/{recordID}", controllers.RecordDelete(svc.Records, enums.ResourceFights, logg))
		r.Delete("/vaccines/{recordID}", controllers.RecordDelete(svc.Records, enums.ResourceVaccines, logg))

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", controllers.ListingListMine(svc.Marketplace, logg))
			r.With(middleware.RequireVerified(logg), once).Post("/", controllers.ListingCreate(svc.Marketplace, logg))
			r.Patch("/{listingID}", controllers.ListingUpdate(svc.Marketplace, logg))
			r.Delete("/{listingID}", controllers.ListingDelete(svc.Marketplace, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))
			r.Get("/payments", controllers.AdminPaymentQueue(svc.Payments, logg))
			r.Post("/payments/{paymentID}/review", controllers.AdminPaymentReview(svc.Payments, logg))
			r.With(moneyOnce).Post("/payments/{paymentID}/verify", controllers.AdminPaymentVerify(svc.Payments, logg))
			r.With(once).Post("/notifications", controllers.AdminBroadcast(svc.Broadcaster, logg))
			r.Get("/storage", controllers.AdminStorageStatus(svc.Storage))
			r.Put("/storage", controllers.AdminStorageSwitch(svc.Storage, logg))
		})
	})

	return r
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func readinessChecks(svc Services) []controllers.ReadinessCheck {
	var checks []controllers.ReadinessCheck
	if svc.DB != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "database", Ping: svc.DB.Ping})
	}
	if svc.Redis != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Ping: svc.Redis.Ping})
	}
	return checks
}
