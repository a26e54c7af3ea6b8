package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/luggagedeposit-backend/api/controllers"
	archivecontrollers "github.com/angelmondragon/luggagedeposit-backend/api/controllers/archive"
	bookingcontrollers "github.com/angelmondragon/luggagedeposit-backend/api/controllers/bookings"
	checkincontrollers "github.com/angelmondragon/luggagedeposit-backend/api/controllers/checkin"
	reportcontrollers "github.com/angelmondragon/luggagedeposit-backend/api/controllers/reports"
	webhookcontrollers "github.com/angelmondragon/luggagedeposit-backend/api/controllers/webhooks"
	"github.com/angelmondragon/luggagedeposit-backend/api/middleware"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/luggagedeposit-backend/pkg/redis"
	"github.com/stripe/stripe-go/v84"
)

// Cache is the Redis surface the API uses for idempotency, rate limiting
// and readiness.
type Cache interface {
	pkgredis.ReplayStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// StripeVerifier checks Stripe-Signature headers.
type StripeVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

// StripeGuard deduplicates Stripe event ids.
type StripeGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	cache Cache,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	bookingService bookingcontrollers.Service,
	archiveService archivecontrollers.Reader,
	archiveMigrator archivecontrollers.Migrator,
	checkinService checkincontrollers.Service,
	reportService reportcontrollers.Service,
	stripeVerifier StripeVerifier,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeWebhookGuard StripeGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		idempotencyStore pkgredis.ReplayStore
		limiter          interface {
			FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
		}
		cachePinger controllers.Pinger
	)
	if cache != nil {
		idempotencyStore, limiter, cachePinger = cache, cache, cache
	}

	kioskPolicy := middleware.NewRateLimitPolicy(
		"checkin",
		cfg.CheckInRateLimit.Window,
		cfg.CheckInRateLimit.IPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": cachePinger,
		}, logg))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeVerifier, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1/checkin", func(r chi.Router) {
		r.Use(middleware.RateLimit(kioskPolicy, limiter, logg))
		r.Post("/", checkincontrollers.CheckIn(checkinService, logg))
		r.Post("/verify", checkincontrollers.Verify(checkinService, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.StaffRoleStaff, enums.StaffRoleAdmin))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/api/v1/bookings", func(r chi.Router) {
			r.Get("/", bookingcontrollers.List(bookingService, logg))
			r.Get("/lookup/{ref}", bookingcontrollers.Lookup(bookingService, logg))
			r.Get("/{ref}", bookingcontrollers.Detail(bookingService, logg))
			r.Post("/{ref}/transition", bookingcontrollers.Transition(bookingService, logg))
			r.Patch("/{ref}/notes", bookingcontrollers.UpdateNotes(bookingService, logg))
			r.Post("/{ref}/checkin-token", checkincontrollers.Reissue(checkinService, logg))
		})
		r.Route("/api/v1/archive", func(r chi.Router) {
			r.Get("/", archivecontrollers.List(archiveService, logg))
			r.Get("/{ref}", archivecontrollers.Detail(archiveService, logg))
		})
		r.Get("/api/v1/reports/summary", reportcontrollers.Summary(reportService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.StaffRoleAdmin))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Post("/archive/stale", archivecontrollers.ArchiveStale(archiveMigrator, logg))
		r.Post("/archive/{ref}", archivecontrollers.ArchiveOne(archiveMigrator, logg))
	})

	return r
}
