package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	webhookcontrollers "github.com/angelmondragon/luggagedeposit-backend/api/controllers/webhooks"
	"github.com/angelmondragon/luggagedeposit-backend/api/routes"
	"github.com/angelmondragon/luggagedeposit-backend/internal/archive"
	"github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	"github.com/angelmondragon/luggagedeposit-backend/internal/checkin"
	"github.com/angelmondragon/luggagedeposit-backend/internal/reports"
	stripewebhook "github.com/angelmondragon/luggagedeposit-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/metrics"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/migrate"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/redis"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/stripe"
)

const (
	serviceName           = "api"
	stripeIdempotencyTTL  = 7 * 24 * time.Hour
	stripeIdempotencyName = "stripe-webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceName
	logg := logger.FromConfig(serviceName, cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return multierr.Append(fmt.Errorf("dev migrations: %w", err), dbClient.Close())
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return multierr.Append(fmt.Errorf("bootstrap redis: %w", err), dbClient.Close())
	}

	handler, err := buildRouter(ctx, cfg, logg, dbClient, redisClient)
	if err != nil {
		return multierr.Combine(err, redisClient.Close(), dbClient.Close())
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        server.Addr,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting api server")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), cfg.Service.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = multierr.Combine(group.Wait(), redisClient.Close(), dbClient.Close())
	if err != nil {
		return err
	}
	logg.Info(ctx, "api server shut down gracefully")
	return nil
}

func buildRouter(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (http.Handler, error) {
	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	currency := enums.Currency(cfg.Booking.DefaultCurrency)

	bookingRepo := bookings.NewRepository(dbClient.DB())
	archiveRepo := archive.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	migrator, err := archive.NewMigrator(archive.MigratorParams{
		Active:    bookingRepo,
		Archive:   archiveRepo,
		Tx:        dbClient,
		Outbox:    outboxService,
		Logger:    logg,
		Metrics:   bookingMetrics,
		BatchSize: cfg.Booking.ArchiveBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("archive migrator: %w", err)
	}
	bookingService, err := bookings.NewService(bookings.ServiceParams{
		Repo:            bookingRepo,
		Tx:              dbClient,
		Outbox:          outboxService,
		Archiver:        migrator,
		Archive:         archiveRepo,
		Logger:          logg,
		Metrics:         bookingMetrics,
		Location:        cfg.Booking.Location(),
		DefaultCurrency: currency,
	})
	if err != nil {
		return nil, fmt.Errorf("booking service: %w", err)
	}
	archiveService, err := archive.NewService(archiveRepo)
	if err != nil {
		return nil, fmt.Errorf("archive service: %w", err)
	}
	checkinService, err := checkin.NewService(checkin.ServiceParams{
		Bookings: bookingRepo,
		Service:  bookingService,
		Config:   cfg.CheckIn,
		Logger:   logg,
		Metrics:  bookingMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("check-in service: %w", err)
	}
	reportService, err := reports.NewService(reports.NewRepository(dbClient.DB()), currency, cfg.Booking.Location(), nil)
	if err != nil {
		return nil, fmt.Errorf("report service: %w", err)
	}

	var (
		stripeVerifier routes.StripeVerifier
		webhookSvc     webhookcontrollers.StripeWebhookService
		webhookGuard   routes.StripeGuard
	)
	if cfg.Stripe.APIKey == "" {
		logg.Warn(ctx, "stripe api key not set, payment webhook disabled")
	} else {
		stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		svc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			Bookings: bookingService,
			CheckIn:  cfg.CheckIn,
			Logger:   logg,
		})
		if err != nil {
			return nil, fmt.Errorf("stripe webhook service: %w", err)
		}
		guard, err := idempotency.New(redisClient, stripeIdempotencyName, stripeIdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("stripe idempotency guard: %w", err)
		}
		stripeVerifier, webhookSvc, webhookGuard = stripeClient, svc, guard
	}

	return routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		prometheus.DefaultGatherer,
		metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		bookingService,
		archiveService,
		migrator,
		checkinService,
		reportService,
		stripeVerifier,
		webhookSvc,
		webhookGuard,
	), nil
}
