package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/luggagedeposit-backend/internal/archive"
	"github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	"github.com/angelmondragon/luggagedeposit-backend/internal/cron"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/metrics"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/migrate"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/redis"
)

const (
	serviceName            = "cron-worker"
	outboxRetentionEvery   = 24 * time.Hour
	daysToDuration         = 24 * time.Hour
	scheduleCheckFrequency = time.Minute
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
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	schedule, err := buildSchedule(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Schedule:   schedule,
		Locker:     redisClient,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Tick:       scheduleCheckFrequency,
		LockPrefix: cfg.App.Env,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(ctx, "starting cron worker")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error { return metrics.Serve(groupCtx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer) })
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shut down gracefully")
	return nil
}

func buildSchedule(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Schedule, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())
	migrator, err := archive.NewMigrator(archive.MigratorParams{
		Active:    bookings.NewRepository(dbClient.DB()),
		Archive:   archive.NewRepository(dbClient.DB()),
		Tx:        dbClient,
		Outbox:    outbox.NewService(outboxRepo, logg),
		Logger:    logg,
		Metrics:   metrics.NewBookingMetrics(prometheus.DefaultRegisterer),
		BatchSize: cfg.Booking.ArchiveBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("archive migrator: %w", err)
	}

	stale, err := cron.NewArchiveStaleJob(cron.ArchiveJobParams{
		Logger:   logg,
		Archiver: migrator,
		Days:     cfg.Booking.ArchiveCutoffDays,
	})
	if err != nil {
		return nil, fmt.Errorf("archive stale job: %w", err)
	}
	cancelled, err := cron.NewCancelledRetentionJob(cron.ArchiveJobParams{
		Logger:   logg,
		Archiver: migrator,
		Days:     cfg.Booking.CancelledRetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("cancelled retention job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Events:       outboxRepo,
		DLQ:          outbox.NewDLQRepository(dbClient.DB()),
		Retention:    time.Duration(cfg.Booking.OutboxRetentionDays) * daysToDuration,
		DLQRetention: time.Duration(cfg.Booking.OutboxDLQRetentionDays) * daysToDuration,
		MinAttempts:  cfg.Booking.OutboxRetentionAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	schedule := cron.NewSchedule()
	err = multierr.Combine(
		schedule.Add(stale, cfg.Booking.CronInterval),
		schedule.Add(cancelled, cfg.Booking.CronInterval),
		schedule.Add(retention, outboxRetentionEvery),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule jobs: %w", err)
	}
	return schedule, nil
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		logg.Error(ctx, "close "+name, err)
	}
}
