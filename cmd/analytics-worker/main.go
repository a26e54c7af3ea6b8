package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/router"
	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/worker"
	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/writer"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/bigquery"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/metrics"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/registry"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/pubsub"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/redis"
)

const serviceName = "analytics-worker"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

// run wires the booking event subscription into BigQuery. Clients are closed
// together once the subscription stops.
func run() (err error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceName
	logg := logger.FromConfig(serviceName, cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer func() { err = multierr.Append(err, pubsubClient.Close()) }()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bootstrap bigquery: %w", err)
	}
	defer func() { err = multierr.Append(err, bqClient.Close()) }()

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	dedupe, err := idempotency.New(redisClient, idempotency.ConsumerScope(worker.ConsumerName), cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}
	sink, err := writer.New(bqClient, writer.Config{
		RetryPolicy: writer.RetryPolicy{MaxAttempts: cfg.BigQuery.InsertMaxAttempts},
	})
	if err != nil {
		return fmt.Errorf("bigquery writer: %w", err)
	}
	handler, err := router.NewRouter(sink, registry.NewBookingDecoderRegistry(), logg)
	if err != nil {
		return fmt.Errorf("analytics router: %w", err)
	}
	service, err := worker.NewService(subscription, handler, dedupe, logg)
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "analytics worker ready")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error { return metrics.Serve(groupCtx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer) })
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
