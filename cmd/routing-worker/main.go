package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orderstack/fulfillment-core/internal/credit"
	"github.com/orderstack/fulfillment-core/internal/cron"
	"github.com/orderstack/fulfillment-core/internal/inventory"
	"github.com/orderstack/fulfillment-core/internal/orders"
	"github.com/orderstack/fulfillment-core/internal/routing"
	"github.com/orderstack/fulfillment-core/pkg/config"
	"github.com/orderstack/fulfillment-core/pkg/db"
	"github.com/orderstack/fulfillment-core/pkg/logger"
	"github.com/orderstack/fulfillment-core/pkg/metrics"
	"github.com/orderstack/fulfillment-core/pkg/migrate"
	"github.com/orderstack/fulfillment-core/pkg/outbox"
	"github.com/orderstack/fulfillment-core/pkg/redis"
)

const lockKeyFormat = "fc:routing-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "routing-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "routing-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
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

	registry := prometheus.DefaultRegisterer
	admissionMetrics := metrics.NewAdmissionMetrics(registry)
	jobMetrics := metrics.NewJobMetrics(registry)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	creditSvc, err := credit.NewService(credit.NewRepository(dbClient.DB()), dbClient, cfg.Credit, outboxSvc, admissionMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create credit service", err)
		os.Exit(1)
	}
	inventorySvc, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), outboxSvc, admissionMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}
	routingSvc, err := routing.NewService(routing.NewRepository(dbClient.DB()), dbClient, cfg.Routing, outboxSvc, admissionMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create routing service", err)
		os.Exit(1)
	}
	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, creditSvc, inventorySvc, routingSvc, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewRoutingExpiryJob(cron.RoutingExpiryJobParams{
		Logger:  logg,
		Routing: routingSvc,
		Orders:  ordersSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create routing expiry job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, retentionJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Routing.ExpirySweepEvery,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting routing worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "routing worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "routing worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
