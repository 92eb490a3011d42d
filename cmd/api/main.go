package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orderstack/fulfillment-core/api/controllers"
	"github.com/orderstack/fulfillment-core/api/routes"
	"github.com/orderstack/fulfillment-core/internal/credit"
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

	registry := prometheus.NewRegistry()
	admissionMetrics := metrics.NewAdmissionMetrics(registry)

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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Logger:    logg,
			Orders:    ordersSvc,
			Credit:    creditSvc,
			Inventory: inventorySvc,
			Routing:   routingSvc,
			Health: map[string]controllers.Pinger{
				"postgres": dbClient,
				"redis":    redisClient,
			},
			Metrics: registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
