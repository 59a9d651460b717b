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

	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/internal/consumers/qualifying"
	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/db"
	"github.com/angelmondragon/affiliate-ledger/pkg/instance"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/metrics"
	"github.com/angelmondragon/affiliate-ledger/pkg/migrate"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox/idempotency"
	"github.com/angelmondragon/affiliate-ledger/pkg/pubsub"
	"github.com/angelmondragon/affiliate-ledger/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.QualifyingSubscription,
		"instance":     instance.ID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg, cfg.PubSub.QualifyingSubscription)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	provider, err := settings.NewProvider(redisClient, cfg.Ledger, logg)
	requireResource(ctx, logg, "ledger settings", err)

	affiliateRepo := affiliates.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:          dbClient,
		Commissions: ledger.NewRepository(dbClient.DB()),
		Balances:    ledger.NewBalanceRepository(dbClient.DB()),
		Affiliates:  affiliateRepo,
		Recruitment: ledger.NewRecruitmentRepository(dbClient.DB()),
		Outbox:      outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:     metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
	})
	requireResource(ctx, logg, "ledger service", err)

	dedupe, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	qualifyingConsumer, err := qualifying.NewConsumer(qualifying.ConsumerParams{
		Ledger:       ledgerService,
		Affiliates:   affiliateRepo,
		Settings:     provider,
		Idempotency:  dedupe,
		Subscription: pubsubClient.QualifyingSubscription(),
		Logger:       logg,
	})
	requireResource(ctx, logg, "qualifying consumer", err)

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		PubSub:     pubsubClient,
		Qualifying: qualifyingConsumer,
	})
	requireResource(ctx, logg, "worker service", err)

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
