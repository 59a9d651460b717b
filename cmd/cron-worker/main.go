package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/internal/cron"
	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/db"
	"github.com/angelmondragon/affiliate-ledger/pkg/instance"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/metrics"
	"github.com/angelmondragon/affiliate-ledger/pkg/migrate"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
	"github.com/angelmondragon/affiliate-ledger/pkg/redis"
)

func main() {
	runOnce := flag.String("run", "", "run a single job by name and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	provider, err := settings.NewProvider(redisClient, cfg.Ledger, logg)
	requireResource(ctx, logg, "ledger settings", err)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:          dbClient,
		Commissions: ledger.NewRepository(dbClient.DB()),
		Balances:    ledger.NewBalanceRepository(dbClient.DB()),
		Affiliates:  affiliates.NewRepository(dbClient.DB()),
		Recruitment: ledger.NewRecruitmentRepository(dbClient.DB()),
		Outbox:      outbox.NewService(outboxRepo, logg),
		Metrics:     metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
	})
	requireResource(ctx, logg, "ledger service", err)

	registry, err := buildRegistry(cfg, logg, provider, ledgerService, outboxRepo)
	requireResource(ctx, logg, "job registry", err)

	lock, err := cron.NewRedisLock(redisClient, cfg.Cron.LockTTL)
	requireResource(ctx, logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	requireResource(ctx, logg, "cron service", err)

	if *runOnce != "" {
		runCtx := logg.WithField(ctx, "mode", "once")
		if err := service.RunNow(runCtx, *runOnce); err != nil {
			logg.Error(runCtx, "job run failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildRegistry registers the commission sweeps, the balance drift report and
// outbox cleanup on their configured schedules.
func buildRegistry(cfg *config.Config, logg *logger.Logger, provider *settings.Provider, ledgerService *ledger.Service, outboxRepo *outbox.Repository) (*cron.Registry, error) {
	sweepParams := cron.CommissionSweepJobParams{
		Logger:   logg,
		Settings: provider,
		Ledger:   ledgerService,
	}
	validation, err := cron.NewCommissionValidationJob(sweepParams)
	if err != nil {
		return nil, err
	}
	release, err := cron.NewCommissionReleaseJob(sweepParams)
	if err != nil {
		return nil, err
	}
	reconciliation, err := cron.NewBalanceReconciliationJob(cron.BalanceReconciliationJobParams{
		Logger:     logg,
		Reconciler: ledgerService,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	registry.Register(cfg.Cron.ValidationSchedule, validation)
	registry.Register(cfg.Cron.ReleaseSchedule, release)
	registry.Register(cfg.Cron.ReconciliationSchedule, reconciliation)
	registry.Register(cfg.Cron.OutboxRetentionSched, retention)
	return registry, nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
