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

	"github.com/angelmondragon/affiliate-ledger/api/routes"
	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/internal/withdrawals"
	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/db"
	"github.com/angelmondragon/affiliate-ledger/pkg/instance"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/metrics"
	"github.com/angelmondragon/affiliate-ledger/pkg/migrate"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
	"github.com/angelmondragon/affiliate-ledger/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

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
		"instance": instance.ID(),
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

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	affiliateRepo := affiliates.NewRepository(dbClient.DB())
	commissionRepo := ledger.NewRepository(dbClient.DB())
	balanceRepo := ledger.NewBalanceRepository(dbClient.DB())

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:          dbClient,
		Commissions: commissionRepo,
		Balances:    balanceRepo,
		Affiliates:  affiliateRepo,
		Recruitment: ledger.NewRecruitmentRepository(dbClient.DB()),
		Outbox:      emitter,
		Metrics:     ledgerMetrics,
		Logger:      logg,
	})
	requireResource(ctx, logg, "ledger service", err)

	withdrawalService, err := withdrawals.NewService(withdrawals.ServiceParams{
		DB:          dbClient,
		Withdrawals: withdrawals.NewRepository(dbClient.DB()),
		Commissions: commissionRepo,
		Balances:    balanceRepo,
		Affiliates:  affiliateRepo,
		Outbox:      emitter,
		Metrics:     ledgerMetrics,
		Logger:      logg,
	})
	requireResource(ctx, logg, "withdrawal service", err)

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, prometheus.DefaultGatherer, provider, ledgerService, withdrawalService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
