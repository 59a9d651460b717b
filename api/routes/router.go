package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/affiliate-ledger/api/controllers"
	admincontrollers "github.com/angelmondragon/affiliate-ledger/api/controllers/admin"
	affiliatecontrollers "github.com/angelmondragon/affiliate-ledger/api/controllers/affiliate"
	"github.com/angelmondragon/affiliate-ledger/api/middleware"
	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/internal/withdrawals"
	pkgAuth "github.com/angelmondragon/affiliate-ledger/pkg/auth"
	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/db"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/pagination"
	"github.com/angelmondragon/affiliate-ledger/pkg/redis"
)

// RedisStore is the Redis surface the HTTP layer needs: idempotency replay,
// fixed-window rate limiting and the readiness ping.
type RedisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// LedgerService is implemented by *ledger.Service.
type LedgerService interface {
	GetBalance(ctx context.Context, affiliateID uuid.UUID) (*models.AffiliateBalance, error)
	ListCommissions(ctx context.Context, input ledger.ListCommissionsInput) (pagination.Page[models.Commission], error)
	CancelCommission(ctx context.Context, id uuid.UUID, reason string, actor ledger.Actor) (*models.Commission, error)
	IssueManualCommission(ctx context.Context, affiliateID uuid.UUID, amount int64, reason string, actor ledger.Actor) (*models.Commission, error)
	CheckBalance(ctx context.Context, affiliateID uuid.UUID) (*ledger.BalanceReport, error)
	AffiliateCurrency(ctx context.Context, affiliateID uuid.UUID) (string, error)
}

// WithdrawalService is implemented by *withdrawals.Service.
type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, cfg settings.Ledger, input withdrawals.RequestInput) (*withdrawals.RequestResult, error)
	Approve(ctx context.Context, id uuid.UUID, actor ledger.Actor) (*models.Withdrawal, error)
	StartProcessing(ctx context.Context, id uuid.UUID, actor ledger.Actor) (*models.Withdrawal, error)
	Complete(ctx context.Context, id uuid.UUID, paymentReference string, fee int64, actor ledger.Actor) (*models.Withdrawal, error)
	Reject(ctx context.Context, id uuid.UUID, reason string, actor ledger.Actor) (*models.Withdrawal, error)
	Fail(ctx context.Context, id uuid.UUID, reason string, actor ledger.Actor) (*models.Withdrawal, error)
	MarkAsPaidManually(ctx context.Context, id uuid.UUID, externalReference, note string, actor ledger.Actor) (*models.Withdrawal, error)
	List(ctx context.Context, input withdrawals.ListInput) (pagination.Page[models.Withdrawal], error)
	Get(ctx context.Context, id uuid.UUID, affiliateID *uuid.UUID) (*withdrawals.Detail, error)
}

type SettingsSource interface {
	Current(ctx context.Context) (settings.Ledger, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	gatherer prometheus.Gatherer,
	settingsSource SettingsSource,
	ledgerService LedgerService,
	withdrawalService WithdrawalService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	withdrawalPolicy := middleware.NewRateLimitPolicy("withdrawal", cfg.RateLimit.WithdrawalWindow, cfg.RateLimit.WithdrawalLimit)
	adminPolicy := middleware.NewRateLimitPolicy("admin", cfg.RateLimit.AdminWindow, cfg.RateLimit.AdminLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "postgres", Pinger: dbP},
			controllers.Dependency{Name: "redis", Pinger: redisStore},
		))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/affiliate", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(pkgAuth.RoleAffiliate, logg),
			middleware.Idempotency(redisStore, logg),
		)
		r.Get("/balance", affiliatecontrollers.Balance(ledgerService, logg))
		r.Get("/commissions", affiliatecontrollers.Commissions(ledgerService, logg))
		r.Get("/withdrawals", affiliatecontrollers.Withdrawals(withdrawalService, logg))
		r.Get("/withdrawals/{withdrawalId}", affiliatecontrollers.WithdrawalDetail(withdrawalService, logg))
		r.With(middleware.RateLimit(withdrawalPolicy, redisStore, logg)).
			Post("/withdrawals", affiliatecontrollers.RequestWithdrawal(withdrawalService, settingsSource, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(pkgAuth.RoleAdmin, logg),
			middleware.RateLimit(adminPolicy, redisStore, logg),
			middleware.Idempotency(redisStore, logg),
		)

		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/", admincontrollers.ListWithdrawals(withdrawalService, logg))
			r.Route("/{withdrawalId}", func(r chi.Router) {
				r.Get("/", admincontrollers.WithdrawalDetail(withdrawalService, logg))
				r.Post("/approve", admincontrollers.ApproveWithdrawal(withdrawalService, logg))
				r.Post("/processing", admincontrollers.StartProcessingWithdrawal(withdrawalService, logg))
				r.Post("/complete", admincontrollers.CompleteWithdrawal(withdrawalService, logg))
				r.Post("/reject", admincontrollers.RejectWithdrawal(withdrawalService, logg))
				r.Post("/fail", admincontrollers.FailWithdrawal(withdrawalService, logg))
				r.Post("/mark-paid", admincontrollers.MarkWithdrawalPaid(withdrawalService, logg))
			})
		})
		r.Post("/commissions/{commissionId}/cancel", admincontrollers.CancelCommission(ledgerService, logg))
		r.Route("/affiliates/{affiliateId}", func(r chi.Router) {
			r.Get("/balance", admincontrollers.AffiliateBalance(ledgerService, logg))
			r.Post("/commissions", admincontrollers.IssueManualCommission(ledgerService, logg))
		})
	})

	return r
}
