package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
)

const (
	defaultReconcileLookback = 25 * time.Hour
	defaultReconcileLimit    = 1000
)

type balanceReconciler interface {
	ReconcileBalances(ctx context.Context, since time.Time, limit int) (ledger.ReconcileResult, error)
}

type BalanceReconciliationJobParams struct {
	Logger     *logger.Logger
	Reconciler balanceReconciler
	// Lookback selects balances updated within this window.
	Lookback time.Duration
	Limit    int
}

// NewBalanceReconciliationJob reports balance rows whose buckets no longer
// match their commissions. It never repairs anything.
func NewBalanceReconciliationJob(params BalanceReconciliationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &balanceReconciliationJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
		lookback:   lookback,
		limit:      limit,
		now:        time.Now,
	}, nil
}

type balanceReconciliationJob struct {
	logg       *logger.Logger
	reconciler balanceReconciler
	lookback   time.Duration
	limit      int
	now        func() time.Time
}

func (j *balanceReconciliationJob) Name() string { return "balance-reconciliation" }

func (j *balanceReconciliationJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.lookback)
	result, err := j.reconciler.ReconcileBalances(ctx, since, j.limit)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"since":        since,
		"checked":      result.Checked,
		"inconsistent": len(result.Inconsistent),
	})
	if err != nil {
		return fmt.Errorf("balance reconciliation: %w", err)
	}
	if len(result.Inconsistent) > 0 {
		j.logg.Warn(logCtx, "balance reconciliation found drift")
		return nil
	}
	j.logg.Info(logCtx, "balance reconciliation complete")
	return nil
}
