package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
)

const defaultSweepBatch = 500

type settingsSource interface {
	Current(ctx context.Context) (settings.Ledger, error)
}

type sweepFunc func(ctx context.Context, input ledger.SweepInput) (ledger.SweepResult, error)

// CommissionSweepJobParams configure the validation and release jobs.
type CommissionSweepJobParams struct {
	Logger   *logger.Logger
	Settings settingsSource
	Ledger   *ledger.Service
	// BatchSize caps how many commissions a single run moves.
	BatchSize int
}

// commissionSweepJob runs one bounded ledger sweep per tick. Item failures are
// reported but the rest of the batch still runs; leftovers are picked up by the
// next tick.
type commissionSweepJob struct {
	name     string
	logg     *logger.Logger
	settings settingsSource
	sweep    sweepFunc
	batch    int
}

// NewCommissionValidationJob promotes pending commissions past the hold period.
func NewCommissionValidationJob(params CommissionSweepJobParams) (Job, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return newCommissionSweepJob("commission-validation", params, params.Ledger.ValidatePending)
}

func newCommissionSweepJob(name string, params CommissionSweepJobParams, sweep sweepFunc) (*commissionSweepJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("settings provider required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &commissionSweepJob{
		name:     name,
		logg:     params.Logger,
		settings: params.Settings,
		sweep:    sweep,
		batch:    batch,
	}, nil
}

func (j *commissionSweepJob) Name() string { return j.name }

func (j *commissionSweepJob) Run(ctx context.Context) error {
	cfg, err := j.settings.Current(ctx)
	if err != nil {
		return fmt.Errorf("%s: load settings: %w", j.name, err)
	}
	result, err := j.sweep(ctx, ledger.SweepInput{Settings: cfg, Limit: j.batch})
	if err != nil {
		return fmt.Errorf("%s: %d of %d items failed: %w", j.name, result.Failed, result.Selected, err)
	}
	if result.Selected == j.batch {
		j.logg.Info(j.logg.WithField(ctx, "batch_size", j.batch), "sweep batch full; remaining items wait for the next run")
	}
	return nil
}
