package ledger

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox/payloads"
)

const (
	defaultSweepLimit = 500

	SweepValidation = "validation"
	SweepRelease    = "release"
)

// SweepInput parameterizes one run of a scheduled sweep.
type SweepInput struct {
	Settings settings.Ledger
	// Limit caps how many commissions one run handles; zero means 500.
	Limit int
	// Now overrides the service clock.
	Now time.Time
}

// SweepResult counts what a sweep did. Skipped items were moved by a concurrent
// writer between selection and update.
type SweepResult struct {
	Selected  int
	Processed int
	Skipped   int
	Failed    int
}

type sweepStep struct {
	name      string
	from      enums.CommissionStatus
	to        enums.CommissionStatus
	cutoff    func(cfg settings.Ledger, now time.Time) time.Time
	delta     func(amount int64) Delta
	timestamp string
}

var (
	validationStep = sweepStep{
		name:      SweepValidation,
		from:      enums.CommissionPending,
		to:        enums.CommissionValidated,
		cutoff:    func(cfg settings.Ledger, now time.Time) time.Time { return now.Add(-cfg.HoldPeriod()) },
		delta:     func(amount int64) Delta { return Delta{Pending: -amount, Validated: amount} },
		timestamp: "validated_at",
	}
	releaseStep = sweepStep{
		name:      SweepRelease,
		from:      enums.CommissionValidated,
		to:        enums.CommissionAvailable,
		cutoff:    func(cfg settings.Ledger, now time.Time) time.Time { return now.Add(-cfg.ReleaseDelay()) },
		delta:     func(amount int64) Delta { return Delta{Validated: -amount, Available: amount, Earned: amount} },
		timestamp: "available_at",
	}
)

// ValidatePending moves pending commissions older than the hold period to
// validated. Running it again immediately writes nothing.
func (s *Service) ValidatePending(ctx context.Context, input SweepInput) (SweepResult, error) {
	return s.sweep(ctx, validationStep, input)
}

// ReleaseValidated moves validated commissions past the release delay to
// available and counts them as earned.
func (s *Service) ReleaseValidated(ctx context.Context, input SweepInput) (SweepResult, error) {
	return s.sweep(ctx, releaseStep, input)
}

func (s *Service) sweep(ctx context.Context, step sweepStep, input SweepInput) (SweepResult, error) {
	now := input.Now.UTC()
	if input.Now.IsZero() {
		now = s.clock()
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	ctx = s.logg.WithField(ctx, "sweep", step.name)

	due, err := s.commissions.ListDue(ctx, step.from, step.cutoff(input.Settings, now), limit)
	if err != nil {
		return SweepResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select due commissions")
	}

	result := SweepResult{Selected: len(due)}
	var errs error
	for i := range due {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		item := due[i]
		moved, err := s.advance(ctx, step, &item, now)
		switch {
		case err != nil:
			result.Failed++
			errs = multierr.Append(errs, err)
			s.logg.Error(s.commissionFields(ctx, &item), "sweep item failed", err)
		case moved:
			result.Processed++
		default:
			result.Skipped++
		}
	}

	s.metrics.SweepItems(step.name, "processed", result.Processed)
	s.metrics.SweepItems(step.name, "skipped", result.Skipped)
	s.metrics.SweepItems(step.name, "failed", result.Failed)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"selected":  result.Selected,
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}), "sweep finished")
	return result, errs
}

// advance applies one transition in its own short transaction.
func (s *Service) advance(ctx context.Context, step sweepStep, item *models.Commission, now time.Time) (bool, error) {
	moved := false
	err := s.db.WithRetryableTx(ctx, func(tx *gorm.DB) error {
		moved = false
		ok, err := s.commissions.WithTx(tx).TransitionStatus(ctx, item.ID, step.from, step.to, map[string]any{
			step.timestamp: now,
			"updated_at":   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update commission status")
		}
		if !ok {
			return nil
		}
		if err := s.balances.WithTx(tx).Apply(ctx, item.AffiliateID, step.delta(item.Amount), now); err != nil {
			return balanceError(err, "move balance bucket")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCommissionStatusChanged,
			AggregateType: enums.AggregateCommission,
			AggregateID:   item.ID,
			OccurredAt:    now,
			Data: payloads.CommissionStatusChangedEvent{
				CommissionID: item.ID,
				AffiliateID:  item.AffiliateID,
				From:         step.from,
				To:           step.to,
				Amount:       item.Amount,
				ChangedAt:    now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit commission_status_changed")
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if moved {
		s.metrics.CommissionTransition(string(step.from), string(step.to))
	}
	return moved, nil
}
