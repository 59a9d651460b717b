package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox/payloads"
)

// cancellationDelta reverses the bucket that currently holds a commission.
func cancellationDelta(status enums.CommissionStatus, amount int64) Delta {
	switch status {
	case enums.CommissionPending:
		return Delta{Pending: -amount}
	case enums.CommissionValidated:
		return Delta{Validated: -amount}
	case enums.CommissionAvailable:
		return Delta{Available: -amount, Earned: -amount}
	}
	return Delta{}
}

// CancelCommission voids a commission that has not been paid out. The status
// is re-read under a row lock so a concurrent sweep cannot move it in between.
// Cancelling a recruitment commission reopens its window for the recruit.
func (s *Service) CancelCommission(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*models.Commission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}

	var cancelled *models.Commission
	var from enums.CommissionStatus
	err := s.db.WithRetryableTx(ctx, func(tx *gorm.DB) error {
		now := s.clock()
		commissions := s.commissions.WithTx(tx)

		commission, err := commissions.FindByIDForUpdate(ctx, id)
		if err != nil {
			return commissionNotFound(err, id)
		}
		if !commission.Status.Cancellable() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "commission is %s and cannot be cancelled", commission.Status).
				WithDetails(map[string]any{"commission_id": id.String(), "status": commission.Status})
		}
		from = commission.Status

		ok, err := commissions.TransitionStatus(ctx, id, from, enums.CommissionCancelled, map[string]any{
			"cancelled_at":        now,
			"cancellation_reason": reason,
			"updated_at":          now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel commission")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "commission changed while cancelling")
		}

		if err := s.balances.WithTx(tx).Apply(ctx, commission.AffiliateID, cancellationDelta(from, commission.Amount), now); err != nil {
			return balanceError(err, "reverse commission balance")
		}

		if commission.Type == enums.CommissionRecruitment {
			if _, err := s.recruitment.WithTx(tx).ReleasePaid(ctx, id); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen recruitment window")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCommissionCancelled,
			AggregateType: enums.AggregateCommission,
			AggregateID:   id,
			Actor:         actor.Ref(),
			OccurredAt:    now,
			Data: payloads.CommissionCancelledEvent{
				CommissionID: id,
				AffiliateID:  commission.AffiliateID,
				From:         from,
				Amount:       commission.Amount,
				Reason:       reason,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit commission_cancelled")
		}

		commission.Status = enums.CommissionCancelled
		commission.CancelledAt = &now
		commission.CancellationReason = &reason
		commission.UpdatedAt = now
		cancelled = commission
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CommissionTransition(string(from), string(enums.CommissionCancelled))
	s.logg.Info(s.logg.WithField(s.commissionFields(ctx, cancelled), "from", from), "commission cancelled")
	return cancelled, nil
}
