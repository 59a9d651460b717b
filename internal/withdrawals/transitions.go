package withdrawals

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox/payloads"
)

type ledgerEffect func(ctx context.Context, tx *gorm.DB, w *models.Withdrawal, now time.Time) error

// transition describes one edge of the withdrawal state machine.
type transition struct {
	to enums.WithdrawalStatus
	// from restricts the edge further than CanTransitionTo when set.
	from      []enums.WithdrawalStatus
	updates   func(w *models.Withdrawal, now time.Time) map[string]any
	effect    ledgerEffect
	reason    string
	reference string
	note      string
}

// Approve accepts a pending request. Balances are not touched.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actor ledger.Actor) (*models.Withdrawal, error) {
	return s.apply(ctx, id, actor, transition{
		to: enums.WithdrawalApproved,
		updates: func(_ *models.Withdrawal, now time.Time) map[string]any {
			return map[string]any{"approved_at": now, "updated_at": now}
		},
	})
}

// StartProcessing marks an approved withdrawal as handed to the payout rail.
func (s *Service) StartProcessing(ctx context.Context, id uuid.UUID, actor ledger.Actor) (*models.Withdrawal, error) {
	return s.apply(ctx, id, actor, transition{
		to: enums.WithdrawalProcessing,
		updates: func(_ *models.Withdrawal, now time.Time) map[string]any {
			return map[string]any{"processing_at": now, "updated_at": now}
		},
	})
}

// Complete records a successful payout. The gross amount moves into
// total_withdrawn and the lock is released; the fee only affects net_amount.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, paymentReference string, fee int64, actor ledger.Actor) (*models.Withdrawal, error) {
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if fee < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee must not be negative").
			WithDetails(map[string]any{"fee": fee})
	}
	return s.apply(ctx, id, actor, transition{
		to:        enums.WithdrawalCompleted,
		from:      []enums.WithdrawalStatus{enums.WithdrawalProcessing},
		reference: paymentReference,
		updates: func(w *models.Withdrawal, now time.Time) map[string]any {
			return map[string]any{
				"completed_at":      now,
				"payment_reference": paymentReference,
				"fee":               fee,
				"net_amount":        w.Amount - fee,
				"updated_at":        now,
			}
		},
		effect: func(ctx context.Context, tx *gorm.DB, w *models.Withdrawal, now time.Time) error {
			if fee > w.Amount {
				return pkgerrors.New(pkgerrors.CodeValidation, "fee exceeds the withdrawal amount").
					WithDetails(map[string]any{"fee": fee, "amount": w.Amount})
			}
			return s.settle(ctx, tx, w, ledger.Delta{Withdrawn: w.Amount}, now)
		},
	})
}

// Reject declines a pending or approved request and gives the reserved
// commissions and balance back in the same transaction.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string, actor ledger.Actor) (*models.Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	return s.apply(ctx, id, actor, transition{
		to:     enums.WithdrawalRejected,
		reason: reason,
		updates: func(_ *models.Withdrawal, now time.Time) map[string]any {
			return map[string]any{"rejected_at": now, "rejection_reason": reason, "updated_at": now}
		},
		effect: s.compensate,
	})
}

// Fail records a payout the rail could not deliver and compensates like Reject.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, reason string, actor ledger.Actor) (*models.Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}
	return s.apply(ctx, id, actor, transition{
		to:     enums.WithdrawalFailed,
		reason: reason,
		updates: func(_ *models.Withdrawal, now time.Time) map[string]any {
			return map[string]any{"failed_at": now, "failure_reason": reason, "updated_at": now}
		},
		effect: s.compensate,
	})
}

// MarkAsPaidManually completes a withdrawal that was paid outside the
// automated rails. From failed, the earlier compensation is undone first: the
// commissions must still be available and the balance must still cover the
// amount.
func (s *Service) MarkAsPaidManually(ctx context.Context, id uuid.UUID, externalReference, note string, actor ledger.Actor) (*models.Withdrawal, error) {
	externalReference = strings.TrimSpace(externalReference)
	note = strings.TrimSpace(note)
	if externalReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	return s.apply(ctx, id, actor, transition{
		to:        enums.WithdrawalCompleted,
		from:      []enums.WithdrawalStatus{enums.WithdrawalProcessing, enums.WithdrawalFailed},
		reference: externalReference,
		note:      note,
		updates: func(w *models.Withdrawal, now time.Time) map[string]any {
			updates := map[string]any{
				"completed_at":      now,
				"payment_reference": externalReference,
				"fee":               int64(0),
				"net_amount":        w.Amount,
				"updated_at":        now,
			}
			if note != "" {
				updates["admin_note"] = note
			}
			return updates
		},
		effect: func(ctx context.Context, tx *gorm.DB, w *models.Withdrawal, now time.Time) error {
			if w.Status != enums.WithdrawalFailed {
				return s.settle(ctx, tx, w, ledger.Delta{Withdrawn: w.Amount}, now)
			}
			paid, err := s.commissions.WithTx(tx).MarkPaid(ctx, w.CommissionIDs, w.ID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve commissions again")
			}
			if paid != int64(len(w.CommissionIDs)) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "reserved commissions are no longer available").
					WithDetails(map[string]any{"withdrawalId": w.ID.String()})
			}
			return s.settle(ctx, tx, w, ledger.Delta{Available: -w.Amount, Withdrawn: w.Amount}, now)
		},
	})
}

// compensate returns every reserved commission to available, credits the
// requested amount back and releases the lock.
func (s *Service) compensate(ctx context.Context, tx *gorm.DB, w *models.Withdrawal, now time.Time) error {
	restored, err := s.commissions.WithTx(tx).RestoreAvailable(ctx, w.CommissionIDs, w.ID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore reserved commissions")
	}
	if restored != int64(len(w.CommissionIDs)) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reserved commissions are not all paid to this withdrawal").
			WithDetails(map[string]any{"withdrawalId": w.ID.String(), "restored": restored})
	}
	return s.settle(ctx, tx, w, ledger.Delta{Available: w.Amount}, now)
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, w *models.Withdrawal, delta ledger.Delta, now time.Time) error {
	if err := s.balances.WithTx(tx).Release(ctx, w.AffiliateID, w.ID, delta, now); err != nil {
		if errors.Is(err, ledger.ErrBalanceGuard) {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "balance does not allow settlement")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle balance")
	}
	return nil
}

func (s *Service) apply(ctx context.Context, id uuid.UUID, actor ledger.Actor, t transition) (*models.Withdrawal, error) {
	var (
		updated *models.Withdrawal
		from    enums.WithdrawalStatus
	)
	err := s.db.WithRetryableTx(ctx, func(tx *gorm.DB) error {
		updated = nil
		now := s.clock()
		withdrawals := s.withdrawals.WithTx(tx)

		current, err := withdrawals.FindByIDForUpdate(ctx, id)
		if err != nil {
			return withdrawalNotFound(err, id)
		}
		from = current.Status
		if !from.CanTransitionTo(t.to) || (len(t.from) > 0 && !containsStatus(t.from, from)) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "withdrawal cannot move from %s to %s", from, t.to).
				WithDetails(map[string]any{"withdrawalId": id.String(), "status": from, "target": t.to})
		}

		if t.effect != nil {
			if err := t.effect(ctx, tx, current, now); err != nil {
				return err
			}
		}

		ok, err := withdrawals.UpdateStatus(ctx, id, from, t.to, t.updates(current, now))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update withdrawal status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal changed during transition")
		}

		if err := s.appendHistory(ctx, tx, id, &from, t.to, actor, historyNote(t), now); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalStatusChanged,
			AggregateType: enums.AggregateWithdrawal,
			AggregateID:   id,
			Actor:         actor.Ref(),
			OccurredAt:    now,
			Data: payloads.WithdrawalStatusChangedEvent{
				WithdrawalID: id,
				AffiliateID:  current.AffiliateID,
				From:         from,
				To:           t.to,
				Amount:       current.Amount,
				Reason:       t.reason,
				Reference:    t.reference,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit withdrawal_status_changed")
		}

		updated, err = withdrawals.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload withdrawal")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.WithdrawalTransition(string(t.to))
	s.logg.Info(s.logg.WithField(s.withdrawalFields(ctx, updated), "from", from), "withdrawal status changed")
	return updated, nil
}

func historyNote(t transition) *string {
	parts := make([]string, 0, 3)
	for _, part := range []string{t.reason, t.reference, t.note} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	note := strings.Join(parts, " | ")
	return &note
}

func containsStatus(list []enums.WithdrawalStatus, status enums.WithdrawalStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}
