package withdrawals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	dbtypes "github.com/angelmondragon/affiliate-ledger/pkg/db/types"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/metrics"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox/payloads"
)

// ServiceParams wires the withdrawal service dependencies.
type ServiceParams struct {
	DB          ledger.TxRunner
	Withdrawals Repository
	Commissions ledger.Repository
	Balances    ledger.BalanceRepository
	Affiliates  affiliates.Repository
	Outbox      outbox.Emitter
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

// Service accepts payout requests and drives them through the withdrawal
// state machine, compensating the ledger when a payout does not happen.
type Service struct {
	db          ledger.TxRunner
	withdrawals Repository
	commissions ledger.Repository
	balances    ledger.BalanceRepository
	affiliates  affiliates.Repository
	outbox      outbox.Emitter
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.DB == nil:
		return nil, fmt.Errorf("withdrawal db required")
	case p.Withdrawals == nil:
		return nil, fmt.Errorf("withdrawal repository required")
	case p.Commissions == nil:
		return nil, fmt.Errorf("commission repository required")
	case p.Balances == nil:
		return nil, fmt.Errorf("balance repository required")
	case p.Affiliates == nil:
		return nil, fmt.Errorf("affiliate repository required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:          p.DB,
		withdrawals: p.Withdrawals,
		commissions: p.Commissions,
		balances:    p.Balances,
		affiliates:  p.Affiliates,
		outbox:      p.Outbox,
		metrics:     p.Metrics,
		logg:        p.Logger,
		now:         now,
	}, nil
}

// RequestInput is an affiliate's payout request.
type RequestInput struct {
	AffiliateID    uuid.UUID
	Amount         int64
	PaymentMethod  enums.PaymentMethod
	PaymentDetails json.RawMessage
	Actor          ledger.Actor
}

// RequestResult is returned to the affiliate once the request is recorded.
type RequestResult struct {
	WithdrawalID            uuid.UUID          `json:"withdrawalId"`
	EstimatedProcessingTime string             `json:"estimatedProcessingTime"`
	Withdrawal              *models.Withdrawal `json:"-"`
}

func (in RequestInput) validate(cfg settings.Ledger) (json.RawMessage, error) {
	if in.AffiliateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	if in.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]any{"amount": in.Amount})
	}
	if in.Amount < cfg.MinimumWithdrawalAmount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount is below the minimum withdrawal").
			WithDetails(map[string]any{"amount": in.Amount, "minimum": cfg.MinimumWithdrawalAmount})
	}
	if !in.PaymentMethod.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment method %q", in.PaymentMethod)
	}
	return NormalizePaymentDetails(in.PaymentMethod, in.PaymentDetails)
}

// RequestWithdrawal reserves available commissions for a payout. Either the
// withdrawal, the reserved commissions, the balance debit and the lock are all
// written, or nothing is.
func (s *Service) RequestWithdrawal(ctx context.Context, cfg settings.Ledger, input RequestInput) (*RequestResult, error) {
	details, err := input.validate(cfg)
	if err != nil {
		return nil, err
	}

	var created *models.Withdrawal
	err = s.db.WithRetryableTx(ctx, func(tx *gorm.DB) error {
		created = nil
		now := s.clock()

		affiliate, err := affiliates.RequireActive(ctx, s.affiliates.WithTx(tx), input.AffiliateID)
		if err != nil {
			return err
		}

		balances := s.balances.WithTx(tx)
		balance, err := balances.GetForUpdate(ctx, affiliate.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance")
		}
		if balance.PendingWithdrawalID != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "a withdrawal is already outstanding").
				WithDetails(map[string]any{"withdrawalId": balance.PendingWithdrawalID.String()})
		}
		if input.Amount > balance.AvailableBalance {
			return pkgerrors.New(pkgerrors.CodeValidation, "insufficient available balance").
				WithDetails(map[string]any{"amount": input.Amount, "available": balance.AvailableBalance})
		}

		commissions := s.commissions.WithTx(tx)
		candidates, err := commissions.ListAvailableForReservation(ctx, affiliate.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list available commissions")
		}
		// Overshoot reservations leave part of available_balance with no
		// available commission behind it. When the commissions run out, that
		// credit funds the shortfall; amount <= available_balance already
		// bounds it. reserved_amount records only the commission-backed part.
		sel := selectCommissions(candidates, input.Amount)
		if short := sel.shortfall(input.Amount); short > 0 {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"affiliate_id": affiliate.ID.String(),
				"amount":       input.Amount,
				"commissions":  sel.reserved,
				"credit_used":  short,
			}), "withdrawal drawn partly from overshoot credit")
		}

		currency := balance.Currency
		if currency == "" {
			currency = affiliate.Currency
		}
		withdrawal := &models.Withdrawal{
			ID:                  uuid.New(),
			AffiliateID:         affiliate.ID,
			Amount:              input.Amount,
			ReservedAmount:      sel.reserved,
			Currency:            currency,
			Status:              enums.WithdrawalPending,
			PaymentMethod:       input.PaymentMethod,
			PaymentDetails:      details,
			CommissionIDs:       dbtypes.UUIDArray(sel.ids),
			EstimatedProcessing: cfg.EstimatedProcessingFor(input.PaymentMethod),
			RequestedAt:         now,
			UpdatedAt:           now,
		}
		split := cfg.SplitReservations() && sel.excess > 0
		if split {
			withdrawal.ReservedAmount = input.Amount
		}
		if err := s.withdrawals.WithTx(tx).Create(ctx, withdrawal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert withdrawal")
		}

		paid, err := commissions.MarkPaid(ctx, sel.ids, withdrawal.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve commissions")
		}
		if paid != int64(len(sel.ids)) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "commissions changed while reserving")
		}
		if split {
			if err := s.splitRemainder(ctx, commissions, sel, withdrawal.ID, now); err != nil {
				return err
			}
		}

		if err := balances.Reserve(ctx, affiliate.ID, withdrawal.ID, input.Amount, now); err != nil {
			if errors.Is(err, ledger.ErrBalanceGuard) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "balance changed while reserving")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve balance")
		}

		if err := s.appendHistory(ctx, tx, withdrawal.ID, nil, enums.WithdrawalPending, input.Actor, nil, now); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalRequested,
			AggregateType: enums.AggregateWithdrawal,
			AggregateID:   withdrawal.ID,
			Actor:         input.Actor.Ref(),
			OccurredAt:    now,
			Data: payloads.WithdrawalRequestedEvent{
				WithdrawalID:   withdrawal.ID,
				AffiliateID:    withdrawal.AffiliateID,
				Amount:         withdrawal.Amount,
				ReservedAmount: withdrawal.ReservedAmount,
				Currency:       withdrawal.Currency,
				PaymentMethod:  withdrawal.PaymentMethod,
				CommissionIDs:  sel.ids,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit withdrawal_requested")
		}

		created = withdrawal
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.WithdrawalTransition(string(enums.WithdrawalPending))
	s.logg.Info(s.withdrawalFields(ctx, created), "withdrawal requested")
	return &RequestResult{
		WithdrawalID:            created.ID,
		EstimatedProcessingTime: created.EstimatedProcessing,
		Withdrawal:              created,
	}, nil
}

// splitRemainder trims the last reserved commission to the portion the
// withdrawal needs and books the excess as a new available commission.
func (s *Service) splitRemainder(ctx context.Context, commissions ledger.Repository, sel selection, withdrawalID uuid.UUID, now time.Time) error {
	parent := sel.last
	keep := parent.Amount - sel.excess
	if err := commissions.ReducePaidAmount(ctx, parent.ID, keep, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "split reserved commission")
	}

	parentID := parent.ID
	remainder := &models.Commission{
		ID:                 uuid.New(),
		AffiliateID:        parent.AffiliateID,
		ProgramType:        parent.ProgramType,
		Type:               parent.Type,
		Status:             enums.CommissionAvailable,
		Amount:             sel.excess,
		OriginalAmount:     sel.excess,
		Currency:           parent.Currency,
		SourceID:           fmt.Sprintf("%s#split:%s", parent.ID, withdrawalID),
		Description:        parent.Description,
		ParentCommissionID: &parentID,
		Metadata:           parent.Metadata,
		CreatedAt:          now,
		ValidatedAt:        parent.ValidatedAt,
		AvailableAt:        parent.AvailableAt,
		UpdatedAt:          now,
	}
	if err := commissions.Create(ctx, remainder); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert split remainder")
	}
	return nil
}

func (s *Service) appendHistory(ctx context.Context, tx *gorm.DB, withdrawalID uuid.UUID, from *enums.WithdrawalStatus, to enums.WithdrawalStatus, actor ledger.Actor, note *string, now time.Time) error {
	entry := &models.WithdrawalStatusHistory{
		ID:           uuid.New(),
		WithdrawalID: withdrawalID,
		FromStatus:   from,
		ToStatus:     to,
		ActorID:      actor.IDPtr(),
		Note:         note,
		CreatedAt:    now,
	}
	if err := s.withdrawals.WithTx(tx).AppendHistory(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append withdrawal history")
	}
	return nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) withdrawalFields(ctx context.Context, w *models.Withdrawal) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"withdrawal_id":  w.ID.String(),
		"affiliate_id":   w.AffiliateID.String(),
		"status":         w.Status,
		"amount":         w.Amount,
		"payment_method": w.PaymentMethod,
	})
}

func withdrawalNotFound(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found").
			WithDetails(map[string]any{"withdrawalId": id.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
}
