package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/pkg/db"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox/payloads"
)

// CreateCommissionInput describes a single earned amount. (AffiliateID, Type,
// SourceID) is the idempotency key.
type CreateCommissionInput struct {
	AffiliateID uuid.UUID
	Type        enums.CommissionType
	Amount      int64
	SourceID    string
	Description string
	// RecruitID selects the recruitment window for recruitment and
	// provider_recruitment commissions.
	RecruitID *uuid.UUID
	Metadata  map[string]any
	Actor     Actor
}

var errDuplicateCommission = errors.New("duplicate commission")

func (in *CreateCommissionInput) normalize() error {
	in.SourceID = strings.TrimSpace(in.SourceID)
	in.Description = strings.TrimSpace(in.Description)

	if in.AffiliateID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	if !in.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid commission type %q", in.Type)
	}
	if in.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]any{"amount": in.Amount})
	}
	if in.Type == enums.CommissionManualAdjustment {
		if in.SourceID == "" {
			in.SourceID = "manual:" + uuid.NewString()
		}
		return nil
	}
	if in.SourceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "source id is required")
	}
	if (in.Type == enums.CommissionRecruitment || in.Type == enums.CommissionProviderRecruitment) && (in.RecruitID == nil || *in.RecruitID == uuid.Nil) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s commissions require a recruit id", in.Type)
	}
	return nil
}

// CreateCommission records a commission and credits the matching balance bucket
// in one transaction. A commission that already exists for the idempotency key
// yields (nil, nil) and writes nothing.
func (s *Service) CreateCommission(ctx context.Context, input CreateCommissionInput) (*models.Commission, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}

	var metadata json.RawMessage
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "metadata must be JSON encodable")
		}
		metadata = raw
	}

	var created *models.Commission
	err := s.db.WithRetryableTx(ctx, func(tx *gorm.DB) error {
		created = nil
		now := s.clock()

		affiliate, err := affiliates.RequireActive(ctx, s.affiliates.WithTx(tx), input.AffiliateID)
		if err != nil {
			return err
		}

		commissions := s.commissions.WithTx(tx)
		existing, err := commissions.FindActiveBySource(ctx, input.AffiliateID, input.Type, input.SourceID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check commission idempotency")
		}
		if existing != nil {
			return errDuplicateCommission
		}

		recruitment := s.recruitment.WithTx(tx)
		var window *models.RecruitmentWindow
		if input.RecruitID != nil && input.Type != enums.CommissionClientReferral && input.Type != enums.CommissionManualAdjustment {
			window, err = lockWindow(ctx, recruitment, input.AffiliateID, *input.RecruitID, input.Type, now)
			if err != nil {
				return err
			}
		}

		commission := &models.Commission{
			ID:             uuid.New(),
			AffiliateID:    affiliate.ID,
			ProgramType:    affiliate.ProgramType,
			Type:           input.Type,
			Status:         enums.CommissionPending,
			Amount:         input.Amount,
			OriginalAmount: input.Amount,
			Currency:       affiliate.Currency,
			SourceID:       input.SourceID,
			Description:    input.Description,
			Metadata:       metadata,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		delta := Delta{Pending: input.Amount}
		if input.Type == enums.CommissionManualAdjustment {
			commission.Status = enums.CommissionAvailable
			commission.AvailableAt = &now
			delta = Delta{Available: input.Amount, Earned: input.Amount}
		}

		if err := commissions.Create(ctx, commission); err != nil {
			if db.IsUniqueViolation(err, "idx_commissions_source") {
				return errDuplicateCommission
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert commission")
		}

		balances := s.balances.WithTx(tx)
		if err := balances.Ensure(ctx, affiliate.ID, affiliate.Currency, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure balance row")
		}
		if err := balances.Apply(ctx, affiliate.ID, delta, now); err != nil {
			return balanceError(err, "credit balance")
		}

		if window != nil && input.Type == enums.CommissionRecruitment {
			ok, err := recruitment.MarkPaid(ctx, window.ID, commission.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume recruitment window")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "recruitment commission already paid for this recruit")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCommissionCreated,
			AggregateType: enums.AggregateCommission,
			AggregateID:   commission.ID,
			Actor:         input.Actor.Ref(),
			OccurredAt:    now,
			Data: payloads.CommissionCreatedEvent{
				CommissionID: commission.ID,
				AffiliateID:  commission.AffiliateID,
				ProgramType:  commission.ProgramType,
				Type:         commission.Type,
				Status:       commission.Status,
				Amount:       commission.Amount,
				Currency:     commission.Currency,
				SourceID:     commission.SourceID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit commission_created")
		}

		created = commission
		return nil
	})

	if errors.Is(err, errDuplicateCommission) {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"affiliate_id": input.AffiliateID.String(),
			"type":         input.Type,
			"source_id":    input.SourceID,
		}), "commission already recorded for source")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.CommissionCreated(string(created.Type), string(created.ProgramType))
	s.logg.Info(s.commissionFields(ctx, created), "commission created")
	return created, nil
}

// IssueManualCommission credits an affiliate directly as available, bypassing
// the hold and release delays.
func (s *Service) IssueManualCommission(ctx context.Context, affiliateID uuid.UUID, amount int64, reason string, actor Actor) (*models.Commission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	return s.CreateCommission(ctx, CreateCommissionInput{
		AffiliateID: affiliateID,
		Type:        enums.CommissionManualAdjustment,
		Amount:      amount,
		Description: reason,
		Metadata:    map[string]any{"reason": reason, "issued_by": actor.ID.String()},
		Actor:       actor,
	})
}
