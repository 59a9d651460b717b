package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/pagination"
)

// GetBalance returns the affiliate's balance buckets; affiliates with no ledger
// activity get a zero balance.
func (s *Service) GetBalance(ctx context.Context, affiliateID uuid.UUID) (*models.AffiliateBalance, error) {
	balance, err := s.balances.Get(ctx, affiliateID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance")
	}
	return balance, nil
}

// AffiliateCurrency returns the currency commissions for the affiliate are
// booked in.
func (s *Service) AffiliateCurrency(ctx context.Context, affiliateID uuid.UUID) (string, error) {
	affiliate, err := s.affiliates.FindByID(ctx, affiliateID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found").
			WithDetails(map[string]any{"affiliate_id": affiliateID.String()})
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
	}
	return affiliate.Currency, nil
}

type ListCommissionsInput struct {
	AffiliateID uuid.UUID
	Status      *enums.CommissionStatus
	Pagination  pagination.Params
}

func (s *Service) ListCommissions(ctx context.Context, input ListCommissionsInput) (pagination.Page[models.Commission], error) {
	if input.Status != nil && !input.Status.IsValid() {
		return pagination.Page[models.Commission]{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *input.Status)
	}
	if _, err := pagination.ParseCursor(input.Pagination.Cursor); err != nil {
		return pagination.Page[models.Commission]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.commissions.ListByAffiliate(ctx, input.AffiliateID, input.Status, input.Pagination)
	if err != nil {
		return pagination.Page[models.Commission]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commissions")
	}
	return pagination.BuildPage(rows, input.Pagination.Limit, func(c models.Commission) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	}), nil
}
