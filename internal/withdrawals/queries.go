package withdrawals

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/pagination"
)

// Detail is a withdrawal together with its audit trail.
type Detail struct {
	Withdrawal models.Withdrawal                `json:"withdrawal"`
	History    []models.WithdrawalStatusHistory `json:"history"`
}

// Get loads a withdrawal and its history. A non-nil affiliateID restricts the
// lookup to that affiliate's own withdrawals.
func (s *Service) Get(ctx context.Context, id uuid.UUID, affiliateID *uuid.UUID) (*Detail, error) {
	withdrawal, err := s.withdrawals.FindByID(ctx, id)
	if err != nil {
		return nil, withdrawalNotFound(err, id)
	}
	if affiliateID != nil && withdrawal.AffiliateID != *affiliateID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found").
			WithDetails(map[string]any{"withdrawalId": id.String()})
	}
	history, err := s.withdrawals.History(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal history")
	}
	return &Detail{Withdrawal: *withdrawal, History: history}, nil
}

type ListInput struct {
	Filter     ListFilter
	Pagination pagination.Params
}

func (s *Service) List(ctx context.Context, input ListInput) (pagination.Page[models.Withdrawal], error) {
	if input.Filter.Status != nil && !input.Filter.Status.IsValid() {
		return pagination.Page[models.Withdrawal]{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *input.Filter.Status)
	}
	if _, err := pagination.ParseCursor(input.Pagination.Cursor); err != nil {
		return pagination.Page[models.Withdrawal]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.withdrawals.List(ctx, input.Filter, input.Pagination)
	if err != nil {
		return pagination.Page[models.Withdrawal]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}
	return pagination.BuildPage(rows, input.Pagination.Limit, func(w models.Withdrawal) pagination.Cursor {
		return pagination.Cursor{CreatedAt: w.RequestedAt, ID: w.ID}
	}), nil
}
