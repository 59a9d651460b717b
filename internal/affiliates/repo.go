// Package affiliates reads affiliate accounts owned by the registration flow.
package affiliates

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/internal/repo"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
)

// Repository is read-only; affiliates are never written by the ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := r.DB(ctx).Where("id = ?", id).Take(&affiliate).Error; err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// RequireActive loads the affiliate and rejects unknown or inactive accounts.
func RequireActive(ctx context.Context, r Repository, id uuid.UUID) (*models.Affiliate, error) {
	affiliate, err := r.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
	}
	if !affiliate.Status.IsActive() {
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "affiliate is %s", affiliate.Status).
			WithDetails(map[string]any{"affiliate_id": id.String(), "status": affiliate.Status})
	}
	return affiliate, nil
}
