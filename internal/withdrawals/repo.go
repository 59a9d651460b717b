package withdrawals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/internal/repo"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	"github.com/angelmondragon/affiliate-ledger/pkg/pagination"
)

// ListFilter narrows a withdrawal listing. Nil fields match everything.
type ListFilter struct {
	AffiliateID *uuid.UUID
	Status      *enums.WithdrawalStatus
}

// Repository persists withdrawals and their status history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, withdrawal *models.Withdrawal) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.WithdrawalStatus, updates map[string]any) (bool, error)
	AppendHistory(ctx context.Context, entry *models.WithdrawalStatusHistory) error
	History(ctx context.Context, withdrawalID uuid.UUID) ([]models.WithdrawalStatusHistory, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Withdrawal, error)
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

func (r *repository) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	return r.DB(ctx).Create(withdrawal).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := r.DB(ctx).Where("id = ?", id).Take(&withdrawal).Error; err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := repo.ForUpdate(r.DB(ctx)).Where("id = ?", id).Take(&withdrawal).Error; err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// UpdateStatus applies updates only while the withdrawal is still in from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.WithdrawalStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.DB(ctx).
		Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.WithdrawalStatusHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return r.DB(ctx).Create(entry).Error
}

func (r *repository) History(ctx context.Context, withdrawalID uuid.UUID) ([]models.WithdrawalStatusHistory, error) {
	var rows []models.WithdrawalStatusHistory
	err := r.DB(ctx).
		Where("withdrawal_id = ?", withdrawalID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// List pages through withdrawals newest first, fetching one extra row so the
// caller can tell whether another page exists.
func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Withdrawal, error) {
	query := r.DB(ctx).Model(&models.Withdrawal{})
	if filter.AffiliateID != nil {
		query = query.Where("affiliate_id = ?", *filter.AffiliateID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(requested_at < ?) OR (requested_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Withdrawal
	err = query.
		Order("requested_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}
