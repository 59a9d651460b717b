package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/internal/repo"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	"github.com/angelmondragon/affiliate-ledger/pkg/pagination"
)

// Repository manages persistence for commissions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, commission *models.Commission) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	FindActiveBySource(ctx context.Context, affiliateID uuid.UUID, commissionType enums.CommissionType, sourceID string) (*models.Commission, error)
	ListDue(ctx context.Context, status enums.CommissionStatus, cutoff time.Time, limit int) ([]models.Commission, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.CommissionStatus, updates map[string]any) (bool, error)
	ListAvailableForReservation(ctx context.Context, affiliateID uuid.UUID) ([]models.Commission, error)
	MarkPaid(ctx context.Context, ids []uuid.UUID, withdrawalID uuid.UUID, now time.Time) (int64, error)
	RestoreAvailable(ctx context.Context, ids []uuid.UUID, withdrawalID uuid.UUID, now time.Time) (int64, error)
	ReducePaidAmount(ctx context.Context, id uuid.UUID, amount int64, now time.Time) error
	SumByStatus(ctx context.Context, affiliateID uuid.UUID) (map[enums.CommissionStatus]int64, error)
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, status *enums.CommissionStatus, params pagination.Params) ([]models.Commission, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a commission repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, commission *models.Commission) error {
	return r.DB(ctx).Create(commission).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var commission models.Commission
	if err := r.DB(ctx).Where("id = ?", id).Take(&commission).Error; err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var commission models.Commission
	if err := repo.ForUpdate(r.DB(ctx)).Where("id = ?", id).Take(&commission).Error; err != nil {
		return nil, err
	}
	return &commission, nil
}

// FindActiveBySource returns the non-cancelled commission for the idempotency
// key, or nil when none exists.
func (r *repository) FindActiveBySource(ctx context.Context, affiliateID uuid.UUID, commissionType enums.CommissionType, sourceID string) (*models.Commission, error) {
	var commission models.Commission
	err := r.DB(ctx).
		Where("affiliate_id = ? AND type = ? AND source_id = ? AND status <> ?", affiliateID, commissionType, sourceID, enums.CommissionCancelled).
		Take(&commission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

// dueColumn is the timestamp that ages a commission in each sweepable status.
var dueColumn = map[enums.CommissionStatus]string{
	enums.CommissionPending:   "created_at",
	enums.CommissionValidated: "validated_at",
}

// ListDue returns up to limit commissions in status whose age column is at or
// before cutoff, oldest first.
func (r *repository) ListDue(ctx context.Context, status enums.CommissionStatus, cutoff time.Time, limit int) ([]models.Commission, error) {
	column, ok := dueColumn[status]
	if !ok {
		return nil, errors.New("status is not sweepable")
	}
	var rows []models.Commission
	err := r.DB(ctx).
		Where("status = ?", status).
		Where(column+" <= ?", cutoff.UTC()).
		Order(column + " ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// TransitionStatus moves a commission from one status to another only if it is
// still in from. It reports false when another writer got there first.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.CommissionStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.DB(ctx).
		Model(&models.Commission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListAvailableForReservation returns the affiliate's available commissions in
// the order withdrawals consume them.
func (r *repository) ListAvailableForReservation(ctx context.Context, affiliateID uuid.UUID) ([]models.Commission, error) {
	var rows []models.Commission
	err := repo.ForUpdate(r.DB(ctx)).
		Where("affiliate_id = ? AND status = ?", affiliateID, enums.CommissionAvailable).
		Order("available_at ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkPaid(ctx context.Context, ids []uuid.UUID, withdrawalID uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.DB(ctx).
		Model(&models.Commission{}).
		Where("id IN ? AND status = ?", ids, enums.CommissionAvailable).
		Updates(map[string]any{
			"status":        enums.CommissionPaid,
			"paid_at":       now,
			"withdrawal_id": withdrawalID,
			"updated_at":    now,
		})
	return res.RowsAffected, res.Error
}

// RestoreAvailable undoes MarkPaid for the commissions reserved by withdrawalID.
func (r *repository) RestoreAvailable(ctx context.Context, ids []uuid.UUID, withdrawalID uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.DB(ctx).
		Model(&models.Commission{}).
		Where("id IN ? AND status = ? AND withdrawal_id = ?", ids, enums.CommissionPaid, withdrawalID).
		Updates(map[string]any{
			"status":        enums.CommissionAvailable,
			"paid_at":       nil,
			"withdrawal_id": nil,
			"updated_at":    now,
		})
	return res.RowsAffected, res.Error
}

// ReducePaidAmount shrinks a reserved commission to the portion a withdrawal
// needs. The original amount is kept for audit.
func (r *repository) ReducePaidAmount(ctx context.Context, id uuid.UUID, amount int64, now time.Time) error {
	res := r.DB(ctx).
		Model(&models.Commission{}).
		Where("id = ? AND status = ? AND amount > ?", id, enums.CommissionPaid, amount).
		Updates(map[string]any{"amount": amount, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errors.New("commission not eligible for split")
	}
	return nil
}

func (r *repository) SumByStatus(ctx context.Context, affiliateID uuid.UUID) (map[enums.CommissionStatus]int64, error) {
	var rows []struct {
		Status enums.CommissionStatus
		Total  int64
	}
	err := r.DB(ctx).
		Model(&models.Commission{}).
		Select("status, COALESCE(SUM(amount), 0) AS total").
		Where("affiliate_id = ?", affiliateID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	sums := make(map[enums.CommissionStatus]int64, len(rows))
	for _, row := range rows {
		sums[row.Status] = row.Total
	}
	return sums, nil
}

// ListByAffiliate pages through an affiliate's commissions newest first. It
// fetches one extra row so callers can detect a following page.
func (r *repository) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, status *enums.CommissionStatus, params pagination.Params) ([]models.Commission, error) {
	query := r.DB(ctx).Where("affiliate_id = ?", affiliateID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Commission
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}
