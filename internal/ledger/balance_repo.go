package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/affiliate-ledger/internal/repo"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
)

// ErrBalanceGuard is returned when a guarded balance update matched no row:
// a bucket would go negative or the withdrawal lock is not in the expected state.
var ErrBalanceGuard = errors.New("balance guard rejected update")

// Delta is a signed change to each balance bucket.
type Delta struct {
	Pending   int64
	Validated int64
	Available int64
	Withdrawn int64
	Earned    int64
}

func (d Delta) columns() []struct {
	name  string
	delta int64
} {
	return []struct {
		name  string
		delta int64
	}{
		{"pending_balance", d.Pending},
		{"validated_balance", d.Validated},
		{"available_balance", d.Available},
		{"total_withdrawn", d.Withdrawn},
		{"total_earned", d.Earned},
	}
}

// Negate returns the reverse delta.
func (d Delta) Negate() Delta {
	return Delta{Pending: -d.Pending, Validated: -d.Validated, Available: -d.Available, Withdrawn: -d.Withdrawn, Earned: -d.Earned}
}

// BalanceRepository applies atomic increments to affiliate_balances rows.
type BalanceRepository interface {
	WithTx(tx *gorm.DB) BalanceRepository
	Ensure(ctx context.Context, affiliateID uuid.UUID, currency string, now time.Time) error
	Get(ctx context.Context, affiliateID uuid.UUID) (*models.AffiliateBalance, error)
	GetForUpdate(ctx context.Context, affiliateID uuid.UUID) (*models.AffiliateBalance, error)
	Apply(ctx context.Context, affiliateID uuid.UUID, delta Delta, now time.Time) error
	Reserve(ctx context.Context, affiliateID, withdrawalID uuid.UUID, amount int64, now time.Time) error
	Release(ctx context.Context, affiliateID, withdrawalID uuid.UUID, delta Delta, now time.Time) error
	ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.AffiliateBalance, error)
	OutstandingWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*models.Withdrawal, error)
}

type balanceRepository struct {
	repo.Base
}

func NewBalanceRepository(db *gorm.DB) BalanceRepository {
	return &balanceRepository{Base: repo.NewBase(db)}
}

func (r *balanceRepository) WithTx(tx *gorm.DB) BalanceRepository {
	return &balanceRepository{Base: r.Bind(tx)}
}

// Ensure creates the zeroed balance row if it does not exist yet.
func (r *balanceRepository) Ensure(ctx context.Context, affiliateID uuid.UUID, currency string, now time.Time) error {
	row := models.AffiliateBalance{AffiliateID: affiliateID, Currency: currency, UpdatedAt: now}
	return r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// Get returns the balance row, or a zero balance when none has been written.
func (r *balanceRepository) Get(ctx context.Context, affiliateID uuid.UUID) (*models.AffiliateBalance, error) {
	return r.get(r.DB(ctx), affiliateID)
}

func (r *balanceRepository) GetForUpdate(ctx context.Context, affiliateID uuid.UUID) (*models.AffiliateBalance, error) {
	return r.get(repo.ForUpdate(r.DB(ctx)), affiliateID)
}

func (r *balanceRepository) get(query *gorm.DB, affiliateID uuid.UUID) (*models.AffiliateBalance, error) {
	var row models.AffiliateBalance
	err := query.Where("affiliate_id = ?", affiliateID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.AffiliateBalance{AffiliateID: affiliateID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Apply adds delta to the row in one statement. Every negative component is
// guarded so the bucket cannot drop below zero.
func (r *balanceRepository) Apply(ctx context.Context, affiliateID uuid.UUID, delta Delta, now time.Time) error {
	query, updates := r.guarded(r.DB(ctx), affiliateID, delta, now)
	return exactlyOne(query.Updates(updates))
}

// Reserve debits amount from available_balance and takes the withdrawal lock.
// It matches only when no withdrawal is outstanding and the balance covers amount.
func (r *balanceRepository) Reserve(ctx context.Context, affiliateID, withdrawalID uuid.UUID, amount int64, now time.Time) error {
	query, updates := r.guarded(r.DB(ctx), affiliateID, Delta{Available: -amount}, now)
	updates["pending_withdrawal_id"] = withdrawalID
	return exactlyOne(query.Where("pending_withdrawal_id IS NULL").Updates(updates))
}

// Release applies delta and clears the withdrawal lock if it still points at
// withdrawalID.
func (r *balanceRepository) Release(ctx context.Context, affiliateID, withdrawalID uuid.UUID, delta Delta, now time.Time) error {
	query, updates := r.guarded(r.DB(ctx), affiliateID, delta, now)
	updates["pending_withdrawal_id"] = gorm.Expr("CASE WHEN pending_withdrawal_id = ? THEN NULL ELSE pending_withdrawal_id END", withdrawalID)
	return exactlyOne(query.Updates(updates))
}

func (r *balanceRepository) ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.AffiliateBalance, error) {
	var rows []models.AffiliateBalance
	err := r.DB(ctx).
		Where("updated_at >= ?", since.UTC()).
		Order("updated_at ASC").
		Order("affiliate_id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// OutstandingWithdrawal loads the withdrawal a lock points at, or nil when it
// does not exist.
func (r *balanceRepository) OutstandingWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	err := r.DB(ctx).Select("id", "amount", "status").Where("id = ?", withdrawalID).Take(&withdrawal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

func (r *balanceRepository) guarded(db *gorm.DB, affiliateID uuid.UUID, delta Delta, now time.Time) (*gorm.DB, map[string]any) {
	query := db.Model(&models.AffiliateBalance{}).Where("affiliate_id = ?", affiliateID)
	updates := map[string]any{"updated_at": now}
	for _, col := range delta.columns() {
		if col.delta == 0 {
			continue
		}
		updates[col.name] = gorm.Expr(col.name+" + ?", col.delta)
		if col.delta < 0 {
			query = query.Where(col.name+" >= ?", -col.delta)
		}
	}
	return query, updates
}

func exactlyOne(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrBalanceGuard
	}
	return nil
}
