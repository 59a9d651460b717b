package models

import (
	"time"

	"github.com/google/uuid"
)

// AffiliateBalance holds the per-affiliate balance buckets. Rows are created on the
// first ledger write for the affiliate.
type AffiliateBalance struct {
	AffiliateID         uuid.UUID  `gorm:"column:affiliate_id;type:uuid;primaryKey"`
	PendingBalance      int64      `gorm:"column:pending_balance;not null;default:0"`
	ValidatedBalance    int64      `gorm:"column:validated_balance;not null;default:0"`
	AvailableBalance    int64      `gorm:"column:available_balance;not null;default:0"`
	TotalWithdrawn      int64      `gorm:"column:total_withdrawn;not null;default:0"`
	TotalEarned         int64      `gorm:"column:total_earned;not null;default:0"`
	PendingWithdrawalID *uuid.UUID `gorm:"column:pending_withdrawal_id;type:uuid"`
	Currency            string     `gorm:"column:currency;not null"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;not null"`
}
