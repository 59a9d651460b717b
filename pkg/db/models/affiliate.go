package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
)

// Affiliate is owned by the registration flow; the ledger only reads it.
type Affiliate struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ProgramType enums.ProgramType     `gorm:"column:program_type;not null"`
	Status      enums.AffiliateStatus `gorm:"column:status;not null"`
	Currency    string                `gorm:"column:currency;not null"`
	CreatedAt   time.Time             `gorm:"column:created_at;not null"`
}

// RecruitmentWindow bounds the period in which a recruiter earns from a recruit.
type RecruitmentWindow struct {
	ID                  uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	RecruiterID         uuid.UUID         `gorm:"column:recruiter_id;type:uuid;not null;uniqueIndex:idx_recruitment_windows_pair"`
	RecruitID           uuid.UUID         `gorm:"column:recruit_id;type:uuid;not null;uniqueIndex:idx_recruitment_windows_pair"`
	RecruitKind         enums.RecruitKind `gorm:"column:recruit_kind;not null"`
	CommissionWindowEnd time.Time         `gorm:"column:commission_window_end;not null"`
	CommissionPaid      bool              `gorm:"column:commission_paid;not null;default:false"`
	PaidCommissionID    *uuid.UUID        `gorm:"column:paid_commission_id;type:uuid"`
	CreatedAt           time.Time         `gorm:"column:created_at;not null"`
}

// OpenAt reports whether the window still accepts commissions at now.
func (w RecruitmentWindow) OpenAt(now time.Time) bool {
	return now.Before(w.CommissionWindowEnd)
}
