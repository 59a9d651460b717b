package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
)

// Commission is a single earned amount for an affiliate. One row type serves every
// program; ProgramType is the discriminant.
type Commission struct {
	ID                 uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	AffiliateID        uuid.UUID              `gorm:"column:affiliate_id;type:uuid;not null;uniqueIndex:idx_commissions_source,where:status <> 'cancelled';index:idx_commissions_affiliate_status,priority:1"`
	ProgramType        enums.ProgramType      `gorm:"column:program_type;not null"`
	Type               enums.CommissionType   `gorm:"column:type;not null;uniqueIndex:idx_commissions_source,where:status <> 'cancelled'"`
	Status             enums.CommissionStatus `gorm:"column:status;not null;index:idx_commissions_affiliate_status,priority:2"`
	Amount             int64                  `gorm:"column:amount;not null"`
	OriginalAmount     int64                  `gorm:"column:original_amount;not null"`
	Currency           string                 `gorm:"column:currency;not null"`
	SourceID           string                 `gorm:"column:source_id;not null;uniqueIndex:idx_commissions_source,where:status <> 'cancelled'"`
	Description        string                 `gorm:"column:description;not null;default:''"`
	ParentCommissionID *uuid.UUID             `gorm:"column:parent_commission_id;type:uuid"`
	WithdrawalID       *uuid.UUID             `gorm:"column:withdrawal_id;type:uuid"`
	CancellationReason *string                `gorm:"column:cancellation_reason"`
	Metadata           json.RawMessage        `gorm:"column:metadata;type:jsonb"`
	CreatedAt          time.Time              `gorm:"column:created_at;not null"`
	ValidatedAt        *time.Time             `gorm:"column:validated_at"`
	AvailableAt        *time.Time             `gorm:"column:available_at"`
	PaidAt             *time.Time             `gorm:"column:paid_at"`
	CancelledAt        *time.Time             `gorm:"column:cancelled_at"`
	UpdatedAt          time.Time              `gorm:"column:updated_at;not null"`
}
