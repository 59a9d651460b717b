package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/affiliate-ledger/pkg/db/types"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
)

// Withdrawal is an affiliate's request to be paid out. CommissionIDs lists the
// commissions reserved (moved to paid) when the request was accepted.
type Withdrawal struct {
	ID                  uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	AffiliateID         uuid.UUID              `gorm:"column:affiliate_id;type:uuid;not null;index"`
	Amount              int64                  `gorm:"column:amount;not null"`
	ReservedAmount      int64                  `gorm:"column:reserved_amount;not null"`
	Fee                 int64                  `gorm:"column:fee;not null;default:0"`
	NetAmount           int64                  `gorm:"column:net_amount;not null;default:0"`
	Currency            string                 `gorm:"column:currency;not null"`
	Status              enums.WithdrawalStatus `gorm:"column:status;not null"`
	PaymentMethod       enums.PaymentMethod    `gorm:"column:payment_method;not null"`
	PaymentDetails      json.RawMessage        `gorm:"column:payment_details;type:jsonb;not null"`
	CommissionIDs       dbtypes.UUIDArray      `gorm:"column:commission_ids;not null"`
	PaymentReference    *string                `gorm:"column:payment_reference"`
	RejectionReason     *string                `gorm:"column:rejection_reason"`
	FailureReason       *string                `gorm:"column:failure_reason"`
	AdminNote           *string                `gorm:"column:admin_note"`
	EstimatedProcessing string                 `gorm:"column:estimated_processing;not null"`
	RequestedAt         time.Time              `gorm:"column:requested_at;not null"`
	ApprovedAt          *time.Time             `gorm:"column:approved_at"`
	ProcessingAt        *time.Time             `gorm:"column:processing_at"`
	CompletedAt         *time.Time             `gorm:"column:completed_at"`
	RejectedAt          *time.Time             `gorm:"column:rejected_at"`
	FailedAt            *time.Time             `gorm:"column:failed_at"`
	UpdatedAt           time.Time              `gorm:"column:updated_at;not null"`
}

// WithdrawalStatusHistory is an append-only audit trail of withdrawal transitions.
type WithdrawalStatusHistory struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	WithdrawalID uuid.UUID               `gorm:"column:withdrawal_id;type:uuid;not null;index"`
	FromStatus   *enums.WithdrawalStatus `gorm:"column:from_status"`
	ToStatus     enums.WithdrawalStatus  `gorm:"column:to_status;not null"`
	ActorID      *uuid.UUID              `gorm:"column:actor_id;type:uuid"`
	Note         *string                 `gorm:"column:note"`
	CreatedAt    time.Time               `gorm:"column:created_at;not null"`
}

func (WithdrawalStatusHistory) TableName() string {
	return "withdrawal_status_history"
}
