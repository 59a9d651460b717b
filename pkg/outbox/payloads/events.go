// Package payloads defines the JSON bodies of ledger domain events.
package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
)

type CommissionCreatedEvent struct {
	CommissionID uuid.UUID              `json:"commission_id"`
	AffiliateID  uuid.UUID              `json:"affiliate_id"`
	ProgramType  enums.ProgramType      `json:"program_type"`
	Type         enums.CommissionType   `json:"type"`
	Status       enums.CommissionStatus `json:"status"`
	Amount       int64                  `json:"amount"`
	Currency     string                 `json:"currency"`
	SourceID     string                 `json:"source_id"`
}

type CommissionStatusChangedEvent struct {
	CommissionID uuid.UUID              `json:"commission_id"`
	AffiliateID  uuid.UUID              `json:"affiliate_id"`
	From         enums.CommissionStatus `json:"from"`
	To           enums.CommissionStatus `json:"to"`
	Amount       int64                  `json:"amount"`
	ChangedAt    time.Time              `json:"changed_at"`
}

type CommissionCancelledEvent struct {
	CommissionID uuid.UUID              `json:"commission_id"`
	AffiliateID  uuid.UUID              `json:"affiliate_id"`
	From         enums.CommissionStatus `json:"from"`
	Amount       int64                  `json:"amount"`
	Reason       string                 `json:"reason"`
}

type WithdrawalRequestedEvent struct {
	WithdrawalID   uuid.UUID           `json:"withdrawal_id"`
	AffiliateID    uuid.UUID           `json:"affiliate_id"`
	Amount         int64               `json:"amount"`
	ReservedAmount int64               `json:"reserved_amount"`
	Currency       string              `json:"currency"`
	PaymentMethod  enums.PaymentMethod `json:"payment_method"`
	CommissionIDs  []uuid.UUID         `json:"commission_ids"`
}

type WithdrawalStatusChangedEvent struct {
	WithdrawalID uuid.UUID              `json:"withdrawal_id"`
	AffiliateID  uuid.UUID              `json:"affiliate_id"`
	From         enums.WithdrawalStatus `json:"from"`
	To           enums.WithdrawalStatus `json:"to"`
	Amount       int64                  `json:"amount"`
	Reason       string                 `json:"reason,omitempty"`
	Reference    string                 `json:"payment_reference,omitempty"`
}
