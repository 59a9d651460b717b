// Package dto maps ledger models to their API shapes. Money always leaves the
// service as money.Amount so clients never guess the currency exponent.
package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/withdrawals"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	"github.com/angelmondragon/affiliate-ledger/pkg/money"
	"github.com/angelmondragon/affiliate-ledger/pkg/pagination"
)

type Balance struct {
	AffiliateID         uuid.UUID    `json:"affiliateId"`
	Pending             money.Amount `json:"pending"`
	Validated           money.Amount `json:"validated"`
	Available           money.Amount `json:"available"`
	TotalWithdrawn      money.Amount `json:"totalWithdrawn"`
	TotalEarned         money.Amount `json:"totalEarned"`
	PendingWithdrawalID *uuid.UUID   `json:"pendingWithdrawalId,omitempty"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

func NewBalance(affiliateID uuid.UUID, b *models.AffiliateBalance) Balance {
	if b == nil {
		b = &models.AffiliateBalance{AffiliateID: affiliateID}
	}
	c := b.Currency
	return Balance{
		AffiliateID:         affiliateID,
		Pending:             money.NewAmount(b.PendingBalance, c),
		Validated:           money.NewAmount(b.ValidatedBalance, c),
		Available:           money.NewAmount(b.AvailableBalance, c),
		TotalWithdrawn:      money.NewAmount(b.TotalWithdrawn, c),
		TotalEarned:         money.NewAmount(b.TotalEarned, c),
		PendingWithdrawalID: b.PendingWithdrawalID,
		UpdatedAt:           b.UpdatedAt,
	}
}

type Commission struct {
	ID                 uuid.UUID              `json:"id"`
	AffiliateID        uuid.UUID              `json:"affiliateId"`
	ProgramType        enums.ProgramType      `json:"programType"`
	Type               enums.CommissionType   `json:"type"`
	Status             enums.CommissionStatus `json:"status"`
	Amount             money.Amount           `json:"amount"`
	OriginalAmount     money.Amount           `json:"originalAmount"`
	SourceID           string                 `json:"sourceId"`
	Description        string                 `json:"description,omitempty"`
	ParentCommissionID *uuid.UUID             `json:"parentCommissionId,omitempty"`
	WithdrawalID       *uuid.UUID             `json:"withdrawalId,omitempty"`
	CancellationReason *string                `json:"cancellationReason,omitempty"`
	Metadata           json.RawMessage        `json:"metadata,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
	ValidatedAt        *time.Time             `json:"validatedAt,omitempty"`
	AvailableAt        *time.Time             `json:"availableAt,omitempty"`
	PaidAt             *time.Time             `json:"paidAt,omitempty"`
	CancelledAt        *time.Time             `json:"cancelledAt,omitempty"`
}

func NewCommission(c models.Commission) Commission {
	return Commission{
		ID:                 c.ID,
		AffiliateID:        c.AffiliateID,
		ProgramType:        c.ProgramType,
		Type:               c.Type,
		Status:             c.Status,
		Amount:             money.NewAmount(c.Amount, c.Currency),
		OriginalAmount:     money.NewAmount(c.OriginalAmount, c.Currency),
		SourceID:           c.SourceID,
		Description:        c.Description,
		ParentCommissionID: c.ParentCommissionID,
		WithdrawalID:       c.WithdrawalID,
		CancellationReason: c.CancellationReason,
		Metadata:           c.Metadata,
		CreatedAt:          c.CreatedAt,
		ValidatedAt:        c.ValidatedAt,
		AvailableAt:        c.AvailableAt,
		PaidAt:             c.PaidAt,
		CancelledAt:        c.CancelledAt,
	}
}

func NewCommissionPage(page pagination.Page[models.Commission]) pagination.Page[Commission] {
	items := make([]Commission, 0, len(page.Items))
	for _, c := range page.Items {
		items = append(items, NewCommission(c))
	}
	return pagination.Page[Commission]{Items: items, NextCursor: page.NextCursor}
}

// Withdrawal omits payment details; they are only returned on the detail view.
type Withdrawal struct {
	ID                      uuid.UUID              `json:"id"`
	AffiliateID             uuid.UUID              `json:"affiliateId"`
	Amount                  money.Amount           `json:"amount"`
	ReservedAmount          money.Amount           `json:"reservedAmount"`
	Fee                     money.Amount           `json:"fee"`
	NetAmount               money.Amount           `json:"netAmount"`
	Status                  enums.WithdrawalStatus `json:"status"`
	PaymentMethod           enums.PaymentMethod    `json:"paymentMethod"`
	PaymentDetails          json.RawMessage        `json:"paymentDetails,omitempty"`
	CommissionIDs           []uuid.UUID            `json:"commissionIds"`
	PaymentReference        *string                `json:"paymentReference,omitempty"`
	RejectionReason         *string                `json:"rejectionReason,omitempty"`
	FailureReason           *string                `json:"failureReason,omitempty"`
	AdminNote               *string                `json:"adminNote,omitempty"`
	EstimatedProcessingTime string                 `json:"estimatedProcessingTime"`
	RequestedAt             time.Time              `json:"requestedAt"`
	ApprovedAt              *time.Time             `json:"approvedAt,omitempty"`
	ProcessingAt            *time.Time             `json:"processingAt,omitempty"`
	CompletedAt             *time.Time             `json:"completedAt,omitempty"`
	RejectedAt              *time.Time             `json:"rejectedAt,omitempty"`
	FailedAt                *time.Time             `json:"failedAt,omitempty"`
}

func NewWithdrawal(w models.Withdrawal) Withdrawal {
	return Withdrawal{
		ID:                      w.ID,
		AffiliateID:             w.AffiliateID,
		Amount:                  money.NewAmount(w.Amount, w.Currency),
		ReservedAmount:          money.NewAmount(w.ReservedAmount, w.Currency),
		Fee:                     money.NewAmount(w.Fee, w.Currency),
		NetAmount:               money.NewAmount(w.NetAmount, w.Currency),
		Status:                  w.Status,
		PaymentMethod:           w.PaymentMethod,
		CommissionIDs:           []uuid.UUID(w.CommissionIDs),
		PaymentReference:        w.PaymentReference,
		RejectionReason:         w.RejectionReason,
		FailureReason:           w.FailureReason,
		AdminNote:               w.AdminNote,
		EstimatedProcessingTime: w.EstimatedProcessing,
		RequestedAt:             w.RequestedAt,
		ApprovedAt:              w.ApprovedAt,
		ProcessingAt:            w.ProcessingAt,
		CompletedAt:             w.CompletedAt,
		RejectedAt:              w.RejectedAt,
		FailedAt:                w.FailedAt,
	}
}

func NewWithdrawalPage(page pagination.Page[models.Withdrawal]) pagination.Page[Withdrawal] {
	items := make([]Withdrawal, 0, len(page.Items))
	for _, w := range page.Items {
		items = append(items, NewWithdrawal(w))
	}
	return pagination.Page[Withdrawal]{Items: items, NextCursor: page.NextCursor}
}

type StatusChange struct {
	From      *enums.WithdrawalStatus `json:"from,omitempty"`
	To        enums.WithdrawalStatus  `json:"to"`
	ActorID   *uuid.UUID              `json:"actorId,omitempty"`
	Note      *string                 `json:"note,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
}

type WithdrawalDetail struct {
	Withdrawal
	History []StatusChange `json:"history"`
}

func NewWithdrawalDetail(d *withdrawals.Detail) WithdrawalDetail {
	out := WithdrawalDetail{Withdrawal: NewWithdrawal(d.Withdrawal)}
	out.PaymentDetails = d.Withdrawal.PaymentDetails
	out.History = make([]StatusChange, 0, len(d.History))
	for _, h := range d.History {
		out.History = append(out.History, StatusChange{
			From:      h.FromStatus,
			To:        h.ToStatus,
			ActorID:   h.ActorID,
			Note:      h.Note,
			CreatedAt: h.CreatedAt,
		})
	}
	return out
}

type BalanceReport struct {
	Balance
	Reserved     money.Amount `json:"reserved"`
	PendingSum   money.Amount `json:"pendingCommissions"`
	ValidatedSum money.Amount `json:"validatedCommissions"`
	Consistent   bool         `json:"consistent"`
	Violations   []string     `json:"violations,omitempty"`
}

func NewBalanceReport(r *ledger.BalanceReport) BalanceReport {
	c := r.Balance.Currency
	return BalanceReport{
		Balance:      NewBalance(r.AffiliateID, &r.Balance),
		Reserved:     money.NewAmount(r.Reserved, c),
		PendingSum:   money.NewAmount(r.PendingSum, c),
		ValidatedSum: money.NewAmount(r.ValidatedSum, c),
		Consistent:   r.ConsistentState,
		Violations:   r.Violations,
	}
}
