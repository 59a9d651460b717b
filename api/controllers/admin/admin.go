// Package admin holds the back-office handlers. Every route here sits behind
// RequireRole(admin); the acting admin is recorded on each ledger write.
package admin

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/api/middleware"
	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/withdrawals"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/pagination"
)

type withdrawalService interface {
	Approve(ctx context.Context, id uuid.UUID, actor ledger.Actor) (*models.Withdrawal, error)
	StartProcessing(ctx context.Context, id uuid.UUID, actor ledger.Actor) (*models.Withdrawal, error)
	Complete(ctx context.Context, id uuid.UUID, paymentReference string, fee int64, actor ledger.Actor) (*models.Withdrawal, error)
	Reject(ctx context.Context, id uuid.UUID, reason string, actor ledger.Actor) (*models.Withdrawal, error)
	Fail(ctx context.Context, id uuid.UUID, reason string, actor ledger.Actor) (*models.Withdrawal, error)
	MarkAsPaidManually(ctx context.Context, id uuid.UUID, externalReference, note string, actor ledger.Actor) (*models.Withdrawal, error)
	List(ctx context.Context, input withdrawals.ListInput) (pagination.Page[models.Withdrawal], error)
	Get(ctx context.Context, id uuid.UUID, affiliateID *uuid.UUID) (*withdrawals.Detail, error)
}

type ledgerService interface {
	CancelCommission(ctx context.Context, id uuid.UUID, reason string, actor ledger.Actor) (*models.Commission, error)
	IssueManualCommission(ctx context.Context, affiliateID uuid.UUID, amount int64, reason string, actor ledger.Actor) (*models.Commission, error)
	CheckBalance(ctx context.Context, affiliateID uuid.UUID) (*ledger.BalanceReport, error)
	AffiliateCurrency(ctx context.Context, affiliateID uuid.UUID) (string, error)
}

func actorFrom(ctx context.Context) ledger.Actor {
	id, _ := uuid.Parse(middleware.UserIDFromContext(ctx))
	return ledger.Actor{ID: id, Role: middleware.RoleFromContext(ctx)}
}
