package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/api/controllers/dto"
	"github.com/angelmondragon/affiliate-ledger/api/responses"
	"github.com/angelmondragon/affiliate-ledger/api/validators"
	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/withdrawals"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
)

type reasonBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type completeBody struct {
	PaymentReference string `json:"paymentReference" validate:"required,max=200"`
	Fee              int64  `json:"fee" validate:"gte=0"`
}

type markPaidBody struct {
	ExternalReference string `json:"externalReference" validate:"required,max=200"`
	Note              string `json:"note" validate:"max=500"`
}

// transitionFunc runs one state machine edge with a decoded request body.
type transitionFunc func(ctx context.Context, id uuid.UUID, r *http.Request, actor ledger.Actor) (*models.Withdrawal, error)

func withdrawalTransition(logg *logger.Logger, run transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.ParseUUIDParam(r, "withdrawalId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		updated, err := run(ctx, id, r, actorFrom(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewWithdrawal(*updated))
	}
}

func ApproveWithdrawal(svc withdrawalService, logg *logger.Logger) http.HandlerFunc {
	return withdrawalTransition(logg, func(ctx context.Context, id uuid.UUID, _ *http.Request, actor ledger.Actor) (*models.Withdrawal, error) {
		return svc.Approve(ctx, id, actor)
	})
}

func StartProcessingWithdrawal(svc withdrawalService, logg *logger.Logger) http.HandlerFunc {
	return withdrawalTransition(logg, func(ctx context.Context, id uuid.UUID, _ *http.Request, actor ledger.Actor) (*models.Withdrawal, error) {
		return svc.StartProcessing(ctx, id, actor)
	})
}

// CompleteWithdrawal records the payout reference and fee (minor units).
func CompleteWithdrawal(svc withdrawalService, logg *logger.Logger) http.HandlerFunc {
	return withdrawalTransition(logg, func(ctx context.Context, id uuid.UUID, r *http.Request, actor ledger.Actor) (*models.Withdrawal, error) {
		var body completeBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Complete(ctx, id, body.PaymentReference, body.Fee, actor)
	})
}

func RejectWithdrawal(svc withdrawalService, logg *logger.Logger) http.HandlerFunc {
	return withdrawalTransition(logg, func(ctx context.Context, id uuid.UUID, r *http.Request, actor ledger.Actor) (*models.Withdrawal, error) {
		var body reasonBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Reject(ctx, id, body.Reason, actor)
	})
}

func FailWithdrawal(svc withdrawalService, logg *logger.Logger) http.HandlerFunc {
	return withdrawalTransition(logg, func(ctx context.Context, id uuid.UUID, r *http.Request, actor ledger.Actor) (*models.Withdrawal, error) {
		var body reasonBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Fail(ctx, id, body.Reason, actor)
	})
}

// MarkWithdrawalPaid settles a failed or processing withdrawal that was paid
// outside the payout rail.
func MarkWithdrawalPaid(svc withdrawalService, logg *logger.Logger) http.HandlerFunc {
	return withdrawalTransition(logg, func(ctx context.Context, id uuid.UUID, r *http.Request, actor ledger.Actor) (*models.Withdrawal, error) {
		var body markPaidBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.MarkAsPaidManually(ctx, id, body.ExternalReference, body.Note, actor)
	})
}

// ListWithdrawals is the review queue. ?status and ?affiliateId filter it.
func ListWithdrawals(svc withdrawalService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var filter withdrawals.ListFilter
		query := r.URL.Query()
		if raw := strings.TrimSpace(query.Get("status")); raw != "" {
			status, err := enums.ParseWithdrawalStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}
		if raw := strings.TrimSpace(query.Get("affiliateId")); raw != "" {
			affiliateID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid affiliateId"))
				return
			}
			filter.AffiliateID = &affiliateID
		}

		page, err := svc.List(ctx, withdrawals.ListInput{Filter: filter, Pagination: params})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewWithdrawalPage(page))
	}
}

func WithdrawalDetail(svc withdrawalService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.ParseUUIDParam(r, "withdrawalId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		detail, err := svc.Get(ctx, id, nil)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewWithdrawalDetail(detail))
	}
}
