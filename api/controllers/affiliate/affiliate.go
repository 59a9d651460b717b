package affiliate

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/api/controllers/dto"
	"github.com/angelmondragon/affiliate-ledger/api/middleware"
	"github.com/angelmondragon/affiliate-ledger/api/responses"
	"github.com/angelmondragon/affiliate-ledger/api/validators"
	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/internal/withdrawals"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/pagination"
)

type settingsSource interface {
	Current(ctx context.Context) (settings.Ledger, error)
}

type withdrawalService interface {
	RequestWithdrawal(ctx context.Context, cfg settings.Ledger, input withdrawals.RequestInput) (*withdrawals.RequestResult, error)
	List(ctx context.Context, input withdrawals.ListInput) (pagination.Page[models.Withdrawal], error)
	Get(ctx context.Context, id uuid.UUID, affiliateID *uuid.UUID) (*withdrawals.Detail, error)
}

type ledgerReader interface {
	GetBalance(ctx context.Context, affiliateID uuid.UUID) (*models.AffiliateBalance, error)
	ListCommissions(ctx context.Context, input ledger.ListCommissionsInput) (pagination.Page[models.Commission], error)
}

type requestWithdrawalBody struct {
	Amount         int64           `json:"amount" validate:"gt=0"`
	PaymentMethod  string          `json:"paymentMethod" validate:"required"`
	PaymentDetails json.RawMessage `json:"paymentDetails" validate:"required"`
}

// RequestWithdrawal reserves available commissions for a payout to the caller.
func RequestWithdrawal(svc withdrawalService, cfgs settingsSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		affiliateID, ok := callerAffiliate(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "affiliate context missing"))
			return
		}

		var body requestWithdrawalBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(body.PaymentMethod)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		cfg, err := cfgs.Current(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger settings"))
			return
		}

		result, err := svc.RequestWithdrawal(ctx, cfg, withdrawals.RequestInput{
			AffiliateID:    affiliateID,
			Amount:         body.Amount,
			PaymentMethod:  method,
			PaymentDetails: body.PaymentDetails,
			Actor:          actorFrom(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteCreated(w, result)
	}
}

// Balance returns the caller's balance buckets.
func Balance(svc ledgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		affiliateID, ok := callerAffiliate(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "affiliate context missing"))
			return
		}
		balance, err := svc.GetBalance(ctx, affiliateID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewBalance(affiliateID, balance))
	}
}

// Commissions pages through the caller's commission history, newest first.
// ?status filters by lifecycle state.
func Commissions(svc ledgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		affiliateID, ok := callerAffiliate(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "affiliate context missing"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		input := ledger.ListCommissionsInput{AffiliateID: affiliateID, Pagination: params}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseCommissionStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}

		page, err := svc.ListCommissions(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewCommissionPage(page))
	}
}

// Withdrawals pages through the caller's withdrawal history.
func Withdrawals(svc withdrawalService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		affiliateID, ok := callerAffiliate(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "affiliate context missing"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filter := withdrawals.ListFilter{AffiliateID: &affiliateID}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseWithdrawalStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}

		page, err := svc.List(ctx, withdrawals.ListInput{Filter: filter, Pagination: params})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewWithdrawalPage(page))
	}
}

// WithdrawalDetail returns one of the caller's withdrawals with its history.
// Other affiliates' withdrawals are reported as not found.
func WithdrawalDetail(svc withdrawalService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		affiliateID, ok := callerAffiliate(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "affiliate context missing"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "withdrawalId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		detail, err := svc.Get(ctx, id, &affiliateID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewWithdrawalDetail(detail))
	}
}

func callerAffiliate(ctx context.Context) (uuid.UUID, bool) {
	id := middleware.AffiliateIDFromContext(ctx)
	return id, id != uuid.Nil
}

func actorFrom(ctx context.Context) ledger.Actor {
	id, _ := uuid.Parse(middleware.UserIDFromContext(ctx))
	return ledger.Actor{ID: id, Role: middleware.RoleFromContext(ctx)}
}
