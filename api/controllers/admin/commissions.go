package admin

import (
	"net/http"

	"github.com/angelmondragon/affiliate-ledger/api/controllers/dto"
	"github.com/angelmondragon/affiliate-ledger/api/responses"
	"github.com/angelmondragon/affiliate-ledger/api/validators"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/money"
)

type manualCommissionBody struct {
	// Amount is in major units, e.g. "25.00".
	Amount string `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

func CancelCommission(svc ledgerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.ParseUUIDParam(r, "commissionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body reasonBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cancelled, err := svc.CancelCommission(ctx, id, body.Reason, actorFrom(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewCommission(*cancelled))
	}
}

// IssueManualCommission credits an affiliate immediately as available. The
// amount is parsed in the affiliate's currency, which is what it is booked in.
func IssueManualCommission(svc ledgerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		affiliateID, err := validators.ParseUUIDParam(r, "affiliateId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body manualCommissionBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		currency, err := svc.AffiliateCurrency(ctx, affiliateID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		amount, err := money.ParseMinor(body.Amount, currency)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount").
				WithDetails(map[string]any{"field": "amount"}))
			return
		}
		if amount <= 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
				WithDetails(map[string]any{"field": "amount"}))
			return
		}

		created, err := svc.IssueManualCommission(ctx, affiliateID, amount, body.Reason, actorFrom(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteCreated(w, dto.NewCommission(*created))
	}
}

// AffiliateBalance returns the balance with its invariant report.
func AffiliateBalance(svc ledgerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		affiliateID, err := validators.ParseUUIDParam(r, "affiliateId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		report, err := svc.CheckBalance(ctx, affiliateID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewBalanceReport(report))
	}
}
