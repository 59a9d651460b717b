package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
)

// BalanceReport compares a balance row with the commissions and withdrawal
// that should explain it.
type BalanceReport struct {
	AffiliateID uuid.UUID               `json:"affiliate_id"`
	Balance     models.AffiliateBalance `json:"balance"`
	// Reserved is the amount of the outstanding withdrawal, if any.
	Reserved        int64    `json:"reserved"`
	PendingSum      int64    `json:"pending_commissions"`
	ValidatedSum    int64    `json:"validated_commissions"`
	Violations      []string `json:"violations,omitempty"`
	ConsistentState bool     `json:"consistent"`
}

// CheckBalance evaluates the balance invariants for one affiliate without
// mutating anything.
func (s *Service) CheckBalance(ctx context.Context, affiliateID uuid.UUID) (*BalanceReport, error) {
	balance, err := s.balances.Get(ctx, affiliateID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance")
	}
	sums, err := s.commissions.SumByStatus(ctx, affiliateID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum commissions")
	}

	report := &BalanceReport{
		AffiliateID:  affiliateID,
		Balance:      *balance,
		PendingSum:   sums[enums.CommissionPending],
		ValidatedSum: sums[enums.CommissionValidated],
	}

	if balance.PendingWithdrawalID != nil {
		withdrawal, err := s.balances.OutstandingWithdrawal(ctx, *balance.PendingWithdrawalID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load outstanding withdrawal")
		}
		if withdrawal == nil {
			report.Violations = append(report.Violations, "withdrawal lock references a missing withdrawal")
		} else {
			report.Reserved = withdrawal.Amount
			if !withdrawal.Status.Outstanding() {
				report.Violations = append(report.Violations, "withdrawal lock held by a settled withdrawal")
			}
		}
	}

	if balance.PendingBalance != report.PendingSum {
		report.Violations = append(report.Violations, "pending_balance does not match pending commissions")
	}
	if balance.ValidatedBalance != report.ValidatedSum {
		report.Violations = append(report.Violations, "validated_balance does not match validated commissions")
	}
	if balance.AvailableBalance+report.Reserved+balance.TotalWithdrawn != balance.TotalEarned {
		report.Violations = append(report.Violations, "available + reserved + withdrawn does not equal earned")
	}
	for _, v := range []int64{balance.PendingBalance, balance.ValidatedBalance, balance.AvailableBalance, balance.TotalWithdrawn, balance.TotalEarned} {
		if v < 0 {
			report.Violations = append(report.Violations, "negative balance bucket")
			break
		}
	}
	report.ConsistentState = len(report.Violations) == 0
	return report, nil
}

// ReconcileResult summarizes a reconciliation pass.
type ReconcileResult struct {
	Checked      int
	Inconsistent []uuid.UUID
}

// ReconcileBalances checks every balance row touched since the cutoff and logs
// drift. It never repairs data.
func (s *Service) ReconcileBalances(ctx context.Context, since time.Time, limit int) (ReconcileResult, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	rows, err := s.balances.ListUpdatedSince(ctx, since, limit)
	if err != nil {
		return ReconcileResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list balances")
	}

	var result ReconcileResult
	var errs error
	for _, row := range rows {
		report, err := s.CheckBalance(ctx, row.AffiliateID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		result.Checked++
		if report.ConsistentState {
			continue
		}
		result.Inconsistent = append(result.Inconsistent, row.AffiliateID)
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"affiliate_id": row.AffiliateID.String(),
			"violations":   report.Violations,
			"reserved":     report.Reserved,
		}), "balance drift detected")
	}
	s.metrics.SetBalanceDrift(len(result.Inconsistent))
	return result, errs
}
