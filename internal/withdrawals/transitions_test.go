package withdrawals_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
)

func TestReject_RestoresBalanceAndCommissions(t *testing.T) {
	f := newFixture(t)
	affiliateID := f.affiliate(t, enums.AffiliateActive)
	ids := f.available(t, affiliateID, 1000, 1000, 500)
	before := f.balance(t, affiliateID)

	res := f.request(t, affiliateID, 1800)
	f.now = f.now.Add(time.Minute)
	_, err := f.withdrawals.Approve(t.Context(), res.WithdrawalID, admin)
	require.NoError(t, err)

	f.now = f.now.Add(time.Minute)
	rejected, err := f.withdrawals.Reject(t.Context(), res.WithdrawalID, "  payout details unverifiable ", admin)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalRejected, rejected.Status)
	require.NotNil(t, rejected.RejectedAt)
	require.Equal(t, "payout details unverifiable", *rejected.RejectionReason)

	after := f.balance(t, affiliateID)
	require.Equal(t, before.AvailableBalance, after.AvailableBalance)
	require.Nil(t, after.PendingWithdrawalID)
	for _, id := range ids {
		c := f.commission(t, id)
		require.Equal(t, enums.CommissionAvailable, c.Status)
		require.Nil(t, c.WithdrawalID)
		require.Nil(t, c.PaidAt)
	}
	f.requireConsistent(t, affiliateID)

	detail, err := f.withdrawals.Get(t.Context(), res.WithdrawalID, nil)
	require.NoError(t, err)
	require.Len(t, detail.History, 3)
	require.Equal(t, enums.WithdrawalApproved, *detail.History[2].FromStatus)
	require.Equal(t, admin.ID, *detail.History[2].ActorID)

	_, err = f.withdrawals.Reject(t.Context(), res.WithdrawalID, "again", admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestFail_CompensatesFromProcessing(t *testing.T) {
	f := newFixture(t)
	affiliateID := f.affiliate(t, enums.AffiliateActive)
	ids := f.available(t, affiliateID, 1500, 1500)

	res := f.request(t, affiliateID, 1500)

	_, err := f.withdrawals.Fail(t.Context(), res.WithdrawalID, "rail timeout", admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "pending cannot fail: %v", err)

	f.processing(t, res.WithdrawalID)
	_, err = f.withdrawals.Reject(t.Context(), res.WithdrawalID, "too late", admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "processing cannot be rejected: %v", err)

	failed, err := f.withdrawals.Fail(t.Context(), res.WithdrawalID, "rail timeout", admin)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalFailed, failed.Status)
	require.Equal(t, "rail timeout", *failed.FailureReason)

	balance := f.balance(t, affiliateID)
	require.Equal(t, int64(3000), balance.AvailableBalance)
	require.Nil(t, balance.PendingWithdrawalID)
	require.Equal(t, []enums.CommissionStatus{enums.CommissionAvailable, enums.CommissionAvailable}, f.statuses(t, ids...))
	f.requireConsistent(t, affiliateID)
}

func TestComplete_MovesAmountToWithdrawn(t *testing.T) {
	f := newFixture(t)
	affiliateID := f.affiliate(t, enums.AffiliateActive)
	ids := f.available(t, affiliateID, 1000, 1000, 500)
	res := f.request(t, affiliateID, 1800)

	_, err := f.withdrawals.Complete(t.Context(), res.WithdrawalID, "PAY-1", 0, admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "pending cannot complete: %v", err)

	f.processing(t, res.WithdrawalID)

	_, err = f.withdrawals.Complete(t.Context(), res.WithdrawalID, "PAY-1", 1801, admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "fee above amount: %v", err)
	_, err = f.withdrawals.Complete(t.Context(), res.WithdrawalID, " ", 0, admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	completed, err := f.withdrawals.Complete(t.Context(), res.WithdrawalID, "PAY-1", 50, admin)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalCompleted, completed.Status)
	require.Equal(t, int64(50), completed.Fee)
	require.Equal(t, int64(1750), completed.NetAmount)
	require.Equal(t, "PAY-1", *completed.PaymentReference)

	balance := f.balance(t, affiliateID)
	require.Equal(t, int64(1800), balance.TotalWithdrawn)
	require.Equal(t, int64(700), balance.AvailableBalance)
	require.Equal(t, int64(2500), balance.TotalEarned)
	require.Nil(t, balance.PendingWithdrawalID)
	require.Equal(t, []enums.CommissionStatus{enums.CommissionPaid, enums.CommissionPaid, enums.CommissionAvailable}, f.statuses(t, ids...))
	f.requireConsistent(t, affiliateID)

	for _, op := range []func() (*models.Withdrawal, error){
		func() (*models.Withdrawal, error) { return f.withdrawals.Complete(t.Context(), res.WithdrawalID, "PAY-2", 0, admin) },
		func() (*models.Withdrawal, error) { return f.withdrawals.Fail(t.Context(), res.WithdrawalID, "late", admin) },
		func() (*models.Withdrawal, error) { return f.withdrawals.Reject(t.Context(), res.WithdrawalID, "late", admin) },
		func() (*models.Withdrawal, error) { return f.withdrawals.Approve(t.Context(), res.WithdrawalID, admin) },
	} {
		_, err := op()
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "completed is terminal: %v", err)
	}

	// Paid commissions cannot be cancelled behind a completed payout.
	_, err = f.ledger.CancelCommission(t.Context(), ids[0], "chargeback", admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestMarkAsPaidManually_FromFailedReappliesReservation(t *testing.T) {
	f := newFixture(t)
	affiliateID := f.affiliate(t, enums.AffiliateActive)
	ids := f.available(t, affiliateID, 1000, 1000, 500)
	res := f.request(t, affiliateID, 1800)
	f.processing(t, res.WithdrawalID)
	_, err := f.withdrawals.Fail(t.Context(), res.WithdrawalID, "bank bounced", admin)
	require.NoError(t, err)

	paid, err := f.withdrawals.MarkAsPaidManually(t.Context(), res.WithdrawalID, "WIRE-889", "paid by hand", admin)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalCompleted, paid.Status)
	require.Equal(t, "WIRE-889", *paid.PaymentReference)
	require.Equal(t, "paid by hand", *paid.AdminNote)
	require.Equal(t, int64(1800), paid.NetAmount)

	balance := f.balance(t, affiliateID)
	require.Equal(t, int64(700), balance.AvailableBalance)
	require.Equal(t, int64(1800), balance.TotalWithdrawn)
	require.Nil(t, balance.PendingWithdrawalID)
	require.Equal(t, []enums.CommissionStatus{enums.CommissionPaid, enums.CommissionPaid, enums.CommissionAvailable}, f.statuses(t, ids...))
	require.Equal(t, res.WithdrawalID, *f.commission(t, ids[0]).WithdrawalID)
	f.requireConsistent(t, affiliateID)
}

func TestMarkAsPaidManually_RejectsWhenCommissionsWereReusedAndFromPending(t *testing.T) {
	f := newFixture(t)
	affiliateID := f.affiliate(t, enums.AffiliateActive)
	f.available(t, affiliateID, 1000, 1000, 500)

	res := f.request(t, affiliateID, 1800)
	_, err := f.withdrawals.MarkAsPaidManually(t.Context(), res.WithdrawalID, "WIRE-1", "", admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "pending cannot be marked paid: %v", err)

	f.processing(t, res.WithdrawalID)
	_, err = f.withdrawals.Fail(t.Context(), res.WithdrawalID, "bank bounced", admin)
	require.NoError(t, err)

	// A new request takes the same commissions back.
	next := f.request(t, affiliateID, 2500)

	_, err = f.withdrawals.MarkAsPaidManually(t.Context(), res.WithdrawalID, "WIRE-1", "", admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	balance := f.balance(t, affiliateID)
	require.Zero(t, balance.AvailableBalance)
	require.Equal(t, next.WithdrawalID, *balance.PendingWithdrawalID)
	f.requireConsistent(t, affiliateID)
}

func TestTransitions_UnknownWithdrawal(t *testing.T) {
	f := newFixture(t)
	_, err := f.withdrawals.Approve(t.Context(), admin.ID, admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}
