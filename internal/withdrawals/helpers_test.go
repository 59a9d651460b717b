package withdrawals_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/internal/withdrawals"
	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/db"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
)

var (
	baseTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	admin    = ledger.Actor{ID: uuid.MustParse("0b7f7c1e-6d0e-4a53-9d3f-3f5a1f2d9a10"), Role: "admin"}
	paypal   = json.RawMessage(`{"email":"payouts@example.com"}`)
)

type fixture struct {
	client      *db.Client
	ledger      *ledger.Service
	withdrawals *withdrawals.Service
	cfg         settings.Ledger
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	f := &fixture{
		client: client,
		now:    baseTime,
		cfg: settings.Defaults(config.LedgerConfig{
			HoldPeriodDays:          7,
			ReleaseDelayHours:       24,
			MinimumWithdrawalAmount: 1000,
			RecruitmentWindowMonths: 6,
			ClientReferralAmount:    1000,
			RecruitmentAmount:       500,
			ProviderRecruitAmount:   500,
			ReservationMode:         config.ReservationModeOvershoot,
			Currency:                "USD",
		}),
	}
	clock := func() time.Time { return f.now }

	conn := client.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	commissions := ledger.NewRepository(conn)
	balances := ledger.NewBalanceRepository(conn)
	affiliateRepo := affiliates.NewRepository(conn)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		DB:          client,
		Commissions: commissions,
		Balances:    balances,
		Affiliates:  affiliateRepo,
		Recruitment: ledger.NewRecruitmentRepository(conn),
		Outbox:      emitter,
		Logger:      logger.Nop(),
		Now:         clock,
	})
	require.NoError(t, err)

	withdrawalSvc, err := withdrawals.NewService(withdrawals.ServiceParams{
		DB:          client,
		Withdrawals: withdrawals.NewRepository(conn),
		Commissions: commissions,
		Balances:    balances,
		Affiliates:  affiliateRepo,
		Outbox:      emitter,
		Logger:      logger.Nop(),
		Now:         clock,
	})
	require.NoError(t, err)

	f.ledger = ledgerSvc
	f.withdrawals = withdrawalSvc
	return f
}

func (f *fixture) affiliate(t *testing.T, status enums.AffiliateStatus) uuid.UUID {
	t.Helper()
	row := models.Affiliate{
		ID:          uuid.New(),
		ProgramType: enums.ProgramBlogger,
		Status:      status,
		Currency:    "USD",
		CreatedAt:   baseTime,
	}
	require.NoError(t, f.client.DB().Create(&row).Error)
	return row.ID
}

// available books commissions that are immediately withdrawable, one second
// apart so their reservation order is fixed.
func (f *fixture) available(t *testing.T, affiliateID uuid.UUID, amounts ...int64) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(amounts))
	for _, amount := range amounts {
		c, err := f.ledger.IssueManualCommission(t.Context(), affiliateID, amount, "bonus", admin)
		require.NoError(t, err)
		require.NotNil(t, c)
		ids = append(ids, c.ID)
		f.now = f.now.Add(time.Second)
	}
	return ids
}

func (f *fixture) request(t *testing.T, affiliateID uuid.UUID, amount int64) *withdrawals.RequestResult {
	t.Helper()
	res, err := f.withdrawals.RequestWithdrawal(t.Context(), f.cfg, withdrawals.RequestInput{
		AffiliateID:    affiliateID,
		Amount:         amount,
		PaymentMethod:  enums.PaymentMethodPayPal,
		PaymentDetails: paypal,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(t *testing.T, affiliateID uuid.UUID) models.AffiliateBalance {
	t.Helper()
	var row models.AffiliateBalance
	require.NoError(t, f.client.DB().Where("affiliate_id = ?", affiliateID).Take(&row).Error)
	return row
}

func (f *fixture) commission(t *testing.T, id uuid.UUID) models.Commission {
	t.Helper()
	var row models.Commission
	require.NoError(t, f.client.DB().Where("id = ?", id).Take(&row).Error)
	return row
}

func (f *fixture) statuses(t *testing.T, ids ...uuid.UUID) []enums.CommissionStatus {
	t.Helper()
	out := make([]enums.CommissionStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.commission(t, id).Status)
	}
	return out
}

func (f *fixture) requireConsistent(t *testing.T, affiliateID uuid.UUID) {
	t.Helper()
	report, err := f.ledger.CheckBalance(t.Context(), affiliateID)
	require.NoError(t, err)
	require.True(t, report.ConsistentState, "violations: %v", report.Violations)
}

// processing walks a fresh request to the processing state.
func (f *fixture) processing(t *testing.T, withdrawalID uuid.UUID) {
	t.Helper()
	_, err := f.withdrawals.Approve(t.Context(), withdrawalID, admin)
	require.NoError(t, err)
	_, err = f.withdrawals.StartProcessing(t.Context(), withdrawalID, admin)
	require.NoError(t, err)
}
