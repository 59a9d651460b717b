package ledger_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/db"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
)

var baseTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fixture struct {
	client *db.Client
	svc    *ledger.Service
	cfg    settings.Ledger
	now    time.Time
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
			MinimumWithdrawalAmount: 2000,
			RecruitmentWindowMonths: 6,
			ClientReferralAmount:    1000,
			RecruitmentAmount:       500,
			ProviderRecruitAmount:   500,
			ReservationMode:         config.ReservationModeOvershoot,
			Currency:                "USD",
		}),
	}

	conn := client.DB()
	svc, err := ledger.NewService(ledger.ServiceParams{
		DB:          client,
		Commissions: ledger.NewRepository(conn),
		Balances:    ledger.NewBalanceRepository(conn),
		Affiliates:  affiliates.NewRepository(conn),
		Recruitment: ledger.NewRecruitmentRepository(conn),
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Logger:      logger.Nop(),
		Now:         func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) affiliate(t *testing.T, status enums.AffiliateStatus) uuid.UUID {
	t.Helper()
	row := models.Affiliate{
		ID:          uuid.New(),
		ProgramType: enums.ProgramChatter,
		Status:      status,
		Currency:    "USD",
		CreatedAt:   baseTime,
	}
	require.NoError(t, f.client.DB().Create(&row).Error)
	return row.ID
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

func (f *fixture) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func (f *fixture) requireConsistent(t *testing.T, affiliateID uuid.UUID) {
	t.Helper()
	report, err := f.svc.CheckBalance(t.Context(), affiliateID)
	require.NoError(t, err)
	require.True(t, report.ConsistentState, "violations: %v", report.Violations)
}

func (f *fixture) referral(t *testing.T, affiliateID uuid.UUID, amount int64) *models.Commission {
	t.Helper()
	c, err := f.svc.CreateCommission(t.Context(), ledger.CreateCommissionInput{
		AffiliateID: affiliateID,
		Type:        enums.CommissionClientReferral,
		Amount:      amount,
		SourceID:    "call-" + uuid.NewString(),
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}
