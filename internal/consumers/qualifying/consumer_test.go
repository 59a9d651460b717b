package qualifying_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/internal/consumers/qualifying"
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

var baseTime = time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)

type memoryIdempotency struct {
	seen    map[string]bool
	deletes int
	err     error
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{seen: map[string]bool{}}
}

func (m *memoryIdempotency) CheckAndMarkProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	key := consumer + ":" + eventID
	if m.seen[key] {
		return true, nil
	}
	m.seen[key] = true
	return false, nil
}

func (m *memoryIdempotency) Delete(_ context.Context, consumer, eventID string) error {
	m.deletes++
	delete(m.seen, consumer+":"+eventID)
	return nil
}

type fixture struct {
	client   *db.Client
	ledger   *ledger.Service
	cfg      settings.Ledger
	consumer *qualifying.Consumer
	dedupe   *memoryIdempotency
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()
	cfg := settings.Defaults(config.LedgerConfig{
		HoldPeriodDays:          7,
		ReleaseDelayHours:       24,
		MinimumWithdrawalAmount: 2000,
		RecruitmentWindowMonths: 6,
		ClientReferralAmount:    1000,
		RecruitmentAmount:       2500,
		ProviderRecruitAmount:   300,
		ReservationMode:         config.ReservationModeOvershoot,
		Currency:                "USD",
	})
	svc, err := ledger.NewService(ledger.ServiceParams{
		DB:          client,
		Commissions: ledger.NewRepository(conn),
		Balances:    ledger.NewBalanceRepository(conn),
		Affiliates:  affiliates.NewRepository(conn),
		Recruitment: ledger.NewRecruitmentRepository(conn),
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Logger:      logger.Nop(),
		Now:         func() time.Time { return baseTime },
	})
	require.NoError(t, err)

	dedupe := newMemoryIdempotency()
	consumer, err := qualifying.NewConsumer(qualifying.ConsumerParams{
		Ledger:      svc,
		Affiliates:  affiliates.NewRepository(conn),
		Settings:    settings.Static(cfg),
		Idempotency: dedupe,
		Logger:      logger.Nop(),
	})
	require.NoError(t, err)
	return &fixture{client: client, ledger: svc, cfg: cfg, consumer: consumer, dedupe: dedupe}
}

func (f *fixture) affiliate(t *testing.T) uuid.UUID {
	t.Helper()
	return f.affiliateWithStatus(t, enums.AffiliateActive)
}

func (f *fixture) affiliateWithStatus(t *testing.T, status enums.AffiliateStatus) uuid.UUID {
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

func (f *fixture) deliver(t *testing.T, eventType qualifying.EventType, payload any) bool {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return f.consumer.Handle(t.Context(), uuid.NewString(), map[string]string{"event_type": string(eventType)}, data)
}

func (f *fixture) commissions(t *testing.T, affiliateID uuid.UUID) []models.Commission {
	t.Helper()
	var rows []models.Commission
	require.NoError(t, f.client.DB().Where("affiliate_id = ?", affiliateID).Order("created_at, id").Find(&rows).Error)
	return rows
}

func TestCallCompletedCreditsReferrerAndProviderRecruiter(t *testing.T) {
	f := newFixture(t)
	referrer := f.affiliate(t)
	recruiter := f.affiliate(t)
	provider := uuid.New()

	require.True(t, f.deliver(t, qualifying.EventRecruitRegistered, qualifying.RecruitRegistered{
		EventID:     uuid.NewString(),
		RecruiterID: recruiter,
		RecruitID:   provider,
		RecruitKind: enums.RecruitProvider,
	}))

	call := qualifying.CallCompleted{
		EventID:             uuid.NewString(),
		CallID:              "call-001",
		ClientID:            uuid.New(),
		ProviderID:          provider,
		ReferrerAffiliateID: &referrer,
		ProviderRecruiterID: &recruiter,
		Currency:            "usd",
		CapturedAmount:      4200,
	}
	require.True(t, f.deliver(t, qualifying.EventCallCompleted, call))

	referral := f.commissions(t, referrer)
	require.Len(t, referral, 1)
	require.Equal(t, enums.CommissionClientReferral, referral[0].Type)
	require.Equal(t, int64(1000), referral[0].Amount)
	require.Equal(t, "call-001", referral[0].SourceID)

	recruited := f.commissions(t, recruiter)
	require.Len(t, recruited, 1)
	require.Equal(t, enums.CommissionProviderRecruitment, recruited[0].Type)
	require.Equal(t, int64(300), recruited[0].Amount)

	// Redelivery of the same event and a re-published copy with a new event id
	// both leave the ledger untouched.
	require.True(t, f.deliver(t, qualifying.EventCallCompleted, call))
	call.EventID = uuid.NewString()
	require.True(t, f.deliver(t, qualifying.EventCallCompleted, call))
	require.Len(t, f.commissions(t, referrer), 1)
	require.Len(t, f.commissions(t, recruiter), 1)
}

func TestCallCompletedCreditsRecruiterWhenReferrerBlocked(t *testing.T) {
	f := newFixture(t)
	referrer := f.affiliateWithStatus(t, enums.AffiliateBlocked)
	recruiter := f.affiliate(t)
	provider := uuid.New()

	require.True(t, f.deliver(t, qualifying.EventRecruitRegistered, qualifying.RecruitRegistered{
		EventID:     uuid.NewString(),
		RecruiterID: recruiter,
		RecruitID:   provider,
		RecruitKind: enums.RecruitProvider,
	}))

	acked := f.deliver(t, qualifying.EventCallCompleted, qualifying.CallCompleted{
		EventID:             uuid.NewString(),
		CallID:              "call-blocked",
		ClientID:            uuid.New(),
		ProviderID:          provider,
		ReferrerAffiliateID: &referrer,
		ProviderRecruiterID: &recruiter,
		Currency:            "USD",
		CapturedAmount:      4200,
	})
	require.True(t, acked)
	require.Empty(t, f.commissions(t, referrer))

	recruited := f.commissions(t, recruiter)
	require.Len(t, recruited, 1)
	require.Equal(t, enums.CommissionProviderRecruitment, recruited[0].Type)
	require.Zero(t, f.dedupe.deletes)
}

// flakyLedger fails one commission type and passes everything else through.
type flakyLedger struct {
	*ledger.Service
	failType enums.CommissionType
	err      error
}

func (l *flakyLedger) CreateCommission(ctx context.Context, input ledger.CreateCommissionInput) (*models.Commission, error) {
	if l.err != nil && input.Type == l.failType {
		return nil, l.err
	}
	return l.Service.CreateCommission(ctx, input)
}

func TestCallCompletedTransientReferralFailureNacksAfterCreditingRecruiter(t *testing.T) {
	f := newFixture(t)
	referrer := f.affiliate(t)
	recruiter := f.affiliate(t)
	provider := uuid.New()

	require.True(t, f.deliver(t, qualifying.EventRecruitRegistered, qualifying.RecruitRegistered{
		EventID:     uuid.NewString(),
		RecruiterID: recruiter,
		RecruitID:   provider,
		RecruitKind: enums.RecruitProvider,
	}))

	flaky := &flakyLedger{Service: f.ledger, failType: enums.CommissionClientReferral, err: errors.New("connection reset")}
	dedupe := newMemoryIdempotency()
	consumer, err := qualifying.NewConsumer(qualifying.ConsumerParams{
		Ledger:      flaky,
		Affiliates:  affiliates.NewRepository(f.client.DB()),
		Settings:    settings.Static(f.cfg),
		Idempotency: dedupe,
		Logger:      logger.Nop(),
	})
	require.NoError(t, err)

	data, err := json.Marshal(qualifying.CallCompleted{
		EventID:             "evt-mixed",
		CallID:              "call-mixed",
		ClientID:            uuid.New(),
		ProviderID:          provider,
		ReferrerAffiliateID: &referrer,
		ProviderRecruiterID: &recruiter,
		Currency:            "USD",
		CapturedAmount:      4200,
	})
	require.NoError(t, err)
	attrs := map[string]string{"event_type": string(qualifying.EventCallCompleted)}

	require.False(t, consumer.Handle(t.Context(), "m-mixed", attrs, data))
	require.Equal(t, 1, dedupe.deletes)
	require.Empty(t, f.commissions(t, referrer))
	require.Len(t, f.commissions(t, recruiter), 1)

	flaky.err = nil
	require.True(t, consumer.Handle(t.Context(), "m-mixed", attrs, data))
	require.Len(t, f.commissions(t, referrer), 1)
	require.Len(t, f.commissions(t, recruiter), 1)
}

func TestThresholdReachedPaysRecruitmentOnce(t *testing.T) {
	f := newFixture(t)
	recruiter := f.affiliate(t)
	recruit := uuid.New()

	require.True(t, f.deliver(t, qualifying.EventRecruitRegistered, qualifying.RecruitRegistered{
		EventID:     uuid.NewString(),
		RecruiterID: recruiter,
		RecruitID:   recruit,
		RecruitKind: enums.RecruitPeer,
	}))
	for i := 0; i < 2; i++ {
		require.True(t, f.deliver(t, qualifying.EventRecruitThresholdReached, qualifying.RecruitThresholdReached{
			EventID:     uuid.NewString(),
			RecruiterID: recruiter,
			RecruitID:   recruit,
		}))
	}

	rows := f.commissions(t, recruiter)
	require.Len(t, rows, 1)
	require.Equal(t, enums.CommissionRecruitment, rows[0].Type)
	require.Equal(t, int64(2500), rows[0].Amount)

	var window models.RecruitmentWindow
	require.NoError(t, f.client.DB().Where("recruiter_id = ? AND recruit_id = ?", recruiter, recruit).Take(&window).Error)
	require.True(t, window.CommissionPaid)
	require.NotNil(t, window.PaidCommissionID)
	require.Equal(t, rows[0].ID, *window.PaidCommissionID)
}

func TestRejectedEventsAreAcked(t *testing.T) {
	f := newFixture(t)
	unknown := uuid.New()

	cases := map[string]struct {
		eventType qualifying.EventType
		payload   any
	}{
		"unknown referrer": {qualifying.EventCallCompleted, qualifying.CallCompleted{
			EventID: uuid.NewString(), CallID: "call-x", ReferrerAffiliateID: &unknown,
		}},
		"missing call id": {qualifying.EventCallCompleted, qualifying.CallCompleted{EventID: uuid.NewString()}},
		"threshold without window": {qualifying.EventRecruitThresholdReached, qualifying.RecruitThresholdReached{
			EventID: uuid.NewString(), RecruiterID: f.affiliate(t), RecruitID: uuid.New(),
		}},
		"bad recruit kind": {qualifying.EventRecruitRegistered, map[string]any{
			"eventId": uuid.NewString(), "recruiterId": f.affiliate(t), "recruitId": uuid.New(), "recruitKind": "cousin",
		}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.True(t, f.deliver(t, tc.eventType, tc.payload))
		})
	}

	var n int64
	require.NoError(t, f.client.DB().Model(&models.Commission{}).Count(&n).Error)
	require.Zero(t, n)
	require.Zero(t, f.dedupe.deletes)
}

func TestMalformedAndForeignEventsAreAcked(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.consumer.Handle(t.Context(), "m-1", map[string]string{"event_type": string(qualifying.EventCallCompleted)}, []byte("{not json")))
	require.True(t, f.deliver(t, qualifying.EventType("order.created"), map[string]any{"eventId": uuid.NewString()}))
	require.Empty(t, f.dedupe.seen)
}

func TestIdempotencyFailureNacks(t *testing.T) {
	f := newFixture(t)
	f.dedupe.err = errors.New("redis down")
	referrer := f.affiliate(t)

	ok := f.deliver(t, qualifying.EventCallCompleted, qualifying.CallCompleted{
		EventID: uuid.NewString(), CallID: "call-002", ReferrerAffiliateID: &referrer,
	})
	require.False(t, ok)
	require.Empty(t, f.commissions(t, referrer))
}

type failingLedger struct {
	err error
}

func (l failingLedger) CreateCommission(context.Context, ledger.CreateCommissionInput) (*models.Commission, error) {
	return nil, l.err
}

func (l failingLedger) OpenRecruitmentWindow(context.Context, settings.Ledger, ledger.OpenRecruitmentInput) (*models.RecruitmentWindow, error) {
	return nil, l.err
}

func TestTransientFailureClearsMarkAndNacks(t *testing.T) {
	f := newFixture(t)
	referrer := f.affiliate(t)
	dedupe := newMemoryIdempotency()
	consumer, err := qualifying.NewConsumer(qualifying.ConsumerParams{
		Ledger:      failingLedger{err: errors.New("connection reset")},
		Affiliates:  affiliates.NewRepository(f.client.DB()),
		Settings:    settings.Static(settings.Ledger{CommissionAmounts: map[enums.CommissionType]int64{enums.CommissionClientReferral: 100}}),
		Idempotency: dedupe,
		Logger:      logger.Nop(),
	})
	require.NoError(t, err)

	data, err := json.Marshal(qualifying.CallCompleted{EventID: "evt-1", CallID: "call-003", ReferrerAffiliateID: &referrer})
	require.NoError(t, err)
	attrs := map[string]string{"event_type": string(qualifying.EventCallCompleted)}

	require.False(t, consumer.Handle(t.Context(), "m-2", attrs, data))
	require.Equal(t, 1, dedupe.deletes)
	require.Empty(t, dedupe.seen)
}
