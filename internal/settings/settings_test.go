package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	"github.com/angelmondragon/affiliate-ledger/pkg/redis"
)

type fakeStore struct {
	value string
	err   error
	reads int
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	f.reads++
	return f.value, f.err
}

func (f *fakeStore) SettingsKey(name string) string { return "afl:settings:" + name }

func testLedgerConfig() config.LedgerConfig {
	return config.LedgerConfig{
		HoldPeriodDays:          7,
		ReleaseDelayHours:       24,
		MinimumWithdrawalAmount: 2000,
		RecruitmentWindowMonths: 6,
		ClientReferralAmount:    1000,
		RecruitmentAmount:       500,
		ProviderRecruitAmount:   500,
		ReservationMode:         "overshoot",
		Currency:                "usd",
		SettingsKey:             "ledger",
		SettingsCacheTTL:        time.Minute,
	}
}

func TestProviderServesDefaultsWhenDocumentMissing(t *testing.T) {
	store := &fakeStore{err: redis.Nil}
	p, err := NewProvider(store, testLedgerConfig(), nil)
	require.NoError(t, err)

	got, err := p.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, got.HoldPeriodDays)
	require.Equal(t, "USD", got.Currency)
	amount, ok := got.AmountFor(enums.ProgramBlogger, enums.CommissionClientReferral)
	require.True(t, ok)
	require.Equal(t, int64(1000), amount)
}

func TestProviderMergesDocumentAndCaches(t *testing.T) {
	store := &fakeStore{value: `{"holdPeriodDays":3,"reservationMode":"split","programOverrides":{"influencer":{"client_referral":1500}}}`}
	p, err := NewProvider(store, testLedgerConfig(), nil)
	require.NoError(t, err)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	got, err := p.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, got.HoldPeriodDays)
	require.Equal(t, 24, got.ReleaseDelayHours)
	require.True(t, got.SplitReservations())
	amount, _ := got.AmountFor(enums.ProgramInfluencer, enums.CommissionClientReferral)
	require.Equal(t, int64(1500), amount)
	amount, _ = got.AmountFor(enums.ProgramChatter, enums.CommissionClientReferral)
	require.Equal(t, int64(1000), amount)

	_, _ = p.Current(context.Background())
	require.Equal(t, 1, store.reads)

	now = now.Add(2 * time.Minute)
	_, _ = p.Current(context.Background())
	require.Equal(t, 2, store.reads)
}

func TestProviderAppliesExplicitZeroDelays(t *testing.T) {
	store := &fakeStore{value: `{"holdPeriodDays":0,"releaseDelayHours":0}`}
	p, err := NewProvider(store, testLedgerConfig(), nil)
	require.NoError(t, err)

	got, err := p.Current(context.Background())
	require.NoError(t, err)
	require.Zero(t, got.HoldPeriodDays)
	require.Zero(t, got.ReleaseDelayHours)
	require.Equal(t, time.Duration(0), got.HoldPeriod())
	require.Equal(t, int64(2000), got.MinimumWithdrawalAmount)
}

func TestProviderRejectsExplicitZeroMinimum(t *testing.T) {
	store := &fakeStore{value: `{"minimumWithdrawalAmount":0}`}
	p, err := NewProvider(store, testLedgerConfig(), nil)
	require.NoError(t, err)

	got, err := p.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2000), got.MinimumWithdrawalAmount)
}

func TestProviderFallsBackOnStoreErrors(t *testing.T) {
	store := &fakeStore{value: `{"minimumWithdrawalAmount":5000}`}
	p, err := NewProvider(store, testLedgerConfig(), nil)
	require.NoError(t, err)
	now := time.Now()
	p.now = func() time.Time { return now }

	first, err := p.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5000), first.MinimumWithdrawalAmount)

	store.err = errors.New("connection refused")
	now = now.Add(time.Hour)
	second, err := p.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5000), second.MinimumWithdrawalAmount)
}

func TestProviderRejectsInvalidDocument(t *testing.T) {
	store := &fakeStore{value: `{"reservationMode":"greedy"}`}
	p, err := NewProvider(store, testLedgerConfig(), nil)
	require.NoError(t, err)

	got, err := p.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, config.ReservationModeOvershoot, got.ReservationMode)
}

func TestLedgerHelpers(t *testing.T) {
	l := Defaults(testLedgerConfig())
	require.Equal(t, 7*24*time.Hour, l.HoldPeriod())
	require.Equal(t, 24*time.Hour, l.ReleaseDelay())
	from := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, from.AddDate(0, 6, 0), l.RecruitmentWindowEnd(from))
	require.Equal(t, "1-2 business days", l.EstimatedProcessingFor(enums.PaymentMethodPayPal))
	require.Equal(t, defaultEstimatedProcessing, l.EstimatedProcessingFor("carrier_pigeon"))
}
