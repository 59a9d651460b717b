package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/affiliate-ledger/pkg/db/dbtest"
)

func TestBalanceRepositoryGuards(t *testing.T) {
	client := dbtest.Open(t)
	r := NewBalanceRepository(client.DB())
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	affiliateID := uuid.New()

	require.NoError(t, r.Ensure(ctx, affiliateID, "USD", now))
	require.NoError(t, r.Ensure(ctx, affiliateID, "USD", now))
	require.NoError(t, r.Apply(ctx, affiliateID, Delta{Available: 1000, Earned: 1000}, now))

	err := r.Apply(ctx, affiliateID, Delta{Available: -1001}, now)
	require.ErrorIs(t, err, ErrBalanceGuard)

	withdrawalID := uuid.New()
	require.NoError(t, r.Reserve(ctx, affiliateID, withdrawalID, 600, now))
	require.ErrorIs(t, r.Reserve(ctx, affiliateID, uuid.New(), 100, now), ErrBalanceGuard)

	got, err := r.Get(ctx, affiliateID)
	require.NoError(t, err)
	require.Equal(t, int64(400), got.AvailableBalance)
	require.Equal(t, withdrawalID, *got.PendingWithdrawalID)

	// Releasing with a different id leaves the lock alone.
	require.NoError(t, r.Release(ctx, affiliateID, uuid.New(), Delta{}, now))
	got, _ = r.Get(ctx, affiliateID)
	require.NotNil(t, got.PendingWithdrawalID)

	require.NoError(t, r.Release(ctx, affiliateID, withdrawalID, Delta{Available: 600}, now))
	got, _ = r.Get(ctx, affiliateID)
	require.Nil(t, got.PendingWithdrawalID)
	require.Equal(t, int64(1000), got.AvailableBalance)

	require.ErrorIs(t, r.Apply(ctx, uuid.New(), Delta{Pending: 1}, now), ErrBalanceGuard)
}

func TestDeltaNegate(t *testing.T) {
	d := Delta{Pending: 1, Validated: -2, Available: 3, Withdrawn: -4, Earned: 5}
	require.Equal(t, Delta{Pending: -1, Validated: 2, Available: -3, Withdrawn: 4, Earned: -5}, d.Negate())
}
