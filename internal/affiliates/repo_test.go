package affiliates_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
)

func TestRequireActive(t *testing.T) {
	client := dbtest.Open(t)
	ctx := context.Background()

	active := models.Affiliate{ID: uuid.New(), ProgramType: enums.ProgramChatter, Status: enums.AffiliateActive, Currency: "USD", CreatedAt: time.Now().UTC()}
	banned := models.Affiliate{ID: uuid.New(), ProgramType: enums.ProgramBlogger, Status: enums.AffiliateBanned, Currency: "USD", CreatedAt: time.Now().UTC()}
	require.NoError(t, client.DB().Create(&active).Error)
	require.NoError(t, client.DB().Create(&banned).Error)

	r := affiliates.NewRepository(client.DB())

	got, err := affiliates.RequireActive(ctx, r, active.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ProgramChatter, got.ProgramType)

	_, err = affiliates.RequireActive(ctx, r, banned.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = affiliates.RequireActive(ctx, r, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
