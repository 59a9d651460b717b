package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	return count
}

func TestWithTx_CommitsAndRollsBack(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))
	require.EqualValues(t, 1, countRows(t, db))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	require.EqualValues(t, 1, countRows(t, db))
}

func TestWithRetryableTx_ReplaysSerializationFailures(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)
	client.txRetryBase = time.Millisecond

	attempts := 0
	err := client.WithRetryableTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if err := tx.Create(&testModel{Name: fmt.Sprintf("attempt-%d", attempts)}).Error; err != nil {
			return err
		}
		if attempts < 3 {
			return &pgconn.PgError{Code: sqlStateSerializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.EqualValues(t, 1, countRows(t, db))
}

func TestWithRetryableTx_DoesNotReplayOtherErrors(t *testing.T) {
	client := Wrap(newTestDB(t))

	attempts := 0
	sentinel := errors.New("insufficient balance")
	err := client.WithRetryableTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, attempts)
}

func TestWithRetryableTx_GivesUpAfterMaxRetries(t *testing.T) {
	client := Wrap(newTestDB(t))
	client.txRetryBase = time.Millisecond
	client.txMaxRetries = 2

	attempts := 0
	err := client.WithRetryableTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: sqlStateDeadlockDetected}
	})
	require.True(t, IsRetryableTxError(err))
	require.Equal(t, 3, attempts)
}

func TestErrorClassification(t *testing.T) {
	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "idx_commissions_source"}, "idx_commissions_source"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "other"}, "idx_commissions_source"))
	require.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: commissions.affiliate_id"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
	require.False(t, IsRetryableTxError(&pgconn.PgError{Code: "23505"}))
	require.True(t, IsNotFound(fmt.Errorf("load: %w", gorm.ErrRecordNotFound)))
}

func TestPing(t *testing.T) {
	require.NoError(t, Wrap(newTestDB(t)).Ping(context.Background()))
}
