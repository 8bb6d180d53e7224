package credits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/greenledger/greenledger/pkg/db"
)

func newCredit(userID, emissionID string, credits, value float64, at time.Time) *CreditRecord {
	return &CreditRecord{
		ID:            uuid.New().String(),
		EmissionID:    emissionID,
		UserID:        userID,
		Category:      "electricity",
		CreditsEarned: credits,
		CreditValue:   value,
		MarketRate:    2500,
		Currency:      "INR",
		Status:        StatusPending,
		EarnedAt:      at,
	}
}

func TestStore_IssueAccumulatesMonthlyAggregate(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	march := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i, c := range []*CreditRecord{
		newCredit("u1", "e1", 1.5, 3750, march),
		newCredit("u1", "e2", 0.5, 1250, march.Add(24*time.Hour)),
		newCredit("u1", "e3", 2, 5000, april),
		newCredit("u2", "e4", 9, 22500, march),
	} {
		_, created, err := f.store.Issue(ctx, c)
		require.NoError(t, err, "credit %d", i)
		require.True(t, created)
	}

	aggs, err := f.store.Monthly(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, "2026-04", aggs[0].Month)
	assert.Equal(t, int64(1), aggs[0].RecordCount)
	assert.Equal(t, "2026-03", aggs[1].Month)
	assert.InDelta(t, 2.0, aggs[1].CreditsEarned, 1e-9)
	assert.InDelta(t, 5000.0, aggs[1].CreditValue, 1e-9)
	assert.Equal(t, int64(2), aggs[1].RecordCount)
}

func TestStore_IssueDuplicateEmissionReturnsExisting(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, created, err := f.store.Issue(ctx, newCredit("u1", "e1", 1, 2500, now))
	require.NoError(t, err)
	require.True(t, created)

	got, created, err := f.store.Issue(ctx, newCredit("u1", "e1", 7, 17500, now))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 1.0, got.CreditsEarned)

	aggs, err := f.store.Monthly(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, int64(1), aggs[0].RecordCount)
}

func TestStore_GetByEmissionNotFound(t *testing.T) {
	f := setupFixture(t)
	_, err := f.store.GetByEmission(context.Background(), "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestStore_ListByUserPaginates(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, _, err := f.store.Issue(ctx, newCredit("u1", uuid.New().String(), 1, 2500, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	page1, next, total, err := f.store.ListByUser(ctx, "u1", 3, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 3)
	require.NotEmpty(t, next)
	assert.True(t, page1[0].EarnedAt.After(page1[2].EarnedAt))

	page2, next, _, err := f.store.ListByUser(ctx, "u1", 3, next)
	require.NoError(t, err)
	assert.Len(t, page2, 2)
	assert.Empty(t, next)

	_, _, _, err = f.store.ListByUser(ctx, "u1", 3, "yesterday")
	assert.ErrorIs(t, err, db.ErrInvalidPageToken)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewStore(gormDB), mock
}

func TestStore_DatabaseFailures(t *testing.T) {
	t.Run("begin fails transiently", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin().WillReturnError(errors.New("dial tcp 10.0.0.7:5432: connection refused"))

		_, _, err := store.Issue(context.Background(), newCredit("u1", "e1", 1, 2500, time.Now()))
		require.Error(t, err)
		assert.True(t, db.IsTransient(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lookup is a dependency failure", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT \* FROM "credit_records"`).WillReturnError(errors.New("connection reset by peer"))

		_, err := store.GetByEmission(context.Background(), "e1")
		assert.ErrorIs(t, err, db.ErrDependency)
		assert.NotErrorIs(t, err, db.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("monthly is a dependency failure", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT \* FROM "credit_monthly_aggregates"`).WillReturnError(errors.New("too many clients"))

		_, err := store.Monthly(context.Background(), "u1")
		assert.ErrorIs(t, err, db.ErrDependency)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
