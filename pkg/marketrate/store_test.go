package marketrate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/greenledger/pkg/db"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := db.DefaultDBConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "rates.db")
	gormDB, err := db.Open(cfg, nil)
	require.NoError(t, err)
	s := NewStore(gormDB)
	require.NoError(t, s.AutoMigrate())
	return s
}

func TestCurrent_EmptyIsDependencyError(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Current(context.Background())
	assert.ErrorIs(t, err, ErrNoRate)
	assert.ErrorIs(t, err, db.ErrDependency)
}

func TestSeed_OnlyWhenEmpty(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seeded, err := s.Seed(ctx, DefaultRatePerCredit, "inr")
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = s.Seed(ctx, 9999, "USD")
	require.NoError(t, err)
	assert.False(t, seeded)

	rate, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, rate.RatePerCredit)
	assert.Equal(t, "INR", rate.Currency)

	_, err = s.Seed(ctx, -1, "")
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestCurrent_PicksLatestEffective(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, r := range []struct {
		rate float64
		at   time.Time
	}{
		{2000, base.Add(-48 * time.Hour)},
		{2400, base.Add(-time.Hour)},
		{3100, base.Add(24 * time.Hour)},
	} {
		require.NoError(t, s.db.Create(&MarketRate{
			ID:            uuid.New().String(),
			RatePerCredit: r.rate,
			Currency:      "INR",
			EffectiveAt:   r.at,
			CreatedAt:     base,
		}).Error, "row %d", i)
	}

	s.now = func() time.Time { return base }
	rate, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2400.0, rate.RatePerCredit, "future rates are not effective yet")

	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	rate, err = s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3100.0, rate.RatePerCredit)
}

func TestCurrentRateHandler(t *testing.T) {
	s := setupTestStore(t)
	r := chi.NewRouter()
	Register(r, s, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/market-rate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"temporarily unavailable, please retry"}`, w.Body.String())

	_, err := s.Seed(context.Background(), 2500, "INR")
	require.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/market-rate", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool         `json:"success"`
		Result  rateResponse `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 2500.0, body.Result.RatePerCredit)
	assert.Equal(t, "INR", body.Result.Currency)
}
