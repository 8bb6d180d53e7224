package profile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/greenledger/pkg/authz"
	"github.com/greenledger/greenledger/pkg/db"
	"github.com/greenledger/greenledger/pkg/factors"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := db.DefaultDBConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "profile.db")
	gormDB, err := db.Open(cfg, nil)
	require.NoError(t, err)
	s := NewStore(gormDB)
	require.NoError(t, s.AutoMigrate())
	return s
}

func TestGet_Missing(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestUpsert_PreservesScore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, &Profile{UserID: "u1", BusinessName: "Acme", BusinessType: "retail", GSTIN: "27AAPFU0939F1ZV"})
	require.NoError(t, err)

	_, err = s.SaveScore(ctx, "u1", ScoreUpdate{Score: 42, Grade: "C", Factors: map[string]float64{"gstn_compliance": 20}, At: time.Now()})
	require.NoError(t, err)

	p, err := s.Upsert(ctx, &Profile{UserID: "u1", BusinessName: "Acme Ltd", BusinessType: "manufacturing", BankVerified: true, CompletionPct: 80})
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", p.BusinessName)
	assert.Equal(t, "manufacturing", p.BusinessType)
	assert.True(t, p.BankVerified)
	assert.Equal(t, 42.0, p.GreenScore, "editing the profile must not reset the score")
	assert.Len(t, p.ScoreHistory, 1)
}

func TestSaveScore_CreatesProfileAndCapsHistory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < HistoryLimit+3; i++ {
		_, err := s.SaveScore(ctx, "u1", ScoreUpdate{
			Score: float64(i), Grade: "C", At: start.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, p.ScoreHistory, HistoryLimit)
	assert.Equal(t, 3.0, p.ScoreHistory[0].Score, "oldest entries are dropped")
	last, ok := p.LastSnapshot()
	require.True(t, ok)
	assert.Equal(t, float64(HistoryLimit+2), last.Score)
	assert.Equal(t, float64(HistoryLimit+2), p.GreenScore)
	assert.Equal(t, "general", p.BusinessType)
	require.NotNil(t, p.ScoreUpdatedAt)
}

func TestBusinessType(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	bt, err := s.BusinessType(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, factors.BusinessGeneral, bt)

	_, err = s.Upsert(ctx, &Profile{UserID: "u1", BusinessType: "agriculture"})
	require.NoError(t, err)
	bt, err = s.BusinessType(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, factors.BusinessAgriculture, bt)
}

func TestUpsertCertification(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertCertification(ctx, "u1", "ISO 14001", CertInProgress)
	require.NoError(t, err)
	c, err := s.UpsertCertification(ctx, "u1", "ISO 14001", CertEarned)
	require.NoError(t, err)
	assert.Equal(t, CertEarned, c.Status)
	_, err = s.UpsertCertification(ctx, "u2", "ISO 14001", CertExpired)
	require.NoError(t, err)

	certs, err := s.Certifications(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, CertEarned, certs[0].Status)
}

func TestProfileHandlers(t *testing.T) {
	s := setupTestStore(t)
	r := chi.NewRouter()
	r.Use(authz.HeaderIdentityMiddleware())
	Register(r, s, nil)

	send := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-Remote-User", "alice")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send(http.MethodGet, "/profile", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = send(http.MethodPut, "/profile", `{"business_name":"Alice Textiles","business_type":"manufacturing","completion_pct":60}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Result profileResponse `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "manufacturing", body.Result.BusinessType)

	tests := []struct {
		name string
		body string
	}{
		{"unknown business type", `{"business_type":"piracy"}`},
		{"completion over 100", `{"completion_pct":120}`},
		{"negative revenue", `{"annual_revenue":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := send(http.MethodPut, "/profile", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w = send(http.MethodPut, "/certifications/ISO%2014001", `{"status":"earned"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = send(http.MethodPut, "/certifications/bee-star", `{"status":"pending"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(http.MethodGet, "/certifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"earned"`)
}
