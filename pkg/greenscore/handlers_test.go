package greenscore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/greenledger/pkg/authz"
)

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path, user string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestGreenScoreHandlers(t *testing.T) {
	f := setupFixture(t)
	r := chi.NewRouter()
	r.Use(authz.HeaderIdentityMiddleware())
	Register(r, f.agg, f.profiles, nil)

	code, env := do(t, r, http.MethodGet, "/green-score", "alice")
	require.Equal(t, http.StatusOK, code)
	var before scoreResponse
	require.NoError(t, json.Unmarshal(env.Result, &before))
	assert.Equal(t, 0.0, before.Score)
	assert.Equal(t, "C", before.Grade)
	assert.Empty(t, before.History)
	assert.Len(t, before.Recommendations, 5)

	code, env = do(t, r, http.MethodPost, "/green-score:recalculate", "alice")
	require.Equal(t, http.StatusOK, code, env.Error)
	var res Result
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.Equal(t, "C", res.Snapshot.Grade)

	code, env = do(t, r, http.MethodGet, "/green-score", "alice")
	require.Equal(t, http.StatusOK, code)
	var after scoreResponse
	require.NoError(t, json.Unmarshal(env.Result, &after))
	assert.Len(t, after.History, 1)
	assert.NotEmpty(t, after.UpdatedAt)
	assert.Contains(t, after.Factors, FactorCarbonReduction)

	code, env = do(t, r, http.MethodPost, "/green-score:recalculate", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "authentication required", env.Error)
}
