package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/greenledger/pkg/authz"
	"github.com/greenledger/greenledger/pkg/db"
)

func setupOutbox(t *testing.T) *Outbox {
	t.Helper()
	cfg := db.DefaultDBConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "notify.db")
	gormDB, err := db.Open(cfg, nil)
	require.NoError(t, err)
	o := NewOutbox(gormDB)
	require.NoError(t, o.AutoMigrate())
	return o
}

func TestEmit_SwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	failing := SinkFunc(func(context.Context, Event) error { return errors.New("smtp down") })
	Emit(context.Background(), failing, logger, Event{UserID: "u1", Type: EventCreditsIssued})
	assert.Contains(t, buf.String(), "notification dropped")
	assert.Contains(t, buf.String(), "smtp down")

	buf.Reset()
	panicking := SinkFunc(func(context.Context, Event) error { panic("boom") })
	assert.NotPanics(t, func() {
		Emit(context.Background(), panicking, logger, Event{UserID: "u1", Type: EventCreditsIssued})
	})
	assert.Contains(t, buf.String(), "panicked")

	assert.NotPanics(t, func() { Emit(context.Background(), nil, logger, Event{}) })
}

func TestEmit_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	Emit(ctx, SinkFunc(func(ctx context.Context, _ Event) error {
		sawErr = ctx.Err()
		return nil
	}), nil, Event{UserID: "u1"})
	assert.NoError(t, sawErr)
}

func TestMulti_CallsEverySink(t *testing.T) {
	var calls int
	ok := SinkFunc(func(context.Context, Event) error { calls++; return nil })
	bad := SinkFunc(func(context.Context, Event) error { calls++; return errors.New("bad") })

	err := Multi{bad, nil, ok}.Notify(context.Background(), Event{})
	assert.EqualError(t, err, "bad")
	assert.Equal(t, 2, calls)
}

func TestOutbox_NotifyAndList(t *testing.T) {
	o := setupOutbox(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, o.Notify(ctx, Event{
			UserID:  "u1",
			Type:    EventCreditsIssued,
			Payload: map[string]any{"credits": float64(i)},
		}))
	}
	require.NoError(t, o.Notify(ctx, Event{UserID: "u2", Type: EventGreenScoreImproved}))

	recs, next, err := o.List(ctx, "u1", 2, "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.NotEmpty(t, next)
	assert.Equal(t, EventCreditsIssued, recs[0].EventType)
	assert.False(t, recs[0].Delivered)

	_, _, err = o.List(ctx, "u1", 2, "yesterday")
	assert.ErrorIs(t, err, db.ErrInvalidPageToken)
}

func TestListNotificationsHandler(t *testing.T) {
	o := setupOutbox(t)
	require.NoError(t, o.Notify(context.Background(), Event{
		UserID: "alice", Type: EventGreenScoreImproved, Payload: map[string]any{"delta": 7.0},
	}))

	r := chi.NewRouter()
	r.Use(authz.HeaderIdentityMiddleware())
	Register(r, o, nil)

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("X-Remote-User", "alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Result  struct {
			Notifications []notificationResponse `json:"notifications"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Result.Notifications, 1)
	assert.Equal(t, EventGreenScoreImproved, body.Result.Notifications[0].Type)
	assert.Equal(t, 7.0, body.Result.Notifications[0].Payload["delta"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
