package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenledger/greenledger/pkg/authz"
	"github.com/greenledger/greenledger/pkg/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	cfg := db.DefaultDBConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "audit.db")
	gormDB, err := db.Open(cfg, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := NewStore(gormDB)
	if err := store.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func appendEvent(t *testing.T, store *Store, id, actor, eventType string, at time.Time) {
	t.Helper()
	err := store.Append(context.Background(), &EventRecord{
		ID:        id,
		EventType: eventType,
		Actor:     actor,
		Action:    "create",
		Outcome:   "success",
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("append %s: %v", id, err)
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
}

func get(t *testing.T, r http.Handler, path, user string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestAuditHandlers(t *testing.T) {
	store := setupStore(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	appendEvent(t, store, "evt-1", "alice", EventTypeRequest, base)
	appendEvent(t, store, "evt-2", "alice", EventTypeGreenScoreRecalculated, base.Add(time.Minute))
	appendEvent(t, store, "evt-3", "alice", EventTypeRequest, base.Add(2*time.Minute))
	appendEvent(t, store, "evt-4", "bob", EventTypeRequest, base)

	r := chi.NewRouter()
	r.Use(authz.HeaderIdentityMiddleware())
	Register(r, store, nil)

	code, env := get(t, r, "/audit/events?pageSize=2", "alice")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, env.Error)
	}
	var list struct {
		Events        []eventResponse `json:"events"`
		NextPageToken string          `json:"nextPageToken"`
		TotalSize     int             `json:"totalSize"`
	}
	if err := json.Unmarshal(env.Result, &list); err != nil {
		t.Fatal(err)
	}
	if list.TotalSize != 3 || len(list.Events) != 2 || list.NextPageToken == "" {
		t.Fatalf("unexpected first page: %+v", list)
	}
	if list.Events[0].ID != "evt-3" {
		t.Errorf("expected newest first, got %s", list.Events[0].ID)
	}

	code, env = get(t, r, "/audit/events?pageSize=2&pageToken="+list.NextPageToken, "alice")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if err := json.Unmarshal(env.Result, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Events) != 1 || list.Events[0].ID != "evt-1" || list.NextPageToken != "" {
		t.Errorf("unexpected second page: %+v", list)
	}

	code, env = get(t, r, "/audit/events?eventType="+EventTypeGreenScoreRecalculated, "alice")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if err := json.Unmarshal(env.Result, &list); err != nil {
		t.Fatal(err)
	}
	if list.TotalSize != 1 || list.Events[0].ID != "evt-2" {
		t.Errorf("unexpected filtered page: %+v", list)
	}

	if code, _ := get(t, r, "/audit/events/evt-1", "alice"); code != http.StatusOK {
		t.Errorf("expected 200 for own event, got %d", code)
	}
	if code, _ := get(t, r, "/audit/events/evt-4", "alice"); code != http.StatusNotFound {
		t.Errorf("expected 404 for another actor's event, got %d", code)
	}
	if code, _ := get(t, r, "/audit/events?pageToken=garbage", "alice"); code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad page token, got %d", code)
	}
	if code, env := get(t, r, "/audit/events", ""); code != http.StatusUnauthorized || env.Error != "authentication required" {
		t.Errorf("expected 401, got %d %q", code, env.Error)
	}
}

func TestRecordToResponse(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	record := EventRecord{
		ID:            "evt-001",
		CorrelationID: "corr-123",
		EventType:     EventTypeRequest,
		Actor:         "alice",
		RequestID:     "req-456",
		ResourceType:  "certifications",
		ResourceIDs:   []string{"iso-14001"},
		Action:        "update",
		Outcome:       "success",
		StatusCode:    200,
		NewValue:      map[string]any{"status": "earned"},
		CreatedAt:     now,
	}

	resp := recordToResponse(record)

	if resp.ID != "evt-001" || resp.Actor != "alice" || resp.RequestID != "req-456" {
		t.Errorf("unexpected identity fields: %+v", resp)
	}
	if len(resp.ResourceIDs) != 1 || resp.ResourceIDs[0] != "iso-14001" {
		t.Errorf("expected resourceIDs [iso-14001], got %v", resp.ResourceIDs)
	}
	if resp.CreatedAt != "2026-05-01T09:00:00Z" {
		t.Errorf("unexpected createdAt %s", resp.CreatedAt)
	}
	if resp.NewValue["status"] != "earned" {
		t.Errorf("expected newValue to carry status, got %v", resp.NewValue)
	}
}
