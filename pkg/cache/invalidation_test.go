package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestCacheManager(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"DisabledReturnsNil", testDisabledReturnsNil},
		{"NilManagerPassesThrough", testNilManagerPassesThrough},
		{"FactorsMiddlewareCaches", testFactorsMiddlewareCaches},
		{"InvalidateAllClearsFactors", testInvalidateAllClearsFactors},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testDisabledReturnsNil(t *testing.T) {
	if NewCacheManager(nil) != nil {
		t.Fatal("expected nil manager for nil config")
	}
	if NewCacheManager(&CacheConfig{Enabled: false}) != nil {
		t.Fatal("expected nil manager when disabled")
	}
}

func testNilManagerPassesThrough(t *testing.T) {
	var cm *CacheManager
	cm.InvalidateAll()

	calls := 0
	h := cm.FactorsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	serve(h, http.MethodGet, "/api/v1/factors")
	rec := serve(h, http.MethodGet, "/api/v1/factors")

	if calls != 2 {
		t.Fatalf("expected pass-through, handler ran %d times", calls)
	}
	if got := rec.Header().Get("X-Cache"); got != "" {
		t.Fatalf("expected no X-Cache header, got %q", got)
	}
}

func testFactorsMiddlewareCaches(t *testing.T) {
	cm := NewCacheManager(DefaultCacheConfig())
	h := cm.FactorsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	serve(h, http.MethodGet, "/api/v1/factors")
	if cm.factors.Size() != 1 {
		t.Fatalf("expected 1 cached entry, got %d", cm.factors.Size())
	}
	if cm.factors.Name() != "factors" {
		t.Fatalf("expected metrics label factors, got %q", cm.factors.Name())
	}
}

func testInvalidateAllClearsFactors(t *testing.T) {
	cm := NewCacheManager(&CacheConfig{Enabled: true, FactorsTTL: time.Minute, MaxSize: 10})
	cm.factors.Set("/api/v1/factors", []byte(`{}`))

	cm.InvalidateAll()

	if cm.factors.Size() != 0 {
		t.Fatalf("expected empty cache, got %d entries", cm.factors.Size())
	}
}
