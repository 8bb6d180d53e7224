package authz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentityContextRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		identity Identity
	}{
		{
			name:     "basic user",
			identity: Identity{User: "alice", Groups: []string{"msme"}},
		},
		{
			name:     "user with multiple groups",
			identity: Identity{User: "bob", Groups: []string{"msme", "lender", "admins"}},
		},
		{
			name:     "user with no groups",
			identity: Identity{User: "carol", Groups: nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithIdentity(context.Background(), tt.identity)
			got, ok := IdentityFromContext(ctx)
			if !ok {
				t.Fatal("expected identity in context, got none")
			}
			if got.User != tt.identity.User {
				t.Errorf("User = %q, want %q", got.User, tt.identity.User)
			}
			if len(got.Groups) != len(tt.identity.Groups) {
				t.Fatalf("Groups length = %d, want %d", len(got.Groups), len(tt.identity.Groups))
			}
		})
	}
}

func TestIdentityFromContextMissingOrEmpty(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("expected no identity in empty context")
	}
	ctx := WithIdentity(context.Background(), Identity{User: ""})
	if _, ok := IdentityFromContext(ctx); ok {
		t.Error("an empty user must not count as an identity")
	}
	if _, err := UserID(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("UserID error = %v, want ErrUnauthenticated", err)
	}
}

func TestHeaderIdentityMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		groups     string
		wantUser   string
		wantOK     bool
		wantGroups int
	}{
		{"user and groups", "alice", "msme, lender ,", "alice", true, 2},
		{"user only", "  bob ", "", "bob", true, 0},
		{"no header", "", "msme", "", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Identity
			var gotOK bool
			handler := HeaderIdentityMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, gotOK = IdentityFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/green-score", nil)
			if tt.user != "" {
				req.Header.Set("X-Remote-User", tt.user)
			}
			if tt.groups != "" {
				req.Header.Set("X-Remote-Group", tt.groups)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if gotOK != tt.wantOK {
				t.Fatalf("identity present = %v, want %v", gotOK, tt.wantOK)
			}
			if got.User != tt.wantUser {
				t.Errorf("User = %q, want %q", got.User, tt.wantUser)
			}
			if len(got.Groups) != tt.wantGroups {
				t.Errorf("Groups = %v, want %d entries", got.Groups, tt.wantGroups)
			}
		})
	}
}

func TestRequireIdentity(t *testing.T) {
	handler := RequireIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["success"] != false || body["error"] != "authentication required" {
		t.Errorf("unexpected body: %v", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{User: "alice"}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestIdentityMiddlewareModes(t *testing.T) {
	if _, err := IdentityMiddleware(AuthModeHeader, JWTConfig{}); err != nil {
		t.Errorf("header mode: %v", err)
	}
	if _, err := IdentityMiddleware(AuthModeJWT, JWTConfig{}); err == nil {
		t.Error("jwt mode without a key should fail")
	}
	if _, err := IdentityMiddleware("kerberos", JWTConfig{}); err == nil {
		t.Error("unknown mode should fail")
	}
}
