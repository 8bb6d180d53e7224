package authz

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestJWTAuthenticator_HS256(t *testing.T) {
	a, err := NewJWTAuthenticator(JWTConfig{HMACSecret: testSecret, Issuer: "greenledger-idp"})
	require.NoError(t, err)

	valid := signHS256(t, jwt.MapClaims{
		"sub":    "user-42",
		"iss":    "greenledger-idp",
		"groups": []any{"msme", 7},
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name     string
		token    string
		wantUser string
		wantErr  bool
	}{
		{"valid token", valid, "user-42", false},
		{"expired", signHS256(t, jwt.MapClaims{"sub": "u", "iss": "greenledger-idp", "exp": time.Now().Add(-time.Hour).Unix()}), "", true},
		{"wrong issuer", signHS256(t, jwt.MapClaims{"sub": "u", "iss": "other"}), "", true},
		{"missing subject", signHS256(t, jwt.MapClaims{"iss": "greenledger-idp"}), "", true},
		{"garbage", "not-a-jwt", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := a.Authenticate(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, id.User)
			assert.Equal(t, []string{"msme"}, id.Groups)
		})
	}
}

func TestJWTAuthenticator_RS256(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")

	der, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "jwt.pub")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	a, err := NewJWTAuthenticator(JWTConfig{PublicKeyPath: keyPath, UserClaim: "uid"})
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"uid": "rsa-user"}).SignedString(privateKey)
	require.NoError(t, err)
	id, err := a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "rsa-user", id.User)

	// An HMAC token must not be accepted by an RSA-configured authenticator.
	_, err = a.Authenticate(signHS256(t, jwt.MapClaims{"uid": "rsa-user"}))
	assert.Error(t, err)
}

func TestNewJWTAuthenticator_BadKey(t *testing.T) {
	_, err := NewJWTAuthenticator(JWTConfig{PublicKeyPath: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "junk.pem")
	require.NoError(t, os.WriteFile(path, []byte("not pem"), 0o600))
	_, err = NewJWTAuthenticator(JWTConfig{PublicKeyPath: path})
	assert.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	a, err := NewJWTAuthenticator(JWTConfig{HMACSecret: testSecret})
	require.NoError(t, err)

	var seen string
	handler := a.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := IdentityFromContext(r.Context()); ok {
			seen = id.User
		}
		w.WriteHeader(http.StatusOK)
	}))

	// No token: passes through without identity.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, seen)

	// Valid token: identity attached.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signHS256(t, jwt.MapClaims{"sub": "alice"}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", seen)

	// Invalid token: rejected.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer forged.token.value")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"authentication required"}`, rr.Body.String())
}
