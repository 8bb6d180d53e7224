package authz

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/greenledger/greenledger/pkg/api"
)

// JWTConfig configures bearer token authentication.
type JWTConfig struct {
	// HMACSecret verifies HS256 tokens. Ignored when PublicKeyPath is set.
	HMACSecret string `mapstructure:"hmac_secret"`

	// PublicKeyPath is a PEM-encoded RSA public key for RS256 verification.
	PublicKeyPath string `mapstructure:"public_key_path"`

	// UserClaim names the claim holding the user id. Default "sub".
	UserClaim string `mapstructure:"user_claim"`

	// GroupsClaim names an optional string array claim. Default "groups".
	GroupsClaim string `mapstructure:"groups_claim"`

	// Issuer and Audience are validated when non-empty.
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`

	Logger *slog.Logger `mapstructure:"-"`
}

// JWTAuthenticator verifies bearer tokens and turns their claims into an
// Identity.
type JWTAuthenticator struct {
	cfg       JWTConfig
	publicKey *rsa.PublicKey
	secret    []byte
	logger    *slog.Logger
}

// NewJWTAuthenticator validates cfg and loads the verification key.
func NewJWTAuthenticator(cfg JWTConfig) (*JWTAuthenticator, error) {
	if cfg.UserClaim == "" {
		cfg.UserClaim = "sub"
	}
	if cfg.GroupsClaim == "" {
		cfg.GroupsClaim = "groups"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &JWTAuthenticator{cfg: cfg, logger: logger}
	switch {
	case cfg.PublicKeyPath != "":
		key, err := loadRSAPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		a.publicKey = key
		logger.Info("JWT authentication: RS256 verification", "keyPath", cfg.PublicKeyPath)
	case cfg.HMACSecret != "":
		a.secret = []byte(cfg.HMACSecret)
		logger.Info("JWT authentication: HS256 verification")
	default:
		return nil, errors.New("JWT authentication needs an HMAC secret or an RSA public key")
	}
	return a, nil
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read JWT public key from %s: %w", path, err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("decode PEM block from %s", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA (got %T)", parsed)
	}
	return key, nil
}

// Middleware attaches the Identity of a valid bearer token to the request.
// Requests without a token pass through anonymously; RequireIdentity
// decides whether that is acceptable. An invalid token is rejected with 401.
func (a *JWTAuthenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := a.Authenticate(token)
			if err != nil {
				a.logger.Debug("rejecting bearer token", "error", err)
				api.WriteError(w, nil, ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Authenticate verifies token and extracts the caller identity.
func (a *JWTAuthenticator) Authenticate(token string) (Identity, error) {
	var opts []jwt.ParserOption
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}

	if a.publicKey != nil {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if a.publicKey != nil {
			return a.publicKey, nil
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("JWT parse error: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("unexpected claims type")
	}
	user, _ := claims[a.cfg.UserClaim].(string)
	if strings.TrimSpace(user) == "" {
		return Identity{}, fmt.Errorf("claim %q is missing", a.cfg.UserClaim)
	}

	var groups []string
	if raw, ok := claims[a.cfg.GroupsClaim].([]any); ok {
		for _, g := range raw {
			if s, ok := g.(string); ok && s != "" {
				groups = append(groups, s)
			}
		}
	}
	return Identity{User: user, Groups: groups}, nil
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
