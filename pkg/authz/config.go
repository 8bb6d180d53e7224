package authz

import (
	"fmt"
	"net/http"
)

// AuthMode selects how callers are identified.
type AuthMode string

const (
	// AuthModeHeader trusts X-Remote-User from an authenticating proxy.
	AuthModeHeader AuthMode = "header"
	// AuthModeJWT verifies bearer tokens.
	AuthModeJWT AuthMode = "jwt"
)

// IdentityMiddleware builds the identity-resolving middleware for mode.
func IdentityMiddleware(mode AuthMode, jwtCfg JWTConfig) (func(http.Handler) http.Handler, error) {
	switch mode {
	case AuthModeHeader, "":
		return HeaderIdentityMiddleware(), nil
	case AuthModeJWT:
		a, err := NewJWTAuthenticator(jwtCfg)
		if err != nil {
			return nil, err
		}
		return a.Middleware(), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q (expected header or jwt)", mode)
	}
}
