package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Token scopes. A token may carry several, space separated.
const (
	ScopeUser  = "otp"
	ScopeAdmin = "admin"
)

// Claims represents the JWT claims for HTTP API access tokens. The subject is
// the user identity that owns the OTP session.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// HasScope reports whether the token was granted scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}
