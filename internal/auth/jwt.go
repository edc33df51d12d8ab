package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

// ErrTokenExpired is returned when a validly signed token has expired.
// Callers can use errors.Is to check for this condition without importing
// the JWT library directly.
var ErrTokenExpired = jwt.ErrTokenExpired

// Validator validates HS256 access tokens.
type Validator struct {
	secret   domain.SecretString
	issuer   string
	audience string
	clock    domain.Clock
}

// ValidatorConfig holds configuration for creating a Validator.
type ValidatorConfig struct {
	Secret   domain.SecretString
	Issuer   string
	Audience string
	Clock    domain.Clock
}

// NewValidator creates a new JWT validator.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    cfg.Clock,
	}
}

// ValidateAccessToken parses and fully validates a JWT access token.
func (v *Validator) ValidateAccessToken(tokenString string) (*Claims, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}

	if _, err := jwt.ParseWithClaims(tokenString, &claims, v.keyFunc, opts...); err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub claim: %w", domain.ErrUnauthorized)
	}

	return &claims, nil
}

func (v *Validator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	if v.secret.IsEmpty() {
		return nil, fmt.Errorf("no signing secret configured: %w", domain.ErrUnauthorized)
	}
	return []byte(v.secret.Expose()), nil
}
