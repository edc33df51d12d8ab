package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

// MintResult holds the result of minting an access token.
type MintResult struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// Minter creates HS256 access tokens for the HTTP API.
type Minter struct {
	secret    domain.SecretString
	accessTTL time.Duration
	issuer    string
	audience  string
	clock     domain.Clock
}

// MinterConfig holds configuration for creating a Minter.
type MinterConfig struct {
	Secret    domain.SecretString
	AccessTTL time.Duration
	Issuer    string
	Audience  string
	Clock     domain.Clock
}

// NewMinter creates a new JWT minter.
func NewMinter(cfg MinterConfig) *Minter {
	return &Minter{
		secret:    cfg.Secret,
		accessTTL: cfg.AccessTTL,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		clock:     cfg.Clock,
	}
}

// MintAccessToken creates a signed token for userID carrying scope.
func (m *Minter) MintAccessToken(userID, scope string) (MintResult, error) {
	if userID == "" {
		return MintResult{}, fmt.Errorf("mint access token: %w", domain.ErrEmptyID)
	}
	if m.secret.IsEmpty() {
		return MintResult{}, fmt.Errorf("mint access token: signing secret: %w", domain.ErrConfigRequired)
	}

	now := m.clock.Now().UTC()
	jti := uuid.NewString()
	expiresAt := now.Add(m.accessTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
		Scope: scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString([]byte(m.secret.Expose()))
	if err != nil {
		return MintResult{}, fmt.Errorf("sign access token: %w", err)
	}

	return MintResult{
		Token:     signed,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}
