package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var otpMax = big.NewInt(1_000_000) // 10^6 for 6-digit OTP

// GenerateOTP generates a cryptographically random 6-digit code.
// Uses crypto/rand with rejection sampling (via big.Int) to avoid modulo bias.
// The code is zero-padded (e.g., "000123").
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", fmt.Errorf("generate OTP: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
