package domain

import "log/slog"

// SecretString wraps sensitive configuration values such as the provider API
// key, the Telegram bot token and the JWT secret. It redacts itself in both
// fmt and slog output.
type SecretString string

// String returns a redacted placeholder, never the actual value.
func (s SecretString) String() string {
	return "[REDACTED]"
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Expose returns the actual secret value, for the provider Authorization
// header, the bot token and JWT signing.
func (s SecretString) Expose() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty.
func (s SecretString) IsEmpty() bool {
	return len(s) == 0
}

var _ slog.LogValuer = SecretString("")
