package domain

import "time"

// Compiled defaults. Most of these can be overridden via configuration.
const (
	// Auto-check
	AutoCheckInterval = 10 * time.Second // Interval between background OTP checks

	// Provider contract
	ProviderTimeout   = 15 * time.Second // Max time for a single provider round trip
	ProviderRateLimit = 5.0              // Outbound provider requests per second
	ProviderBurst     = 5                // Token bucket burst for outbound provider requests
	CheckTimeout      = 30 * time.Second // Max time for a shared manual check, lock wait included

	// Sandbox provider
	SandboxRevealAfter = 3                // Fetches before the sandbox releases a code
	SandboxTTL         = 20 * time.Minute // Lifetime of a sandbox allocation

	// Allocation rate limiting (abuse protection, not quota)
	AllocationRateLimit       = 5
	AllocationRateLimitWindow = 10 * time.Minute

	// Identity limits
	MaxUserIDLength = 128

	// Timeout contracts
	RedisTimeout = 2 * time.Second // Max time for Redis operations

	// Telegram long-poll timeout
	TelegramPollTimeout = 15 * time.Second

	// Access tokens for the HTTP API
	AccessTokenLifetime = 1 * time.Hour

	// Graceful shutdown
	GracefulShutdownTimeout = 30 * time.Second
	ShutdownDrainDelay      = 2 * time.Second
	ShutdownHTTPTimeout     = 10 * time.Second
	ShutdownOTELTimeout     = 5 * time.Second
)

// SessionStatus is the lifecycle state of an OTP session.
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionReceived SessionStatus = "received"
)

// IsValidSessionStatus checks if a session status is known.
func IsValidSessionStatus(s SessionStatus) bool {
	return s == SessionPending || s == SessionReceived
}
