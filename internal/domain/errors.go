package domain

import "errors"

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// ID validation errors
	ErrEmptyID   = errors.New("ID cannot be empty")
	ErrInvalidID = errors.New("invalid ID format")

	// Authorization errors
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("permission denied")

	// Validation errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCountry     = errors.New("unsupported country code")
	ErrInvalidService     = errors.New("unsupported service")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")

	// Session lifecycle errors
	ErrNoActiveSession = errors.New("no active OTP session")

	// Provider conditions. ErrNotYetAvailable is the steady state while a
	// code has not arrived yet; it is not a failure from the user's view.
	ErrProviderUnavailable = errors.New("OTP provider unavailable")
	ErrInvalidParameters   = errors.New("provider rejected request parameters")
	ErrNoNumbersAvailable  = errors.New("no numbers available for this country and service")
	ErrNotYetAvailable     = errors.New("OTP not yet available")
	ErrSessionExpired      = errors.New("number allocation has expired")
	ErrInternal            = errors.New("unexpected provider response")

	// Operational errors
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrUnavailable = errors.New("service temporarily unavailable")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrNoNumbersAvailable)
}

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrEmptyID,
	ErrInvalidID,
	ErrUnauthorized,
	ErrForbidden,
	ErrInvalidInput,
	ErrInvalidCountry,
	ErrInvalidService,
	ErrInvalidParameters,
	ErrNoActiveSession,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsFatalForPolling reports whether err ends a running auto-check.
// Everything except "not yet available" is terminal; the poller never retries.
func IsFatalForPolling(err error) bool {
	return err != nil && !errors.Is(err, ErrNotYetAvailable)
}

// IsNotFound returns true if the error represents a missing session.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoActiveSession)
}
