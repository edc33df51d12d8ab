package errmap

import (
	"errors"
	"net/http"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// httpMapping defines a domain error to HTTP status/code mapping.
type httpMapping struct {
	err        error
	statusCode int
	code       string
}

// httpMappings maps domain errors to HTTP status codes and error codes.
// Order matters: first match wins (via errors.Is).
var httpMappings = []httpMapping{
	// Session state
	{domain.ErrNoActiveSession, http.StatusNotFound, "NO_ACTIVE_SESSION"},
	{domain.ErrSessionExpired, http.StatusGone, "SESSION_EXPIRED"},
	{domain.ErrNotYetAvailable, http.StatusAccepted, "OTP_PENDING"},

	// Auth
	{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHENTICATED"},
	{domain.ErrForbidden, http.StatusForbidden, "PERMISSION_DENIED"},

	// Validation errors: 400
	{domain.ErrInvalidCountry, http.StatusBadRequest, "INVALID_COUNTRY"},
	{domain.ErrInvalidService, http.StatusBadRequest, "INVALID_SERVICE"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{domain.ErrEmptyID, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{domain.ErrInvalidID, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{domain.ErrInvalidPhoneNumber, http.StatusBadRequest, "INVALID_ARGUMENT"},

	// Provider
	{domain.ErrInvalidParameters, http.StatusUnprocessableEntity, "INVALID_PARAMETERS"},
	{domain.ErrNoNumbersAvailable, http.StatusServiceUnavailable, "NO_NUMBERS_AVAILABLE"},
	{domain.ErrProviderUnavailable, http.StatusBadGateway, "PROVIDER_UNAVAILABLE"},

	// Rate limiting: 429
	{domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},

	// Availability
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
}

// ToHTTPError converts a domain error to an HTTP error.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK}
	}
	for _, m := range httpMappings {
		if errors.Is(err, m.err) {
			return HTTPError{StatusCode: m.statusCode, Code: m.code, Message: err.Error()}
		}
	}
	// Never expose internal error details to clients
	return HTTPError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
}

// ToHTTPStatusCode extracts just the HTTP status code for a domain error.
func ToHTTPStatusCode(err error) int {
	return ToHTTPError(err).StatusCode
}
