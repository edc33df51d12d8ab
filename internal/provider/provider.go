// Package provider is the client side of the external number provider: it
// rents disposable phone numbers and reads the verification codes they
// receive. Every call is a single round trip with no retries; failures are
// reported with the provider sentinels from the domain package.
package provider

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/observability"
)

var tracer = otel.Tracer("provider")

var providerErrorsTotal metric.Int64Counter

func init() {
	m := otel.Meter("provider")

	providerErrorsTotal, _ = m.Int64Counter("otp_provider_errors_total",
		metric.WithDescription("Total failed provider calls by operation and error kind"))
}

// Allocation is a rented number and the provider's handle for it.
type Allocation struct {
	PhoneNumber string
	SessionID   string
}

// Country is a country as the provider lists it.
type Country struct {
	Code string
	Name string
}

// Client is the provider contract the session manager depends on.
type Client interface {
	// AllocateNumber rents a number for the country/service pair.
	AllocateNumber(ctx context.Context, country, service string) (*Allocation, error)

	// FetchCode returns the code received on an allocation, or
	// domain.ErrNotYetAvailable while none has arrived.
	FetchCode(ctx context.Context, providerSessionID string) (string, error)

	// ListCountries lists the countries the provider can serve.
	ListCountries(ctx context.Context) ([]Country, error)
}

// Operation names used in spans and metric labels.
const (
	opAllocate  = "allocate_number"
	opFetchCode = "fetch_code"
	opCountries = "list_countries"
)

// ErrorKind returns a short label for a provider error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrNotYetAvailable):
		return "not_yet_available"
	case errors.Is(err, domain.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, domain.ErrNoNumbersAvailable):
		return "no_numbers"
	case errors.Is(err, domain.ErrInvalidParameters):
		return "invalid_parameters"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}

// finish records the outcome of a provider call on its span and, for real
// failures, on the error counter. Not-yet-available is a normal answer.
func finish(ctx context.Context, span trace.Span, op string, err error) {
	defer span.End()
	if err == nil || errors.Is(err, domain.ErrNotYetAvailable) {
		return
	}
	observability.RecordError(span, err)
	providerErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("kind", ErrorKind(err)),
	))
}
