package errmap

import (
	"errors"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

// ReplyCategory classifies a domain error for chat replies. Each category
// gets its own user-facing text.
type ReplyCategory string

const (
	ReplyOK             ReplyCategory = "ok"
	ReplyWaiting        ReplyCategory = "waiting"
	ReplyNoSession      ReplyCategory = "no_session"
	ReplyInvalidCountry ReplyCategory = "invalid_country"
	ReplyInvalidService ReplyCategory = "invalid_service"
	ReplyInvalidInput   ReplyCategory = "invalid_input"
	ReplyRejected       ReplyCategory = "rejected"
	ReplyNoNumbers      ReplyCategory = "no_numbers"
	ReplyExpired        ReplyCategory = "expired"
	ReplyProviderDown   ReplyCategory = "provider_unavailable"
	ReplyRateLimited    ReplyCategory = "rate_limited"
	ReplyUnavailable    ReplyCategory = "unavailable"
	ReplyInternal       ReplyCategory = "internal"
)

// Reply is a chat-facing rendering of an error.
type Reply struct {
	Category ReplyCategory
	Text     string
}

// ToReply converts a domain error to a chat reply. A nil error and
// domain.ErrNotYetAvailable are not failures and carry no text.
func ToReply(err error) Reply {
	switch {
	case err == nil:
		return Reply{Category: ReplyOK}

	case errors.Is(err, domain.ErrNotYetAvailable):
		return Reply{Category: ReplyWaiting}

	case errors.Is(err, domain.ErrNoActiveSession):
		return Reply{Category: ReplyNoSession, Text: "❌ No active OTP session. Use .otp get first."}

	case errors.Is(err, domain.ErrInvalidCountry):
		return Reply{Category: ReplyInvalidCountry, Text: "❌ Invalid country code. Use .otp countries to see available countries."}

	case errors.Is(err, domain.ErrInvalidService):
		return Reply{Category: ReplyInvalidService, Text: "❌ Invalid service. Use .otp services to see available services."}

	case errors.Is(err, domain.ErrEmptyID), errors.Is(err, domain.ErrInvalidID), errors.Is(err, domain.ErrInvalidInput):
		return Reply{Category: ReplyInvalidInput, Text: "❌ Invalid request."}

	case errors.Is(err, domain.ErrInvalidParameters):
		return Reply{Category: ReplyRejected, Text: "❌ The OTP provider rejected this country and service."}

	case errors.Is(err, domain.ErrNoNumbersAvailable):
		return Reply{Category: ReplyNoNumbers, Text: "❌ No numbers available for this country and service right now. Try again later."}

	case errors.Is(err, domain.ErrSessionExpired):
		return Reply{Category: ReplyExpired, Text: "⌛ The number has expired. Use .otp get for a new one."}

	case errors.Is(err, domain.ErrProviderUnavailable):
		return Reply{Category: ReplyProviderDown, Text: "❌ The OTP provider is unavailable. Try again later."}

	case errors.Is(err, domain.ErrRateLimited):
		return Reply{Category: ReplyRateLimited, Text: "⏱️ Too many numbers requested. Wait a few minutes and try again."}

	case errors.Is(err, domain.ErrUnavailable):
		return Reply{Category: ReplyUnavailable, Text: "❌ Service is shutting down. Try again shortly."}

	default:
		return Reply{Category: ReplyInternal, Text: "❌ Something went wrong. Try again later."}
	}
}
