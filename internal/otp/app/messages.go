package app

import (
	"errors"
	"fmt"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

func createdMessage(s Session) string {
	return fmt.Sprintf("Number %s is ready for %s in %s. Waiting for the code.",
		s.PhoneNumber.Display(), s.Service.Name, s.Country.DisplayName())
}

func waitingMessage(s Session) string {
	return fmt.Sprintf("No code yet for %s on %s. Still waiting.",
		s.Service.Name, s.PhoneNumber.Display())
}

func receivedMessage(s Session) string {
	return fmt.Sprintf("Code received for %s on %s: %s",
		s.Service.Name, s.PhoneNumber.Display(), s.OTP)
}

func failedMessage(s Session, err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		return fmt.Sprintf("The number %s expired before a code arrived. Auto-check stopped.",
			s.PhoneNumber.Display())
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "The OTP provider is unavailable. Auto-check stopped; try a manual check later."
	default:
		return fmt.Sprintf("Auto-check for %s stopped: %v", s.PhoneNumber.Display(), err)
	}
}

func stoppedMessage(reason StopReason) string {
	switch reason {
	case StopCleared:
		return "Session cleared. Auto-check stopped."
	case StopReplaced:
		return "Auto-check stopped: another check or a new session took over."
	case StopShutdown:
		return "The service is shutting down. Auto-check stopped."
	default:
		return "Auto-check stopped."
	}
}
