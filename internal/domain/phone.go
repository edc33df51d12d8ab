package domain

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// PhoneNumber is a value object for a number handed out by the provider.
// The provider is the authority on the number; parsing only normalizes the
// representation and never rejects a non-empty value.
type PhoneNumber struct {
	raw     string
	e164    string
	display string
}

// NewPhoneNumber builds a PhoneNumber from the provider's raw string, using
// region (ISO 3166-1 alpha-2) to resolve numbers returned without a '+' prefix.
func NewPhoneNumber(raw, region string) (PhoneNumber, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PhoneNumber{}, fmt.Errorf("phone number cannot be empty: %w", ErrInvalidPhoneNumber)
	}
	p := PhoneNumber{raw: raw}
	num, err := phonenumbers.Parse(raw, NormalizeCountryCode(region))
	if err != nil {
		return p, nil
	}
	p.e164 = phonenumbers.Format(num, phonenumbers.E164)
	p.display = phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
	return p, nil
}

// MustPhoneNumber creates a PhoneNumber, panicking on invalid input. Use only in tests.
func MustPhoneNumber(raw, region string) PhoneNumber {
	p, err := NewPhoneNumber(raw, region)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the E.164 form when the number could be parsed, else the raw value.
func (p PhoneNumber) String() string {
	if p.e164 != "" {
		return p.e164
	}
	return p.raw
}

// Display returns the international, human-readable form.
func (p PhoneNumber) Display() string {
	if p.display != "" {
		return p.display
	}
	return p.raw
}

// Masked returns the number with all but the last 4 digits hidden, for logs.
func (p PhoneNumber) Masked() string {
	s := p.String()
	if len(s) <= 4 {
		return "****"
	}
	return "***" + s[len(s)-4:]
}

func (p PhoneNumber) IsZero() bool { return p.raw == "" }
