// Package domain contains pure business logic and types: session identity,
// the reference catalog, phone numbers and the error taxonomy.
package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UserID is a value object identifying the user that owns an OTP session.
// It is opaque: the transport decides its format (a Telegram sender ID,
// a JWT subject, ...). Always valid in memory - use NewUserID to construct.
type UserID struct {
	value string
}

// NewUserID creates a UserID from a raw transport identity.
func NewUserID(raw string) (UserID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UserID{}, ErrEmptyID
	}
	if len(raw) > MaxUserIDLength {
		return UserID{}, fmt.Errorf("user ID exceeds max length %d: %w", MaxUserIDLength, ErrInvalidID)
	}
	return UserID{value: raw}, nil
}

// MustUserID creates a UserID, panicking on invalid input. Use only in tests.
func MustUserID(raw string) UserID {
	id, err := NewUserID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// Short returns the identity without a transport suffix such as "@s.whatsapp.net".
func (id UserID) Short() string {
	if i := strings.IndexByte(id.value, '@'); i > 0 {
		return id.value[:i]
	}
	return id.value
}

func (id UserID) String() string { return id.value }
func (id UserID) IsZero() bool   { return id.value == "" }

// SessionID is a value object representing a unique OTP session identifier.
type SessionID struct {
	value string
}

// NewSessionID creates a SessionID from a raw string, validating it is a valid UUID.
func NewSessionID(raw string) (SessionID, error) {
	if raw == "" {
		return SessionID{}, ErrEmptyID
	}
	if _, err := uuid.Parse(raw); err != nil {
		return SessionID{}, fmt.Errorf("invalid session ID %q: %w", raw, ErrInvalidID)
	}
	return SessionID{value: raw}, nil
}

// GenerateSessionID creates a new random SessionID.
func GenerateSessionID() SessionID {
	return SessionID{value: uuid.NewString()}
}

func (id SessionID) String() string { return id.value }
func (id SessionID) IsZero() bool   { return id.value == "" }
