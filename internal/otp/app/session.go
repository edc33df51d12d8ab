// Package app is the OTP session manager. It rents a disposable number per
// user, checks it for a verification code on demand or on a schedule, and
// tears sessions down. Transports live in the port package; this package
// only knows users, sessions, the provider and notification sinks.
package app

import (
	"time"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

// PollHandle cancels a scheduled auto-check. Stop is idempotent and reports
// whether this call cancelled anything.
type PollHandle interface {
	Stop() bool
}

// Session is a user's current number rental.
type Session struct {
	ID          domain.SessionID
	UserID      domain.UserID
	Country     domain.Country
	Service     domain.Service
	PhoneNumber domain.PhoneNumber
	ProviderRef string // the provider's allocation id
	Status      domain.SessionStatus
	OTP         string // set iff Status is received
	CreatedAt   time.Time
	ReceivedAt  time.Time
	PollHandle  PollHandle // non-nil iff an auto-check is scheduled
}

// Received reports whether the code has arrived.
func (s Session) Received() bool {
	return s.Status == domain.SessionReceived
}

// AutoCheckEnabled reports whether a background check is scheduled.
func (s Session) AutoCheckEnabled() bool {
	return s.PollHandle != nil
}

// CreateResult is returned by CreateSession.
type CreateResult struct {
	Session Session
	Message string
}

// CheckStatus is the outcome of a successful check.
type CheckStatus string

const (
	CheckReceived CheckStatus = "received"
	CheckWaiting  CheckStatus = "waiting"
)

// CheckResult is returned by CheckUserOTP.
type CheckResult struct {
	Status  CheckStatus
	Code    string // set iff Status is CheckReceived
	Session Session
	Message string
}

// NotificationKind classifies auto-check notifications.
type NotificationKind string

const (
	NotificationWaiting  NotificationKind = "waiting"
	NotificationReceived NotificationKind = "received"
	NotificationFailed   NotificationKind = "failed"
	NotificationStopped  NotificationKind = "stopped"
)

// StopReason says why an auto-check was ended from outside its own loop.
type StopReason string

const (
	StopRequested StopReason = "requested" // StopAutoCheck or a toggle
	StopCleared   StopReason = "cleared"   // the session was cleared
	StopReplaced  StopReason = "replaced"  // a new session or a new auto-check took over
	StopChecked   StopReason = "checked"   // a manual check saw the code
	StopShutdown  StopReason = "shutdown"  // the manager closed
)

// Notification is delivered to a Sink by an auto-check. Received, failed and
// stopped notifications are terminal: every sink passed to StartAutoCheck
// gets exactly one, and nothing after it.
type Notification struct {
	Kind    NotificationKind
	UserID  domain.UserID
	Code    string
	Message string
	Err     error

	// Reason is set when something other than the auto-check loop ended it.
	// A manual check that saw the code ends the auto-check with a received
	// notification and StopChecked.
	Reason StopReason
}

// Terminal reports whether no further notifications follow this one.
func (n Notification) Terminal() bool {
	return n.Kind == NotificationReceived || n.Kind == NotificationFailed || n.Kind == NotificationStopped
}

// Sink receives auto-check notifications. It is called while the user's
// session is locked, either from the poller goroutine or from the call that
// stopped the auto-check, so it must not call back into the Manager for the
// same user.
type Sink func(Notification)

// AutoCheckID identifies one StartAutoCheck call. IDs are never reused
// within a Manager.
type AutoCheckID uint64
