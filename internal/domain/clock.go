package domain

import "time"

// Clock provides the current time. Session timestamps and token validation
// read time through it so tests can pin the wall clock.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// Age returns how long ago t was according to c, never negative.
func Age(c Clock, t time.Time) time.Duration {
	d := c.Now().Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

var _ Clock = RealClock{}
