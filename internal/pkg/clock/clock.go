package clock

import "time"

// Clocker reports the current instant.
type Clocker interface {
	Now() time.Time
}

// TimeClocker reads the system clock.
type TimeClocker struct{}

// New returns the system clock.
func New() *TimeClocker {
	return &TimeClocker{}
}

// Now returns the system time in UTC.
func (*TimeClocker) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}

// Since is time.Since measured on c.
func Since(c Clocker, start time.Time) time.Duration {
	return c.Now().Sub(start)
}
