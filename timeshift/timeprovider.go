package timeshift

import "time"

// TimeProvider abstracts time operations for deterministic testing, in
// the same spirit as the wire packetizer's injectable clock.
// Production code uses DefaultTimeProvider; tests can inject a fake
// clock to exercise cleanup and rate-control behavior without sleeping.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard time package.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time {
	return time.Now()
}
