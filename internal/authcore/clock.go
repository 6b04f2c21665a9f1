package authcore

import "time"

// Clock provides the current time so tests can pin token expiries.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock constructs the production clock.
func NewSystemClock() Clock {
	return systemClock{}
}
