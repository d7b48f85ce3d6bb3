package domain

import "time"

// Clock supplies the current time. Expiry comparisons throughout the core go
// through a Clock so tests can freeze time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall-clock implementation used in production.
var SystemClock Clock = systemClock{}
