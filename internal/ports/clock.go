package ports

import "time"

// Clock supplies the current time. Injecting it lets tests pin "now" for
// period-window aggregation and cache expiry.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }
