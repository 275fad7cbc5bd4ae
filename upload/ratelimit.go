package upload

import "time"

// Clock returns the current instant. A session reads every instant from the
// same Clock.
type Clock func() time.Time

// Allow reports whether an action may fire at now given the instant it last
// fired. A zero last means it never fired, so the gate starts open.
func Allow(last, now time.Time, window time.Duration) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= window
}
