package domain

import "github.com/jonboulle/clockwork"

// clock is the package time source; tests freeze it with SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for recency thresholds. Pass nil to
// reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// CurrentYear is the calendar year recency thresholds are measured from.
func CurrentYear() int {
	return clock.Now().Year()
}
