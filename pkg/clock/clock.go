package clock

import "time"

// Clock abstracts the source of current time so services can be tested
// against fixed instants.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// Fixed returns a clock pinned to t.
func Fixed(t time.Time) Clock { return fixedClock(t) }

type fixedClock time.Time

func (f fixedClock) Now() time.Time { return time.Time(f) }
