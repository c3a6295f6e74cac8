package schedule

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDuration is returned when an interval is constructed with a
// non-positive number of minutes.
var ErrInvalidDuration = errors.New("interval duration must be a positive number of minutes")

// Interval is a half-open time range [Start, Start+Minutes). The open
// end means back-to-back bookings that touch at an endpoint do not
// overlap.
type Interval struct {
	Start   time.Time
	Minutes int
}

// NewInterval validates the duration at construction.
func NewInterval(start time.Time, minutes int) (Interval, error) {
	if minutes <= 0 {
		return Interval{}, fmt.Errorf("%w: got %d", ErrInvalidDuration, minutes)
	}
	return Interval{Start: start, Minutes: minutes}, nil
}

func (i Interval) End() time.Time {
	return i.Start.Add(time.Duration(i.Minutes) * time.Minute)
}

// Overlaps reports whether two half-open intervals intersect:
// A.start < B.end && B.start < A.end.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End()) && o.Start.Before(i.End())
}

// Within reports whether the interval falls entirely inside [start, end].
func (i Interval) Within(start, end time.Time) bool {
	return !i.Start.Before(start) && !i.End().After(end)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End().Format(time.RFC3339))
}
