package automation

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Schedule maps weekdays to opening hours in a fixed timezone. It is
// injected into the engine rather than read from process-wide state.
type Schedule struct {
	Hours    map[time.Weekday][2]int // weekday -> [openHour, closeHour)
	Location *time.Location
}

// NewSchedule builds a Monday-through-Saturday schedule with the same
// opening hours each day. Sundays are closed.
func NewSchedule(timezone string, openHour, closeHour int) Schedule {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logrus.WithError(err).WithField("tz", timezone).Warn("unknown timezone, using UTC")
		loc = time.UTC
	}

	hours := make(map[time.Weekday][2]int)
	for day := time.Monday; day <= time.Saturday; day++ {
		hours[day] = [2]int{openHour, closeHour}
	}

	return Schedule{Hours: hours, Location: loc}
}

// OpenAt reports whether the business is open at the given instant.
func (s Schedule) OpenAt(t time.Time) bool {
	if s.Location != nil {
		t = t.In(s.Location)
	}
	window, ok := s.Hours[t.Weekday()]
	if !ok {
		return false
	}
	return t.Hour() >= window[0] && t.Hour() < window[1]
}
