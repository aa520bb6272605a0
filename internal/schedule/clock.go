package schedule

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// EndOfDay is the only clock value past 23:59 that ParseClock accepts ("24:00").
const EndOfDay Clock = 24 * 60

var ErrInvalidClock = errors.New(`time of day must be "HH:MM"`)

// Clock is a business-local wall-clock time of day, in minutes after midnight.
type Clock int

func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, okH := twoDigits(s[0], s[1])
	m, okM := twoDigits(s[3], s[4])
	if !okH || !okM || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	c := Clock(h*60 + m)
	if c > EndOfDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return c, nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// ClockOf returns the wall-clock time of day of t in t's location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

// On places c on the calendar day of date, in date's location.
func (c Clock) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, int(c), 0, 0, date.Location())
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// StartOfDay truncates t to midnight of its calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
