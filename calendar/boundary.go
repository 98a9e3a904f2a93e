package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for caller-supplied dates.
const DateLayout = "2006-01-02"

// ErrInvalidDate signals a date string that matches none of the accepted layouts.
var ErrInvalidDate = errors.New("calendar: invalid date")

// Boundary normalizes caller-supplied dates to day boundaries in the operating timezone.
type Boundary interface {
	Parse(value string) (time.Time, error)
	StartOfDay(t time.Time) time.Time
	EndOfDay(t time.Time) time.Time
	Location() *time.Location
}

// Zone implements Boundary for a single IANA location.
type Zone struct {
	loc *time.Location
}

// NewZone loads the named location. An empty name selects UTC.
func NewZone(name string) (*Zone, error) {
	if strings.TrimSpace(name) == "" {
		return UTC(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("calendar: load location %q: %w", name, err)
	}
	return &Zone{loc: loc}, nil
}

// UTC returns a Zone anchored at UTC.
func UTC() *Zone {
	return &Zone{loc: time.UTC}
}

func (z *Zone) Location() *time.Location {
	return z.loc
}

// Parse accepts YYYY-MM-DD (interpreted in the zone) or RFC3339.
func (z *Zone) Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	if t, err := time.ParseInLocation(DateLayout, value, z.loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(z.loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

func (z *Zone) StartOfDay(t time.Time) time.Time {
	t = t.In(z.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, z.loc)
}

// EndOfDay returns the last representable instant of t's day.
func (z *Zone) EndOfDay(t time.Time) time.Time {
	return z.StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfMonth returns midnight on the first day of t's month in t's location.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// StartOfQuarter returns midnight on the first day of t's calendar quarter.
func StartOfQuarter(t time.Time) time.Time {
	first := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), first, 1, 0, 0, 0, 0, t.Location())
}

// Quarter returns 1..4.
func Quarter(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}
