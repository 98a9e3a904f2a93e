package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZone_ParseAndBoundaries(t *testing.T) {
	zone, err := NewZone("America/New_York")
	require.NoError(t, err)

	day, err := zone.Parse("2025-03-09")
	require.NoError(t, err)

	start := zone.StartOfDay(day)
	end := zone.EndOfDay(day)

	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, 9, end.Day())
	assert.Equal(t, 23, end.Hour())
	assert.True(t, end.Add(time.Nanosecond).Equal(zone.StartOfDay(day.AddDate(0, 0, 1))))
	// DST starts on 2025-03-09 in New York; the day is 23 hours long.
	assert.Equal(t, 23*time.Hour, end.Add(time.Nanosecond).Sub(start))
}

func TestZone_ParseRFC3339(t *testing.T) {
	zone := UTC()
	got, err := zone.Parse("2025-01-02T15:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC), got)
}

func TestZone_ParseInvalid(t *testing.T) {
	_, err := UTC().Parse("02/01/2025")
	assert.True(t, errors.Is(err, ErrInvalidDate))

	_, err = UTC().Parse("  ")
	assert.True(t, errors.Is(err, ErrInvalidDate))
}

func TestNewZone_Unknown(t *testing.T) {
	_, err := NewZone("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestStartOfQuarter(t *testing.T) {
	cases := map[time.Month]time.Month{
		time.January:  time.January,
		time.March:    time.January,
		time.April:    time.April,
		time.August:   time.July,
		time.December: time.October,
	}
	for in, want := range cases {
		got := StartOfQuarter(time.Date(2025, in, 17, 10, 0, 0, 0, time.UTC))
		assert.Equal(t, want, got.Month(), "month %s", in)
		assert.Equal(t, 1, got.Day())
	}
	assert.Equal(t, 4, Quarter(time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)))
}
