package timeutil_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ambientdata/horaria/internal/timeutil"
)

func TestEnsureUTC(t *testing.T) {
	assert.Nil(t, timeutil.EnsureUTC(nil))

	loc := time.FixedZone("UTC+9", 9*60*60)
	aware := time.Date(2024, 1, 1, 9, 30, 0, 0, loc)
	got := timeutil.EnsureUTC(&aware)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC), *got)

	utc := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)
	got = timeutil.EnsureUTC(&utc)
	assert.Equal(t, utc, *got)
}

func TestAddHoursRollsOverBoundaries(t *testing.T) {
	// Day rollover.
	got := timeutil.AddHours(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC), 2)
	assert.Equal(t, time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC), got)

	// Pure UTC arithmetic regardless of DST conventions anywhere.
	got = timeutil.AddHours(time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC), got)

	// Year rollover, negative hours.
	got = timeutil.AddHours(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), -1)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), got)
}

func TestTruncateToHour(t *testing.T) {
	got := timeutil.TruncateToHour(time.Date(2024, 1, 1, 10, 37, 12, 345, time.UTC))
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), got)
}

func TestCurrentAndPreviousHourStart(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 37, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), timeutil.CurrentHourStart(now))
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), timeutil.PreviousHourStart(now))

	// Hour zero must roll back into the previous day.
	midnight := time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), timeutil.PreviousHourStart(midnight))
}

func TestHoursBetween(t *testing.T) {
	start := time.Date(2024, 1, 1, 22, 10, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC)

	hours := timeutil.HoursBetween(start, end)
	assert.Len(t, hours, 4)
	assert.Equal(t, time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC), hours[0])
	assert.Equal(t, time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC), hours[3])

	// Strictly increasing by exactly one hour each step.
	for i := 1; i < len(hours); i++ {
		assert.Equal(t, time.Hour, hours[i].Sub(hours[i-1]))
	}
}

func TestHoursBetweenEmptyWhenStartNotBeforeEnd(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Empty(t, timeutil.HoursBetween(at, at))
	assert.Empty(t, timeutil.HoursBetween(at.Add(time.Hour), at))
}
