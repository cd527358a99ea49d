// Package timeutil provides the UTC normalization and hour arithmetic helpers
// shared by the planner, the aggregation engine and the watermark store.
// All arithmetic is pure UTC calendar arithmetic; there is no local-time or
// daylight-saving handling anywhere in the pipeline.
package timeutil

import "time"

// EnsureUTC normalizes a timestamp to UTC. A nil input passes through.
// Timestamps are converted, not reinterpreted: an instant in another zone maps
// to the same instant in UTC.
func EnsureUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// AddHours adds n hours (n may be negative) using exact calendar arithmetic.
// Day, month and year boundaries roll over correctly.
func AddHours(t time.Time, n int) time.Time {
	return t.UTC().Add(time.Duration(n) * time.Hour)
}

// TruncateToHour zeroes minute, second and sub-second fields.
func TruncateToHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// CurrentHourStart returns the start of the hour containing now.
func CurrentHourStart(now time.Time) time.Time {
	return TruncateToHour(now)
}

// PreviousHourStart returns the start of the hour before the one containing now.
func PreviousHourStart(now time.Time) time.Time {
	return AddHours(CurrentHourStart(now), -1)
}

// HoursBetween returns one timestamp per hour in [start, end), both bounds
// truncated to the hour first. The result is empty when start >= end.
func HoursBetween(start, end time.Time) []time.Time {
	start = TruncateToHour(start)
	end = TruncateToHour(end)

	var hours []time.Time
	for cur := start; cur.Before(end); cur = AddHours(cur, 1) {
		hours = append(hours, cur)
	}
	return hours
}
