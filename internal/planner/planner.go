// Package planner computes the fetch windows driven by the watermark: which
// hours the next incremental run must cover, and which hours are missing for
// backfill reporting. The planner only reads watermark state; advancing it is
// the orchestrator's job.
package planner

import (
	"time"

	"github.com/ambientdata/horaria/internal/timeutil"
	"github.com/ambientdata/horaria/internal/watermark"
)

// Window is a half-open hour range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// IsEmpty reports whether the window covers no hours. An empty window means
// "nothing to do", never an error: it is how the planner avoids fetching the
// in-progress hour.
func (w Window) IsEmpty() bool {
	return !w.Start.Before(w.End)
}

// Hours enumerates the hour starts covered by the window.
func (w Window) Hours() []time.Time {
	return timeutil.HoursBetween(w.Start, w.End)
}

// NextFetchWindow computes the window the next run must cover.
//
// With no prior state the window is exactly the most recently completed hour.
// With a watermark at h the window is [h+1h, start of the current hour), so
// the in-progress hour is never fetched.
func NextFetchWindow(wm *watermark.Watermark, now time.Time) Window {
	end := timeutil.CurrentHourStart(now)
	if wm == nil || wm.LastProcessedHour == nil {
		return Window{Start: timeutil.PreviousHourStart(now), End: end}
	}
	return Window{Start: timeutil.AddHours(timeutil.TruncateToHour(*wm.LastProcessedHour), 1), End: end}
}

// MissingHours lists the hours the pipeline has not yet processed, using the
// same window rule as NextFetchWindow. Used to report and backfill
// discontinuities after downtime.
func MissingHours(wm *watermark.Watermark, now time.Time) []time.Time {
	return NextFetchWindow(wm, now).Hours()
}

// Advance returns the watermark set to processedThrough (hour-truncated).
// The caller guarantees processedThrough is strictly before the start of the
// current hour: the in-progress hour is incomplete and must never be
// watermarked. A nil input watermark starts fresh state.
func Advance(wm *watermark.Watermark, processedThrough time.Time) watermark.Watermark {
	base := watermark.Watermark{}
	if wm != nil {
		base = *wm
	}
	return base.WithHour(timeutil.TruncateToHour(processedThrough))
}
