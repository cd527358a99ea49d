// Package metrics abstracts run-level metric collection behind a Recorder, so
// the orchestrator never talks to a metrics backend directly.
package metrics

import (
	"context"
	"time"
)

// Recorder records run-level pipeline metrics.
type Recorder interface {
	// RecordRun records one finished run with its terminal status
	// ("success", "noop" or "failed") and wall-clock duration.
	RecordRun(ctx context.Context, status string, duration time.Duration)
	// RecordFetchedRows records the raw rows fetched for one source.
	RecordFetchedRows(ctx context.Context, source string, count int)
	// RecordAggregateRows records the hourly rows one source contributed.
	RecordAggregateRows(ctx context.Context, source string, count int)
	// RecordExport records one destination outcome.
	RecordExport(ctx context.Context, destination string, rows int, failed bool)
}

// NoOpRecorder discards every metric. It is the default for one-shot runs and
// for tests.
type NoOpRecorder struct{}

// NewNoOpRecorder creates a recorder that does nothing.
func NewNoOpRecorder() Recorder {
	return &NoOpRecorder{}
}

func (r *NoOpRecorder) RecordRun(ctx context.Context, status string, duration time.Duration) {}

func (r *NoOpRecorder) RecordFetchedRows(ctx context.Context, source string, count int) {}

func (r *NoOpRecorder) RecordAggregateRows(ctx context.Context, source string, count int) {}

func (r *NoOpRecorder) RecordExport(ctx context.Context, destination string, rows int, failed bool) {
}

var _ Recorder = (*NoOpRecorder)(nil)
