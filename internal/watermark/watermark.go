// Package watermark persists the pipeline's incremental checkpoint: the last
// hour whose data has been fully and successfully exported, plus a free-form
// metadata map recorded alongside it. The orchestrator is the sole writer;
// the planner only reads.
package watermark

import (
	"context"
	"time"
)

// Metadata keys recorded by the orchestrator on every advance.
const (
	MetaLastExecution   = "last_execution"
	MetaPipelineVersion = "pipeline_version"
	MetaLastBackfill    = "last_backfill"
)

// Watermark is the persisted incremental state for one pipeline identity.
// A nil LastProcessedHour means no prior state (first run).
type Watermark struct {
	LastProcessedHour *time.Time
	Metadata          map[string]string
}

// WithHour returns a copy of the watermark advanced to the given hour.
// The hour is stored in UTC. Metadata is carried over.
func (w Watermark) WithHour(hour time.Time) Watermark {
	utc := hour.UTC()
	out := Watermark{LastProcessedHour: &utc, Metadata: make(map[string]string, len(w.Metadata))}
	for k, v := range w.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// SetMetadata records one metadata entry, allocating the map when needed.
func (w *Watermark) SetMetadata(key, value string) {
	if w.Metadata == nil {
		w.Metadata = make(map[string]string)
	}
	w.Metadata[key] = value
}

// Store is the durable watermark persistence contract. Save must support
// concurrent-safe overwrite of the same key; last writer wins.
type Store interface {
	// Load returns the watermark for key, or nil when no state exists.
	Load(ctx context.Context, key string) (*Watermark, error)
	// Save overwrites the watermark for key.
	Save(ctx context.Context, key string, wm Watermark) error
	// Reset deletes the watermark for key, forcing full reprocessing.
	Reset(ctx context.Context, key string) error
}
