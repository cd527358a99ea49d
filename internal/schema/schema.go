// Package schema is the single source of truth for the pipeline's data shapes:
// the raw minute-level reading consumed from a source and the canonical hourly
// long-format row every destination receives. Field order and types of the
// canonical row are fixed; differently-shaped per-source results must pass
// through Coerce before concatenation.
package schema

import (
	"time"

	"github.com/ambientdata/horaria/internal/timeutil"
	"github.com/ambientdata/horaria/pkg/util/exception"
)

const moduleName = "schema"

// Status is the single-letter quality flag carried by raw readings.
type Status string

const (
	// StatusOK marks a valid reading. Only OK readings feed aggregation.
	StatusOK Status = "k"
	// StatusInvalid marks a reading rejected by source-side validation.
	StatusInvalid Status = "i"
	// StatusSuspect marks a reading of doubtful quality.
	StatusSuspect Status = "s"
	// StatusMissing marks a placeholder row for a reading that never arrived.
	StatusMissing Status = "m"
)

// IsOK reports whether the reading is valid for aggregation.
func (s Status) IsOK() bool {
	return s == StatusOK
}

// Reading is one raw minute-level row in wide format: one entry per metric
// column. A nil value means the column was null for that row; the key still
// being present distinguishes a null reading from a missing column.
type Reading struct {
	Time     time.Time
	Location string
	Status   Status
	Values   map[string]*float64
}

// HourlyRow is the canonical long-format output row. GORM tags map it onto the
// warehouse table; the parquet exporter derives its own flat record from it.
type HourlyRow struct {
	Time     time.Time `gorm:"column:time;primaryKey"`
	Location string    `gorm:"column:location;primaryKey"`
	Metric   string    `gorm:"column:metric;primaryKey"`
	Value    *float64  `gorm:"column:value"`
	OKCount  uint32    `gorm:"column:ok_count"`
	Version  string    `gorm:"column:version"`
}

// TableName specifies the warehouse table for HourlyRow.
func (HourlyRow) TableName() string {
	return "promedios_horarios"
}

// Table is an ordered collection of canonical rows.
type Table []HourlyRow

// EmptyOutput returns a zero-row table with the canonical schema.
func EmptyOutput() Table {
	return Table{}
}

// IsEmpty reports whether the table has no rows.
func (t Table) IsEmpty() bool {
	return len(t) == 0
}

// Coerce normalizes a table to the canonical schema: every timestamp is
// converted to UTC. It is lossless and idempotent for conforming input.
func Coerce(t Table) Table {
	if t.IsEmpty() {
		return EmptyOutput()
	}
	out := make(Table, len(t))
	for i, row := range t {
		row.Time = row.Time.UTC()
		out[i] = row
	}
	return out
}

// Validate checks the canonical invariants: hour-truncated UTC timestamps,
// non-empty keys, OKCount > 0 (zero-count groups are dropped upstream, never
// emitted) and at most one row per (time, location, metric) triple.
func Validate(t Table) error {
	type key struct {
		time     time.Time
		location string
		metric   string
	}
	seen := make(map[key]struct{}, len(t))

	for _, row := range t {
		if row.Time.IsZero() || row.Location == "" || row.Metric == "" {
			return exception.Newf(moduleName, "row is missing a required field: %+v", row)
		}
		if !row.Time.Equal(timeutil.TruncateToHour(row.Time)) {
			return exception.Newf(moduleName, "row timestamp %s is not hour-truncated", row.Time)
		}
		if row.OKCount == 0 {
			return exception.Newf(moduleName, "row for (%s, %s, %s) has ok_count 0", row.Time, row.Location, row.Metric)
		}
		k := key{row.Time.UTC(), row.Location, row.Metric}
		if _, dup := seen[k]; dup {
			return exception.Newf(moduleName, "duplicate row for (%s, %s, %s)", row.Time, row.Location, row.Metric)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Concat concatenates tables, dropping empty ones. The result is coerced to
// the canonical schema.
func Concat(tables ...Table) Table {
	out := EmptyOutput()
	for _, t := range tables {
		if t.IsEmpty() {
			continue
		}
		out = append(out, t...)
	}
	return Coerce(out)
}
