// Package aggregate converts one source's raw minute-level wide rows into the
// canonical long-format hourly rows: filter to ok-status readings, group by
// (hour, location) per metric column, and emit the per-group mean together
// with the contributing ok-row count.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/ambientdata/horaria/internal/schema"
	"github.com/ambientdata/horaria/internal/timeutil"
	"github.com/ambientdata/horaria/pkg/util/exception"
)

const moduleName = "aggregate"

// metricSuffix is the fixed suffix raw metric columns carry in the source
// tables (e.g. "co_mean"). The canonical metric name is the column name with
// the suffix stripped.
const metricSuffix = "_mean"

// BuildMetricColumns derives the raw-column-to-canonical-name mapping from an
// ordered metric column list, e.g. ["no_mean", "no2_mean"] becomes
// {"no_mean": "no", "no2_mean": "no2"}.
func BuildMetricColumns(metrics []string) map[string]string {
	metricColumns := make(map[string]string, len(metrics))
	for _, metric := range metrics {
		metricColumns[metric] = strings.TrimSuffix(metric, metricSuffix)
	}
	return metricColumns
}

// groupKey identifies one (hour, location) aggregation group.
type groupKey struct {
	hour     time.Time
	location string
}

// group accumulates one metric column over one (hour, location) group.
type group struct {
	sum     float64
	nonNull int
	okCount uint32
}

// AggregateHourly aggregates raw readings into canonical hourly rows.
//
// It fails with an invalid-argument error when metricColumns is empty, returns
// the empty output immediately for empty input, and returns the empty output
// when no reading has ok status. For each metric column independently the
// ok-status readings are grouped by (hour-truncated time, location); each
// group emits one row whose Value is the mean of the non-null column values
// (nil when every value in the group was null) and whose OKCount is the
// number of ok rows folded in. The concatenated result is coerced to the
// canonical schema.
func AggregateHourly(readings []schema.Reading, metricColumns map[string]string, version string) (schema.Table, error) {
	if len(metricColumns) == 0 {
		return nil, exception.New(moduleName, "metric column map cannot be empty", exception.ErrInvalidArgument, false)
	}
	if len(readings) == 0 {
		return schema.EmptyOutput(), nil
	}

	filtered := make([]schema.Reading, 0, len(readings))
	for _, r := range readings {
		if r.Status.IsOK() {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return schema.EmptyOutput(), nil
	}

	// Deterministic output: metric columns in lexical order, groups ordered
	// by (hour, location) below.
	columns := make([]string, 0, len(metricColumns))
	for col := range metricColumns {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	out := schema.EmptyOutput()
	for _, col := range columns {
		rows, err := aggregateColumn(filtered, col, metricColumns[col], version)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return schema.Coerce(out), nil
}

func aggregateColumn(readings []schema.Reading, column, metric, version string) (schema.Table, error) {
	groups := make(map[groupKey]*group)
	order := make([]groupKey, 0)
	columnPresent := false

	for _, r := range readings {
		value, present := r.Values[column]
		if present {
			columnPresent = true
		}

		key := groupKey{hour: timeutil.TruncateToHour(r.Time), location: r.Location}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.okCount++
		if value != nil {
			g.sum += *value
			g.nonNull++
		}
	}

	if !columnPresent {
		return nil, exception.Newf(moduleName, "metric column %q missing from fetched rows", column)
	}

	sort.Slice(order, func(i, j int) bool {
		if !order[i].hour.Equal(order[j].hour) {
			return order[i].hour.Before(order[j].hour)
		}
		return order[i].location < order[j].location
	})

	rows := make(schema.Table, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := schema.HourlyRow{
			Time:     key.hour,
			Location: key.location,
			Metric:   metric,
			OKCount:  g.okCount,
			Version:  version,
		}
		if g.nonNull > 0 {
			mean := g.sum / float64(g.nonNull)
			row.Value = &mean
		}
		rows = append(rows, row)
	}
	return rows, nil
}
