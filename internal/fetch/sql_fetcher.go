package fetch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/internal/schema"
	"github.com/ambientdata/horaria/internal/timeutil"
	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

const moduleName = "fetch"

// SQLFetcher reads raw minute-level rows from a SQL-speaking time-series
// store through a GORM connection.
type SQLFetcher struct {
	db *gorm.DB
}

// NewSQLFetcher creates a new SQLFetcher.
func NewSQLFetcher(db *gorm.DB) *SQLFetcher {
	return &SQLFetcher{db: db}
}

// Fetch retrieves readings for the source in [start, end). With both bounds
// omitted it covers the most recently completed hour. Zero rows is a valid
// result.
func (f *SQLFetcher) Fetch(ctx context.Context, source config.Source, start, end *time.Time) ([]schema.Reading, error) {
	start = timeutil.EnsureUTC(start)
	end = timeutil.EnsureUTC(end)
	if start == nil && end == nil {
		now := time.Now().UTC()
		s := timeutil.PreviousHourStart(now)
		e := timeutil.CurrentHourStart(now)
		start, end = &s, &e
	}

	query := buildQuery(source)
	logger.Debugf("Fetching %s: %s [%v, %v)", source.Name, query, start, end)

	rows, err := f.db.WithContext(ctx).Raw(query, startBound(start), endBound(end)).Rows()
	if err != nil {
		return nil, exception.New(moduleName, fmt.Sprintf("query failed for source %q", source.Name), err, true)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, exception.New(moduleName, fmt.Sprintf("failed to read columns for source %q", source.Name), err, false)
	}

	var readings []schema.Reading
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, exception.New(moduleName, fmt.Sprintf("row scan failed for source %q", source.Name), err, false)
		}
		reading, err := decodeReading(columns, values)
		if err != nil {
			return nil, exception.New(moduleName, fmt.Sprintf("malformed row in source %q", source.Name), err, false)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.New(moduleName, fmt.Sprintf("row iteration failed for source %q", source.Name), err, true)
	}

	logger.Debugf("Fetched %d rows for source %s.", len(readings), source.Name)
	return readings, nil
}

// buildQuery assembles the windowed SELECT for the source. A wildcard metric
// list selects all columns; otherwise the key columns and the configured
// metric columns are selected in order.
func buildQuery(source config.Source) string {
	columns := "*"
	if !source.IsWildcard() {
		selected := append([]string{"time", "location"}, source.Metrics...)
		selected = append(selected, "status")
		columns = strings.Join(selected, ", ")
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE time >= ? AND time < ? ORDER BY time ASC", columns, source.Table)
}

func startBound(start *time.Time) time.Time {
	if start == nil {
		return time.Unix(0, 0).UTC()
	}
	return *start
}

func endBound(end *time.Time) time.Time {
	if end == nil {
		return time.Now().UTC()
	}
	return *end
}

// decodeReading converts one scanned row into a Reading. Unknown columns are
// treated as metric columns; nulls stay nil.
func decodeReading(columns []string, values []interface{}) (schema.Reading, error) {
	reading := schema.Reading{Values: make(map[string]*float64)}

	for i, col := range columns {
		v := values[i]
		switch col {
		case "time":
			ts, err := decodeTime(v)
			if err != nil {
				return schema.Reading{}, err
			}
			reading.Time = ts
		case "location":
			reading.Location = decodeString(v)
		case "status":
			reading.Status = schema.Status(decodeString(v))
		default:
			fv, err := decodeFloat(v)
			if err != nil {
				return schema.Reading{}, fmt.Errorf("column %q: %w", col, err)
			}
			reading.Values[col] = fv
		}
	}
	if reading.Time.IsZero() {
		return schema.Reading{}, fmt.Errorf("row has no time column")
	}
	return reading, nil
}

func decodeTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTimeString(string(t))
	case string:
		return parseTimeString(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value of type %T", v)
	}
}

func parseTimeString(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

func decodeString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func decodeFloat(v interface{}) (*float64, error) {
	switch f := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &f, nil
	case float32:
		v64 := float64(f)
		return &v64, nil
	case int64:
		v64 := float64(f)
		return &v64, nil
	case []byte:
		v64, err := strconv.ParseFloat(string(f), 64)
		if err != nil {
			return nil, err
		}
		return &v64, nil
	case string:
		v64, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		return &v64, nil
	default:
		return nil, fmt.Errorf("unsupported metric value of type %T", v)
	}
}

// Verify interface.
var _ Fetcher = (*SQLFetcher)(nil)
