package aggregate_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambientdata/horaria/internal/aggregate"
	"github.com/ambientdata/horaria/internal/schema"
	"github.com/ambientdata/horaria/pkg/util/exception"
)

func fptr(v float64) *float64 { return &v }

func reading(ts time.Time, location string, status schema.Status, values map[string]*float64) schema.Reading {
	return schema.Reading{Time: ts, Location: location, Status: status, Values: values}
}

func TestBuildMetricColumns(t *testing.T) {
	assert.Equal(t,
		map[string]string{"co_mean": "co"},
		aggregate.BuildMetricColumns([]string{"co_mean"}))
	assert.Equal(t,
		map[string]string{"no_mean": "no", "no2_mean": "no2", "nox_mean": "nox"},
		aggregate.BuildMetricColumns([]string{"no_mean", "no2_mean", "nox_mean"}))
}

func TestAggregateHourlyRejectsEmptyMetricMap(t *testing.T) {
	_, err := aggregate.AggregateHourly([]schema.Reading{}, nil, "v1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrInvalidArgument))
}

func TestAggregateHourlyEmptyInput(t *testing.T) {
	out, err := aggregate.AggregateHourly(nil, map[string]string{"co_mean": "co"}, "v1")
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
}

func TestAggregateHourlyAllNonOKStatuses(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	readings := []schema.Reading{
		reading(base, "centro", schema.StatusInvalid, map[string]*float64{"co_mean": fptr(0.4)}),
		reading(base.Add(time.Minute), "centro", schema.StatusSuspect, map[string]*float64{"co_mean": fptr(0.5)}),
		reading(base.Add(2*time.Minute), "centro", schema.StatusMissing, map[string]*float64{"co_mean": nil}),
	}

	out, err := aggregate.AggregateHourly(readings, map[string]string{"co_mean": "co"}, "v1")
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
}

func TestAggregateHourlySingleOKRowPerGroup(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 17, 0, 0, time.UTC)
	readings := []schema.Reading{
		reading(base, "centro", schema.StatusOK, map[string]*float64{"co_mean": fptr(0.42)}),
	}

	out, err := aggregate.AggregateHourly(readings, map[string]string{"co_mean": "co"}, "v1")
	require.NoError(t, err)
	require.Len(t, out, 1)

	row := out[0]
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), row.Time)
	assert.Equal(t, "centro", row.Location)
	assert.Equal(t, "co", row.Metric)
	require.NotNil(t, row.Value)
	assert.Equal(t, 0.42, *row.Value)
	assert.Equal(t, uint32(1), row.OKCount)
	assert.Equal(t, "v1", row.Version)
}

func TestAggregateHourlyMeanAndOKCount(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	readings := []schema.Reading{
		reading(base, "centro", schema.StatusOK, map[string]*float64{"co_mean": fptr(1.0)}),
		reading(base.Add(20*time.Minute), "centro", schema.StatusOK, map[string]*float64{"co_mean": fptr(2.0)}),
		reading(base.Add(40*time.Minute), "centro", schema.StatusOK, map[string]*float64{"co_mean": fptr(3.0)}),
		// Non-ok rows never contribute.
		reading(base.Add(50*time.Minute), "centro", schema.StatusInvalid, map[string]*float64{"co_mean": fptr(100.0)}),
	}

	out, err := aggregate.AggregateHourly(readings, map[string]string{"co_mean": "co"}, "v1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint32(3), out[0].OKCount)
	require.NotNil(t, out[0].Value)
	assert.Equal(t, 2.0, *out[0].Value)
}

func TestAggregateHourlyNullValuesContributeToOKCountNotMean(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	readings := []schema.Reading{
		reading(base, "centro", schema.StatusOK, map[string]*float64{"co_mean": fptr(2.0)}),
		reading(base.Add(time.Minute), "centro", schema.StatusOK, map[string]*float64{"co_mean": nil}),
		reading(base.Add(2*time.Minute), "centro", schema.StatusOK, map[string]*float64{"co_mean": fptr(4.0)}),
	}

	out, err := aggregate.AggregateHourly(readings, map[string]string{"co_mean": "co"}, "v1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint32(3), out[0].OKCount)
	require.NotNil(t, out[0].Value)
	assert.Equal(t, 3.0, *out[0].Value)
}

func TestAggregateHourlyAllNullColumnEmitsNilValue(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	readings := []schema.Reading{
		reading(base, "centro", schema.StatusOK, map[string]*float64{"co_mean": nil}),
		reading(base.Add(time.Minute), "centro", schema.StatusOK, map[string]*float64{"co_mean": nil}),
	}

	out, err := aggregate.AggregateHourly(readings, map[string]string{"co_mean": "co"}, "v1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Value)
	assert.Equal(t, uint32(2), out[0].OKCount)
}

func TestAggregateHourlyMissingColumnFails(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	readings := []schema.Reading{
		reading(base, "centro", schema.StatusOK, map[string]*float64{"co_mean": fptr(1.0)}),
	}

	_, err := aggregate.AggregateHourly(readings, map[string]string{"nope_mean": "nope"}, "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope_mean")
}

func TestAggregateHourlyMultipleMetricsAndGroups(t *testing.T) {
	h10 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	h11 := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	metricColumns := map[string]string{"no_mean": "no", "no2_mean": "no2"}

	readings := []schema.Reading{
		reading(h10.Add(5*time.Minute), "centro", schema.StatusOK, map[string]*float64{"no_mean": fptr(1.0), "no2_mean": fptr(10.0)}),
		reading(h10.Add(6*time.Minute), "norte", schema.StatusOK, map[string]*float64{"no_mean": fptr(2.0), "no2_mean": fptr(20.0)}),
		reading(h11.Add(7*time.Minute), "centro", schema.StatusOK, map[string]*float64{"no_mean": fptr(3.0), "no2_mean": fptr(30.0)}),
	}

	out, err := aggregate.AggregateHourly(readings, metricColumns, "v1")
	require.NoError(t, err)
	// 2 metrics x 3 distinct (hour, location) groups.
	assert.Len(t, out, 6)
	require.NoError(t, schema.Validate(out))
}
