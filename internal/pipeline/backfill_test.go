package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambientdata/horaria/internal/schema"
	"github.com/ambientdata/horaria/internal/watermark"
)

func TestBackfillSkipsEmptyHours(t *testing.T) {
	h := newHarness(t)
	six := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	eight := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	// Data exists for hours 06 and 08; hour 07 is a gap.
	h.fetcher.readings["co"] = append(
		readingsAt(six, "centro", map[string]*float64{"co_mean": fp(0.1)}),
		readingsAt(eight, "centro", map[string]*float64{"co_mean": fp(0.3)})...,
	)

	report, err := h.orch.Backfill(context.Background(), BackfillRequest{
		Start:   six,
		End:     time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Sources: []string{"co"},
	})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{six, eight}, report.CoveredHours)
	assert.Equal(t, []time.Time{six.Add(time.Hour)}, report.SkippedHours)
	assert.Equal(t, 2, report.OutputRows)
	require.NoError(t, schema.Validate(h.warehouse.table))

	// The primary watermark never moves without an explicit request.
	assert.Nil(t, report.AdvancedTo)
	assert.Empty(t, h.store.state)
}

func TestBackfillAdvanceMovesToLastCoveredHour(t *testing.T) {
	h := newHarness(t)
	six := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	seven := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)

	h.fetcher.readings["co"] = readingsAt(seven, "centro", map[string]*float64{"co_mean": fp(0.2)})

	report, err := h.orch.Backfill(context.Background(), BackfillRequest{
		Start:            six,
		End:              time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Sources:          []string{"co"},
		AdvanceWatermark: true,
	})
	require.NoError(t, err)

	// Hours 06 and 08 were empty, so the watermark lands on 07, the last
	// hour actually covered, not on the end of the requested range.
	require.NotNil(t, report.AdvancedTo)
	assert.Equal(t, seven, *report.AdvancedTo)

	saved := h.store.state[h.cfg.Horaria.Pipeline.WatermarkKey]
	assert.NotEmpty(t, saved.Metadata[watermark.MetaLastBackfill])
}

func TestBackfillAdvanceNeverMovesWatermarkBackwards(t *testing.T) {
	h := newHarness(t)
	six := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	eleven := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	key := h.cfg.Horaria.Pipeline.WatermarkKey
	h.store.state[key] = watermark.Watermark{LastProcessedHour: &eleven}

	h.fetcher.readings["co"] = readingsAt(six, "centro", map[string]*float64{"co_mean": fp(0.1)})

	report, err := h.orch.Backfill(context.Background(), BackfillRequest{
		Start:            six,
		End:              six.Add(time.Hour),
		Sources:          []string{"co"},
		AdvanceWatermark: true,
	})
	require.NoError(t, err)

	// The backfilled range lies behind the watermark: the hour's data is
	// rewritten in place but the watermark keeps the later hour.
	assert.Equal(t, 1, h.warehouse.calls)
	require.NotNil(t, report.AdvancedTo)
	assert.Equal(t, eleven, *report.AdvancedTo)

	saved := h.store.state[key]
	require.NotNil(t, saved.LastProcessedHour)
	assert.Equal(t, eleven, *saved.LastProcessedHour)
	assert.NotEmpty(t, saved.Metadata[watermark.MetaLastBackfill])
}

func TestBackfillAllHoursEmpty(t *testing.T) {
	h := newHarness(t)
	six := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	report, err := h.orch.Backfill(context.Background(), BackfillRequest{
		Start:            six,
		End:              time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		Sources:          []string{"co"},
		AdvanceWatermark: true,
	})
	require.NoError(t, err)

	assert.Empty(t, report.CoveredHours)
	assert.Len(t, report.SkippedHours, 2)
	assert.Equal(t, 0, h.warehouse.calls)
	// Nothing was covered, so nothing to advance to.
	assert.Nil(t, report.AdvancedTo)
	assert.Empty(t, h.store.state)
}

func TestBackfillRejectsEmptyRange(t *testing.T) {
	h := newHarness(t)
	six := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	_, err := h.orch.Backfill(context.Background(), BackfillRequest{Start: six, End: six})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains no full hours")
}

func TestBackfillAbortsOnFetchFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.errs["co"] = errors.New("attempts exhausted")

	_, err := h.orch.Backfill(context.Background(), BackfillRequest{
		Start:   time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		Sources: []string{"co"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backfill aborted at hour")
	assert.Equal(t, 0, h.warehouse.calls)
}

func TestBackfillNeverWatermarksInProgressHour(t *testing.T) {
	h := newHarness(t)
	// fixedNow is 12:05; the backfill range reaches into hour 12.
	twelve := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h.fetcher.readings["co"] = readingsAt(twelve, "centro", map[string]*float64{"co_mean": fp(0.9)})

	report, err := h.orch.Backfill(context.Background(), BackfillRequest{
		Start:            twelve,
		End:              twelve.Add(time.Hour),
		Sources:          []string{"co"},
		AdvanceWatermark: true,
	})
	require.NoError(t, err)

	require.NotNil(t, report.AdvancedTo)
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), *report.AdvancedTo)
}
