package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ambientdata/horaria/internal/export"
	"github.com/ambientdata/horaria/internal/planner"
	"github.com/ambientdata/horaria/internal/schema"
	"github.com/ambientdata/horaria/internal/timeutil"
	"github.com/ambientdata/horaria/internal/tracing"
	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

// BackfillRequest describes one backfill: an explicit hour range, an optional
// source subset and whether to advance the watermark afterwards.
type BackfillRequest struct {
	Start time.Time
	End   time.Time
	// Sources restricts the backfill; empty means all configured sources.
	Sources []string
	// AdvanceWatermark moves the watermark to the last hour that actually
	// had data. Off by default: an unconditional advance could jump the
	// watermark over hours the backfill never covered.
	AdvanceWatermark bool
}

// BackfillReport extends the run report with hour coverage: which hours had
// data and which were skipped as empty.
type BackfillReport struct {
	RunID        string
	CoveredHours []time.Time
	SkippedHours []time.Time
	OutputRows   int
	Outcomes     []export.Outcome
	AdvancedTo   *time.Time
}

// Backfill reprocesses an explicit hour range, hour by hour. Empty hours are
// skipped, never failed; fetch or aggregation errors abort the backfill
// before anything is exported.
func (o *Orchestrator) Backfill(ctx context.Context, req BackfillRequest) (*BackfillReport, error) {
	runID := uuid.NewString()
	ctx, span := tracing.StartRunSpan(ctx, o.tracer, runID)
	defer span.End()

	report := &BackfillReport{RunID: runID}

	hours := timeutil.HoursBetween(req.Start, req.End)
	if len(hours) == 0 {
		return report, exception.Newf(moduleName, "backfill range [%s, %s) contains no full hours",
			req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339))
	}

	sources, err := o.registry.Resolve(req.Sources)
	if err != nil {
		return report, err
	}
	logger.Infof("Backfill %s: %d hours over %d sources.", runID, len(hours), len(sources))

	tables := make([]schema.Table, 0, len(hours))
	for _, hour := range hours {
		window := planner.Window{Start: hour, End: timeutil.AddHours(hour, 1)}
		table, _, err := o.fetchAndAggregate(ctx, sources, window)
		if err != nil {
			return report, exception.New(moduleName,
				"backfill aborted at hour "+hour.Format(time.RFC3339), err, false)
		}
		if table.IsEmpty() {
			report.SkippedHours = append(report.SkippedHours, hour)
			continue
		}
		report.CoveredHours = append(report.CoveredHours, hour)
		tables = append(tables, table)
	}

	output := schema.Concat(tables...)
	report.OutputRows = len(output)
	if output.IsEmpty() {
		logger.Infof("Backfill %s: every hour in range was empty.", runID)
		return report, nil
	}

	outcomes, exportErr := o.fanOut.Export(ctx, output)
	report.Outcomes = outcomes
	for _, outcome := range outcomes {
		o.recorder.RecordExport(ctx, outcome.Destination, outcome.Rows, outcome.Err != nil)
	}
	if exportErr != nil {
		logger.Warnf("Backfill %s: %d destination(s) failed: %v", runID, len(failedOutcomes(outcomes)), exportErr)
	}

	if req.AdvanceWatermark {
		wm, err := o.store.Load(ctx, o.cfg.Horaria.Pipeline.WatermarkKey)
		if err != nil {
			logger.Warnf("Watermark load failed before backfill advance, treating as no prior state: %v", err)
			wm = nil
		}
		now := o.clock().UTC()
		lastCovered := report.CoveredHours[len(report.CoveredHours)-1]
		if !lastCovered.Before(timeutil.CurrentHourStart(now)) {
			// Never watermark the in-progress hour; its data is incomplete.
			lastCovered = timeutil.PreviousHourStart(now)
		}
		if wm != nil && wm.LastProcessedHour != nil && lastCovered.Before(*wm.LastProcessedHour) {
			// The watermark never moves backwards. Backfilling a range behind
			// it rewrites the data in place and keeps the later hour.
			logger.Infof("Backfill %s covered hours behind watermark %s, keeping it.",
				runID, wm.LastProcessedHour.Format(time.RFC3339))
			lastCovered = *wm.LastProcessedHour
		}
		advanced, err := o.advanceWatermark(ctx, wm, lastCovered, now.Format(time.RFC3339))
		if err != nil {
			return report, err
		}
		report.AdvancedTo = advanced.LastProcessedHour
	}

	logger.Infof("Backfill %s finished: %d hours covered, %d skipped, %d rows.",
		runID, len(report.CoveredHours), len(report.SkippedHours), report.OutputRows)
	return report, nil
}
