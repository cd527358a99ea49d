// Package pipeline orchestrates one run of the hourly ETL: plan the window,
// fetch every source, aggregate, fan out to the destinations and advance the
// watermark. Phases are strictly ordered; only fetches (and exports) overlap
// among themselves.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ambientdata/horaria/internal/aggregate"
	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/internal/export"
	"github.com/ambientdata/horaria/internal/fetch"
	"github.com/ambientdata/horaria/internal/metrics"
	"github.com/ambientdata/horaria/internal/planner"
	"github.com/ambientdata/horaria/internal/schema"
	"github.com/ambientdata/horaria/internal/timeutil"
	"github.com/ambientdata/horaria/internal/tracing"
	"github.com/ambientdata/horaria/internal/watermark"
	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

const moduleName = "pipeline"

// Run terminal statuses.
const (
	StatusSuccess = "success"
	StatusNoop    = "noop"
	StatusFailed  = "failed"
)

// Clock supplies the current time; injectable for tests.
type Clock func() time.Time

// SourceResult is the per-source part of a run report.
type SourceResult struct {
	Source        string
	FetchedRows   int
	AggregateRows int
}

// RunReport is what one run tells the operator: per-source counts, the final
// output size, per-destination outcomes and where the watermark ended up.
type RunReport struct {
	RunID      string
	Status     string
	Window     planner.Window
	Sources    []SourceResult
	OutputRows int
	Outcomes   []export.Outcome
	AdvancedTo *time.Time
}

// Orchestrator owns the run protocol. It is the sole watermark writer.
type Orchestrator struct {
	cfg      *config.Config
	registry *config.Registry
	fetcher  fetch.Fetcher
	store    watermark.Store
	fanOut   *export.FanOut
	recorder metrics.Recorder
	tracer   trace.TracerProvider
	clock    Clock
}

// NewOrchestrator wires the orchestrator from its injected collaborators.
func NewOrchestrator(
	cfg *config.Config,
	registry *config.Registry,
	fetcher fetch.Fetcher,
	store watermark.Store,
	fanOut *export.FanOut,
	recorder metrics.Recorder,
	tracer trace.TracerProvider,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		fetcher:  fetcher,
		store:    store,
		fanOut:   fanOut,
		recorder: recorder,
		tracer:   tracer,
		clock:    time.Now,
	}
}

// WithClock replaces the run clock.
func (o *Orchestrator) WithClock(clock Clock) *Orchestrator {
	o.clock = clock
	return o
}

// Run executes one pipeline run over the sources in subset (empty = all
// configured sources). In incremental mode the window comes from the
// watermark; otherwise the run covers the most recently completed hour.
func (o *Orchestrator) Run(ctx context.Context, subset []string) (*RunReport, error) {
	runID := uuid.NewString()
	started := o.clock()
	ctx, span := tracing.StartRunSpan(ctx, o.tracer, runID)
	defer span.End()

	report, err := o.run(ctx, runID, subset)
	status := StatusFailed
	if err == nil {
		status = report.Status
	}
	o.recorder.RecordRun(ctx, status, o.clock().Sub(started))
	if err != nil {
		logger.Errorf("Run %s failed: %v", runID, err)
		return report, err
	}
	logger.Infof("Run %s finished: status=%s rows=%d.", runID, report.Status, report.OutputRows)
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, runID string, subset []string) (*RunReport, error) {
	report := &RunReport{RunID: runID, Status: StatusFailed}

	sources, err := o.registry.Resolve(subset)
	if err != nil {
		return report, err
	}

	now := o.clock().UTC()
	var wm *watermark.Watermark
	if o.cfg.Horaria.Pipeline.Incremental {
		wm, err = o.store.Load(ctx, o.cfg.Horaria.Pipeline.WatermarkKey)
		if err != nil {
			// A lost checkpoint only widens the window; reprocessing is
			// idempotent because every destination overwrites in place.
			logger.Warnf("Watermark load failed, treating as no prior state: %v", err)
			wm = nil
		}
	}

	window := planner.NextFetchWindow(wm, now)
	report.Window = window
	if window.IsEmpty() {
		logger.Infof("Run %s: nothing to do, window is empty.", runID)
		report.Status = StatusNoop
		return report, nil
	}
	logger.Infof("Run %s: processing window [%s, %s) over %d sources.",
		runID, window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339), len(sources))

	table, results, err := o.fetchAndAggregate(ctx, sources, window)
	report.Sources = results
	if err != nil {
		return report, err
	}
	report.OutputRows = len(table)

	if table.IsEmpty() {
		logger.Infof("Run %s: no ok readings in window, nothing exported.", runID)
		report.Status = StatusNoop
		return report, nil
	}

	exportCtx, exportSpan := tracing.StartPhaseSpan(ctx, o.tracer, "export")
	outcomes, exportErr := o.fanOut.Export(exportCtx, table)
	exportSpan.End()
	report.Outcomes = outcomes
	for _, outcome := range outcomes {
		o.recorder.RecordExport(ctx, outcome.Destination, outcome.Rows, outcome.Err != nil)
	}
	if exportErr != nil {
		// Best-effort fan-out: failures are reported, never fatal.
		logger.Warnf("Run %s: %d destination(s) failed: %v", runID, len(failedOutcomes(outcomes)), exportErr)
	}

	if o.cfg.Horaria.Pipeline.Incremental {
		advanced, err := o.advanceWatermark(ctx, wm, timeutil.PreviousHourStart(now), "")
		if err != nil {
			return report, err
		}
		report.AdvancedTo = advanced.LastProcessedHour
	}

	report.Status = StatusSuccess
	return report, nil
}

// fetchAndAggregate fans the window out to every source, waits for all of
// them (a failed sibling never cancels the others), then aggregates each
// source's readings. Any exhausted fetch or aggregation error fails the run.
func (o *Orchestrator) fetchAndAggregate(ctx context.Context, sources []config.Source, window planner.Window) (schema.Table, []SourceResult, error) {
	fetchCtx, fetchSpan := tracing.StartPhaseSpan(ctx, o.tracer, "fetch")
	type fetchResult struct {
		source   config.Source
		readings []schema.Reading
		err      error
	}

	results := make([]fetchResult, len(sources))
	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(i int, source config.Source) {
			defer wg.Done()
			readings, err := o.fetcher.Fetch(fetchCtx, source, &window.Start, &window.End)
			results[i] = fetchResult{source: source, readings: readings, err: err}
		}(i, source)
	}
	wg.Wait()
	fetchSpan.End()

	sourceResults := make([]SourceResult, len(sources))
	var fetchErr error
	for i, r := range results {
		sourceResults[i] = SourceResult{Source: r.source.Name, FetchedRows: len(r.readings)}
		o.recorder.RecordFetchedRows(ctx, r.source.Name, len(r.readings))
		if r.err != nil && fetchErr == nil {
			fetchErr = exception.New(moduleName, fmt.Sprintf("fetch failed for source %q", r.source.Name), r.err, false)
		}
	}
	if fetchErr != nil {
		return nil, sourceResults, fetchErr
	}

	_, aggSpan := tracing.StartPhaseSpan(ctx, o.tracer, "aggregate")
	defer aggSpan.End()

	version := o.cfg.Horaria.Pipeline.Version
	tables := make([]schema.Table, 0, len(sources))
	for i, r := range results {
		metricColumns := metricColumnsFor(r.source, r.readings)
		if len(metricColumns) == 0 && len(r.readings) == 0 {
			// A wildcard source with no rows this window has no columns to
			// aggregate; an empty contribution is correct.
			continue
		}
		table, err := aggregate.AggregateHourly(r.readings, metricColumns, version)
		if err != nil {
			return nil, sourceResults, exception.New(moduleName,
				fmt.Sprintf("aggregation failed for source %q", r.source.Name), err, false)
		}
		sourceResults[i].AggregateRows = len(table)
		o.recorder.RecordAggregateRows(ctx, r.source.Name, len(table))
		tables = append(tables, table)
	}

	return schema.Concat(tables...), sourceResults, nil
}

// metricColumnsFor maps raw metric columns to canonical names. Wildcard
// sources derive their column set from the readings themselves.
func metricColumnsFor(source config.Source, readings []schema.Reading) map[string]string {
	if !source.IsWildcard() {
		return aggregate.BuildMetricColumns(source.Metrics)
	}
	seen := make(map[string]struct{})
	for _, r := range readings {
		for column := range r.Values {
			seen[column] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for column := range seen {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return aggregate.BuildMetricColumns(columns)
}

// advanceWatermark writes the new checkpoint with run metadata. A save
// failure is fatal and surfaced distinctly: a silently stale watermark means
// duplicate reprocessing next run.
func (o *Orchestrator) advanceWatermark(ctx context.Context, wm *watermark.Watermark, processedThrough time.Time, backfilledAt string) (watermark.Watermark, error) {
	advanced := planner.Advance(wm, processedThrough)
	advanced.SetMetadata(watermark.MetaLastExecution, o.clock().UTC().Format(time.RFC3339))
	advanced.SetMetadata(watermark.MetaPipelineVersion, o.cfg.Horaria.Pipeline.Version)
	if backfilledAt != "" {
		advanced.SetMetadata(watermark.MetaLastBackfill, backfilledAt)
	}

	if err := o.store.Save(ctx, o.cfg.Horaria.Pipeline.WatermarkKey, advanced); err != nil {
		return watermark.Watermark{}, exception.New(moduleName, "watermark save failed", err, false)
	}
	logger.Infof("Watermark advanced to %s.", advanced.LastProcessedHour.Format(time.RFC3339))
	return advanced, nil
}

// MissingHours reports the hours not yet covered by the watermark.
func (o *Orchestrator) MissingHours(ctx context.Context) ([]time.Time, error) {
	wm, err := o.store.Load(ctx, o.cfg.Horaria.Pipeline.WatermarkKey)
	if err != nil {
		return nil, exception.New(moduleName, "watermark load failed", err, true)
	}
	return planner.MissingHours(wm, o.clock().UTC()), nil
}

// Reset deletes the watermark, forcing full reprocessing on the next run.
func (o *Orchestrator) Reset(ctx context.Context) error {
	if err := o.store.Reset(ctx, o.cfg.Horaria.Pipeline.WatermarkKey); err != nil {
		return exception.New(moduleName, "watermark reset failed", err, false)
	}
	logger.Infof("Watermark %q reset.", o.cfg.Horaria.Pipeline.WatermarkKey)
	return nil
}

func failedOutcomes(outcomes []export.Outcome) []export.Outcome {
	var failed []export.Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
