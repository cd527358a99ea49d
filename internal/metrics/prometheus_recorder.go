package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder is the Prometheus implementation of Recorder.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	runDurationSeconds *prometheus.HistogramVec
	runStatusCounter   *prometheus.CounterVec
	fetchedRows        *prometheus.CounterVec
	aggregateRows      *prometheus.CounterVec
	exportRows         *prometheus.CounterVec
	exportFailures     *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder with its own registry, including
// the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "horaria_run_duration_seconds",
			Help:    "Duration of pipeline runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horaria_run_status_total",
			Help: "Total pipeline runs by terminal status.",
		}, []string{"status"}),
		fetchedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horaria_fetched_rows_total",
			Help: "Raw minute-level rows fetched per source.",
		}, []string{"source"}),
		aggregateRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horaria_aggregate_rows_total",
			Help: "Hourly output rows produced per source.",
		}, []string{"source"}),
		exportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horaria_export_rows_total",
			Help: "Rows delivered per export destination.",
		}, []string{"destination"}),
		exportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "horaria_export_failures_total",
			Help: "Failed export attempts per destination.",
		}, []string{"destination"}),
	}

	registry.MustRegister(
		r.runDurationSeconds,
		r.runStatusCounter,
		r.fetchedRows,
		r.aggregateRows,
		r.exportRows,
		r.exportFailures,
	)
	return r
}

func (r *PrometheusRecorder) RecordRun(ctx context.Context, status string, duration time.Duration) {
	r.runStatusCounter.WithLabelValues(status).Inc()
	r.runDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordFetchedRows(ctx context.Context, source string, count int) {
	r.fetchedRows.WithLabelValues(source).Add(float64(count))
}

func (r *PrometheusRecorder) RecordAggregateRows(ctx context.Context, source string, count int) {
	r.aggregateRows.WithLabelValues(source).Add(float64(count))
}

func (r *PrometheusRecorder) RecordExport(ctx context.Context, destination string, rows int, failed bool) {
	if failed {
		r.exportFailures.WithLabelValues(destination).Inc()
		return
	}
	r.exportRows.WithLabelValues(destination).Add(float64(rows))
}

// Handler exposes the registry for the serve-mode /metrics listener.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var _ Recorder = (*PrometheusRecorder)(nil)
