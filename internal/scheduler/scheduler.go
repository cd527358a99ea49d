// Package scheduler drives serve mode: periodic incremental runs plus the
// Prometheus /metrics listener.
package scheduler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/internal/metrics"
	"github.com/ambientdata/horaria/internal/pipeline"
	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

const runTimeout = 30 * time.Minute

// Scheduler runs the pipeline on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	orch      *pipeline.Orchestrator
	cfg       *config.Config
	recorder  *metrics.PrometheusRecorder
	server    *http.Server
}

// New creates a Scheduler over the orchestrator.
func New(orch *pipeline.Orchestrator, cfg *config.Config, recorder *metrics.PrometheusRecorder) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		orch:      orch,
		cfg:       cfg,
		recorder:  recorder,
	}
}

// Start schedules periodic runs and serves /metrics. It returns once the
// schedule is running; jobs execute on the scheduler's goroutines.
func (s *Scheduler) Start() error {
	minutes := s.cfg.Horaria.Schedule.EveryMinutes
	if minutes <= 0 {
		minutes = 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		report, err := s.orch.Run(ctx, s.cfg.Horaria.Pipeline.Sources)
		if err != nil {
			logger.Errorf("Scheduled run failed: %v", err)
			return
		}
		logger.Infof("Scheduled run %s: status=%s rows=%d.", report.RunID, report.Status, report.OutputRows)
	})
	if err != nil {
		return exception.New("scheduler", "failed to schedule pipeline run", err, false)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.recorder.Handler())
	s.server = &http.Server{Addr: s.cfg.Horaria.Metrics.Listen, Handler: mux}
	go func() {
		logger.Infof("Serving /metrics on %s.", s.cfg.Horaria.Metrics.Listen)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Metrics listener failed: %v", err)
		}
	}()

	s.scheduler.StartAsync()
	logger.Infof("Scheduler started: one run every %d minute(s).", minutes)
	return nil
}

// Stop halts the schedule and shuts the metrics listener down.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.scheduler.Stop()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
