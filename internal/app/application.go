// Package app assembles the fx application: configuration, the two database
// handles, the pipeline and everything around it.
package app

import (
	"go.uber.org/fx"

	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/internal/export"
	"github.com/ambientdata/horaria/internal/fetch"
	"github.com/ambientdata/horaria/internal/metrics"
	"github.com/ambientdata/horaria/internal/migration"
	"github.com/ambientdata/horaria/internal/pipeline"
	"github.com/ambientdata/horaria/internal/scheduler"
	"github.com/ambientdata/horaria/internal/tracing"
	"github.com/ambientdata/horaria/internal/watermark"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

// Module wires the two named database handles.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewStateDB, fx.ResultTags(`name:"stateDB"`)),
		fx.Annotate(NewTimeSeriesDB, fx.ResultTags(`name:"timeseriesDB"`)),
	),
)

// New builds the full application around the given entrypoint. The embedded
// YAML is supplied by main; entry is an fx.Invoke option choosing the
// subcommand behavior.
func New(embedded config.EmbeddedConfig, entry fx.Option) *fx.App {
	return fx.New(
		fx.Supply(embedded),
		logger.Module,
		config.Module,
		Module,
		migration.Module,
		watermark.Module,
		fetch.Module,
		export.Module,
		metrics.Module,
		tracing.Module,
		pipeline.Module,
		scheduler.Module,
		entry,
	)
}
