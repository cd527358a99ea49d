package fetch

import "go.uber.org/fx"

// Module provides the resilient SQL fetcher bound to the time-series store.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewSQLFetcher, fx.ParamTags(`name:"timeseriesDB"`)),
		fx.Annotate(NewResilientFetcher, fx.As(new(Fetcher))),
	),
)
