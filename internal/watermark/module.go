package watermark

import "go.uber.org/fx"

// Module provides the GORM-backed watermark store over the state database.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewGormStore, fx.ParamTags(`name:"stateDB"`), fx.As(new(Store))),
	),
)
