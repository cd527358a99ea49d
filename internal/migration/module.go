package migration

import "go.uber.org/fx"

// Module provides the state database migrator.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewMigrator, fx.ParamTags(`name:"stateDB"`)),
	),
)
