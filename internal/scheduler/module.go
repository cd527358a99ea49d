package scheduler

import "go.uber.org/fx"

// Module provides the serve-mode scheduler.
var Module = fx.Options(
	fx.Provide(New),
)
