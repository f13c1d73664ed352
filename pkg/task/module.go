package task

import (
	"go.uber.org/fx"
)

// Module exposes an Enqueuer over the asynq client provided by pkg/asynq.
var Module = fx.Module("task.enqueuer",
	fx.Provide(NewEnqueuer),
)
