package tier

import (
	"github.com/ishaamahadeva-India/pompomm/services/reliability"

	"go.uber.org/fx"
)

var Module = fx.Module("tier.service",
	fx.Provide(
		NewLifecycle,
		fx.Annotate(NewEventNotifier, fx.As(new(Notifier))),
		func(e *reliability.Engine) Reliability { return e },
	),
)
