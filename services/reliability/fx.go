package reliability

import "go.uber.org/fx"

var Module = fx.Module("reliability.service",
	fx.Provide(NewEngine),
)
