package payout

import (
	"github.com/ishaamahadeva-India/pompomm/services/reliability"

	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(
		NewRepository,
		NewLedger,
		func(e *reliability.Engine) CRSReader { return e },
	),
)
