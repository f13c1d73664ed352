package earnings

import (
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/reliability"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"go.uber.org/fx"
)

var Module = fx.Module("earnings.service",
	fx.Provide(
		NewCalculator,
		func(e *reliability.Engine) CRSReader { return e },
		func(l *tier.Lifecycle) TierReader { return l },
		func(c *Calculator) referral.EarningsCalculator { return c },
	),
)
