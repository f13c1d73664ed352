package stats

import (
	"github.com/ishaamahadeva-India/pompomm/services/referral"

	"go.uber.org/fx"
)

var Module = fx.Module("stats.service",
	fx.Provide(
		NewAggregator,
		func(a *Aggregator) referral.Aggregator { return a },
	),
)
