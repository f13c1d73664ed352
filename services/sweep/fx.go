package sweep

import (
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/earnings"
	"github.com/ishaamahadeva-India/pompomm/services/fraud"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/reliability"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"go.uber.org/fx"
)

// Module wires the sweep service over the domain services.
var Module = fx.Module("sweep.service",
	fx.Provide(
		NewService,
		func(a *stats.Aggregator) StatsSource { return a },
		func(e *fraud.Engine) FraudScorer { return e },
		func(e *reliability.Engine) CRSComputer { return e },
		func(c *earnings.Calculator) EarningsCalculator { return c },
		func(l *tier.Lifecycle) TierEvaluator { return l },
		func(s *campaign.Service) CampaignSource { return s },
		func(s *referral.Service) EventRetention { return s },
	),
)

// Worker registers the handlers and the periodic schedule. It needs the
// asynq server and scheduler modules.
var Worker = fx.Module("sweep.worker",
	fx.Invoke(RegisterHandlers, RegisterSchedule),
)

// Triggers exposes on-demand enqueueing for the admin API.
var Triggers = fx.Module("sweep.trigger",
	fx.Provide(NewTrigger),
)
