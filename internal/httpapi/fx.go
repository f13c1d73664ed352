package httpapi

import (
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/fraud"
	"github.com/ishaamahadeva-India/pompomm/services/payout"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/report"
	"github.com/ishaamahadeva-India/pompomm/services/sweep"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Referral  *referral.Service
	Campaigns *campaign.Service
	Tiers     *tier.Lifecycle
	Payouts   *payout.Ledger
	Fraud     *fraud.Engine
	Reports   *report.Service
	Trigger   *sweep.Trigger
	Sweeps    *sweep.Service
}

func provideServices(p Params) Services {
	return Services{
		Events:    p.Referral,
		Campaigns: p.Campaigns,
		Tiers:     p.Tiers,
		Payouts:   p.Payouts,
		Fraud:     p.Fraud,
		Reports:   p.Reports,
		Sweeps:    p.Trigger,
		Jobs:      p.Sweeps,
	}
}

var Module = fx.Module("httpapi",
	fx.Provide(
		provideServices,
		NewHandler,
		NewRouter,
	),
)
