package report

import (
	"github.com/ishaamahadeva-India/pompomm/pkg/minio"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"go.uber.org/fx"
)

var Module = fx.Module("report.service",
	fx.Provide(
		NewService,
		func(s *minio.Store) Uploader { return s },
		func(a *stats.Aggregator) StatsLister { return a },
		func(s *campaign.Service) CampaignGetter { return s },
		func(l *tier.Lifecycle) CreatorDirectory { return l },
	),
)
