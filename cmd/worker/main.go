package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/ishaamahadeva-India/pompomm/pkg/asynq"
	"github.com/ishaamahadeva-India/pompomm/pkg/config"
	"github.com/ishaamahadeva-India/pompomm/pkg/db"
	"github.com/ishaamahadeva-India/pompomm/pkg/events"
	"github.com/ishaamahadeva-India/pompomm/pkg/featureflags"
	"github.com/ishaamahadeva-India/pompomm/pkg/gen"
	"github.com/ishaamahadeva-India/pompomm/pkg/hashistack/secretmanager"
	"github.com/ishaamahadeva-India/pompomm/pkg/logger"
	"github.com/ishaamahadeva-India/pompomm/pkg/otelcol"
	"github.com/ishaamahadeva-India/pompomm/pkg/profiling"
	"github.com/ishaamahadeva-India/pompomm/pkg/redis"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/earnings"
	"github.com/ishaamahadeva-India/pompomm/services/fraud"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/reliability"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/sweep"
	"github.com/ishaamahadeva-India/pompomm/services/tier"
)

// The worker runs the periodic sweeps. Schema migration belongs to the
// distribution binary.
func main() {
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		gen.Module,
		db.Module,
		redis.Module,
		events.Module,
		featureflags.Module,
		asynq.Server,
		asynq.Scheduler,

		campaign.Module,
		referral.Module,
		stats.Module,
		fraud.Module,
		reliability.Module,
		tier.Module,
		earnings.Module,
		sweep.Module,
		sweep.Worker,
		fxLogger,
	)

	app.Run()
}

// Requesting the zap logger here builds it first, so zap.L() is configured
// before any other constructor runs.
var fxLogger = fx.WithLogger(func(*zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
