package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/ishaamahadeva-India/pompomm/internal/httpapi"
	"github.com/ishaamahadeva-India/pompomm/pkg/asynq"
	"github.com/ishaamahadeva-India/pompomm/pkg/config"
	"github.com/ishaamahadeva-India/pompomm/pkg/db"
	"github.com/ishaamahadeva-India/pompomm/pkg/events"
	"github.com/ishaamahadeva-India/pompomm/pkg/featureflags"
	"github.com/ishaamahadeva-India/pompomm/pkg/gen"
	"github.com/ishaamahadeva-India/pompomm/pkg/hashistack/secretmanager"
	"github.com/ishaamahadeva-India/pompomm/pkg/health"
	"github.com/ishaamahadeva-India/pompomm/pkg/logger"
	"github.com/ishaamahadeva-India/pompomm/pkg/minio"
	"github.com/ishaamahadeva-India/pompomm/pkg/otelcol"
	"github.com/ishaamahadeva-India/pompomm/pkg/profiling"
	"github.com/ishaamahadeva-India/pompomm/pkg/redis"
	"github.com/ishaamahadeva-India/pompomm/pkg/server"
	"github.com/ishaamahadeva-India/pompomm/pkg/task"
	"github.com/ishaamahadeva-India/pompomm/services/bootstrap"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/earnings"
	"github.com/ishaamahadeva-India/pompomm/services/fraud"
	"github.com/ishaamahadeva-India/pompomm/services/payout"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/reliability"
	"github.com/ishaamahadeva-India/pompomm/services/report"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/sweep"
	"github.com/ishaamahadeva-India/pompomm/services/tier"
)

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
		minio.Client,
		asynq.Client,
		task.Module,

		bootstrap.Module,
		campaign.Module,
		referral.Module,
		stats.Module,
		fraud.Module,
		reliability.Module,
		tier.Module,
		earnings.Module,
		payout.Module,
		report.Module,
		sweep.Module,
		sweep.Triggers,

		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fx.Invoke(ginMode),
		fxLogger,
	)

	app.Run()
}

// Requesting the zap logger here builds it first, so zap.L() is configured
// before any other constructor runs.
var fxLogger = fx.WithLogger(func(*zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func ginMode(cfg *config.Config) {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
}
