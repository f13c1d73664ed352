package httpapi

import (
	"github.com/ishaamahadeva-India/pompomm/pkg/health"
	"github.com/ishaamahadeva-India/pompomm/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the ingestion, admin and health routes.
func NewRouter(h *Handler, checks health.HealthService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(), middleware.Error())

	r.GET("/healthz", checks.Liveness)
	r.GET("/readyz", checks.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/referral-events", h.RecordEvent)
	}

	admin := r.Group("/admin")
	{
		admin.POST("/campaigns", h.CreateCampaign)
		admin.GET("/campaigns/:campaign_id/fraud-logs", h.FraudLogs)
		admin.POST("/campaigns/:campaign_id/export", h.ExportCampaign)
		admin.GET("/campaigns/:campaign_id/budget-chain", h.VerifyBudgetChain)
		admin.PUT("/campaigns/:campaign_id/creators/:creator_id/payout", h.SetPayoutStatus)

		admin.PUT("/creators/:creator_id/tier", h.OverrideTier)
		admin.GET("/creators/:creator_id/tier-history", h.TierHistory)

		admin.POST("/sweeps/:task", h.TriggerSweep)
		admin.GET("/sweeps/jobs", h.SweepJobs)
	}

	return r
}
