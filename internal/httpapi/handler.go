package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ishaamahadeva-India/pompomm/pkg/db/pagination"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/services/campaign"
	"github.com/ishaamahadeva-India/pompomm/services/fraud"
	"github.com/ishaamahadeva-India/pompomm/services/payout"
	"github.com/ishaamahadeva-India/pompomm/services/referral"
	"github.com/ishaamahadeva-India/pompomm/services/report"
	"github.com/ishaamahadeva-India/pompomm/services/stats"
	"github.com/ishaamahadeva-India/pompomm/services/sweep"
	"github.com/ishaamahadeva-India/pompomm/services/tier"

	"github.com/gin-gonic/gin"
)

type EventRecorder interface {
	Record(ctx context.Context, p referral.RecordParams) (*referral.RecordResult, error)
}

type CampaignCreator interface {
	Create(ctx context.Context, p campaign.CreateParams) (*campaign.DistributionCampaign, error)
}

type TierAdmin interface {
	Override(ctx context.Context, creatorID string, target tier.Tier) (*tier.Outcome, error)
	History(ctx context.Context, creatorID string, limit int) ([]*tier.HistoryEntry, error)
}

type PayoutLedger interface {
	Approve(ctx context.Context, campaignID, creatorID string, status stats.PayoutStatus) (*payout.Decision, error)
	VerifyBudgetChain(ctx context.Context, campaignID string) (string, error)
}

type FraudLogReader interface {
	ListLogs(ctx context.Context, campaignID string, page pagination.Pagination) ([]*fraud.LogEntry, *pagination.PageInfo, error)
}

type Exporter interface {
	ExportCampaign(ctx context.Context, campaignID string) (*report.Export, error)
}

type SweepTrigger interface {
	Enqueue(ctx context.Context, name string) (string, error)
}

type SweepJobs interface {
	Jobs(ctx context.Context, taskType string, limit int) ([]*sweep.Job, error)
}

// Services groups what the handlers call.
type Services struct {
	Events    EventRecorder
	Campaigns CampaignCreator
	Tiers     TierAdmin
	Payouts   PayoutLedger
	Fraud     FraudLogReader
	Reports   Exporter
	Sweeps    SweepTrigger
	Jobs      SweepJobs
}

type Handler struct {
	svc Services
}

func NewHandler(s Services) *Handler {
	return &Handler{svc: s}
}

func bindError(err error) error {
	return errutil.BadRequest("invalid request", err,
		errutil.WithDetails(errutil.Detail{Field: "body", Message: err.Error()}))
}

// POST /v1/referral-events
func (h *Handler) RecordEvent(c *gin.Context) {
	var req referral.RecordParams
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if req.IP == "" {
		req.IP = c.ClientIP()
	}

	res, err := h.svc.Events.Record(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	code := http.StatusOK
	if res.Recorded {
		code = http.StatusCreated
	}
	c.JSON(code, res)
}

// POST /admin/campaigns
func (h *Handler) CreateCampaign(c *gin.Context) {
	var req campaign.CreateParams
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	out, err := h.svc.Campaigns.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

type overrideTierRequest struct {
	Tier tier.Tier `json:"tier" binding:"required"`
}

// PUT /admin/creators/:creator_id/tier
func (h *Handler) OverrideTier(c *gin.Context) {
	var req overrideTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	out, err := h.svc.Tiers.Override(c.Request.Context(), c.Param("creator_id"), req.Tier)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GET /admin/creators/:creator_id/tier-history
func (h *Handler) TierHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	rows, err := h.svc.Tiers.History(c.Request.Context(), c.Param("creator_id"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

type payoutRequest struct {
	Status stats.PayoutStatus `json:"status" binding:"required"`
}

// PUT /admin/campaigns/:campaign_id/creators/:creator_id/payout
func (h *Handler) SetPayoutStatus(c *gin.Context) {
	var req payoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	d, err := h.svc.Payouts.Approve(c.Request.Context(), c.Param("campaign_id"), c.Param("creator_id"), req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /admin/campaigns/:campaign_id/budget-chain
func (h *Handler) VerifyBudgetChain(c *gin.Context) {
	broken, err := h.svc.Payouts.VerifyBudgetChain(c.Request.Context(), c.Param("campaign_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intact": broken == "", "broken_entry_id": broken})
}

// GET /admin/campaigns/:campaign_id/fraud-logs
func (h *Handler) FraudLogs(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	rows, info, err := h.svc.Fraud.ListLogs(c.Request.Context(), c.Param("campaign_id"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": info})
}

// POST /admin/campaigns/:campaign_id/export
func (h *Handler) ExportCampaign(c *gin.Context) {
	out, err := h.svc.Reports.ExportCampaign(c.Request.Context(), c.Param("campaign_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// POST /admin/sweeps/:task
func (h *Handler) TriggerSweep(c *gin.Context) {
	name := "distribution:sweep:" + c.Param("task")

	id, err := h.svc.Sweeps.Enqueue(c.Request.Context(), name)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "task_type": name})
}

// GET /admin/sweeps/jobs
func (h *Handler) SweepJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	taskType := ""
	if t := c.Query("task"); t != "" {
		taskType = "distribution:sweep:" + t
	}

	jobs, err := h.svc.Jobs.Jobs(c.Request.Context(), taskType, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs})
}
