package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/usecase"
)

type IPublishJobHandler interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	RefreshMetrics(c *gin.Context)
}

type PublishJobHandler struct {
	publish usecase.IPublishUsecase
	metrics usecase.IMetricsUsecase
}

func NewPublishJobHandler(publish usecase.IPublishUsecase, metrics usecase.IMetricsUsecase) IPublishJobHandler {
	return &PublishJobHandler{publish: publish, metrics: metrics}
}

func (h *PublishJobHandler) Create(c *gin.Context) {
	var req dto.CreatePublishJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	targets := make([]model.Network, 0, len(req.Targets))
	for _, t := range req.Targets {
		targets = append(targets, model.Network(t))
	}
	job, err := h.publish.CreateJob(c.Request.Context(), c.GetString("owner_id"), usecase.CreatePublishJob{
		Content:         req.Content,
		Targets:         targets,
		CaptionOverride: req.CaptionOverride,
		ScheduledFor:    req.ScheduledFor,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if job.Status == model.JobScheduled {
		status = http.StatusAccepted
	}
	c.JSON(status, job)
}

func (h *PublishJobHandler) List(c *gin.Context) {
	var q dto.ListJobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	jobs, err := h.publish.ListJobs(c.Request.Context(), c.GetString("owner_id"), model.JobFilter{
		Status: model.JobStatus(q.Status),
		Since:  q.Since,
		Until:  q.Until,
		Limit:  q.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*model.PublishJob{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *PublishJobHandler) Get(c *gin.Context) {
	job, err := h.publish.GetJob(c.Request.Context(), c.GetString("owner_id"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// RefreshMetrics pulls fresh post metrics for one job right away.
func (h *PublishJobHandler) RefreshMetrics(c *gin.Context) {
	ctx := c.Request.Context()
	job, err := h.publish.GetJob(ctx, c.GetString("owner_id"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.metrics.RefreshJob(ctx, job))
}
