package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/infrastructure/utils"
	"social-publisher/usecase"
)

type ITaskHandler interface {
	List(c *gin.Context)
	ScheduleMetricsRefresh(c *gin.Context)
	SchedulePublish(c *gin.Context)
	Cancel(c *gin.Context)
}

type TaskHandler struct {
	scheduler usecase.ISchedulerUsecase
}

func NewTaskHandler(scheduler usecase.ISchedulerUsecase) ITaskHandler {
	return &TaskHandler{scheduler: scheduler}
}

func (h *TaskHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	tasks, err := h.scheduler.ListTasks(c.Request.Context(), c.GetString("owner_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if tasks == nil {
		tasks = []*model.ScheduledTask{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *TaskHandler) ScheduleMetricsRefresh(c *gin.Context) {
	var req dto.ScheduleMetricsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	due := utils.GetCurrentTime()
	if req.DueAt != nil {
		due = *req.DueAt
	}
	task, err := h.scheduler.ScheduleMetricsRefresh(c.Request.Context(), c.GetString("owner_id"), due)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, task)
}

func (h *TaskHandler) SchedulePublish(c *gin.Context) {
	var req dto.SchedulePublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.scheduler.SchedulePublish(c.Request.Context(), c.GetString("owner_id"), c.Param("id"), req.ScheduledFor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, task)
}

func (h *TaskHandler) Cancel(c *gin.Context) {
	if err := h.scheduler.Cancel(c.Request.Context(), c.GetString("owner_id"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
