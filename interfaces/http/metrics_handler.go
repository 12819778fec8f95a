package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/utils"
	"social-publisher/usecase"
)

const defaultSummaryWindow = 30 * 24 * time.Hour

type IMetricsHandler interface {
	Summary(c *gin.Context)
}

type MetricsHandler struct {
	metrics usecase.IMetricsUsecase
}

func NewMetricsHandler(metrics usecase.IMetricsUsecase) IMetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Summary accepts from/to as RFC 3339 timestamps or plain dates; a plain "to"
// date covers that whole day.
func (h *MetricsHandler) Summary(c *gin.Context) {
	to := utils.GetCurrentTime()
	from := to.Add(-defaultSummaryWindow)
	var err error
	if v := c.Query("to"); v != "" {
		if to, err = parseBound(v, true); err != nil {
			badRequest(c, err)
			return
		}
	}
	if v := c.Query("from"); v != "" {
		if from, err = parseBound(v, false); err != nil {
			badRequest(c, err)
			return
		}
	}
	sum, err := h.metrics.Summary(c.Request.Context(), c.GetString("owner_id"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func parseBound(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q", model.ErrInvalidInput, v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
