package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type IHealthChecker interface {
	Check(ctx context.Context) map[string]string
}

type IHealthHandler interface {
	Healthz(c *gin.Context)
	Readyz(c *gin.Context)
}

type HealthHandler struct {
	checker IHealthChecker
}

func NewHealthHandler(checker IHealthChecker) IHealthHandler {
	return &HealthHandler{checker: checker}
}

// Healthz returns OK for liveness checks
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports 503 when any configured store does not answer.
func (h *HealthHandler) Readyz(c *gin.Context) {
	components := h.checker.Check(c.Request.Context())
	for _, state := range components {
		if state != "ok" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "components": components})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "components": components})
}
