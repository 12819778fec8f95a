package server

import (
	"slices"
	"time"

	httpHandler "social-publisher/interfaces/http"
	"social-publisher/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health     httpHandler.IHealthHandler
	Connection httpHandler.IConnectionHandler
	PublishJob httpHandler.IPublishJobHandler
	Task       httpHandler.ITaskHandler
	AdCampaign httpHandler.IAdCampaignHandler
	Metrics    httpHandler.IMetricsHandler
	// JobStream serves the server-sent event stream of publish job updates.
	JobStream gin.HandlerFunc
}

func InitiateRouter(h Handlers, secretKey string, corsOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) bool {
			return slices.Contains(corsOrigins, origin)
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/healthz", h.Health.Healthz)
	router.GET("/readyz", h.Health.Readyz)
	router.GET("/auth/:network/callback", middleware.OptionalAuth(secretKey), h.Connection.Callback)

	api := router.Group("api")
	api.Use(middleware.Auth(secretKey))

	connections := api.Group("/connections")
	{
		connections.GET("", h.Connection.List)
		connections.POST("/:network/authorize", h.Connection.Authorize)
		connections.DELETE("/:network", h.Connection.Delete)
	}

	jobs := api.Group("/publish-jobs")
	{
		jobs.POST("", h.PublishJob.Create)
		jobs.GET("", h.PublishJob.List)
		if h.JobStream != nil {
			jobs.GET("/stream", h.JobStream)
		}
		jobs.GET("/:id", h.PublishJob.Get)
		jobs.POST("/:id/metrics", h.PublishJob.RefreshMetrics)
		jobs.POST("/:id/schedule", h.Task.SchedulePublish)
	}

	tasks := api.Group("/tasks")
	{
		tasks.GET("", h.Task.List)
		tasks.POST("/metrics-refresh", h.Task.ScheduleMetricsRefresh)
		tasks.DELETE("/:id", h.Task.Cancel)
	}

	campaigns := api.Group("/ad-campaigns")
	{
		campaigns.POST("", h.AdCampaign.Create)
		campaigns.GET("", h.AdCampaign.List)
		campaigns.GET("/:id", h.AdCampaign.Get)
		campaigns.POST("/:id/pause", h.AdCampaign.Pause)
		campaigns.POST("/:id/resume", h.AdCampaign.Resume)
		campaigns.POST("/:id/complete", h.AdCampaign.Complete)
	}

	api.GET("/metrics/summary", h.Metrics.Summary)

	return router
}
