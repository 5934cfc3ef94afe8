package apihandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register mounts the API under /api/v1 and the health check at /health.
func (h *APIHandler) Register(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/kinds", h.ListKindsHandler)

		jobs := v1.Group("/jobs")
		{
			jobs.GET("", h.ListJobsHandler)
			jobs.POST("/:kind", h.StartJobHandler)
			jobs.GET("/:slot", h.GetJobHandler)
			jobs.DELETE("/:slot", h.CancelJobHandler)
		}

		v1.GET("/history", h.ListHistoryHandler)

		v1.GET("/banner", h.GetBannerHandler)
		v1.DELETE("/banner", h.DismissBannerHandler)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
