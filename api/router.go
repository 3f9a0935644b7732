package api

import (
	"context"

	"subsai/batch"
	"subsai/config"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires the HTTP API. ctx bounds the worker started through
// /batch/start; events may be nil.
func SetupRouter(ctx context.Context, proc *batch.Processor, cfg *config.Config, events RecentEvents) *gin.Engine {
	r := gin.Default()
	h := NewHandler(ctx, proc, cfg, events)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		v1.POST("/jobs", h.handleCreateJob)
		v1.POST("/uploads", h.handleUpload)
		v1.GET("/jobs", h.handleListJobs)
		v1.DELETE("/jobs/completed", h.handleClearCompleted)
		v1.GET("/jobs/:jobId", h.handleGetJob)
		v1.PATCH("/jobs/:jobId/cancel", h.handleCancelJob)
		v1.GET("/jobs/:jobId/files/:filename", h.handleGetFile)

		v1.GET("/batch", h.handleBatchStatus)
		v1.POST("/batch/start", h.handleBatchStart)
		v1.POST("/batch/pause", h.handleBatchPause)
		v1.POST("/batch/stop", h.handleBatchStop)

		v1.GET("/events", h.handleEvents)
		v1.GET("/analytics/events", h.handleRecentEvents)
	}
	return r
}
