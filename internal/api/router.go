package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the gin engine.
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		memories := apiV1.Group("/memories")
		{
			memories.POST("", h.CreateMemory)
			memories.GET("", h.ListMemories)
			memories.POST("/ingest", h.IngestMemory)
			memories.POST("/search", h.SearchMemories)
			memories.GET("/:id", h.GetMemory)
			memories.PUT("/:id", h.UpdateMemory)
			memories.POST("/:id/lifecycle", h.TransitionMemory)
			memories.POST("/:id/archive", h.ArchiveMemory)
			memories.POST("/:id/restore", h.RestoreMemory)
			memories.DELETE("/:id", h.DeleteMemory)
		}
	}

	return r
}
