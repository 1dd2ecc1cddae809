package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up the API endpoints and groups them logically.
func RegisterRoutes(router *gin.Engine, h *APIHandler) {

	apiGroup := router.Group("/api")
	{
		// --- Generation ---
		apiGroup.POST("/generate", h.Generate) // SSE stream of chunk/partial/complete/error events

		// --- Session Lifecycle ---
		apiGroup.GET("/session/:id", h.SessionStatus)
		apiGroup.DELETE("/session/:id", h.DeleteSession)

		// --- Live Preview ---
		apiGroup.GET("/preview/:id", h.Preview)               // Sandboxed preview document
		apiGroup.GET("/preview/:id/events", h.PreviewEvents) // Websocket of preview state changes

		// --- Review & Export ---
		apiGroup.POST("/review", h.Review)
		apiGroup.POST("/export", h.Export) // Zip attachment
	}

	// --- Simple Health Check ---
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
