package routes

import (
	"github.com/dropwire/dropwire/internal/api/handlers"
	"github.com/dropwire/dropwire/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// SetupTunnelRoutes configures link generation, file listing, and download.
func SetupTunnelRoutes(router *gin.Engine, tunnel *handlers.TunnelHandler, m *Middleware) {
	linkRateLimit := middleware.RateLimitMiddleware(middleware.RateLimitConfig{RPS: 2, Burst: 5})

	router.POST("/generate-link", linkRateLimit, m.Validation.ValidateGenerateLinkRequest(), tunnel.GenerateLink)
	router.GET("/api/files", tunnel.ListFiles)
	router.GET("/download/:token", tunnel.Download)
}
