package routes

import (
	"strings"

	"github.com/dropwire/dropwire/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// Setup configures all route groups.
func Setup(router *gin.Engine, h *Handlers, m *Middleware) {
	SetupHealthRoutes(router, h.Health)
	SetupTunnelRoutes(router, h.Tunnel, m)
	SetupAdminRoutes(router, h.Admin)
}

// SetupGlobalMiddleware configures middleware applied to every route.
func SetupGlobalMiddleware(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		RPS:   10,
		Burst: 20,
	}))
	router.Use(handleTrailingSlash())
}

// handleTrailingSlash removes the need for strict trailing slash matching.
func handleTrailingSlash() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path != "/" && strings.HasSuffix(path, "/") {
			c.Request.URL.Path = strings.TrimSuffix(path, "/")
		}
		c.Next()
	}
}
