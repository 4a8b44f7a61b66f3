package routes

import (
	"github.com/dropwire/dropwire/internal/api/handlers"

	"github.com/gin-gonic/gin"
)

// SetupAdminRoutes configures tunnel listing, stats, termination,
// monitor status, forced cleanup, and history.
func SetupAdminRoutes(router *gin.Engine, admin *handlers.AdminHandler) {
	adminGroup := router.Group("/admin")
	{
		adminGroup.GET("/tunnels", admin.ListTunnels)
		adminGroup.GET("/tunnels/:id/stats", admin.GetTunnelStats)
		adminGroup.DELETE("/tunnels/:id", admin.DeleteTunnel)
		adminGroup.GET("/monitor/status", admin.MonitorStatus)
		adminGroup.POST("/cleanup", admin.Cleanup)
		adminGroup.GET("/history", admin.History)
	}
}
