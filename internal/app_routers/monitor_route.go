package approuters

import (
	"github.com/gin-gonic/gin"

	"Meetpulse/internal/configuration"
	"Meetpulse/internal/handler"
	"Meetpulse/internal/hub"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorService := hub.NewMonitorService(container.Hub, container.Pollers)
	monitorHandler := handler.NewMonitorHandler(monitorService)

	monitorGroup := router.Group("/mp/api/monitor")
	{
		monitorGroup.GET("/stats", monitorHandler.GetHubStats)
	}
}
