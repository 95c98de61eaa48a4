package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/app"
	"github.com/charlesng35/happycat/internal/handlers"
	"github.com/charlesng35/happycat/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, health *monitoring.Health) {
	if !cfg.Monitoring.Health.Enabled || health == nil {
		r.GET("/health", disabledHealthHandler)
		r.GET("/health/live", disabledHealthHandler)
		r.GET("/health/ready", disabledHealthHandler)
		return
	}

	r.GET("/health", handlers.Live)
	r.GET("/health/live", handlers.Live)
	r.GET("/health/ready", handlers.Ready(health))
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
