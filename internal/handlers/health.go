package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/monitoring"
)

// Live answers as long as the process can serve requests.
func Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": monitoring.StatusUp, "checked_at": time.Now().UTC()})
}

// Ready runs the dependency probes and answers 503 when any of them fails.
func Ready(health *monitoring.Health) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := health.Evaluate(requestContext(c))
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checks":     report.Checks,
			"checked_at": time.Now().UTC(),
		})
	}
}
