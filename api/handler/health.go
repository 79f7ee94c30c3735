package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowmatic/harvester/models"
)

// PageStats reports browser page utilisation.
type PageStats interface {
	ActivePages() int
	MaxPages() int
}

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when > 80% of pages are
// active. pages may be nil when the browser engine is disabled.
func Health(pages PageStats, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.PoolStats
		if pages != nil {
			stats = models.PoolStats{
				MaxPages:    pages.MaxPages(),
				ActivePages: pages.ActivePages(),
			}
		}

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Browser: stats,
			Version: "0.1.0",
		})
	}
}
