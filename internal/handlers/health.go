package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"progress-tracker-backend/internal/models"
)

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
}

// Pinger is anything that can report whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessHandler reports 503 until every dependency answers a ping.
func ReadinessHandler(deps map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
					Error:   name + " unavailable",
					Message: err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, models.HealthResponse{Status: "ready"})
	}
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }
