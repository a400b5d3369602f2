package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weaveai/weaveai/pkg/database"
	"github.com/weaveai/weaveai/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health and GET /api/v2/market-insight/health.
// Only the orchestrator's own dependencies (database, worker pool) are
// checked. The LLM provider is excluded so a provider outage cannot make a
// liveness probe restart the orchestrator.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.db != nil {
		if _, err := database.Health(reqCtx, s.db.Pool); err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	checks["worker_pool"] = HealthCheck{
		Status:  healthStatusHealthy,
		Message: fmt.Sprintf("%d/%d sessions active", s.pool.Active(), s.pool.Capacity()),
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, &HealthResponse{
		Status:      status,
		Version:     version.APIVersion,
		V2Available: true,
		Checks:      checks,
	})
}
