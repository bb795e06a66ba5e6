package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"jobpilot/internal/logging"
	"jobpilot/pkg/models"
)

// Version is reported by the health endpoints; set at build time with -ldflags.
var Version = "dev"

var startTime = time.Now()

// ReadinessCheck probes one dependency
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler handles health check requests
func HealthHandler(c echo.Context) error {
	logging.GetGlobalLogger().Debug("Health check requested", map[string]interface{}{"request_id": requestID(c)})

	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(startTime),
		Checks: map[string]string{
			"api": "ok",
		},
	})
}

// ReadinessHandler runs every check and answers 503 when any of them fails
func ReadinessHandler(checks ...ReadinessCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status, code := "ready", http.StatusOK
		results := map[string]string{"api": "ok"}
		for _, chk := range checks {
			if err := chk.Check(ctx); err != nil {
				results[chk.Name] = err.Error()
				status, code = "not_ready", http.StatusServiceUnavailable
				continue
			}
			results[chk.Name] = "ok"
		}

		if code != http.StatusOK {
			logging.GetGlobalLogger().Warn("Readiness check failed", map[string]interface{}{
				"request_id": requestID(c),
				"checks":     results,
			})
		}

		return c.JSON(code, models.HealthResponse{
			Status:    status,
			Timestamp: time.Now(),
			Version:   Version,
			Uptime:    time.Since(startTime),
			Checks:    results,
		})
	}
}

// LivenessHandler handles liveness probe requests
func LivenessHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(startTime),
	})
}
