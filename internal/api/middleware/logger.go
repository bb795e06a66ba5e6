package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"jobpilot/internal/logging/types"
)

// RequestLogger logs one line per request through the application logger
func RequestLogger(logger types.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := map[string]interface{}{
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
				"method":     c.Request().Method,
				"path":       c.Path(),
				"status":     c.Response().Status,
				"latency_ms": time.Since(start).Milliseconds(),
			}
			if userID, ok := c.Get("user_id").(string); ok {
				fields["user_id"] = userID
			}

			switch {
			case c.Response().Status >= 500:
				logger.Error("HTTP request", fields)
			case c.Response().Status >= 400:
				logger.Warn("HTTP request", fields)
			default:
				logger.Debug("HTTP request", fields)
			}
			return nil
		}
	}
}
