package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"jobpilot/pkg/models"
	"jobpilot/pkg/utils"
)

// MaxBodyBytes caps request bodies; every accepted body is a small JSON object
const MaxBodyBytes = 64 * 1024

// RequestValidation assigns a request id and rejects oversized bodies
func RequestValidation() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = utils.GenerateRequestID()
			}
			c.Set("request_id", requestID)
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			if c.Request().ContentLength > MaxBodyBytes {
				return c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
					Error:     "request_too_large",
					Message:   "Request body too large",
					RequestID: requestID,
					Timestamp: time.Now(),
				})
			}

			return next(c)
		}
	}
}
