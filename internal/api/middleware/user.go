package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"jobpilot/internal/api/handlers"
	"jobpilot/internal/api/validation"
	"jobpilot/pkg/models"
)

// HeaderUserID carries the caller's identity, set by the authenticating proxy
const HeaderUserID = "X-User-ID"

// RequireUser rejects requests without a well-formed X-User-ID header and
// stores the id for handlers.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get(HeaderUserID)
			if !validation.EntityIDPattern.MatchString(userID) {
				requestID, _ := c.Get("request_id").(string)
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:     "unauthorized",
					Message:   "missing or invalid " + HeaderUserID + " header",
					RequestID: requestID,
					Timestamp: time.Now(),
				})
			}
			c.Set(handlers.UserIDKey, userID)
			return next(c)
		}
	}
}
