package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"jobpilot/internal/ratelimit"
	"jobpilot/internal/store"
	"jobpilot/pkg/models"
)

// RateStats reports recent application throughput
type RateStats interface {
	Stats(ctx context.Context, userID string) (ratelimit.Stats, error)
}

// AccountReader is the read side of account data the status view needs
type AccountReader interface {
	SearchProfilesForUser(ctx context.Context, userID string) ([]models.SearchProfile, error)
	Usage(ctx context.Context, userID string) (models.Usage, error)
}

// StatusHandler returns the caller's automation overview: queue counts,
// recent throughput, plan usage and the next item due.
func StatusHandler(q QueueService, rates RateStats, accounts AccountReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID := UserID(c)

		stats, err := q.Stats(ctx, userID)
		if err != nil {
			return respondError(c, err)
		}
		rs, err := rates.Stats(ctx, userID)
		if err != nil {
			return respondError(c, err)
		}
		next, err := q.NextScheduled(ctx, userID)
		if err != nil {
			return respondError(c, err)
		}
		profiles, err := accounts.SearchProfilesForUser(ctx, userID)
		if err != nil {
			return respondError(c, err)
		}
		usage, err := accounts.Usage(ctx, userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return respondError(c, err)
		}

		return c.JSON(http.StatusOK, models.StatusResponse{
			IsActive: len(profiles) > 0,
			Queue:    stats,
			RateLimits: models.RateStats{
				LastHour: rs.LastHour,
				LastDay:  rs.LastDay,
				Total:    rs.Total,
			},
			Usage:         usage,
			NextScheduled: next,
		})
	}
}
