package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"jobpilot/internal/store"
	"jobpilot/pkg/models"
)

// LogReader lists automation log entries
type LogReader interface {
	ListLogs(ctx context.Context, filter store.LogFilter) ([]models.AutomationLog, int, error)
}

// ListingReader lists discovered listings
type ListingReader interface {
	ListListings(ctx context.Context, filter store.ListingFilter) ([]models.JobListing, int, error)
}

// ListLogsHandler returns the caller's automation log, newest first
func ListLogsHandler(logs LogReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.LogQuery
		if err := bindAndValidate(c, &req); err != nil {
			return respondError(c, err)
		}
		req.Normalize()

		entries, total, err := logs.ListLogs(c.Request().Context(), store.LogFilter{
			UserID:     UserID(c),
			ActionType: req.ActionType,
			Status:     req.Status,
			Offset:     (req.Page - 1) * req.Limit,
			Limit:      req.Limit,
		})
		if err != nil {
			return respondError(c, err)
		}
		if entries == nil {
			entries = []models.AutomationLog{}
		}
		return c.JSON(http.StatusOK, models.LogListResponse{
			Logs:       entries,
			Pagination: models.NewPagination(req.Page, req.Limit, total),
		})
	}
}

// ListListingsHandler returns active listings the caller has not queued yet
func ListListingsHandler(listings ListingReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.ListingQuery
		if err := bindAndValidate(c, &req); err != nil {
			return respondError(c, err)
		}
		req.Normalize()

		out, total, err := listings.ListListings(c.Request().Context(), store.ListingFilter{
			Platform:             req.Platform,
			ActiveOnly:           true,
			ExcludeQueuedForUser: UserID(c),
			Offset:               (req.Page - 1) * req.Limit,
			Limit:                req.Limit,
		})
		if err != nil {
			return respondError(c, err)
		}
		if out == nil {
			out = []models.JobListing{}
		}
		return c.JSON(http.StatusOK, models.ListingListResponse{
			Listings:   out,
			Pagination: models.NewPagination(req.Page, req.Limit, total),
		})
	}
}
