package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"jobpilot/internal/logging/types"
	"jobpilot/pkg/models"
)

// QueueService is the queue surface exposed over HTTP
type QueueService interface {
	List(ctx context.Context, userID string, status models.QueueStatus, page, limit int) ([]models.QueueItem, int, error)
	ManualEnqueue(ctx context.Context, userID, listingID string) (models.QueueItem, error)
	Skip(ctx context.Context, userID, itemID string) (models.QueueItem, error)
	Reprioritize(ctx context.Context, userID, itemID string, priority int) (models.QueueItem, error)
	Remove(ctx context.Context, userID, itemID string) error
	Stats(ctx context.Context, userID string) (models.QueueStats, error)
	NextScheduled(ctx context.Context, userID string) (*models.QueueItem, error)
}

// ListQueueHandler returns a page of the caller's queue
func ListQueueHandler(q QueueService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.QueueQuery
		if err := bindAndValidate(c, &req); err != nil {
			return respondError(c, err)
		}
		req.Normalize()

		items, total, err := q.List(c.Request().Context(), UserID(c), models.QueueStatus(req.Status), req.Page, req.Limit)
		if err != nil {
			return respondError(c, err)
		}
		if items == nil {
			items = []models.QueueItem{}
		}
		return c.JSON(http.StatusOK, models.QueueListResponse{
			Items:      items,
			Pagination: models.NewPagination(req.Page, req.Limit, total),
		})
	}
}

// EnqueueHandler queues a discovered listing for the caller
func EnqueueHandler(q QueueService, logger types.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.ManualEnqueueRequest
		if err := bindAndValidate(c, &req); err != nil {
			return respondError(c, err)
		}

		item, err := q.ManualEnqueue(c.Request().Context(), UserID(c), req.ListingID)
		if err != nil {
			return respondError(c, err)
		}

		logger.Info("Listing queued manually", map[string]interface{}{
			"request_id":    requestID(c),
			"user_id":       item.UserID,
			"queue_item_id": item.ID,
			"listing_id":    req.ListingID,
		})
		return c.JSON(http.StatusCreated, item)
	}
}

// SkipHandler marks a pending item skipped
func SkipHandler(q QueueService) echo.HandlerFunc {
	return func(c echo.Context) error {
		item, err := q.Skip(c.Request().Context(), UserID(c), c.Param("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, item)
	}
}

// PriorityHandler changes a pending item's priority
func PriorityHandler(q QueueService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.PriorityRequest
		if err := bindAndValidate(c, &req); err != nil {
			return respondError(c, err)
		}

		item, err := q.Reprioritize(c.Request().Context(), UserID(c), c.Param("id"), req.Priority)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, item)
	}
}

func RemoveHandler(q QueueService) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := q.Remove(c.Request().Context(), UserID(c), c.Param("id")); err != nil {
			return respondError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
