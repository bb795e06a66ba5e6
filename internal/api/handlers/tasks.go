package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"jobpilot/internal/background"
	"jobpilot/internal/logging/types"
	"jobpilot/pkg/models"
)

// ScrapeTrigger starts an out-of-schedule discovery run for one user
type ScrapeTrigger interface {
	TriggerScrape(ctx context.Context, userID string) (string, error)
}

// TaskReader looks up background task results
type TaskReader interface {
	GetTaskResult(ctx context.Context, processID string) (*background.TaskResult, error)
}

// TriggerScrapeHandler queues an immediate scrape of the caller's search
// profiles and answers 202 with the task id to poll.
func TriggerScrapeHandler(trigger ScrapeTrigger, logger types.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := UserID(c)

		processID, err := trigger.TriggerScrape(c.Request().Context(), userID)
		if err != nil {
			logger.Error("Failed to queue scrape task", map[string]interface{}{
				"request_id": requestID(c),
				"user_id":    userID,
				"error":      err.Error(),
			})
			return respondError(c, err)
		}

		logger.Info("Scrape task queued", map[string]interface{}{
			"request_id": requestID(c),
			"user_id":    userID,
			"process_id": processID,
		})

		return c.JSON(http.StatusAccepted, models.AsyncTaskResponse{
			ProcessID: processID,
			Status:    models.AsyncStatusAccepted,
			Message:   "Scrape queued",
			Timestamp: time.Now(),
		})
	}
}

// TaskStatusHandler returns a task result. Tasks belonging to another user
// are reported as not found.
func TaskStatusHandler(tasks TaskReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		result, err := tasks.GetTaskResult(c.Request().Context(), c.Param("id"))
		if err != nil {
			return respondError(c, err)
		}
		if owner, ok := result.Metadata["user_id"].(string); ok && owner != UserID(c) {
			return respondError(c, background.ErrTaskNotFound)
		}
		return c.JSON(http.StatusOK, result)
	}
}
