package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"jobpilot/internal/api/validation"
	"jobpilot/internal/background"
	"jobpilot/internal/queue"
	"jobpilot/internal/store"
	"jobpilot/pkg/models"
	"jobpilot/pkg/utils"
)

// UserIDKey is the echo context key holding the caller's user id
const UserIDKey = "user_id"

var validate = validation.New()

// UserID returns the id set by the user middleware
func UserID(c echo.Context) string {
	id, _ := c.Get(UserIDKey).(string)
	return id
}

func requestID(c echo.Context) string {
	if id, ok := c.Get("request_id").(string); ok && id != "" {
		return id
	}
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

// bindAndValidate binds the body or query into req and runs its validate tags.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return utils.NewBadRequestError("Invalid request format")
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return utils.NewValidationError(verrs[0].Field() + " failed " + verrs[0].Tag() + " validation")
		}
		return utils.NewValidationError(err.Error())
	}
	return nil
}

// toCustomError maps domain errors onto HTTP errors. Anything unrecognised
// becomes a 500 without leaking the raw message.
func toCustomError(err error) *utils.CustomError {
	var ce *utils.CustomError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, queue.ErrAlreadyQueued):
		return utils.NewConflictError("Job already in queue", err.Error())
	case errors.Is(err, queue.ErrAlreadyApplied):
		return utils.NewConflictError("Already applied to this job", err.Error())
	case errors.Is(err, queue.ErrNotPending), errors.Is(err, queue.ErrProcessing):
		return utils.NewConflictError("Queue item cannot be changed", err.Error())
	case errors.Is(err, queue.ErrInvalidPriority):
		return utils.NewValidationError(err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, background.ErrTaskNotFound):
		return utils.NewNotFoundError("Resource not found")
	case errors.Is(err, background.ErrQueueFull), errors.Is(err, background.ErrNotRunning):
		return utils.NewServiceUnavailableError(err.Error())
	default:
		return utils.NewInternalServerError("Internal server error")
	}
}

var errorCodes = map[int]string{
	http.StatusBadRequest:          "invalid_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusServiceUnavailable:  "service_unavailable",
	http.StatusInternalServerError: "internal_error",
}

// respondError writes err as a models.ErrorResponse body
func respondError(c echo.Context, err error) error {
	ce := toCustomError(err)
	code, ok := errorCodes[ce.Code]
	if !ok {
		code = "error"
	}
	if ce.Message == "Validation failed" {
		code = "validation_failed"
	}
	return c.JSON(ce.Code, errorBody(c, code, ce.Error()))
}

func errorBody(c echo.Context, code, message string) models.ErrorResponse {
	return models.ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	}
}
