// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/parser"
	"github.com/ud7-tracker/backend/internal/session"
	"github.com/ud7-tracker/backend/internal/storage"
	"github.com/ud7-tracker/backend/internal/tracking"
)

// APIError represents a structured API error response
type APIError struct {
	Status     int                `json:"-"`
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Details    string             `json:"details,omitempty"`
	ParseError *models.ParseError `json:"parseError,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewParseFailureError creates a 422 error carrying the offending value and position
func NewParseFailureError(perr *models.ParseError) *APIError {
	return &APIError{
		Status:     http.StatusUnprocessableEntity,
		Code:       models.SessionErrorParseFailure,
		Message:    "log data could not be parsed",
		Details:    perr.Error(),
		ParseError: perr,
	}
}

// NewInputEmptyError creates a 422 error for merges and analyses without records
func NewInputEmptyError(cause error) *APIError {
	err := &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    models.SessionErrorInputEmpty,
		Message: "no data",
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// sessionError maps session and analysis errors onto API errors.
// tracking.ErrNoEpisodesInWindow is not an error for the API and must be
// handled before calling this.
func sessionError(id string, err error) *APIError {
	var perr *models.ParseError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return NewNotFoundError("session", id)
	case errors.As(err, &perr):
		return NewParseFailureError(perr)
	case errors.Is(err, tracking.ErrInputEmpty):
		return NewInputEmptyError(err)
	case errors.Is(err, tracking.ErrNoChannelSelected):
		return NewValidationError("channels")
	case errors.Is(err, session.ErrSessionNotReady):
		return NewConflictError("session is still merging")
	case errors.Is(err, session.ErrSessionFailed):
		return NewInternalError("session merge failed", err)
	default:
		return NewInternalError("analysis failed", err)
	}
}

// fileError maps storage errors for a file id.
func fileError(id string, err error) *APIError {
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("file", id)
	}
	return NewInternalError("file storage failed", err)
}

// startError maps errors returned when a session cannot be started.
func startError(err error) *APIError {
	switch {
	case errors.Is(err, parser.ErrNoInputFiles):
		return NewInputEmptyError(err)
	case errors.Is(err, parser.ErrFolderNotFound):
		return NewBadRequestError("folder not readable", err)
	default:
		return NewInternalError("failed to start session", err)
	}
}

// ShowErrorDetails controls whether unexpected errors expose their text.
var ShowErrorDetails = true

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
		}
		if ShowErrorDetails {
			apiErr.Details = err.Error()
		}
	}

	if apiErr.Status >= http.StatusInternalServerError {
		logger.Get(c.Request().Context()).Errorf("[API] %s %s: %v", c.Request().Method, c.Path(), err)
	}

	if err := c.JSON(apiErr.Status, apiErr); err != nil {
		logger.L().Warnf("[API] failed to write error response: %v", err)
	}
}
