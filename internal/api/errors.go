// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agp-analyzer/backend/internal/parser"
	"github.com/agp-analyzer/backend/internal/session"
	"github.com/agp-analyzer/backend/internal/storage"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
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

// NewLogFormatError creates a 422 error for a log that failed to parse.
func NewLogFormatError(fe *parser.FormatError) *APIError {
	return &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "LOG_FORMAT_ERROR",
		Message: fe.Error(),
		Details: fe.Content,
	}
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

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// fromDomainError maps session, storage and parser errors onto API errors.
// id names the resource being looked up.
func fromDomainError(err error, id string) *APIError {
	var apiErr *APIError
	var fe *parser.FormatError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &fe):
		return NewLogFormatError(fe)
	case errors.Is(err, session.ErrSessionNotFound):
		return NewNotFoundError("session", id)
	case errors.Is(err, storage.ErrFileNotFound):
		return NewNotFoundError("file", id)
	case errors.Is(err, session.ErrIndexOutOfRange):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, session.ErrNotReady):
		return NewConflictError(fmt.Sprintf("session %s has no result yet", id))
	case errors.Is(err, session.ErrWrongKind):
		return NewConflictError(err.Error())
	}
	return NewInternalError("unexpected error", err)
}

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
		apiErr = fromDomainError(err, "")
		if apiErr.Code == "INTERNAL_ERROR" {
			apiErr.Code = "UNKNOWN_ERROR"
			apiErr.Message = "An unexpected error occurred"
		}
	}

	if apiErr.Status >= http.StatusInternalServerError {
		fmt.Printf("[API] %s %s: %v\n", c.Request().Method, c.Request().URL.Path, err)
	}
	c.JSON(apiErr.Status, apiErr)
}
