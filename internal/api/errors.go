// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kbdesk/backend/internal/backend"
	"github.com/kbdesk/backend/internal/chat"
	"github.com/kbdesk/backend/internal/staging"
	"github.com/kbdesk/backend/internal/widget"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Error codes returned in APIError.Code.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	CodeEmptyName           = "EMPTY_NAME"
	CodeNameTooLong         = "NAME_TOO_LONG"
	CodeNoFiles             = "NO_FILES"
	CodeOutOfRange          = "OUT_OF_RANGE"
	CodeBusy                = "BUSY"
	CodeNotFound            = "NOT_FOUND"
	CodeUpstream            = "UPSTREAM_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
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
		Code:    CodeBadRequest,
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
		Code:    CodeValidation,
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewUpstreamError creates a 502 error for a failed backend call
func NewUpstreamError(cause error) *APIError {
	return &APIError{
		Status:  http.StatusBadGateway,
		Code:    CodeUpstream,
		Message: cause.Error(),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// FromError maps domain errors onto API errors.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	status, code := http.StatusInternalServerError, CodeInternal
	switch {
	case errors.Is(err, staging.ErrUnsupportedFileType):
		status, code = http.StatusBadRequest, CodeUnsupportedFileType
	case errors.Is(err, staging.ErrOutOfRange), errors.Is(err, chat.ErrOutOfRange):
		status, code = http.StatusNotFound, CodeOutOfRange
	case errors.Is(err, widget.ErrEmptyName):
		status, code = http.StatusBadRequest, CodeEmptyName
	case errors.Is(err, widget.ErrNameTooLong):
		status, code = http.StatusBadRequest, CodeNameTooLong
	case errors.Is(err, widget.ErrNoFiles):
		status, code = http.StatusBadRequest, CodeNoFiles
	case errors.Is(err, widget.ErrBusy):
		status, code = http.StatusConflict, CodeBusy
	case errors.Is(err, chat.ErrEmptyMessage):
		status, code = http.StatusBadRequest, CodeValidation
	case backend.IsBackendError(err):
		status, code = http.StatusBadGateway, CodeUpstream
	}
	return &APIError{Status: status, Code: code, Message: err.Error()}
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
			Code:    httpCode(httpErr.Code),
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = FromError(err)
	}

	if apiErr.Status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("[api] request failed")
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}

func httpCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusMethodNotAllowed, http.StatusUnsupportedMediaType:
		return CodeBadRequest
	default:
		if status >= http.StatusInternalServerError {
			return CodeInternal
		}
		return CodeBadRequest
	}
}
