package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/menta2k/dental-analyzer/pkg/analyzer"
)

// Error represents an application error with HTTP status and error code
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   err,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    message,
		Internal:   e.Internal,
	}
}

// New creates a new application error
func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

// Common error definitions
var (
	ErrBadRequest  = New(http.StatusBadRequest, "bad_request", "Invalid request")
	ErrNotAnImage  = New(http.StatusBadRequest, "not_an_image", "Please upload an image file")
	ErrTooLarge    = New(http.StatusRequestEntityTooLarge, "image_too_large", "Image exceeds the upload limit")
	ErrUnsupported = New(http.StatusUnsupportedMediaType, "unsupported_format", "Image format is not supported")
	ErrNotFound    = New(http.StatusNotFound, "not_found", "Resource not found")
	ErrInternal    = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
)

// NewBadRequest creates a bad request error with a custom message
func NewBadRequest(message string) *Error {
	return ErrBadRequest.WithMessage(message)
}

// FromIntake maps an upload rejection to its HTTP error
func FromIntake(err error) *Error {
	switch {
	case errors.Is(err, analyzer.ErrTooLarge):
		return ErrTooLarge.WithInternal(err)
	case errors.Is(err, analyzer.ErrNotAnImage):
		return ErrNotAnImage.WithInternal(err)
	case errors.Is(err, analyzer.ErrInvalidDataURI):
		return NewBadRequest("image must be a base64 data URI").WithInternal(err)
	case errors.Is(err, analyzer.ErrUnsupportedFormat):
		return ErrUnsupported.WithInternal(err)
	default:
		return ErrInternal.WithInternal(err)
	}
}
