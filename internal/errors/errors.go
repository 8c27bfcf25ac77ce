package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"biomark/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping its code
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    codeFor(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code of the outermost AppError, or the code
// implied by a domain error, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	if code := codeFor(err); code != CodeInternalError {
		return code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNoImage          = "NO_IMAGE"
	CodeNoPrediction     = "NO_PREDICTION"
	CodeUnsupportedMedia = "UNSUPPORTED_MEDIA"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
)

// codeFor derives a code from domain sentinel errors
func codeFor(err error) string {
	switch {
	case stderrors.Is(err, core.ErrNoImage):
		return CodeNoImage
	case stderrors.Is(err, core.ErrNoPrediction):
		return CodeNoPrediction
	case stderrors.Is(err, core.ErrUnsupportedImage):
		return CodeUnsupportedMedia
	case stderrors.Is(err, core.ErrSessionNotFound):
		return CodeSessionNotFound
	case core.IsNotFoundError(err):
		return CodeNotFound
	case core.IsValidationError(err):
		return CodeValidationError
	default:
		return CodeInternalError
	}
}

var statusByCode = map[string]int{
	CodeConfigInvalid:    http.StatusInternalServerError,
	CodeValidationError:  http.StatusUnprocessableEntity,
	CodeNotFound:         http.StatusNotFound,
	CodeInternalError:    http.StatusInternalServerError,
	CodeExternalService:  http.StatusBadGateway,
	CodeInvalidInput:     http.StatusBadRequest,
	CodeNoImage:          http.StatusConflict,
	CodeNoPrediction:     http.StatusConflict,
	CodeUnsupportedMedia: http.StatusUnsupportedMediaType,
	CodeSessionNotFound:  http.StatusNotFound,
}

// HTTPStatus maps an error to the status code handlers respond with
func HTTPStatus(err error) int {
	if status, ok := statusByCode[GetCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func NoImage() *AppError {
	return &AppError{Code: CodeNoImage, Message: "please upload an image first", Cause: core.ErrNoImage}
}

func NoPrediction() *AppError {
	return &AppError{Code: CodeNoPrediction, Message: "run an analysis first", Cause: core.ErrNoPrediction}
}
