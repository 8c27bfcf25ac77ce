package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound        = errors.New("resource not found")
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)
	ErrEventNotFound   = fmt.Errorf("%w: prediction event", ErrNotFound)

	// Workflow errors
	ErrNoImage      = errors.New("no image uploaded")
	ErrNoPrediction = errors.New("no prediction available")

	// Validation errors
	ErrValidation           = errors.New("validation failed")
	ErrInvalidProbabilities = errors.New("invalid probability mapping")
	ErrUnknownLabel         = errors.New("unknown subtype label")
	ErrUnknownMarker        = errors.New("unknown biomarker")
	ErrUnknownIntensity     = errors.New("unknown staining intensity")
	ErrUnknownPattern       = errors.New("unknown staining pattern")
	ErrOutOfRange           = errors.New("value out of range")
	ErrUnsupportedImage     = errors.New("unsupported image format")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w for %s: %s", ErrValidation, field, reason)
}

func NewRangeError(field string, value, min, max float64) error {
	return fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrOutOfRange, field, value, min, max)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidProbabilities) ||
		errors.Is(err, ErrUnknownLabel) ||
		errors.Is(err, ErrUnknownMarker) ||
		errors.Is(err, ErrUnknownIntensity) ||
		errors.Is(err, ErrUnknownPattern) ||
		errors.Is(err, ErrOutOfRange)
}
