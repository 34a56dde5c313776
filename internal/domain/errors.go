package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur while preparing or scoring images.
var (
	// ErrUnsupportedType indicates that an image is not one of the accepted
	// content types.
	ErrUnsupportedType = errors.New("unsupported image type")

	// ErrFileTooLarge indicates that an image exceeds the configured size limit.
	ErrFileTooLarge = errors.New("image exceeds size limit")

	// ErrEmptyImage indicates that an image carries no data.
	ErrEmptyImage = errors.New("empty image")

	// ErrProcessingFailed indicates that handling an image failed
	// unexpectedly after validation passed.
	ErrProcessingFailed = errors.New("image processing failed")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ImageError is the user-visible error for a single image. Images that
// produce an ImageError are excluded from verdicts and batch statistics.
type ImageError struct {
	// File is the name of the image that failed.
	File string `json:"file"`

	// Reason is a short human-readable explanation.
	Reason string `json:"reason"`

	// Err is the underlying error, usually one of the sentinel errors above.
	Err error `json:"-"`
}

// Error implements the error interface for ImageError.
func (e *ImageError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("image %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("image %s: %s", e.File, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ImageError) Unwrap() error { return e.Err }

// NewImageError creates a new ImageError with the given details.
func NewImageError(file, reason string, err error) *ImageError {
	return &ImageError{
		File:   file,
		Reason: reason,
		Err:    err,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets callers match ValidationError against ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
