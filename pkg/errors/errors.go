package errors

import (
	"errors"
	"fmt"
)

// Kind identifies the class of an application failure. The set is closed:
// every failure leaving a service carries exactly one of these kinds.
type Kind string

const (
	// KindValidation marks malformed or constraint-violating input.
	KindValidation Kind = "VALIDATION"
	// KindReferential marks a reference to an entity that does not exist.
	KindReferential Kind = "REFERENTIAL"
	// KindConflict marks a write rejected by the store (e.g. duplicate key).
	KindConflict Kind = "CONFLICT"
	// KindNotFound marks a missing resource.
	KindNotFound Kind = "NOT_FOUND"
	// KindInternal marks unexpected persistence or programming faults.
	KindInternal Kind = "INTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

// NewReferentialError creates an error for a dangling reference
func NewReferentialError(message string) *AppError {
	return &AppError{Kind: KindReferential, Message: message}
}

// NewConflictError creates a conflict error
func NewConflictError(message string, cause error) *AppError {
	return &AppError{Kind: KindConflict, Message: message, Cause: cause}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Cause: cause}
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// KindOf reports the kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Kind
	}
	return KindInternal
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsConflict checks if an error is a conflict or referential error
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	kind := KindOf(err)
	return kind == KindConflict || kind == KindReferential
}

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool {
	return err != nil && KindOf(err) == KindInternal
}

// Wrap prefixes err with an operation name, keeping its kind and the
// original message as suffix. Untyped errors become internal errors.
func Wrap(err error, prefix string) error {
	if err == nil {
		return nil
	}

	if appErr := GetAppError(err); appErr != nil {
		return &AppError{
			Kind:    appErr.Kind,
			Message: prefix + ": " + appErr.Message,
			Cause:   err,
		}
	}

	return &AppError{
		Kind:    KindInternal,
		Message: prefix + ": " + err.Error(),
		Cause:   err,
	}
}
