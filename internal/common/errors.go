package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Business logic errors
var (
	// General errors
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage failure")

	// Not-found errors, all matching ErrNotFound
	ErrUserNotFound         = &NotFoundError{Resource: "user"}
	ErrPostNotFound         = &NotFoundError{Resource: "post"}
	ErrCommentNotFound      = &NotFoundError{Resource: "comment"}
	ErrConversationNotFound = &NotFoundError{Resource: "conversation"}
	ErrMessageNotFound      = &NotFoundError{Resource: "message"}
	ErrNotificationNotFound = &NotFoundError{Resource: "notification"}

	// Auth errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAccountBanned      = errors.New("account is banned")
	ErrUserAlreadyExists  = &ValidationError{Field: "email", Message: "is already registered"}
)

// NotFoundError reports that a referenced record is absent.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// Is makes every NotFoundError match ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports bad input shape.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for a field
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// PermissionError reports an actor attempting an owner-only action.
type PermissionError struct {
	Action   string
	Resource string
}

// NewPermissionError creates a PermissionError
func NewPermissionError(action, resource string) error {
	return &PermissionError{Action: action, Resource: resource}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("forbidden: only the owner may %s this %s", e.Action, e.Resource)
}

func (e *PermissionError) Unwrap() error {
	return ErrForbidden
}

// StorageError wraps an underlying read/write failure of a collection.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// InvariantViolation is a mismatch between a denormalized counter and the
// live record count it mirrors.
type InvariantViolation struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Field      string `json:"field"`
	Stored     int    `json:"stored"`
	Actual     int    `json:"actual"`
}

func (v InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s/%s %s stored=%d actual=%d",
		v.Collection, v.ID, v.Field, v.Stored, v.Actual)
}

// HTTPStatus maps an error to an HTTP status code
func HTTPStatus(err error) int {
	var lockTimeout interface{ Timeout() bool }
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountBanned), errors.Is(err, ErrAccountInactive), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &lockTimeout) && lockTimeout.Timeout():
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
