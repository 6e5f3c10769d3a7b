package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

// The workflow refusal taxonomy is a closed set: callers present a specific,
// user-facing explanation per type, never a generic error.
const (
	ErrInvalidState     ErrorType = "INVALID_STATE"
	ErrNotOwner         ErrorType = "NOT_OWNER"
	ErrSelfApproval     ErrorType = "SELF_APPROVAL_FORBIDDEN"
	ErrPermissionDenied ErrorType = "PERMISSION_DENIED"
	ErrValidationFailed ErrorType = "VALIDATION_FAILED"
	ErrAuthFailed       ErrorType = "AUTH_FAILED"
	ErrNotFound         ErrorType = "NOT_FOUND"
	ErrInternal         ErrorType = "INTERNAL_ERROR"

	// ErrAuditWriteFailed is internal-only: a lost audit write degrades
	// observability, never the business operation that triggered it.
	ErrAuditWriteFailed ErrorType = "AUDIT_WRITE_FAILED"
)

// AppError is the standard error struct for the application.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewSelfApproval(msg string) *AppError     { return New(ErrSelfApproval, msg, nil) }
func NewPermissionDenied(msg string) *AppError { return New(ErrPermissionDenied, msg, nil) }
func NewValidationFailed(msg string) *AppError { return New(ErrValidationFailed, msg, nil) }
func NewNotFound(msg string) *AppError         { return New(ErrNotFound, msg, nil) }

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// TypeOf returns the taxonomy type of err, or ErrInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrInternal
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidState:
		return http.StatusConflict
	case ErrNotOwner, ErrSelfApproval, ErrPermissionDenied:
		return http.StatusForbidden
	case ErrValidationFailed:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrInvalidState:
		return "Reload the record and check its current status."
	case ErrNotOwner:
		return "Only the record's creator may perform this action."
	case ErrSelfApproval:
		return "A different reviewer must approve or reject this record."
	case ErrPermissionDenied:
		return "Ask an administrator to grant the required permission."
	case ErrValidationFailed:
		return "Check the request payload."
	case ErrAuthFailed:
		return "Check the API key."
	default:
		return ""
	}
}
