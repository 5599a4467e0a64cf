package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/agenthands/graphdiff/internal/core/model"
)

// Error represents an application error with HTTP status and error code
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

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
		Details:    e.Details,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    message,
		Internal:   e.Internal,
		Details:    e.Details,
	}
}

// WithDetails returns a copy of the error with details attached
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   e.Internal,
		Details:    details,
	}
}

func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

var (
	ErrNotFound           = New(http.StatusNotFound, "not_found", "Resource not found")
	ErrBranchNotFound     = New(http.StatusNotFound, "branch_not_found", "Branch not found")
	ErrConflictNotFound   = New(http.StatusNotFound, "conflict_not_found", "Conflict not found")
	ErrBadRequest         = New(http.StatusBadRequest, "bad_request", "Invalid request")
	ErrInvalidTimeRange   = New(http.StatusBadRequest, "invalid_time_range", "Time range is invalid")
	ErrMissingFromTime    = New(http.StatusBadRequest, "missing_from_time", "A start time is required for the default branch")
	ErrUnresolvedConflict = New(http.StatusConflict, "unresolved_conflict", "Diff has unresolved conflicts")
	ErrInternal           = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
)

// FromError maps engine errors onto application errors. Errors that already
// are application errors are returned unchanged.
func FromError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var out *Error
	switch {
	case errors.Is(err, model.ErrBranchNotFound):
		out = ErrBranchNotFound
	case errors.Is(err, model.ErrConflictNotFound):
		out = ErrConflictNotFound
	case errors.Is(err, model.ErrNodeNotFound), errors.Is(err, model.ErrRootNotFound):
		out = ErrNotFound
	case errors.Is(err, model.ErrInvalidTimeRange):
		out = ErrInvalidTimeRange
	case errors.Is(err, model.ErrMissingFromTime):
		out = ErrMissingFromTime
	case errors.Is(err, model.ErrUnresolvedConflict):
		out = ErrUnresolvedConflict
	default:
		return ErrInternal.WithInternal(err)
	}

	out = out.WithInternal(err)
	var pathErr *model.PathError
	if errors.As(err, &pathErr) {
		out = out.WithDetails(map[string]any{"path": pathErr.Path})
	}
	return out
}

// ToHTTPError converts an error to a status code and response body
func ToHTTPError(err error) (int, map[string]any) {
	appErr := FromError(err)
	body := map[string]any{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	return appErr.HTTPStatus, map[string]any{"error": body}
}

func NewBadRequest(message string) *Error {
	return ErrBadRequest.WithMessage(message)
}
