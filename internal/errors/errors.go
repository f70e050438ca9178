// Package errors provides custom error types for the Tally API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is matches AppErrors by code, so errors.Is(err, sentinel) works on
// errors derived with Wrap or WithMessage.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Category errors.
var (
	ErrCategoryNotFound   = &AppError{Code: "CATEGORY_NOT_FOUND", Message: "Category not found", StatusCode: http.StatusNotFound}
	ErrParentNotFound     = &AppError{Code: "PARENT_NOT_FOUND", Message: "Parent category not found", StatusCode: http.StatusNotFound}
	ErrNameConflict       = &AppError{Code: "NAME_CONFLICT", Message: "A category with this name already exists", StatusCode: http.StatusConflict}
	ErrTypeMismatch       = &AppError{Code: "TYPE_MISMATCH", Message: "Category type must match its parent's type", StatusCode: http.StatusBadRequest}
	ErrCycleDetected      = &AppError{Code: "CYCLE_DETECTED", Message: "A category cannot be its own ancestor", StatusCode: http.StatusBadRequest}
	ErrCategoryInUse      = &AppError{Code: "CATEGORY_IN_USE", Message: "Category is used in existing transactions", StatusCode: http.StatusConflict}
	ErrProtectedLink      = &AppError{Code: "PROTECTED_LINK", Message: "Category is linked to an external account", StatusCode: http.StatusConflict}
	ErrNeedsMerge         = &AppError{Code: "NEEDS_MERGE", Message: "Another category already uses this name", StatusCode: http.StatusConflict}
	ErrAmbiguousReference = &AppError{Code: "AMBIGUOUS_REFERENCE", Message: "Reference matches more than one record", StatusCode: http.StatusBadRequest}
)

// Payee errors.
var (
	ErrPayeeNotFound     = &AppError{Code: "PAYEE_NOT_FOUND", Message: "Payee not found", StatusCode: http.StatusNotFound}
	ErrPayeeNameConflict = &AppError{Code: "PAYEE_NAME_CONFLICT", Message: "A payee with this name already exists", StatusCode: http.StatusConflict}
	ErrPayeeInUse        = &AppError{Code: "PAYEE_IN_USE", Message: "Payee is used in existing transactions", StatusCode: http.StatusConflict}
)

// Import errors.
var (
	ErrEmptyImport   = &AppError{Code: "EMPTY_IMPORT", Message: "Import file contains no usable rows", StatusCode: http.StatusBadRequest}
	ErrInvalidImport = &AppError{Code: "INVALID_IMPORT", Message: "Import file failed validation", StatusCode: http.StatusBadRequest}
)

// Command pipeline errors.
var (
	ErrInvalidCommand   = &AppError{Code: "INVALID_COMMAND", Message: "Command failed validation", StatusCode: http.StatusBadRequest}
	ErrNothingToConfirm = &AppError{Code: "NOTHING_TO_CONFIRM", Message: "No commands are awaiting confirmation", StatusCode: http.StatusConflict}
	ErrBatchInProgress  = &AppError{Code: "BATCH_IN_PROGRESS", Message: "Batch execution has already started", StatusCode: http.StatusConflict}
	ErrGeneratorFailure = &AppError{Code: "GENERATOR_FAILURE", Message: "The assistant could not produce commands", StatusCode: http.StatusBadGateway}
)

// Remote store errors.
var (
	ErrRemoteFailure = &AppError{Code: "REMOTE_FAILURE", Message: "The remote store rejected the operation", StatusCode: http.StatusBadGateway}
)
