// Package errors provides the error code taxonomy for the sync engine.
package errors

import "fmt"

// ErrorCode represents a stable error code surfaced to callers and logs.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local storage errors. These are fatal for the current operation
	// and always propagate to the caller.
	ErrStorage    ErrorCode = "STORAGE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Queue errors
	ErrQueueUnsupported ErrorCode = "QUEUE_UNSUPPORTED_OPERATION"

	// Remote transport errors. Recoverable; absorbed by the processor
	// and counted against the retry budget.
	ErrTransport      ErrorCode = "TRANSPORT_ERROR"
	ErrRemoteRejected ErrorCode = "REMOTE_REJECTED"
	ErrTimeout        ErrorCode = "REQUEST_TIMEOUT"

	// Session errors
	ErrNoCredential      ErrorCode = "NO_CREDENTIAL"
	ErrCredentialExpired ErrorCode = "CREDENTIAL_EXPIRED"

	// Conflict errors
	ErrConflictNotFound ErrorCode = "CONFLICT_NOT_FOUND"
	ErrConflictStrategy ErrorCode = "CONFLICT_UNKNOWN_STRATEGY"
	ErrConflictUnmerged ErrorCode = "CONFLICT_MERGE_FAILED"

	// Config errors
	ErrConfig ErrorCode = "CONFIG_ERROR"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable reports whether an error should count against a queue
// item's retry budget rather than abort the pass.
func IsRetryable(err error) bool {
	return Is(err, ErrTransport) || Is(err, ErrRemoteRejected) || Is(err, ErrTimeout)
}
