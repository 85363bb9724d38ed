package utils

import (
	"errors"
	"fmt"
	"runtime"
)

// AppError represents an application error with context
type AppError struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	Details   string  `json:"details,omitempty"`
	Operation string  `json:"operation,omitempty"`
	Contract  string  `json:"contract,omitempty"`
	Milestone *uint64 `json:"milestone,omitempty"`
	File      string  `json:"file,omitempty"`
	Line      int     `json:"line,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAppError creates a new application error
func NewAppError(code, message string, details ...string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
	}

	if len(details) > 0 {
		err.Details = details[0]
	}

	return err
}

// WithContext attaches the escrow operation context to the error so callers
// can render a precise message without parsing strings.
func (e *AppError) WithContext(operation, contractID string, milestoneIndex *uint64) *AppError {
	e.Operation = operation
	e.Contract = contractID
	e.Milestone = milestoneIndex
	return e
}

// ErrorCode extracts the code from an error, or ErrCodeInternal for foreign errors
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given error code
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// IsRetryable reports whether an error may be retried. Only transport-level
// failures qualify; state machine rejections are deterministic.
func IsRetryable(err error) bool {
	return IsCode(err, ErrCodeTransport)
}

// Escrow protocol error codes
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeInvalidState       = "INVALID_STATE"
	ErrCodeDuplicateIndex     = "DUPLICATE_INDEX"
	ErrCodeBudgetExceeded     = "BUDGET_EXCEEDED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeSignatureInvalid   = "SIGNATURE_INVALID"
	ErrCodeInvalidArgument    = "INVALID_ARGUMENT"
	ErrCodeInsufficientEscrow = "INSUFFICIENT_ESCROW_BALANCE"
	ErrCodeSigningCancelled   = "SIGNING_CANCELLED"
	ErrCodeTransport          = "TRANSPORT_ERROR"
	ErrCodeRejected           = "REJECTED"
	ErrCodePending            = "CONFIRMATION_PENDING"
)

// Infrastructure error codes
const (
	ErrCodeConnection    = "CONNECTION_ERROR"
	ErrCodeDatabase      = "DATABASE_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
)
