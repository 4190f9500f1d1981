package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeUnknownAction = "UNKNOWN_ACTION"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeStore         = "STORE_ERROR"
	ErrCodeTimeout       = "TIMEOUT_ERROR"
)

// AutomatError is the structured error type for all engine operations.
type AutomatError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AutomatError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AutomatError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AutomatError.
func NewError(code, message string) *AutomatError {
	return &AutomatError{Code: code, Message: message}
}

// NewErrorf creates a new AutomatError with a formatted message.
func NewErrorf(code, format string, args ...any) *AutomatError {
	return &AutomatError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *AutomatError) WithCause(err error) *AutomatError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *AutomatError) WithDetails(details map[string]any) *AutomatError {
	e.Details = details
	return e
}
