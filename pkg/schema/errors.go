package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeUnknownEvent      = "UNKNOWN_EVENT"
	ErrCodeStaleEvent        = "STALE_EVENT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeQuery             = "QUERY_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
)

// BoardError is the structured error type for all agentboard operations.
type BoardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	AgentID string         `json:"agent_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *BoardError) Error() string {
	if e.AgentID != "" {
		return fmt.Sprintf("[%s] agent %s: %s", e.Code, e.AgentID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BoardError) Unwrap() error {
	return e.Cause
}

// NewError creates a new BoardError.
func NewError(code, message string) *BoardError {
	return &BoardError{Code: code, Message: message}
}

// NewErrorf creates a new BoardError with a formatted message.
func NewErrorf(code, format string, args ...any) *BoardError {
	return &BoardError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithAgent attaches an agent ID to the error.
func (e *BoardError) WithAgent(agentID string) *BoardError {
	e.AgentID = agentID
	return e
}

// WithCause attaches an underlying cause.
func (e *BoardError) WithCause(err error) *BoardError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *BoardError) WithDetails(details map[string]any) *BoardError {
	e.Details = details
	return e
}
