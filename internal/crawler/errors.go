package crawler

import "fmt"

// ErrorKind buckets run-scoped failures for HTTP mapping and stats rows.
type ErrorKind string

// Run-scoped failure kinds. Per-page failures never reach this type; they
// are swallowed inside the traversal.
const (
	ErrKindInput        ErrorKind = "input"
	ErrKindConnectivity ErrorKind = "connectivity"
	ErrKindProvider     ErrorKind = "provider"
	ErrKindTimeout      ErrorKind = "timeout"
)

// RunError is the structured failure a run propagates to the caller. The
// suggestion is surfaced verbatim by the UI, so it should be actionable.
type RunError struct {
	Kind       ErrorKind
	Message    string
	Suggestion string
	Err        error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError builds a RunError wrapping cause (which may be nil).
func NewRunError(kind ErrorKind, message, suggestion string, cause error) *RunError {
	return &RunError{
		Kind:       kind,
		Message:    message,
		Suggestion: suggestion,
		Err:        cause,
	}
}
