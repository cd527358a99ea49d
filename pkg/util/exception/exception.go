// Package exception provides the custom error type and classification helpers
// used across the pipeline. Errors are tagged with the module that raised them
// and with a retryable flag consumed by the fetch retry policy.
package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// PipelineError is the error type raised by pipeline modules.
// It holds the module where the error occurred, a message, the wrapped
// original error, and a flag indicating whether the operation may be retried.
type PipelineError struct {
	// Module indicates the module where the error occurred (e.g., "fetch", "aggregate", "watermark", "export", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// isRetryable indicates whether this error is retryable.
	isRetryable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// New creates a new PipelineError.
func New(module, message string, originalErr error, isRetryable bool) *PipelineError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &PipelineError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		StackTrace:  string(buf[:n]),
	}
}

// Newf creates a new non-retryable PipelineError with a formatted message.
func Newf(module string, format string, v ...interface{}) *PipelineError {
	return New(module, fmt.Sprintf(format, v...), nil, false)
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped original error.
func (e *PipelineError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *PipelineError) IsRetryable() bool {
	return e.isRetryable
}

// ErrInvalidArgument is the sentinel wrapped by errors raised on malformed
// caller input (e.g., an empty metric column map).
var ErrInvalidArgument = errors.New("invalid argument")

// IsTemporary determines whether an error is temporary. The IsRetryable flag
// of a PipelineError takes precedence; otherwise common transient network
// failure strings are matched.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF")
}
