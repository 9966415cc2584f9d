package errors

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// AppError represents a standardized application error
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component"`
	Operation  string                 `json:"operation"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Severity   Severity               `json:"severity"`
}

// Severity levels for errors
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Error codes
const (
	// Event validation, resolved locally by dropping the event
	CodeInvalidPath      = "INVALID_PATH"
	CodeInvalidOperation = "INVALID_OPERATION"

	// Remote write failures, surfaced through the completion callback
	CodeTransientTransport = "TRANSIENT_TRANSPORT_FAILURE"
	CodeRemoteRejected     = "REMOTE_REJECTED"
	CodeWriterUnavailable  = "WRITER_UNAVAILABLE"

	// Startup failures, fatal
	CodeSetupFailure  = "SETUP_FAILURE"
	CodeConfigInvalid = "CONFIG_INVALID"
)

// Sentinels usable with errors.Is; an AppError matches the sentinel with the
// same code.
var (
	ErrInvalidPath        = &AppError{Code: CodeInvalidPath}
	ErrInvalidOperation   = &AppError{Code: CodeInvalidOperation}
	ErrTransientTransport = &AppError{Code: CodeTransientTransport}
	ErrRemoteRejected     = &AppError{Code: CodeRemoteRejected}
	ErrWriterUnavailable  = &AppError{Code: CodeWriterUnavailable}
	ErrSetupFailure       = &AppError{Code: CodeSetupFailure}
)

// New creates a new standardized error
func New(code, component, operation, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	return &AppError{
		Code:       code,
		Message:    message,
		Component:  component,
		Operation:  operation,
		StackTrace: fmt.Sprintf("%s:%d", file, line),
		Metadata:   make(map[string]interface{}),
		Timestamp:  time.Now(),
		Severity:   SeverityMedium,
	}
}

// NewCritical creates a critical error
func NewCritical(code, component, operation, message string) *AppError {
	err := New(code, component, operation, message)
	err.Severity = SeverityCritical
	return err
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap wraps another error as the cause
func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithSeverity sets the severity level
func (e *AppError) WithSeverity(severity Severity) *AppError {
	e.Severity = severity
	return e
}

// IsCritical returns true if the error is critical
func (e *AppError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// ToMap converts the error to a map for structured logging
func (e *AppError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code":      e.Code,
		"error_message":   e.Message,
		"error_component": e.Component,
		"error_operation": e.Operation,
		"error_severity":  string(e.Severity),
	}

	if e.Cause != nil {
		result["error_cause"] = e.Cause.Error()
	}

	for k, v := range e.Metadata {
		result[fmt.Sprintf("error_meta_%s", k)] = v
	}

	return result
}

// Convenience functions for common error types

// InvalidPathError reports a path that failed resolution or validation.
func InvalidPathError(path, message string) *AppError {
	return New(CodeInvalidPath, "dispatcher", "resolve_path", message).WithMetadata("path", path)
}

// InvalidOperationError reports a verb that is not a recognized operation.
func InvalidOperationError(verb, message string) *AppError {
	return New(CodeInvalidOperation, "dispatcher", "resolve_operation", message).WithMetadata("verb", verb)
}

// TransportError reports a write that kept failing after all retries.
func TransportError(operation string, cause error) *AppError {
	return New(CodeTransientTransport, "firebase", operation, "transport failure").Wrap(cause)
}

// RemoteError reports a non-success response from the endpoint.
func RemoteError(operation string, status int, body string) *AppError {
	return New(CodeRemoteRejected, "firebase", operation, fmt.Sprintf("remote returned status %d", status)).
		WithMetadata("status", status).
		WithMetadata("body", body)
}

// SetupError creates a fatal setup error
func SetupError(operation, message string) *AppError {
	return NewCritical(CodeSetupFailure, "setup", operation, message)
}

// ConfigError creates a configuration error
func ConfigError(operation, message string) *AppError {
	return NewCritical(CodeConfigInvalid, "config", operation, message)
}

// AsAppError converts an error to AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
