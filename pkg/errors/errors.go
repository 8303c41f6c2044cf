// Package errors provides the structured error type returned by every remote
// operation of the webhdfs client, with error codes, categories and the full
// attempt history of the failed operation.
package errors

import (
	"context"
	"encoding/json"
	stderr "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for client operations.
type ErrorCode string

const (
	// Client argument errors. Never retried, never sent over the wire.
	ErrCodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	ErrCodeInvalidPath       ErrorCode = "INVALID_PATH"
	ErrCodeInvalidPermission ErrorCode = "INVALID_PERMISSION"
	ErrCodeInvalidOffset     ErrorCode = "INVALID_OFFSET"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave    ErrorCode = "CONFIG_SAVE"

	// Transport errors
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Remote application errors
	ErrCodeFileNotFound       ErrorCode = "REMOTE_FILE_NOT_FOUND"
	ErrCodeAccessDenied       ErrorCode = "REMOTE_ACCESS_DENIED"
	ErrCodeAlreadyExists      ErrorCode = "REMOTE_ALREADY_EXISTS"
	ErrCodeLeaseConflict      ErrorCode = "REMOTE_LEASE_CONFLICT"
	ErrCodeBadOffset          ErrorCode = "REMOTE_BAD_OFFSET"
	ErrCodeThrottled          ErrorCode = "REMOTE_THROTTLED"
	ErrCodeServiceUnavailable ErrorCode = "REMOTE_SERVICE_UNAVAILABLE"
	ErrCodeRemoteError        ErrorCode = "REMOTE_ERROR"

	// Operation errors
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeOperationFailed   ErrorCode = "OPERATION_FAILED"
	ErrCodeResponseDecode    ErrorCode = "OPERATION_RESPONSE_DECODE"

	// Authentication errors
	ErrCodeAuthenticationFailed ErrorCode = "AUTH_FAILED"
	ErrCodeTokenUnavailable     ErrorCode = "AUTH_TOKEN_UNAVAILABLE"

	// Stream state errors
	ErrCodeStreamClosed ErrorCode = "STATE_STREAM_CLOSED"
	ErrCodeInvalidState ErrorCode = "STATE_INVALID"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryArgument      ErrorCategory = "argument"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryTransport     ErrorCategory = "transport"
	CategoryRemote        ErrorCategory = "remote"
	CategoryOperation     ErrorCategory = "operation"
	CategoryAuth          ErrorCategory = "auth"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// StoreError represents a failed client operation. Every kind of failure
// except local recovery is funneled into this one type so callers can
// distinguish "not found" from "conflict" from "transient" without parsing
// messages.
type StoreError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`
	Path      string `json:"path,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Transport outcome of the last physical attempt
	HTTPStatus             int           `json:"http_status,omitempty"`
	RemoteExceptionName    string        `json:"remote_exception_name,omitempty"`
	RemoteExceptionMessage string        `json:"remote_exception_message,omitempty"`
	RemoteExceptionClass   string        `json:"remote_exception_class,omitempty"`
	TraceID                string        `json:"trace_id,omitempty"`
	LastLatency            time.Duration `json:"last_latency,omitempty"`
	Attempts               AttemptLog    `json:"attempts,omitempty"`

	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	var b strings.Builder
	if e.Operation != "" {
		fmt.Fprintf(&b, "[%s", e.Operation)
		if e.Path != "" {
			fmt.Fprintf(&b, " %s", e.Path)
		}
		b.WriteString("] ")
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (http %d", e.HTTPStatus)
		if e.RemoteExceptionName != "" {
			fmt.Fprintf(&b, ", %s", e.RemoteExceptionName)
		}
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StoreError with the same code.
func (e *StoreError) Is(target error) bool {
	if storeErr, ok := target.(*StoreError); ok {
		return e.Code == storeErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *StoreError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("Path=%s", e.Path))
	}
	if e.RequestID != "" {
		parts = append(parts, fmt.Sprintf("RequestID=%s", e.RequestID))
	}
	if e.HTTPStatus != 0 {
		parts = append(parts, fmt.Sprintf("HTTPStatus=%d", e.HTTPStatus))
	}
	if e.RemoteExceptionName != "" {
		parts = append(parts, fmt.Sprintf("RemoteException=%s", e.RemoteExceptionName))
	}
	if e.TraceID != "" {
		parts = append(parts, fmt.Sprintf("TraceID=%s", e.TraceID))
	}
	if len(e.Attempts) > 0 {
		parts = append(parts, fmt.Sprintf("Attempts=%q", e.Attempts.String()))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("StoreError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *StoreError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new StoreError with default values for the code.
func NewError(code ErrorCode, message string) *StoreError {
	return &StoreError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// Newf is NewError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *StoreError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Canceled wraps a context error into an OPERATION_CANCELED error. The
// context error stays reachable through errors.Is.
func Canceled(operation string, cause error) *StoreError {
	return NewError(ErrCodeOperationCanceled, "operation canceled").
		WithOperation(operation).
		WithCause(cause)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "INVALID_"):
		return CategoryArgument
	case strings.HasPrefix(codeStr, "CONNECTION_") || strings.HasPrefix(codeStr, "NETWORK_"):
		return CategoryTransport
	case strings.HasPrefix(codeStr, "REMOTE_"):
		return CategoryRemote
	case strings.HasPrefix(codeStr, "OPERATION_"):
		return CategoryOperation
	case strings.HasPrefix(codeStr, "AUTH_"):
		return CategoryAuth
	case strings.HasPrefix(codeStr, "STATE_"):
		return CategoryState
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether a failure with this code is transient.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeConnectionTimeout:  true,
		ErrCodeConnectionFailed:   true,
		ErrCodeNetworkError:       true,
		ErrCodeOperationTimeout:   true,
		ErrCodeThrottled:          true,
		ErrCodeServiceUnavailable: true,
	}
	return retryableCodes[code]
}

// WithContext adds contextual information to an error
func (e *StoreError) WithContext(key, value string) *StoreError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *StoreError) WithDetail(key string, value interface{}) *StoreError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *StoreError) WithComponent(component string) *StoreError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *StoreError) WithOperation(operation string) *StoreError {
	e.Operation = operation
	return e
}

// WithPath sets the remote path the operation targeted
func (e *StoreError) WithPath(path string) *StoreError {
	e.Path = path
	return e
}

// WithCause sets the underlying cause
func (e *StoreError) WithCause(cause error) *StoreError {
	e.Cause = cause
	return e
}

// AsStoreError extracts a *StoreError from an error chain.
func AsStoreError(err error) (*StoreError, bool) {
	var storeErr *StoreError
	if stderr.As(err, &storeErr) {
		return storeErr, true
	}
	return nil, false
}

// HasCode reports whether err is a StoreError with the given code.
func HasCode(err error, code ErrorCode) bool {
	storeErr, ok := AsStoreError(err)
	return ok && storeErr.Code == code
}

// IsNotFound reports whether the remote path does not exist.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeFileNotFound)
}

// IsConflict reports whether the operation conflicted with existing state
// on the server (an existing path or another lease holder).
func IsConflict(err error) bool {
	return HasCode(err, ErrCodeAlreadyExists) || HasCode(err, ErrCodeLeaseConflict)
}

// IsThrottled reports whether the server rejected the request for rate reasons.
func IsThrottled(err error) bool {
	return HasCode(err, ErrCodeThrottled)
}

// IsTransient reports whether the failure was transient and the caller may
// try the operation again later.
func IsTransient(err error) bool {
	storeErr, ok := AsStoreError(err)
	return ok && storeErr.Retryable
}

// IsCanceled reports whether the operation stopped because its context was
// canceled or its deadline expired.
func IsCanceled(err error) bool {
	if HasCode(err, ErrCodeOperationCanceled) {
		return true
	}
	return stderr.Is(err, context.Canceled) || stderr.Is(err, context.DeadlineExceeded)
}

// IsArgument reports whether the caller passed an invalid argument.
func IsArgument(err error) bool {
	storeErr, ok := AsStoreError(err)
	return ok && storeErr.Category == CategoryArgument
}
