package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LSPError carries a JSON-RPC error object {code, message, data?} returned
// by a language server. It is propagated verbatim to the caller of the
// request that failed.
type LSPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *LSPError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("LSP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// TransportError represents a fatal framing or stream failure on the wire
// to a language server. It terminates the owning session.
type TransportError struct {
	Language string
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s server: %v", e.Language, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents a single request that received no response within
// its deadline. The session stays usable.
type TimeoutError struct {
	Method   string
	Language string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Language != "" {
		return fmt.Sprintf("request timeout after %v for %s on %s", e.Timeout, e.Method, e.Language)
	}
	return fmt.Sprintf("request timeout after %v for %s", e.Timeout, e.Method)
}

// StateError represents an operation invoked while the session (or the
// registry) is not in a state that allows it. Rejected without touching the
// wire.
type StateError struct {
	Operation string
	State     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Operation, e.State)
}

// ProcessExitError represents a language server process that terminated
// while requests were outstanding or before shutdown was requested.
type ProcessExitError struct {
	Language string
	Cause    error
}

func (e *ProcessExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s server exited: %v", e.Language, e.Cause)
	}
	return fmt.Sprintf("%s server exited", e.Language)
}

func (e *ProcessExitError) Unwrap() error {
	return e.Cause
}

// DocumentError represents caller misuse of document state, such as
// updating a URI that was never opened.
type DocumentError struct {
	URI     string
	Message string
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document error for %s: %s", e.URI, e.Message)
}

// Error constructors

func NewLSPError(code int, message string, data interface{}) *LSPError {
	return &LSPError{Code: code, Message: message, Data: data}
}

func NewTransportError(language string, cause error) *TransportError {
	return &TransportError{Language: language, Cause: cause}
}

func NewTimeoutError(method, language string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{Method: method, Language: language, Timeout: timeout}
}

func NewStateError(operation, state string) *StateError {
	return &StateError{Operation: operation, State: state}
}

func NewProcessExitError(language string, cause error) *ProcessExitError {
	return &ProcessExitError{Language: language, Cause: cause}
}

func NewDocumentError(uri, message string) *DocumentError {
	return &DocumentError{URI: uri, Message: message}
}

// Error classification

// IsProtocolError checks if the error is a JSON-RPC error response from the
// server.
func IsProtocolError(err error) bool {
	var lspErr *LSPError
	return errors.As(err, &lspErr)
}

// IsTransportError checks if the error is a fatal transport failure.
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsTimeoutError checks if the error is a request timeout.
func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsStateError checks if the error reports an operation outside the
// session's valid states.
func IsStateError(err error) bool {
	var stateErr *StateError
	return errors.As(err, &stateErr)
}

// IsProcessExitError checks if the error reports an unexpected server exit.
func IsProcessExitError(err error) bool {
	var exitErr *ProcessExitError
	return errors.As(err, &exitErr)
}

// IsDocumentError checks if the error reports document-state misuse.
func IsDocumentError(err error) bool {
	var docErr *DocumentError
	return errors.As(err, &docErr)
}

// WrapWithContext wraps an error with operation context
func WrapWithContext(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}
